package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/go-pdf/fpdf"
	"github.com/jonboulle/clockwork"
)

const (
	pageMargin = 48.0

	titleSize   = 20.0
	headingSize = 14.0
	bodySize    = 12.0

	textAttachmentName = "report.txt"

	coreFontFamily = "Helvetica"
	utf8FontFamily = "ReportSans"
)

// Renderer turns a session snapshot into a PDF report
type Renderer struct {
	clock        clockwork.Clock
	maxQuestions int
	fontTTF      []byte
}

// Option configures a Renderer
type Option func(*Renderer)

// WithClock pins the generation timestamp source
func WithClock(clock clockwork.Clock) Option {
	return func(r *Renderer) {
		r.clock = clock
	}
}

// WithMaxQuestions overrides the question cap
func WithMaxQuestions(n int) Option {
	return func(r *Renderer) {
		r.maxQuestions = n
	}
}

// WithUTF8Font embeds a TrueType font so page text is not limited to cp1252.
// The same face is used for headings.
func WithUTF8Font(ttf []byte) Option {
	return func(r *Renderer) {
		r.fontTTF = ttf
	}
}

// NewRenderer creates a PDF renderer
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		clock:        clockwork.NewRealClock(),
		maxQuestions: domain.MaxQuestions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the PDF bytes for a session
func (r *Renderer) Render(ctx context.Context, s *domain.Session) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}

	doc := BuildDocument(s, r.clock.Now(), r.maxQuestions)

	data, err := encodePDF(doc, r.fontTTF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRender, err)
	}
	return data, nil
}

func encodePDF(doc Document, fontTTF []byte) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.SetModificationDate(doc.GeneratedAt)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("inspection-service", false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)

	// The attachment keeps the exact text whatever font the pages use.
	pdf.SetAttachments([]fpdf.Attachment{{
		Content:     []byte(doc.Text()),
		Filename:    textAttachmentName,
		Description: "Report text (UTF-8)",
	}})

	family := coreFontFamily
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if len(fontTTF) > 0 {
		if !isTrueType(fontTTF) {
			return nil, errors.New("report font is not a TrueType file")
		}
		family = utf8FontFamily
		pdf.AddUTF8FontFromBytes(family, "", fontTTF)
		pdf.AddUTF8FontFromBytes(family, "B", fontTTF)
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("failed to load report font: %w", err)
		}
		tr = func(s string) string { return s }
	}

	pdf.AddPage()

	var prev LineKind = -1
	for _, line := range doc.Lines() {
		switch line.Kind {
		case LineTitle:
			pdf.SetFont(family, "U", titleSize)
			pdf.MultiCell(0, titleSize*1.2, tr(line.Text), "", "L", false)
			pdf.Ln(bodySize)
		case LineMeta:
			pdf.SetFont(family, "", bodySize)
			pdf.MultiCell(0, bodySize*1.3, tr(line.Text), "", "L", false)
		case LineHeading:
			if prev == LineMeta {
				pdf.Ln(bodySize)
			}
			pdf.SetFont(family, "B", headingSize)
			pdf.MultiCell(0, headingSize*1.3, tr(line.Text), "", "L", false)
			pdf.Ln(bodySize / 2)
		case LineItem:
			pdf.SetFont(family, "", bodySize)
			pdf.MultiCell(0, bodySize*1.3, tr(line.Text), "", "L", false)
		}
		prev = line.Kind
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fpdf only reports bad font bytes on stdout, so the sfnt version is checked up front
func isTrueType(ttf []byte) bool {
	if len(ttf) < 12 {
		return false
	}
	return bytes.Equal(ttf[:4], []byte{0x00, 0x01, 0x00, 0x00}) || string(ttf[:4]) == "true"
}
