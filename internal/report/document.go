package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
)

const defaultTitle = "APV"

// LineKind tells the encoder how to style a line
type LineKind int

const (
	LineTitle LineKind = iota
	LineMeta
	LineHeading
	LineItem
)

// Line is one logical line of the report
type Line struct {
	Kind LineKind
	Text string
}

// Document is the content of a finalized inspection report, independent of encoding
type Document struct {
	Title       string
	GeneratedAt time.Time
	OwnerCode   string
	Questions   []string
}

// BuildDocument snapshots a session into report content. At most maxQuestions
// questions are kept; order, duplicates and empty strings are preserved.
func BuildDocument(s *domain.Session, generatedAt time.Time, maxQuestions int) Document {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = defaultTitle
	}

	questions := s.Questions
	if maxQuestions > 0 && len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}

	return Document{
		Title:       title,
		GeneratedAt: generatedAt,
		OwnerCode:   s.OwnerCode,
		Questions:   append([]string(nil), questions...),
	}
}

// Lines returns the report in reading order
func (d Document) Lines() []Line {
	lines := make([]Line, 0, len(d.Questions)+4)
	lines = append(lines,
		Line{Kind: LineTitle, Text: d.Title},
		Line{Kind: LineMeta, Text: "Generated: " + d.GeneratedAt.Format(time.RFC1123)},
	)
	if d.OwnerCode != "" {
		lines = append(lines, Line{Kind: LineMeta, Text: "Owner code: " + d.OwnerCode})
	}
	lines = append(lines, Line{Kind: LineHeading, Text: "Questions"})
	for i, q := range d.Questions {
		lines = append(lines, Line{Kind: LineItem, Text: fmt.Sprintf("%d. %s", i+1, q)})
	}
	return lines
}

// Text renders the document as plain UTF-8, one line per entry
func (d Document) Text() string {
	var b strings.Builder
	for _, l := range d.Lines() {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
