// Package reporttest inspects rendered reports in tests.
package reporttest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// AttachedText returns the UTF-8 text embedded in a rendered report
func AttachedText(t *testing.T, pdf []byte) string {
	t.Helper()

	start := bytes.Index(pdf, []byte("/Type /EmbeddedFile"))
	require.GreaterOrEqual(t, start, 0, "report has no embedded text")
	rest := pdf[start:]

	open := bytes.Index(rest, []byte("stream\n"))
	require.GreaterOrEqual(t, open, 0)
	dict := rest[:open]
	body := rest[open+len("stream\n"):]
	end := bytes.Index(body, []byte("\nendstream"))
	require.GreaterOrEqual(t, end, 0)
	body = body[:end]

	if !bytes.Contains(dict, []byte("/FlateDecode")) {
		return string(body)
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer zr.Close()
	text, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(text)
}

// RequireNumberedQuestions checks that the page text lists questions as
// "1. q", "2. q", ... in order, with nothing skipped or merged.
func RequireNumberedQuestions(t *testing.T, pdf []byte, questions []string) {
	t.Helper()

	offset := 0
	for i, q := range questions {
		item := []byte(fmt.Sprintf("(%d. %s)", i+1, q))
		idx := bytes.Index(pdf[offset:], item)
		require.GreaterOrEqual(t, idx, 0, "item %q missing or out of order", item)
		offset += idx + len(item)
	}

	extra := []byte(fmt.Sprintf("(%d. ", len(questions)+1))
	require.False(t, bytes.Contains(pdf[offset:], extra), "unexpected item %q", extra)
}
