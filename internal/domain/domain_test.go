package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id, err := domain.NewSessionID()
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, domain.SanitizeFileName(id), "id must be a safe file name")

		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestArtifactFileName(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		s := &domain.Session{ID: "abc123"}
		assert.Equal(t, "apv-abc123.pdf", domain.ArtifactFileName(s))
	})

	t.Run("owner code prefix", func(t *testing.T) {
		s := &domain.Session{ID: "abc123", OwnerCode: "1f2e3d4c"}
		assert.Equal(t, "apv-1f2e3d4c-abc123.pdf", domain.ArtifactFileName(s))
	})

	t.Run("unsafe owner code", func(t *testing.T) {
		s := &domain.Session{ID: "abc123", OwnerCode: "../../etc/passwd"}
		name := domain.ArtifactFileName(s)
		assert.NotContains(t, name, "/")
		assert.True(t, strings.HasSuffix(name, "-abc123.pdf"))
	})
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (1).pdf", "my_report_1_.pdf"},
		{"..hidden", "hidden"},
		{"ærø.pdf", "_r_.pdf"},
		{"", "unnamed"},
		{"...", "unnamed"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.SanitizeFileName(tt.in))
		})
	}

	long := strings.Repeat("a", 300) + "-id.pdf"
	got := domain.SanitizeFileName(long)
	assert.LessOrEqual(t, len(got), 200)
	assert.True(t, strings.HasSuffix(got, "-id.pdf"))
}

func TestKindOf(t *testing.T) {
	verr := &domain.ValidationError{Fields: map[string]string{"title": "field is required"}}

	assert.Equal(t, domain.KindValidation, domain.KindOf(verr))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(fmt.Errorf("%w: session x", domain.ErrNotFound)))
	assert.Equal(t, domain.KindConflict, domain.KindOf(domain.ErrConflict))
	assert.Equal(t, domain.KindRender, domain.KindOf(fmt.Errorf("wrap: %w", domain.ErrRender)))
	assert.Equal(t, domain.KindStorage, domain.KindOf(domain.ErrStorage))
	assert.Equal(t, domain.KindInternal, domain.KindOf(errors.New("boom")))

	assert.Contains(t, verr.Error(), "title: field is required")
}

func TestSessionClone(t *testing.T) {
	s := &domain.Session{ID: "x", Questions: []string{"a", "b"}}
	clone := s.Clone()
	clone.Questions[0] = "changed"

	assert.Equal(t, "a", s.Questions[0])

	view := s.View()
	assert.Equal(t, 2, view.QuestionCount)
}
