package domain

import (
	"context"
	"io"
	"regexp"
	"strings"
	"time"
)

const (
	artifactPrefix    = "apv"
	artifactExtension = ".pdf"
	maxFileNameLength = 200
)

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Artifact represents a rendered, persisted report
type Artifact struct {
	FileName   string `json:"fileName"`
	ContentRef string `json:"contentRef"`
	PublicURL  string `json:"publicUrl"`
}

// ArtifactInfo describes a stored artifact on retrieval
type ArtifactInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ArtifactStore defines the interface for artifact persistence.
// Store never overwrites: an existing key yields ErrConflict.
type ArtifactStore interface {
	Store(ctx context.Context, fileName string, data []byte) (*Artifact, error)
	Open(ctx context.Context, fileName string) (io.ReadCloser, *ArtifactInfo, error)
	URL(key string) string
}

// ArtifactFileName derives the report file name for a session.
// The owner code, when present, is a human-readable prefix; uniqueness comes from the session ID.
func ArtifactFileName(s *Session) string {
	name := artifactPrefix + "-"
	if s.OwnerCode != "" {
		name += s.OwnerCode + "-"
	}
	return SanitizeFileName(name + s.ID + artifactExtension)
}

// SanitizeFileName restricts a name to [A-Za-z0-9._-] so it is safe as a storage key
func SanitizeFileName(name string) string {
	name = unsafeFileNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxFileNameLength {
		name = name[len(name)-maxFileNameLength:]
		name = strings.TrimLeft(name, ".")
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}
