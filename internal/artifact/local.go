package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rrens/inspection-service/internal/domain"
)

// LocalStore keeps artifacts as files under a single directory.
// All operations are confined to baseDir.
type LocalStore struct {
	baseDir string
	baseURL string
}

// NewLocalStore creates the base directory if needed.
// baseURL is the public prefix artifacts are served under (e.g. "https://host/artifacts/").
func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact directory: %w", err)
	}

	if err := os.MkdirAll(absBaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &LocalStore{baseDir: absBaseDir, baseURL: baseURL}, nil
}

// Store writes data under fileName. The bytes land in a temp file first and are
// published with a hard link, so readers never see a partial artifact and an
// existing artifact is never replaced.
func (s *LocalStore) Store(ctx context.Context, fileName string, data []byte) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	key := domain.SanitizeFileName(fileName)
	absPath, err := s.resolvePath(key)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp file: %v", domain.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("%w: failed to write artifact: %v", domain.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("%w: failed to sync artifact: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: failed to close artifact: %v", domain.ErrStorage, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, fmt.Errorf("%w: failed to set artifact permissions: %v", domain.ErrStorage, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if err := os.Link(tmpPath, absPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("artifact %s: %w", key, domain.ErrConflict)
		}
		return nil, fmt.Errorf("%w: failed to publish artifact: %v", domain.ErrStorage, err)
	}

	return &domain.Artifact{
		FileName:   key,
		ContentRef: absPath,
		PublicURL:  s.URL(key),
	}, nil
}

// Open returns the stored artifact. The reader is an *os.File and supports seeking.
func (s *LocalStore) Open(ctx context.Context, fileName string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	if domain.SanitizeFileName(fileName) != fileName {
		return nil, nil, fmt.Errorf("artifact %s: %w", fileName, domain.ErrNotFound)
	}

	absPath, err := s.resolvePath(fileName)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("artifact %s: %w", fileName, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("%w: failed to open artifact: %v", domain.ErrStorage, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: failed to stat artifact: %v", domain.ErrStorage, err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("artifact %s: %w", fileName, domain.ErrNotFound)
	}

	return f, &domain.ArtifactInfo{
		Key:         fileName,
		Size:        stat.Size(),
		ContentType: contentType(fileName),
		ModTime:     stat.ModTime(),
	}, nil
}

// URL returns the public URL for a key
func (s *LocalStore) URL(key string) string {
	return s.baseURL + url.PathEscape(key)
}

// resolvePath converts a key to an absolute path and rejects anything outside baseDir
func (s *LocalStore) resolvePath(key string) (string, error) {
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(key)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve path: %v", domain.ErrStorage, err)
	}

	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid artifact path %s", domain.ErrNotFound, key)
	}

	return absPath, nil
}

func contentType(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
