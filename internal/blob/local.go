package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Local keeps blobs on the filesystem under a base directory. It is the
// default backend for development and single-node deployments.
type Local struct {
	baseDir string
}

// NewLocal creates the base directory if it does not exist.
func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("blob: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create base directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	full := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blob: create directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("blob: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return fmt.Errorf("blob: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("blob: close file: %w", err)
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	full := filepath.Join(l.baseDir, filepath.FromSlash(key))
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("blob: open file: %w", err)
	}
	return f, contentTypeForExt(key), nil
}

// SignedURL on the local backend returns a relative content path; the API
// serves the bytes itself, so no signature is involved.
func (l *Local) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return "/blobs/" + key, nil
}
