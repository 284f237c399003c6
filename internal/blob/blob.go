// Package blob stores document bytes. Metadata lives in the registry; blob
// keys are derived from ids, never from user input.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound indicates no object exists under the key.
var ErrNotFound = errors.New("blob: not found")

// Store persists document content. Like the rest of the model it is
// add-only: nothing ever deletes an uploaded document.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Key builds the storage key for a case document.
func Key(caseID, documentID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join("cases", caseID, documentID+ext)
}

// validateKey rejects keys that could escape the store prefix. Keys are
// generated internally, so a violation indicates corrupted metadata.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob: empty key")
	}
	if path.IsAbs(key) || key != path.Clean(key) || strings.Contains(key, "..") {
		return fmt.Errorf("blob: unsafe key %q", key)
	}
	return nil
}

// contentTypeForExt guesses a content type from the file extension.
func contentTypeForExt(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
