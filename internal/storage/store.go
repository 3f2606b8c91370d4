package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for object keys that would escape their bucket.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore is a bucketed blob store with public URLs.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader) error
	PublicURL(bucket, key string) string
}

// DiskStore keeps objects under Root/<bucket>/<key> and serves them from BaseURL.
type DiskStore struct {
	Root    string
	BaseURL string
}

// NewDiskStore returns a store rooted at dir.
func NewDiskStore(dir, baseURL string) *DiskStore {
	return &DiskStore{Root: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Put writes body to a temp file and renames it into place, so readers never
// observe a partial object.
func (s *DiskStore) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	full, err := s.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	return os.Rename(tmp.Name(), full)
}

// PublicURL builds the address the object is served from.
func (s *DiskStore) PublicURL(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.BaseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

// Path resolves bucket and key to a file below Root.
func (s *DiskStore) Path(bucket, key string) (string, error) {
	if !validSegment(bucket) || key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if !validSegment(seg) {
			return "", ErrInvalidKey
		}
	}
	return filepath.Join(s.Root, bucket, filepath.FromSlash(cleaned)), nil
}

func validSegment(seg string) bool {
	return seg != "" && seg != "." && seg != ".." && !strings.ContainsAny(seg, `/\`)
}
