// Package storage persists attachment bytes and hands back a URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Object describes a stored blob.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// Store saves attachment content.
type Store interface {
	Save(ctx context.Context, data []byte, pathHint string) (Object, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// LocalStore writes objects below a directory and serves them under BaseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save stores data under "<hint dir>/<uuid>-<file name>".
func (s *LocalStore) Save(ctx context.Context, data []byte, pathHint string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	key := objectKey(pathHint)
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("failed to write object: %w", err)
	}

	return Object{Key: key, URL: s.baseURL + "/" + key, Size: int64(len(data))}, nil
}

// objectKey keeps the hint's directory segments and file name but strips
// anything that could escape the root.
func objectKey(hint string) string {
	hint = strings.ReplaceAll(hint, "\\", "/")
	var segs []string
	for _, seg := range strings.Split(path.Clean("/"+hint), "/") {
		seg = strings.Trim(unsafeChars.ReplaceAllString(seg, "_"), "._")
		if seg != "" {
			segs = append(segs, seg)
		}
	}

	name := "file"
	if len(segs) > 0 {
		name = segs[len(segs)-1]
		segs = segs[:len(segs)-1]
	}
	return path.Join(append(segs, uuid.NewString()+"-"+name)...)
}
