// Package archive stores rendered reports on local disk or in an S3
// compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reconbook/api/internal/util"

	"github.com/natefinch/atomic"
)

// Store persists a report under key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Backend() string
}

// keyTime keeps microseconds so keys still sort by creation time.
const keyTime = "20060102T150405.000000Z"

// Key names an archived report: reports/<slug>/<UTC timestamp>-<suffix>.<ext>.
// The random suffix keeps two archives taken in the same instant apart.
func Key(slug, ext string, at time.Time) string {
	suffix := util.NewID("")[:8]
	return fmt.Sprintf("reports/%s/%s-%s.%s", slug, at.UTC().Format(keyTime), suffix, strings.TrimPrefix(ext, "."))
}

// FileArchive writes reports below a root directory. Each write goes through
// a temp file and rename so readers never see a partial report.
type FileArchive struct {
	root string
}

func NewFileArchive(root string) (*FileArchive, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &FileArchive{root: root}, nil
}

func (a *FileArchive) Backend() string { return "file" }

func (a *FileArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := a.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write archive %s: %w", key, err)
	}
	return nil
}

// path resolves key inside root and refuses anything that escapes it.
func (a *FileArchive) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return filepath.Join(a.root, clean), nil
}
