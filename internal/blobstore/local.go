package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes assets under a directory served by the service at /uploads/.
type Local struct {
	Dir     string
	BaseURL string // e.g. "http://localhost:8080"
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Provider() string { return "local" }

// Upload overwrites any previous file with the same public id.
func (l *Local) Upload(ctx context.Context, a Asset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := safeName(a.PublicID)
	if err != nil {
		return "", err
	}
	folder := ""
	if a.Folder != "" {
		if folder, err = safeName(a.Folder); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(l.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}

	file := name + extension(a)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(a.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, file)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	parts := []string{l.BaseURL, "uploads"}
	if folder != "" {
		parts = append(parts, folder)
	}
	return strings.Join(append(parts, file), "/"), nil
}

// safeName rejects ids that would escape the upload directory.
func safeName(s string) (string, error) {
	if s == "" || s != filepath.Base(s) || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("invalid public id %q", s)
	}
	return s, nil
}
