// Package blobstore uploads media assets to a CDN-style blob store and
// returns their public URLs.
package blobstore

import (
	"context"
	"path/filepath"
	"strings"
)

// Kind selects the target resource class for an asset.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Asset is one file to upload under a caller-chosen public id.
type Asset struct {
	PublicID    string
	Folder      string
	Kind        Kind
	Filename    string
	ContentType string
	Data        []byte
}

// Store is the only interface the upload pipeline depends on.
// Upload must be idempotent for a given public id.
type Store interface {
	Upload(ctx context.Context, a Asset) (string, error)
	// Provider is recorded on the avatar as storage_provider.
	Provider() string
}

// extension picks a file extension from the filename, then the content type.
func extension(a Asset) string {
	if ext := filepath.Ext(a.Filename); ext != "" {
		return strings.ToLower(ext)
	}
	switch {
	case strings.HasPrefix(a.ContentType, "image/png"):
		return ".png"
	case strings.HasPrefix(a.ContentType, "image/"):
		return ".jpg"
	case strings.Contains(a.ContentType, "webm"):
		return ".webm"
	case strings.Contains(a.ContentType, "wav"):
		return ".wav"
	case a.Kind == KindAudio:
		return ".m4a"
	}
	return ".bin"
}
