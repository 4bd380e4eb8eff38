package factory

import (
	"fmt"

	"github.com/ryosuke1832/remind/internal/blobstore"
	"github.com/ryosuke1832/remind/internal/config"
)

// NewBlobStore returns the blob store selected by cfg.BlobDriver. The second
// result is the directory to serve under /uploads/, empty for remote stores.
func NewBlobStore(cfg *config.Config) (blobstore.Store, string, error) {
	switch cfg.BlobDriver {
	case "local":
		l, err := blobstore.NewLocal(cfg.LocalBlobDir, cfg.LocalBlobBaseURL)
		if err != nil {
			return nil, "", err
		}
		return l, cfg.LocalBlobDir, nil
	case "cloudinary":
		return blobstore.NewCloudinary(cfg.CloudinaryAPIBase, cfg.CloudinaryCloudName, cfg.CloudinaryUploadPreset), "", nil
	default:
		return nil, "", fmt.Errorf("unknown BLOB_DRIVER: %s", cfg.BlobDriver)
	}
}
