package upload

import (
	"errors"
	"fmt"

	"github.com/ryosuke1832/remind/internal/blobstore"
)

// ErrUploadFailed is matched by every UploadFailedError.
var ErrUploadFailed = errors.New("upload failed")

// UploadFailedError reports the asset that exhausted its retries.
type UploadFailedError struct {
	PublicID string
	Kind     blobstore.Kind
	Index    int // image position; -1 for audio
	Attempts int
	Err      error
}

func (e *UploadFailedError) Error() string {
	if e.Kind == blobstore.KindImage {
		return fmt.Sprintf("upload of image %d (%s) failed after %d attempts: %v", e.Index+1, e.PublicID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upload of audio (%s) failed after %d attempts: %v", e.PublicID, e.Attempts, e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

func (e *UploadFailedError) Is(target error) bool { return target == ErrUploadFailed }
