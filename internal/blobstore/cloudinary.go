package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ryosuke1832/remind/internal/apperr"
)

// Cloudinary uploads through the unsigned upload API with an upload preset.
type Cloudinary struct {
	client    *resty.Client
	cloudName string
	preset    string
}

// NewCloudinary creates a client against apiBase (https://api.cloudinary.com in production).
// Per-attempt deadlines come from the caller's context.
func NewCloudinary(apiBase, cloudName, preset string) *Cloudinary {
	c := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(5 * time.Minute)
	return &Cloudinary{client: c, cloudName: cloudName, preset: preset}
}

func (c *Cloudinary) Provider() string { return "cloudinary" }

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Bytes     int64  `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Upload posts one asset. Audio goes to the video endpoint, which is where
// the CDN keeps audio resources. Every failure is a TransientError.
func (c *Cloudinary) Upload(ctx context.Context, a Asset) (string, error) {
	resource := "image"
	form := map[string]string{
		"upload_preset": c.preset,
		"public_id":     a.PublicID,
		"folder":        a.Folder,
	}
	if a.Kind == KindAudio {
		resource = "video"
		form["resource_type"] = "video"
	}

	op := "upload " + a.PublicID
	filename := a.Filename
	if filename == "" {
		filename = a.PublicID + extension(a)
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, bytes.NewReader(a.Data)).
		SetFormData(form).
		Post(fmt.Sprintf("/v1_1/%s/%s/upload", c.cloudName, resource))
	if err != nil {
		return "", &apperr.TransientError{Op: op, Err: err}
	}
	if resp.IsError() {
		body := resp.String()
		var ur uploadResponse
		if json.Unmarshal(resp.Body(), &ur) == nil && ur.Error != nil {
			body = ur.Error.Message
		}
		return "", &apperr.TransientError{Op: op, StatusCode: resp.StatusCode(), Body: body}
	}

	var ur uploadResponse
	if err := json.Unmarshal(resp.Body(), &ur); err != nil {
		return "", &apperr.TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if ur.SecureURL == "" {
		return "", &apperr.TransientError{Op: op, Err: fmt.Errorf("response missing secure_url")}
	}
	return ur.SecureURL, nil
}
