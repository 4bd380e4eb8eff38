package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ryosuke1832/remind/internal/api/respond"
	"github.com/ryosuke1832/remind/internal/api/validate"
	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/form"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/services"
	"github.com/ryosuke1832/remind/internal/upload"
)

// MediaLimits bounds one multipart submission.
type MediaLimits struct {
	MaxImages    int
	MaxImageSize int64
	MaxAudioSize int64
}

// MediaHandler accepts the recipient's images and voice message.
type MediaHandler struct {
	svc    *services.AvatarService
	limits MediaLimits
}

func NewMediaHandler(svc *services.AvatarService, limits MediaLimits) *MediaHandler {
	return &MediaHandler{svc: svc, limits: limits}
}

type mediaResponse struct {
	Avatar  *model.Avatar     `json:"avatar"`
	ViewURL string            `json:"view_url"`
	State   form.State        `json:"state"`
	Steps   []upload.Progress `json:"steps"`
}

// SubmitMedia POST /api/avatars/{avatarId}/media
// Multipart fields: images (repeated), audio, consent.
func (h *MediaHandler) SubmitMedia(w http.ResponseWriter, r *http.Request) {
	avatarID := mux.Vars(r)["avatarId"]
	if err := validate.AvatarID(avatarID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	// Room for every part at its limit plus form overhead.
	maxBody := int64(h.limits.MaxImages)*h.limits.MaxImageSize + h.limits.MaxAudioSize + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respond.WriteBadRequest(w, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	sess := form.NewSession(form.Limits{MaxImages: h.limits.MaxImages, MaxImageSize: h.limits.MaxImageSize})
	for _, fh := range r.MultipartForm.File["images"] {
		data, err := readPart(fh)
		if err != nil {
			respond.WriteBadRequest(w, "Unreadable image part")
			return
		}
		if _, err := sess.AddImage(fh.Filename, partType(fh, data), data); err != nil {
			respond.WriteDomainError(w, err)
			return
		}
	}
	if files := r.MultipartForm.File["audio"]; len(files) > 0 {
		fh := files[0]
		if h.limits.MaxAudioSize > 0 && fh.Size > h.limits.MaxAudioSize {
			respond.WriteDomainError(w, audioLimitError(h.limits.MaxAudioSize))
			return
		}
		data, err := readPart(fh)
		if err != nil {
			respond.WriteBadRequest(w, "Unreadable audio part")
			return
		}
		if err := sess.SetAudio(upload.Media{Filename: fh.Filename, ContentType: partType(fh, data), Data: data}); err != nil {
			respond.WriteDomainError(w, err)
			return
		}
	}
	consent, _ := strconv.ParseBool(r.FormValue("consent"))
	sess.SetConsent(consent)

	var (
		out   *model.Avatar
		steps []upload.Progress
	)
	err := sess.Submit(r.Context(), func(ctx context.Context, images []upload.Media, audio upload.Media) error {
		a, err := h.svc.SubmitMedia(ctx, avatarID, images, audio, func(p upload.Progress) {
			steps = append(steps, p)
		})
		out = a
		return err
	})
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, mediaResponse{
		Avatar:  out,
		ViewURL: h.svc.ViewURL(avatarID),
		State:   sess.State(),
		Steps:   steps,
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// partType trusts the declared type unless the client sent a generic one.
func partType(fh *multipart.FileHeader, data []byte) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return http.DetectContentType(data)
	}
	return ct
}

// audioLimitError rejects a clip whose declared size exceeds the limit.
func audioLimitError(limit int64) error {
	return apperr.NewValidationError("audio", "Audio file is too large. Maximum size is "+strconv.FormatInt(limit/1024/1024, 10)+"MB")
}
