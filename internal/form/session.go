package form

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/upload"
)

// Phase is the lifecycle of an upload session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRecording Phase = "recording"
	PhaseUploading Phase = "uploading"
	PhaseFailed    Phase = "failed"
	PhaseDone      Phase = "done"
)

// MsgMicDenied is shown when microphone access is refused.
const MsgMicDenied = "Cannot access mic, allow the mic using"

// ImageInfo describes a captured image without its bytes.
type ImageInfo struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// State is an immutable view of a session.
type State struct {
	Phase     Phase       `json:"phase"`
	Images    []ImageInfo `json:"images"`
	HasAudio  bool        `json:"has_audio"`
	AudioSize int64       `json:"audio_size"`
	Consent   bool        `json:"consent"`
	Error     string      `json:"error,omitempty"`
	CanSubmit bool        `json:"can_submit"`
}

// Limits bounds what a session accepts.
type Limits struct {
	MaxImages    int
	MaxImageSize int64
}

type capturedImage struct {
	info  ImageInfo
	media upload.Media
}

// SubmitFunc performs the upload and record write for the captured media.
type SubmitFunc func(ctx context.Context, images []upload.Media, audio upload.Media) error

// Session owns the media captured by one form. It is safe for concurrent use.
type Session struct {
	mu             sync.Mutex
	limits         Limits
	phase          Phase
	images         []capturedImage
	nextID         int
	audio          *upload.Media
	consent        bool
	lastErr        string
	recordingSince time.Time
	subs           map[int]chan State
	nextSub        int
}

func NewSession(limits Limits) *Session {
	return &Session{limits: limits, phase: PhaseIdle, subs: make(map[int]chan State)}
}

// AddImage captures one image. Oversized and non-image files are rejected;
// images beyond the limit are ignored with an error.
func (s *Session) AddImage(filename, contentType string, data []byte) (ImageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseUploading {
		return ImageInfo{}, apperr.NewConflictError("session", "upload in progress")
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return ImageInfo{}, apperr.NewValidationError("images", fmt.Sprintf("%q is not an image", filename))
	}
	if len(s.images) >= s.limits.MaxImages {
		return ImageInfo{}, apperr.NewValidationError("images", fmt.Sprintf("You can upload up to %d images", s.limits.MaxImages))
	}
	if len(data) == 0 {
		return ImageInfo{}, apperr.NewValidationError("images", fmt.Sprintf("Image %q is empty", filename))
	}
	if int64(len(data)) > s.limits.MaxImageSize {
		return ImageInfo{}, apperr.NewValidationError("images",
			fmt.Sprintf("Image %q is too large. Maximum size is %dMB", filename, s.limits.MaxImageSize/1024/1024))
	}

	s.nextID++
	info := ImageInfo{ID: s.nextID, Filename: filename, Size: int64(len(data))}
	s.images = append(s.images, capturedImage{
		info:  info,
		media: upload.Media{Filename: filename, ContentType: contentType, Data: data},
	})
	s.settle()
	s.notify()
	return info, nil
}

// RemoveImage drops an image by id. Returns false when no image matched.
func (s *Session) RemoveImage(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return false
	}
	for i, img := range s.images {
		if img.info.ID == id {
			s.images = append(s.images[:i], s.images[i+1:]...)
			s.settle()
			s.notify()
			return true
		}
	}
	return false
}

// StartRecording enters the recording phase.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return apperr.NewConflictError("session", "upload in progress")
	}
	s.phase = PhaseRecording
	s.recordingSince = time.Now()
	s.lastErr = ""
	s.notify()
	return nil
}

// StopRecording stores the recorded clip and leaves the recording phase.
// It returns how long the recording ran.
func (s *Session) StopRecording(clip upload.Media) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRecording {
		return 0, apperr.NewConflictError("session", "not recording")
	}
	elapsed := time.Since(s.recordingSince)
	s.recordingSince = time.Time{}
	s.phase = PhaseIdle
	if len(clip.Data) > 0 {
		c := clip
		s.audio = &c
	}
	s.notify()
	return elapsed, nil
}

// RecordingDenied records a refused microphone permission. The returned
// PermissionError carries the message shown to the user.
func (s *Session) RecordingDenied() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseRecording {
		s.phase = PhaseIdle
	}
	s.recordingSince = time.Time{}
	s.lastErr = MsgMicDenied
	s.notify()
	return apperr.NewPermissionError("microphone", MsgMicDenied)
}

// SetAudio replaces the audio clip, as when a file is picked instead of recorded.
func (s *Session) SetAudio(clip upload.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return apperr.NewConflictError("session", "upload in progress")
	}
	if len(clip.Data) == 0 {
		return apperr.NewValidationError("audio", "Please record a voice message")
	}
	c := clip
	s.audio = &c
	s.settle()
	s.notify()
	return nil
}

// ClearAudio removes the audio clip.
func (s *Session) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return
	}
	s.audio = nil
	s.settle()
	s.notify()
}

// SetConsent records the consent checkbox.
func (s *Session) SetConsent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent = v
	s.notify()
}

// CanSubmit reports whether the collected inputs allow submission.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmit()
}

func (s *Session) canSubmit() bool {
	return s.consent && len(s.images) >= 1 && s.audio != nil &&
		s.phase != PhaseUploading && s.phase != PhaseRecording && s.phase != PhaseDone
}

// Submit runs fn with the captured media. A second call while one is in
// flight is rejected. On failure the session returns to an actionable
// state so the user can retry; on success the captured media is released.
func (s *Session) Submit(ctx context.Context, fn SubmitFunc) error {
	s.mu.Lock()
	if s.phase == PhaseUploading {
		s.mu.Unlock()
		return apperr.NewConflictError("session", "submission already in progress")
	}
	if !s.canSubmit() {
		s.mu.Unlock()
		return s.missing()
	}
	images := make([]upload.Media, len(s.images))
	for i, img := range s.images {
		images[i] = img.media
	}
	audio := *s.audio
	s.phase = PhaseUploading
	s.lastErr = ""
	s.notify()
	s.mu.Unlock()

	err := fn(ctx, images, audio)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.phase = PhaseFailed
		s.lastErr = err.Error()
		s.notify()
		return err
	}
	s.phase = PhaseDone
	s.images = nil
	s.audio = nil
	s.notify()
	return nil
}

// missing explains why submission is not allowed. Caller holds mu.
func (s *Session) missing() error {
	switch {
	case s.phase == PhaseRecording:
		return apperr.NewConflictError("session", "recording in progress")
	case s.phase == PhaseDone:
		return apperr.NewConflictError("session", "already submitted")
	case len(s.images) == 0:
		return apperr.NewValidationError("images", "Please add at least one image")
	case s.audio == nil:
		return apperr.NewValidationError("audio", "Please record a voice message")
	default:
		return apperr.NewValidationError("consent", "Please confirm consent")
	}
}

// Reset clears the session back to idle. A session that is uploading
// cannot be reset.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return apperr.NewConflictError("session", "upload in progress")
	}
	s.phase = PhaseIdle
	s.images = nil
	s.audio = nil
	s.consent = false
	s.lastErr = ""
	s.recordingSince = time.Time{}
	s.notify()
	return nil
}

// State returns the current view.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Subscribe returns a channel carrying the newest state after each change
// and a func that ends the subscription. Slow readers only see the latest.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// settle moves a failed session back to idle once inputs change. Caller holds mu.
func (s *Session) settle() {
	if s.phase == PhaseFailed || s.phase == PhaseDone {
		s.phase = PhaseIdle
		s.lastErr = ""
	}
}

func (s *Session) snapshot() State {
	st := State{
		Phase:   s.phase,
		Images:  make([]ImageInfo, len(s.images)),
		Consent: s.consent,
		Error:   s.lastErr,
	}
	for i, img := range s.images {
		st.Images[i] = img.info
	}
	if s.audio != nil {
		st.HasAudio = true
		st.AudioSize = int64(len(s.audio.Data))
	}
	st.CanSubmit = s.canSubmit()
	return st
}

// notify delivers the newest state to every subscriber. Caller holds mu.
func (s *Session) notify() {
	st := s.snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
