package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/form"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
	"github.com/ryosuke1832/remind/internal/synchronizer"
	"github.com/ryosuke1832/remind/internal/upload"
)

// MediaUploader moves one avatar's media into the blob store.
type MediaUploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
	Provider() string
}

// URLVerifier checks delivered assets are reachable.
type URLVerifier interface {
	Verify(ctx context.Context, urls []string) []upload.Check
}

// InviteRequest describes the avatar shell created for a recipient.
type InviteRequest struct {
	RecipientName string `json:"recipient_name"`
	CreatorName   string `json:"creator_name,omitempty"`
	Name          string `json:"name,omitempty"`
	Language      string `json:"language,omitempty"`
	Theme         string `json:"theme,omitempty"`
	VoiceTone     string `json:"voice_tone,omitempty"`
}

type AvatarService struct {
	store    store.Store
	mirrors  *synchronizer.Registry
	uploader MediaUploader
	verifier URLVerifier
	baseURL  string
	log      zerolog.Logger
	now      func() time.Time

	inflight sync.Map // avatar id -> struct{}
}

func NewAvatarService(s store.Store, mirrors *synchronizer.Registry, uploader MediaUploader, verifier URLVerifier, baseURL string, log zerolog.Logger) *AvatarService {
	return &AvatarService{
		store: s, mirrors: mirrors, uploader: uploader, verifier: verifier,
		baseURL: baseURL, log: log, now: time.Now,
	}
}

// withMirror runs fn against the owner's shared mirror.
func (s *AvatarService) withMirror(ctx context.Context, ownerID string, fn func(*synchronizer.Mirror) error) error {
	m, release, err := s.mirrors.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()
	return fn(m)
}

func (s *AvatarService) existing(ctx context.Context, ownerID string) ([]model.Avatar, error) {
	docs, err := s.store.Avatars().Query(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	list, _ := store.DecodeAll(docs)
	return list, nil
}

// CreateInvite creates a not-ready avatar shell and its shareable link.
func (s *AvatarService) CreateInvite(ctx context.Context, ownerID string, req InviteRequest) (*model.Avatar, error) {
	owner, err := s.store.Users().Get(ctx, ownerID)
	if err != nil {
		return nil, translate(err, "user", ownerID)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.RecipientName)
	}
	existing, err := s.existing(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if res := form.ValidateName(name, existing, ""); !res.Valid {
		return nil, apperr.NewValidationError(res.Field, res.Message)
	}

	creator := strings.TrimSpace(req.CreatorName)
	if creator == "" {
		creator = owner.DisplayName()
	}
	id := model.NewAvatarID(s.now())
	a := model.Avatar{
		ID:                id,
		OwnerID:           ownerID,
		Name:              name,
		RecipientName:     strings.TrimSpace(req.RecipientName),
		CreatorName:       creator,
		Language:          orDefault(req.Language, model.DefaultLanguage),
		Theme:             orDefault(req.Theme, model.DefaultTheme),
		VoiceTone:         orDefault(req.VoiceTone, model.DefaultVoiceTone),
		ProfileImg:        model.DefaultProfileImage,
		ImageURLs:         []string{},
		DeepfakeVideoURLs: []string{},
		AudioSizeMB:       "0.00",
		StorageProvider:   s.uploader.Provider(),
		Status:            model.StatusNotReady,
		CreateURL:         model.InviteURL(s.baseURL, id),
	}

	var created *model.Avatar
	err = s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		var err error
		created, err = m.Add(ctx, a)
		return err
	})
	if err != nil {
		return nil, translate(err, "avatar", id)
	}
	s.log.Info().Str("owner_id", ownerID).Str("avatar_id", id).Msg("invite created")
	return created, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// List returns the owner's avatars in list order.
func (s *AvatarService) List(ctx context.Context, ownerID string) ([]model.Avatar, error) {
	var out []model.Avatar
	err := s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		out = m.Avatars()
		return nil
	})
	return out, err
}

// Snapshot returns the owner's full mirrored state.
func (s *AvatarService) Snapshot(ctx context.Context, ownerID string) (synchronizer.Snapshot, error) {
	var out synchronizer.Snapshot
	err := s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		out = m.Snapshot()
		return nil
	})
	return out, err
}

// Watch streams the owner's snapshots until ctx is done.
// The returned func must be called to release the stream.
func (s *AvatarService) Watch(ctx context.Context, ownerID string) (<-chan synchronizer.Snapshot, func(), error) {
	m, release, err := s.mirrors.Acquire(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := m.Subscribe()
	return ch, func() {
		cancel()
		release()
	}, nil
}

func (s *AvatarService) Get(ctx context.Context, avatarID string) (*model.Avatar, error) {
	a, err := s.store.Avatars().Get(ctx, avatarID)
	return a, translate(err, "avatar", avatarID)
}

// Update edits an avatar. A new name must pass the same checks as on creation.
func (s *AvatarService) Update(ctx context.Context, avatarID string, p model.AvatarPatch) (*model.Avatar, error) {
	cur, err := s.Get(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		existing, err := s.existing(ctx, cur.OwnerID)
		if err != nil {
			return nil, err
		}
		res := form.ValidateName(*p.Name, existing, avatarID)
		if !res.Valid {
			return nil, apperr.NewValidationError(res.Field, res.Message)
		}
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, apperr.NewValidationError("status", "unknown status")
	}

	err = s.withMirror(ctx, cur.OwnerID, func(m *synchronizer.Mirror) error {
		return m.Update(ctx, avatarID, p)
	})
	if err != nil {
		return nil, translate(err, "avatar", avatarID)
	}
	return s.Get(ctx, avatarID)
}

// Save replaces the owner's avatar document as a whole. The name is checked
// as on creation; id, owner and timestamps are kept from the store.
func (s *AvatarService) Save(ctx context.Context, ownerID, avatarID string, a model.Avatar) (*model.Avatar, error) {
	existing, err := s.existing(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if res := form.ValidateName(a.Name, existing, avatarID); !res.Valid {
		return nil, apperr.NewValidationError(res.Field, res.Message)
	}
	if a.Status == "" {
		a.Status = model.StatusNotReady
	}
	if !a.Status.Valid() {
		return nil, apperr.NewValidationError("status", "unknown status")
	}
	a.ID = avatarID
	a.Name = strings.TrimSpace(a.Name)

	err = s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		return m.Save(ctx, a)
	})
	if err != nil {
		return nil, translate(err, "avatar", avatarID)
	}
	return s.Get(ctx, avatarID)
}

// SetDefault makes avatarID the owner's only default.
func (s *AvatarService) SetDefault(ctx context.Context, ownerID, avatarID string) error {
	return translate(s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		return m.SetDefault(ctx, avatarID)
	}), "avatar", avatarID)
}

// Delete removes an avatar, promoting a successor when it was the default.
func (s *AvatarService) Delete(ctx context.Context, ownerID, avatarID string) error {
	return translate(s.withMirror(ctx, ownerID, func(m *synchronizer.Mirror) error {
		return m.Delete(ctx, avatarID)
	}), "avatar", avatarID)
}

// ValidateName checks a candidate name against the owner's avatars.
func (s *AvatarService) ValidateName(ctx context.Context, ownerID, name, excludingID string) (form.Result, error) {
	existing, err := s.existing(ctx, ownerID)
	if err != nil {
		return form.Result{}, err
	}
	return form.ValidateName(name, existing, excludingID), nil
}

// SubmitMedia uploads the avatar's media and then records it in one update.
// The avatar becomes ready only once that update succeeds. Nothing is
// written when an upload fails.
func (s *AvatarService) SubmitMedia(ctx context.Context, avatarID string, images []upload.Media, audio upload.Media, progress func(upload.Progress)) (*model.Avatar, error) {
	if _, busy := s.inflight.LoadOrStore(avatarID, struct{}{}); busy {
		return nil, apperr.NewConflictError("avatar", "a submission for this avatar is already in progress")
	}
	defer s.inflight.Delete(avatarID)

	if _, err := s.Get(ctx, avatarID); err != nil {
		return nil, err
	}

	res, err := s.uploader.Upload(ctx, upload.Request{
		RecordID: avatarID,
		Images:   images,
		Audio:    &audio,
		Progress: progress,
	})
	if err != nil {
		return nil, err
	}

	ready := model.StatusReady
	count := len(res.ImageURLs)
	size := model.FormatSizeMB(res.AudioSize)
	provider := s.uploader.Provider()
	updated, err := s.store.Avatars().Update(ctx, avatarID, model.AvatarPatch{
		ImageURLs:       &res.ImageURLs,
		AudioURL:        &res.AudioURL,
		ImageCount:      &count,
		AudioSizeMB:     &size,
		StorageProvider: &provider,
		Status:          &ready,
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("avatar_id", avatarID).
			Strs("orphans", append(append([]string{}, res.ImageURLs...), res.AudioURL)).
			Msg("media uploaded but avatar update failed")
		return nil, translate(err, "avatar", avatarID)
	}
	s.log.Info().Str("avatar_id", avatarID).Int("images", count).Str("audio_mb", size).Msg("avatar media submitted")
	return updated, nil
}

// Verify checks that every asset referenced by the avatar is reachable.
func (s *AvatarService) Verify(ctx context.Context, avatarID string) ([]upload.Check, error) {
	a, err := s.Get(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	urls := append([]string{}, a.ImageURLs...)
	if a.AudioURL != "" {
		urls = append(urls, a.AudioURL)
	}
	if len(urls) == 0 {
		return nil, apperr.NewValidationError("avatar", "no media uploaded yet")
	}
	return s.verifier.Verify(ctx, urls), nil
}

// ViewURL is the link shown once media is submitted.
func (s *AvatarService) ViewURL(avatarID string) string { return model.ViewURL(s.baseURL, avatarID) }
