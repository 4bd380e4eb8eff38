package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AvatarStatus is the lifecycle state of an avatar's media.
type AvatarStatus string

const (
	// StatusNotReady holds until media upload and any external processing completes.
	StatusNotReady AvatarStatus = "not_ready"
	StatusReady    AvatarStatus = "ready"
)

// Valid reports whether s is a known status.
func (s AvatarStatus) Valid() bool {
	return s == StatusNotReady || s == StatusReady
}

// Defaults applied to invitation shells and unset profile images.
const (
	DefaultProfileImage = "sample_avatar"
	DefaultLanguage     = "English"
	DefaultTheme        = "Human"
	DefaultVoiceTone    = "Gentle"
)

// Avatar is the recipient-facing persona document stored under avatars/{id}.
type Avatar struct {
	ID                string       `json:"id"`
	OwnerID           string       `json:"owner_id"`
	Name              string       `json:"name"`
	RecipientName     string       `json:"recipient_name,omitempty"`
	CreatorName       string       `json:"creator_name,omitempty"`
	IsDefault         bool         `json:"is_default"`
	Language          string       `json:"language"`
	Theme             string       `json:"theme"`
	VoiceTone         string       `json:"voice_tone"`
	ProfileImg        string       `json:"profile_img"`
	ImageURLs         []string     `json:"image_urls"`
	AudioURL          string       `json:"audio_url"`
	DeepfakeVideoURLs []string     `json:"deepfake_video_urls"`
	DeepfakeReady     bool         `json:"deepfake_ready"`
	ImageCount        int          `json:"image_count"`
	AudioSizeMB       string       `json:"audio_size_mb"`
	StorageProvider   string       `json:"storage_provider,omitempty"`
	Status            AvatarStatus `json:"status"`
	CreateURL         string       `json:"create_url,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so mirror snapshots can be handed out safely.
func (a Avatar) Clone() Avatar {
	out := a
	out.ImageURLs = append([]string(nil), a.ImageURLs...)
	out.DeepfakeVideoURLs = append([]string(nil), a.DeepfakeVideoURLs...)
	return out
}

// AvatarPatch is a partial update; nil fields are left untouched.
type AvatarPatch struct {
	Name              *string       `json:"name,omitempty"`
	IsDefault         *bool         `json:"is_default,omitempty"`
	Language          *string       `json:"language,omitempty"`
	Theme             *string       `json:"theme,omitempty"`
	VoiceTone         *string       `json:"voice_tone,omitempty"`
	ProfileImg        *string       `json:"profile_img,omitempty"`
	ImageURLs         *[]string     `json:"image_urls,omitempty"`
	AudioURL          *string       `json:"audio_url,omitempty"`
	DeepfakeVideoURLs *[]string     `json:"deepfake_video_urls,omitempty"`
	DeepfakeReady     *bool         `json:"deepfake_ready,omitempty"`
	ImageCount        *int          `json:"image_count,omitempty"`
	AudioSizeMB       *string       `json:"audio_size_mb,omitempty"`
	StorageProvider   *string       `json:"storage_provider,omitempty"`
	Status            *AvatarStatus `json:"status,omitempty"`
}

// Apply merges the non-nil fields of p into a.
func (p AvatarPatch) Apply(a *Avatar) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.IsDefault != nil {
		a.IsDefault = *p.IsDefault
	}
	if p.Language != nil {
		a.Language = *p.Language
	}
	if p.Theme != nil {
		a.Theme = *p.Theme
	}
	if p.VoiceTone != nil {
		a.VoiceTone = *p.VoiceTone
	}
	if p.ProfileImg != nil {
		a.ProfileImg = *p.ProfileImg
	}
	if p.ImageURLs != nil {
		a.ImageURLs = append([]string(nil), (*p.ImageURLs)...)
	}
	if p.AudioURL != nil {
		a.AudioURL = *p.AudioURL
	}
	if p.DeepfakeVideoURLs != nil {
		a.DeepfakeVideoURLs = append([]string(nil), (*p.DeepfakeVideoURLs)...)
	}
	if p.DeepfakeReady != nil {
		a.DeepfakeReady = *p.DeepfakeReady
	}
	if p.ImageCount != nil {
		a.ImageCount = *p.ImageCount
	}
	if p.AudioSizeMB != nil {
		a.AudioSizeMB = *p.AudioSizeMB
	}
	if p.StorageProvider != nil {
		a.StorageProvider = *p.StorageProvider
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
}

// DecodeAvatar parses a stored avatar document and rejects documents that
// are missing their identity or carry an unknown status.
func DecodeAvatar(raw []byte) (*Avatar, error) {
	var a Avatar
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("decode avatar: missing id")
	}
	if a.Status == "" {
		a.Status = StatusNotReady
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("decode avatar %s: unknown status %q", a.ID, a.Status)
	}
	if a.ProfileImg == "" {
		a.ProfileImg = DefaultProfileImage
	}
	return &a, nil
}

// User is an app account stored under users/{id}.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	ProfileImg string    `json:"profile_img"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName falls back to "User" the way the app's greeting does.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return "User"
	}
	return u.Name
}

// UserPatch is a partial profile update.
type UserPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	ProfileImg *string `json:"profile_img,omitempty"`
}

// Apply merges the non-nil fields of p into u.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.ProfileImg != nil {
		u.ProfileImg = *p.ProfileImg
	}
}

// DecodeUser parses a stored user document.
func DecodeUser(raw []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("decode user: missing id")
	}
	if u.ProfileImg == "" {
		u.ProfileImg = DefaultProfileImage
	}
	return &u, nil
}
