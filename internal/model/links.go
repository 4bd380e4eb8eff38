package model

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

// NewAvatarID returns a creator-generated id of the form avatar_{unix}_{nnnn}.
func NewAvatarID(now time.Time) string {
	return fmt.Sprintf("avatar_%d_%d", now.Unix(), 1000+rand.Intn(9000))
}

// InviteURL is the link a recipient opens to attach media: {base}/?avatarId={id}.
func InviteURL(baseURL, avatarID string) string {
	return strings.TrimRight(baseURL, "/") + "/?avatarId=" + url.QueryEscape(avatarID)
}

// ViewURL is the link shown after a successful upload: {base}/view/{id}.
func ViewURL(baseURL, avatarID string) string {
	return strings.TrimRight(baseURL, "/") + "/view/" + url.PathEscape(avatarID)
}

// FormatSizeMB renders a byte count the way audio_size_mb is stored.
func FormatSizeMB(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1024/1024)
}
