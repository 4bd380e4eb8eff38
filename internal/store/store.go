package store

import (
	"context"
	"errors"

	"github.com/ryosuke1832/remind/internal/model"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when creating a document whose id is taken.
	ErrConflict = errors.New("document already exists")
)

// Document is a raw stored record. Queries return raw documents so callers
// can skip malformed ones without failing the whole read.
type Document struct {
	ID  string
	Raw []byte
}

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Avatars() Avatars
	Users() Users
	HealthPing(ctx context.Context) error
}

type Avatars interface {
	Create(ctx context.Context, a *model.Avatar) (*model.Avatar, error)
	Get(ctx context.Context, avatarID string) (*model.Avatar, error)
	// Query returns the owner's avatars ordered by created_at, then id.
	Query(ctx context.Context, ownerID string) ([]Document, error)
	Update(ctx context.Context, avatarID string, p model.AvatarPatch) (*model.Avatar, error)
	// Put writes the whole document, creating it when missing.
	Put(ctx context.Context, a *model.Avatar) (*model.Avatar, error)
	Delete(ctx context.Context, avatarID string) error
	// SetDefault flags avatarID as the owner's default and clears every
	// other avatar of the owner in one statement.
	SetDefault(ctx context.Context, ownerID, avatarID string) error
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	GetRaw(ctx context.Context, userID string) ([]byte, error)
	Update(ctx context.Context, userID string, p model.UserPatch) (*model.User, error)
}

// DecodeAll decodes avatar documents, returning the malformed ones separately.
func DecodeAll(docs []Document) ([]model.Avatar, []Malformed) {
	out := make([]model.Avatar, 0, len(docs))
	var bad []Malformed
	for _, d := range docs {
		a, err := model.DecodeAvatar(d.Raw)
		if err != nil {
			bad = append(bad, Malformed{ID: d.ID, Err: err})
			continue
		}
		out = append(out, *a)
	}
	return out, bad
}

// Malformed names a document that failed to decode.
type Malformed struct {
	ID  string
	Err error
}
