package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/form"
	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
)

// RegisterRequest creates an account. ID is optional; an auth provider's
// uid can be passed through so the document id matches it.
type RegisterRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileImg string `json:"profile_img,omitempty"`
}

type UserService struct {
	store store.Store
}

func NewUserService(s store.Store) *UserService { return &UserService{store: s} }

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if res := form.ValidateProfile(req.Name, req.Email); !res.Valid {
		return nil, apperr.NewValidationError(res.Field, res.Message)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	u, err := s.store.Users().Create(ctx, &model.User{
		ID:         id,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		ProfileImg: strings.TrimSpace(req.ProfileImg),
	})
	return u, translate(err, "user", id)
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.Users().Get(ctx, userID)
	return u, translate(err, "user", userID)
}

// UpdateProfile applies p after validating the resulting name and email.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, p model.UserPatch) (*model.User, error) {
	cur, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	merged := *cur
	p.Apply(&merged)
	if res := form.ValidateProfile(merged.Name, merged.Email); !res.Valid {
		return nil, apperr.NewValidationError(res.Field, res.Message)
	}
	if p.Name != nil {
		v := strings.TrimSpace(*p.Name)
		p.Name = &v
	}
	if p.Email != nil {
		v := strings.TrimSpace(*p.Email)
		p.Email = &v
	}
	if p.ProfileImg != nil && strings.TrimSpace(*p.ProfileImg) == "" {
		v := model.DefaultProfileImage
		p.ProfileImg = &v
	}
	u, err := s.store.Users().Update(ctx, userID, p)
	return u, translate(err, "user", userID)
}
