package services

import (
	"errors"

	"github.com/ryosuke1832/remind/internal/apperr"
	"github.com/ryosuke1832/remind/internal/store"
)

// translate maps storage sentinels onto the domain taxonomy.
func translate(err error, field, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NewNotFoundError(field, id)
	case errors.Is(err, store.ErrConflict):
		return apperr.NewConflictError(field, id+" already exists")
	}
	return err
}
