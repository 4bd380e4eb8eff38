// Package form holds the rules behind the avatar and profile forms and the
// ephemeral upload session that backs the media capture screen.
package form

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/ryosuke1832/remind/internal/model"
)

// MaxNameLength is counted in characters, not bytes.
const MaxNameLength = 30

const (
	MsgNameEmpty     = "Avatar name cannot be empty"
	MsgNameTooLong   = "Avatar name must be 30 characters or less"
	MsgNameDuplicate = "An avatar with this name already exists"

	MsgProfileNameEmpty = "Name cannot be empty"
	MsgEmailEmpty       = "Email cannot be empty"
	MsgEmailInvalid     = "Please enter a valid email address"
)

// Result is the outcome of a field check. A failed check is an expected
// result that the caller shows inline, not an error.
type Result struct {
	Valid   bool   `json:"valid"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok() Result { return Result{Valid: true} }

func invalid(field, msg string) Result { return Result{Field: field, Message: msg} }

// ValidateName checks an avatar name against the owner's existing avatars.
// excludingID names the avatar being edited so it does not collide with itself.
func ValidateName(name string, existing []model.Avatar, excludingID string) Result {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return invalid("name", MsgNameEmpty)
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return invalid("name", MsgNameTooLong)
	}
	for _, a := range existing {
		if excludingID != "" && a.ID == excludingID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(a.Name), trimmed) {
			return invalid("name", MsgNameDuplicate)
		}
	}
	return ok()
}

// ValidateProfile checks the user edit form.
func ValidateProfile(name, email string) Result {
	if strings.TrimSpace(name) == "" {
		return invalid("name", MsgProfileNameEmpty)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", MsgEmailEmpty)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("email", MsgEmailInvalid)
	}
	return ok()
}
