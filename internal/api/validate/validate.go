package validate

import (
	"fmt"
	"regexp"
)

// UserID accepts uuids and auth-provider uids.
var userIDRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// AvatarID accepts the generated avatar_{unix}_{nnnn} form and other
// document-id-safe strings written by older clients.
var avatarIDRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

var sessionIDRx = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

func UserID(v string) error {
	if !userIDRx.MatchString(v) {
		return fmt.Errorf("invalid userId")
	}
	return nil
}

func AvatarID(v string) error {
	if !avatarIDRx.MatchString(v) {
		return fmt.Errorf("invalid avatarId")
	}
	return nil
}

func SessionID(v string) error {
	if !sessionIDRx.MatchString(v) {
		return fmt.Errorf("invalid sessionId")
	}
	return nil
}

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if len(*v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}
