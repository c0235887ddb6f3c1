// Package auth defines roles shared by the credential verifier and the token authority.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	Admin Role = "admin"
	User  Role = "user"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole accepts role names case-insensitively ("ADMIN", "admin").
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case Admin, User:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Satisfies reports whether r is privileged enough for required.
//
// Admin satisfies every role. User satisfies User only.
func (r Role) Satisfies(required Role) bool {
	switch r {
	case Admin:
		return required == Admin || required == User
	case User:
		return required == User
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
