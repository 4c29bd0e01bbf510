package domain

import "strings"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleNone   Role = "none"
)

func (r Role) IsMember() bool {
	return r == RoleOwner || r == RoleMember
}

// User is the authenticated principal extracted from the access token.
type User struct {
	Email Email
}

// Identity is a user as seen on a particular board.
type Identity struct {
	Email Email `json:"email"`
	Role  Role  `json:"role"`
}

// NormalizeEmail lowercases and trims an address so presence keys stay unique.
func NormalizeEmail(email string) Email {
	return strings.ToLower(strings.TrimSpace(email))
}
