package model

import "time"

// Role is what a user is allowed to do. Roles are ordered: an admin can do
// everything an organizer can, and an organizer everything a volunteer can.
type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleVolunteer:
		return 1
	case RoleOrganizer:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.rank() >= min.rank()
}

// User represents a registered user account.
//
// A user signs in either with email + password or through GitHub. GitHubID is
// nil for password-only accounts; PasswordHash is empty for GitHub-only ones.
// PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the signed-in principal as seen by handlers and services.
type Identity struct {
	UserID      string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}
