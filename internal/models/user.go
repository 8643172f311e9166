package models

// UserRole is the closed capability set resolved once at the auth boundary.
// Instructors may open preview attempts that bypass student creation limits.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
)

// IsPrivileged reports whether the role bypasses student attempt-creation limits.
func (r UserRole) IsPrivileged() bool {
	return r == RoleInstructor
}

// Actor is the authenticated caller as resolved by the auth middleware.
type Actor struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	ClassroomID uint     `json:"classroom_id"`
}
