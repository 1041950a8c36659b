package models

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RolePlayer    UserRole = "player"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RolePlayer:
		return true
	}
	return false
}

// Principal is the caller identified by a verified token.
type Principal struct {
	UserID int      `json:"user_id"`
	Role   UserRole `json:"role"`
}
