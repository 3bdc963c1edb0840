package model

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is a member of a family. ID is the document key; UID is the
// identity-provider handle the user authenticates with. Both are required
// and they are never the same value.
type User struct {
	ID       string `json:"id"`
	UID      string `json:"uid"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	FamilyID string `json:"familyId"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
