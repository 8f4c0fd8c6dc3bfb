package domain

// Role is the authorization level of the caller.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
	RoleSystem Role = "system"
)

// Actor is the explicit authorization context passed into operations that
// need one. There is no ambient session state; callers always say who they
// are.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor may perform administrative operations.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
