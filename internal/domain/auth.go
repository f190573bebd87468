package domain

// Role names a membership in the identity directory.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleStaff    Role = "Staff"
	RoleCustomer Role = "Customer"
)

// AllRoles lists every role the directory knows about, in display order.
var AllRoles = []Role{RoleAdmin, RoleStaff, RoleCustomer}

// ParseRole validates a role name.
func ParseRole(name string) (Role, bool) {
	for _, r := range AllRoles {
		if string(r) == name {
			return r, true
		}
	}
	return "", false
}

// Caller is the authenticated principal passed explicitly to every core operation.
type Caller struct {
	ID    string
	Roles []Role
}

// Has reports whether the caller holds role.
func (c Caller) Has(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for Has(RoleAdmin).
func (c Caller) IsAdmin() bool {
	return c.Has(RoleAdmin)
}
