package enums

import "fmt"

// Role is the identity kind carried on every user record.
type Role string

const (
	RoleCustomer         Role = "customer"
	RoleVendor           Role = "vendor"
	RoleAdmin            Role = "admin"
	RoleModerator        Role = "moderator"
	RoleDeliveryAgent    Role = "delivery_agent"
	RoleInventoryManager Role = "inventory_manager"
)

var validRoles = []Role{
	RoleCustomer,
	RoleVendor,
	RoleAdmin,
	RoleModerator,
	RoleDeliveryAgent,
	RoleInventoryManager,
}

// selfServiceRoles may register without an admin.
var selfServiceRoles = []Role{
	RoleCustomer,
	RoleVendor,
	RoleDeliveryAgent,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsSelfService reports whether the role may be chosen at public registration.
func (r Role) IsSelfService() bool {
	for _, candidate := range selfServiceRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role moderates marketplace content.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleModerator
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
