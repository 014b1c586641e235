package types

import (
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the resolved caller of a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Is reports whether the actor holds one of roles.
func (a *Actor) Is(roles ...enums.Role) bool {
	if a == nil {
		return false
	}
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

// Owns reports whether the actor is the given user.
func (a *Actor) Owns(userID uuid.UUID) bool {
	return a != nil && a.UserID != uuid.Nil && a.UserID == userID
}
