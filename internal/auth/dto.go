package auth

import (
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// RegisterRequest carries a new account. Role defaults to customer; the
// role-specific fields must match the chosen role.
type RegisterRequest struct {
	Name     string          `json:"name" validate:"required,min=2,max=100"`
	Email    string          `json:"email" validate:"required,email,max=254"`
	Password string          `json:"password" validate:"required,min=8,max=128"`
	Role     enums.Role      `json:"role,omitempty"`
	Phone    *string         `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address  *types.Address  `json:"address,omitempty"`
	Location *types.GeoPoint `json:"currentLocation,omitempty"`

	StoreName        string `json:"storeName,omitempty" validate:"omitempty,min=2,max=120"`
	StoreDescription string `json:"storeDescription,omitempty" validate:"omitempty,max=2000"`
	BusinessLicense  string `json:"businessLicense,omitempty" validate:"omitempty,max=100"`
	TaxID            string `json:"taxId,omitempty" validate:"omitempty,max=50"`

	VehicleType   enums.VehicleType `json:"vehicleType,omitempty"`
	VehicleNumber string            `json:"vehicleNumber,omitempty" validate:"omitempty,max=32"`
	LicenseNumber string            `json:"licenseNumber,omitempty" validate:"omitempty,max=50"`

	Warehouse string `json:"warehouse,omitempty" validate:"omitempty,max=120"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token; the expired access token rides in
// the Authorization header.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ChangePasswordRequest requires the current password before accepting a new one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

// TokenResponse contains the tokens and the user produced by register or login.
type TokenResponse struct {
	AccessToken  string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	User         *users.UserDTO `json:"user"`
}

// RefreshResponse is returned after rotating a session.
type RefreshResponse struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}
