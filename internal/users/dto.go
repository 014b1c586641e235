package users

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Role        enums.Role        `json:"role"`
	Phone       *string           `json:"phone,omitempty"`
	Avatar      *string           `json:"avatar,omitempty"`
	Addresses   []types.Address   `json:"addresses"`
	Profile     types.RoleProfile `json:"profile"`
	IsActive    bool              `json:"isActive"`
	LastLoginAt *time.Time        `json:"lastLogin,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// VendorDTO is the public storefront view of a vendor.
type VendorDTO struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	StoreName        string    `json:"storeName"`
	StoreDescription string    `json:"storeDescription,omitempty"`
	IsVerified       bool      `json:"isVerified"`
	Avatar           *string   `json:"avatar,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Name         string
	Email        string
	PasswordHash string
	Role         enums.Role
	Phone        *string
	Addresses    []types.Address
	Profile      types.RoleProfile
	IsActive     *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	addresses := u.Addresses
	if addresses == nil {
		addresses = []types.Address{}
	}
	return &UserDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Phone:       u.Phone,
		Avatar:      u.Avatar,
		Addresses:   addresses,
		Profile:     u.Profile,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func FromModels(rows []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func VendorFromModel(u *models.User) VendorDTO {
	dto := VendorDTO{
		ID:        u.ID,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
	if v := u.Profile.Vendor; v != nil {
		dto.StoreName = v.StoreName
		dto.StoreDescription = v.StoreDescription
		dto.IsVerified = v.IsVerified
	}
	return dto
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	addresses := c.Addresses
	if addresses == nil {
		addresses = []types.Address{}
	}
	return &models.User{
		Name:         c.Name,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		Role:         c.Role,
		Phone:        c.Phone,
		Addresses:    addresses,
		Profile:      c.Profile,
		IsActive:     isActive,
	}
}

// UpdateProfileRequest carries the self-service editable fields. Role fields
// that do not match the caller's role are rejected.
type UpdateProfileRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Phone     *string          `json:"phone,omitempty" validate:"omitempty,max=32"`
	Avatar    *string          `json:"avatar,omitempty" validate:"omitempty,max=500"`
	Addresses *[]types.Address `json:"addresses,omitempty" validate:"omitempty,max=10,dive"`

	DateOfBirth     *time.Time `json:"dateOfBirth,omitempty"`
	NewsletterOptIn *bool      `json:"newsletterOptIn,omitempty"`

	StoreName        *string `json:"storeName,omitempty" validate:"omitempty,min=2,max=120"`
	StoreDescription *string `json:"storeDescription,omitempty" validate:"omitempty,max=2000"`
	BusinessLicense  *string `json:"businessLicense,omitempty" validate:"omitempty,max=100"`
	TaxID            *string `json:"taxId,omitempty" validate:"omitempty,max=50"`

	VehicleType   *enums.VehicleType `json:"vehicleType,omitempty"`
	VehicleNumber *string            `json:"vehicleNumber,omitempty" validate:"omitempty,max=32"`
	LicenseNumber *string            `json:"licenseNumber,omitempty" validate:"omitempty,max=50"`

	Warehouse *string `json:"warehouse,omitempty" validate:"omitempty,max=120"`
}

// AvailabilityRequest updates a delivery agent's dispatch state.
type AvailabilityRequest struct {
	IsAvailable     *bool           `json:"isAvailable" validate:"required"`
	CurrentLocation *types.GeoPoint `json:"currentLocation,omitempty"`
}

// StatusRequest toggles an account.
type StatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// ListQuery narrows the admin user listing.
type ListQuery struct {
	Role     string
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}
