package types

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoleProfile carries the role-specific fields of a user. Exactly one variant is
// populated and it always matches the user's role.
type RoleProfile struct {
	Customer         *CustomerProfile         `json:"customer,omitempty"`
	Vendor           *VendorProfile           `json:"vendor,omitempty"`
	Admin            *AdminProfile            `json:"admin,omitempty"`
	Moderator        *ModeratorProfile        `json:"moderator,omitempty"`
	DeliveryAgent    *DeliveryAgentProfile    `json:"deliveryAgent,omitempty"`
	InventoryManager *InventoryManagerProfile `json:"inventoryManager,omitempty"`
}

type CustomerProfile struct {
	DateOfBirth     *time.Time `json:"dateOfBirth,omitempty"`
	NewsletterOptIn bool       `json:"newsletterOptIn"`
}

type VendorProfile struct {
	StoreName        string          `json:"storeName"`
	StoreDescription string          `json:"storeDescription,omitempty"`
	BusinessLicense  string          `json:"businessLicense,omitempty"`
	TaxID            string          `json:"taxId,omitempty"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	IsVerified       bool            `json:"isVerified"`
}

type AdminProfile struct {
	Permissions []string `json:"permissions,omitempty"`
}

type ModeratorProfile struct {
	AssignedCategories []string `json:"assignedCategories,omitempty"`
}

type DeliveryAgentProfile struct {
	VehicleType         enums.VehicleType `json:"vehicleType"`
	VehicleNumber       string            `json:"vehicleNumber,omitempty"`
	LicenseNumber       string            `json:"licenseNumber,omitempty"`
	CurrentLocation     *GeoPoint         `json:"currentLocation,omitempty"`
	IsAvailable         bool              `json:"isAvailable"`
	ActiveDeliveries    []uuid.UUID       `json:"activeDeliveries"`
	CompletedDeliveries int               `json:"completedDeliveries"`
}

type InventoryManagerProfile struct {
	Warehouse         string   `json:"warehouse,omitempty"`
	ManagedCategories []string `json:"managedCategories,omitempty"`
}

// MatchesRole reports whether the populated variant is the one role expects.
func (p RoleProfile) MatchesRole(role enums.Role) bool {
	populated := map[enums.Role]bool{
		enums.RoleCustomer:         p.Customer != nil,
		enums.RoleVendor:           p.Vendor != nil,
		enums.RoleAdmin:            p.Admin != nil,
		enums.RoleModerator:        p.Moderator != nil,
		enums.RoleDeliveryAgent:    p.DeliveryAgent != nil,
		enums.RoleInventoryManager: p.InventoryManager != nil,
	}
	count := 0
	for _, ok := range populated {
		if ok {
			count++
		}
	}
	return count == 1 && populated[role]
}

// AddActiveDelivery appends orderID once.
func (a *DeliveryAgentProfile) AddActiveDelivery(orderID uuid.UUID) {
	for _, id := range a.ActiveDeliveries {
		if id == orderID {
			return
		}
	}
	a.ActiveDeliveries = append(a.ActiveDeliveries, orderID)
}

// RemoveActiveDelivery drops orderID and reports whether it was present.
func (a *DeliveryAgentProfile) RemoveActiveDelivery(orderID uuid.UUID) bool {
	for i, id := range a.ActiveDeliveries {
		if id == orderID {
			a.ActiveDeliveries = append(a.ActiveDeliveries[:i], a.ActiveDeliveries[i+1:]...)
			return true
		}
	}
	return false
}
