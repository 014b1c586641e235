package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wishlist is the saved-for-later list of a customer.
type Wishlist struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID      `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:wishlists_customer_id_key"`
	Name       string         `gorm:"column:name;not null"`
	Items      []WishlistItem `gorm:"column:items;type:jsonb;serializer:json"`
	IsPublic   bool           `gorm:"column:is_public;not null"`
	ShareToken *string        `gorm:"column:share_token;uniqueIndex:wishlists_share_token_key"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

type WishlistItem struct {
	ProductID  uuid.UUID              `json:"productId"`
	PriceAtAdd decimal.Decimal        `json:"priceAtAdd"`
	Category   string                 `json:"category,omitempty"`
	Notes      string                 `json:"notes,omitempty"`
	Priority   enums.WishlistPriority `json:"priority"`
	AddedAt    time.Time              `json:"addedAt"`
}

func (w *Wishlist) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// IndexOf returns the position of productID, or -1.
func (w *Wishlist) IndexOf(productID uuid.UUID) int {
	for i, item := range w.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Categories returns the distinct non-empty categories in insertion order.
func (w *Wishlist) Categories() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, item := range w.Items {
		if item.Category == "" {
			continue
		}
		if _, ok := seen[item.Category]; ok {
			continue
		}
		seen[item.Category] = struct{}{}
		out = append(out, item.Category)
	}
	return out
}
