package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart is the single mutable basket of a customer.
type Cart struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:carts_customer_id_key"`
	Items      []CartItem      `gorm:"column:items;type:jsonb;serializer:json"`
	TotalItems int             `gorm:"column:total_items;not null"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem is one (product, variant selection) line.
type CartItem struct {
	ID        uuid.UUID              `json:"id"`
	ProductID uuid.UUID              `json:"productId"`
	Quantity  int                    `json:"quantity"`
	Price     decimal.Decimal        `json:"price"`
	Variants  types.VariantSelection `json:"variants"`
	AddedAt   time.Time              `json:"addedAt"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// BeforeSave keeps the derived totals in step with the items on every write.
func (c *Cart) BeforeSave(*gorm.DB) error {
	c.RecomputeTotals()
	return nil
}

// RecomputeTotals derives TotalItems and TotalPrice from Items.
func (c *Cart) RecomputeTotals() {
	totalItems := 0
	totalPrice := decimal.Zero
	for _, item := range c.Items {
		totalItems += item.Quantity
		totalPrice = totalPrice.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.TotalItems = totalItems
	c.TotalPrice = totalPrice.Round(2)
}

// FindLine returns the index of the line matching product and variants, or -1.
func (c *Cart) FindLine(productID uuid.UUID, variants types.VariantSelection) int {
	for i, item := range c.Items {
		if item.ProductID == productID && item.Variants.Equal(variants) {
			return i
		}
	}
	return -1
}

// FindLineByID returns the index of the line with the given id, or -1.
func (c *Cart) FindLineByID(itemID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
