package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the checkout snapshot. Items and ShippingAddress are written once.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	CustomerID      uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index:orders_customer_id_idx"`
	VendorID        uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index:orders_vendor_id_idx"`
	Items           []OrderLineItem       `gorm:"column:items;type:jsonb;serializer:json"`
	ShippingAddress types.Address         `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax             decimal.Decimal       `gorm:"column:tax;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Discount        decimal.Decimal       `gorm:"column:discount;type:numeric(12,2);not null"`
	Total           decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null"`
	OrderStatus     enums.OrderStatus     `gorm:"column:order_status;type:text;not null;index:orders_order_status_idx"`
	DeliveryStatus  *enums.DeliveryStatus `gorm:"column:delivery_status;type:text"`
	DeliveryAgentID *uuid.UUID            `gorm:"column:delivery_agent_id;type:uuid;index:orders_delivery_agent_id_idx"`
	StatusHistory   []OrderStatusEvent    `gorm:"column:status_history;type:jsonb;serializer:json"`
	Notes           *string               `gorm:"column:notes"`
	CancelReason    *string               `gorm:"column:cancel_reason"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem snapshots the product at placement time.
type OrderLineItem struct {
	ProductID uuid.UUID              `json:"productId"`
	Name      string                 `json:"name"`
	Image     string                 `json:"image,omitempty"`
	Price     decimal.Decimal        `json:"price"`
	Quantity  int                    `json:"quantity"`
	Variants  types.VariantSelection `json:"variants"`
	Subtotal  decimal.Decimal        `json:"subtotal"`
}

// OrderStatusEvent records who moved the order and why.
type OrderStatusEvent struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	ChangedBy uuid.UUID         `json:"changedBy"`
	ChangedAt time.Time         `json:"changedAt"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// ContainsProduct reports whether productID appears in the line items.
func (o *Order) ContainsProduct(productID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
