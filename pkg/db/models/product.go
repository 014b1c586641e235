package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a vendor listing gated by the approval workflow.
type Product struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;index:products_vendor_id_idx"`
	Name            string               `gorm:"column:name;not null"`
	Description     string               `gorm:"column:description;not null"`
	Category        string               `gorm:"column:category;not null;index:products_category_idx"`
	SubCategory     *string              `gorm:"column:sub_category"`
	Brand           *string              `gorm:"column:brand"`
	SKU             *string              `gorm:"column:sku"`
	Price           decimal.Decimal      `gorm:"column:price;type:numeric(12,2);not null"`
	CompareAtPrice  *decimal.Decimal     `gorm:"column:compare_at_price;type:numeric(12,2)"`
	Stock           int                  `gorm:"column:stock;not null"`
	Images          types.StringList     `gorm:"column:images;type:jsonb;not null"`
	Tags            types.StringList     `gorm:"column:tags;type:jsonb;not null"`
	Variants        types.VariantOptions `gorm:"column:variants;type:jsonb;serializer:json"`
	IsActive        bool                 `gorm:"column:is_active;not null"`
	IsFeatured      bool                 `gorm:"column:is_featured;not null"`
	IsApproved      bool                 `gorm:"column:is_approved;not null"`
	ApprovalStatus  enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null;index:products_approval_status_idx"`
	ApprovedBy      *uuid.UUID           `gorm:"column:approved_by;type:uuid"`
	ApprovedAt      *time.Time           `gorm:"column:approved_at"`
	RejectionReason *string              `gorm:"column:rejection_reason"`
	Views           int                  `gorm:"column:views;not null"`
	SalesCount      int                  `gorm:"column:sales_count;not null"`
	Ratings         types.Ratings        `gorm:"embedded;embeddedPrefix:rating_"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsPubliclyVisible reports whether anonymous callers may see the listing.
func (p *Product) IsPubliclyVisible() bool {
	return p.IsApproved && p.IsActive
}

// IsPurchasable reports whether the listing may be added to a cart or order.
func (p *Product) IsPurchasable() bool {
	return p.IsPubliclyVisible() && p.ApprovalStatus == enums.ApprovalStatusApproved
}

// PrimaryImage returns the first image or an empty string.
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
