package product

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductDTO is the API shape of a listing.
type ProductDTO struct {
	ID              uuid.UUID            `json:"id"`
	VendorID        uuid.UUID            `json:"vendorId"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Category        string               `json:"category"`
	SubCategory     *string              `json:"subCategory,omitempty"`
	Brand           *string              `json:"brand,omitempty"`
	SKU             *string              `json:"sku,omitempty"`
	Price           decimal.Decimal      `json:"price"`
	CompareAtPrice  *decimal.Decimal     `json:"compareAtPrice,omitempty"`
	Stock           int                  `json:"stock"`
	Images          []string             `json:"images"`
	Tags            []string             `json:"tags"`
	Variants        types.VariantOptions `json:"variants"`
	IsActive        bool                 `json:"isActive"`
	IsFeatured      bool                 `json:"isFeatured"`
	IsApproved      bool                 `json:"isApproved"`
	ApprovalStatus  enums.ApprovalStatus `json:"approvalStatus"`
	ApprovedBy      *uuid.UUID           `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time           `json:"approvedAt,omitempty"`
	RejectionReason *string              `json:"rejectionReason,omitempty"`
	Views           int                  `json:"views"`
	SalesCount      int                  `json:"salesCount"`
	Ratings         types.Ratings        `json:"ratings"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	images := []string(p.Images)
	if images == nil {
		images = []string{}
	}
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &ProductDTO{
		ID:              p.ID,
		VendorID:        p.VendorID,
		Name:            p.Name,
		Description:     p.Description,
		Category:        p.Category,
		SubCategory:     p.SubCategory,
		Brand:           p.Brand,
		SKU:             p.SKU,
		Price:           p.Price,
		CompareAtPrice:  p.CompareAtPrice,
		Stock:           p.Stock,
		Images:          images,
		Tags:            tags,
		Variants:        p.Variants,
		IsActive:        p.IsActive,
		IsFeatured:      p.IsFeatured,
		IsApproved:      p.IsApproved,
		ApprovalStatus:  p.ApprovalStatus,
		ApprovedBy:      p.ApprovedBy,
		ApprovedAt:      p.ApprovedAt,
		RejectionReason: p.RejectionReason,
		Views:           p.Views,
		SalesCount:      p.SalesCount,
		Ratings:         p.Ratings,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func FromModels(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

// project keeps only the selected JSON keys of dto.
func project(dto *ProductDTO, keys []string) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(dto)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if value, ok := all[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}

// CreateProductRequest is decoded from the multipart form of a create call.
type CreateProductRequest struct {
	Name           string           `form:"name" validate:"required,min=2,max=200"`
	Description    string           `form:"description" validate:"required,max=5000"`
	Category       string           `form:"category" validate:"required,max=100"`
	SubCategory    *string          `form:"subCategory" validate:"omitempty,max=100"`
	Brand          *string          `form:"brand" validate:"omitempty,max=100"`
	SKU            *string          `form:"sku" validate:"omitempty,max=64"`
	Price          decimal.Decimal  `form:"price"`
	CompareAtPrice *decimal.Decimal `form:"compareAtPrice"`
	Stock          int              `form:"stock" validate:"gte=0"`
	Tags           []string         `form:"tags" validate:"max=20,dive,max=40"`
	Variants       types.VariantOptions
	IsActive       *bool `form:"isActive"`
	// VendorID lets an admin list on behalf of a vendor. Vendors may only name themselves.
	VendorID *uuid.UUID `form:"vendorId"`
}

// UpdateProductRequest carries partial listing edits.
type UpdateProductRequest struct {
	Name           *string               `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Description    *string               `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category       *string               `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	SubCategory    *string               `json:"subCategory,omitempty" validate:"omitempty,max=100"`
	Brand          *string               `json:"brand,omitempty" validate:"omitempty,max=100"`
	SKU            *string               `json:"sku,omitempty" validate:"omitempty,max=64"`
	Price          *decimal.Decimal      `json:"price,omitempty"`
	CompareAtPrice *decimal.Decimal      `json:"compareAtPrice,omitempty"`
	Stock          *int                  `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Images         *[]string             `json:"images,omitempty" validate:"omitempty,min=1"`
	Tags           *[]string             `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=40"`
	Variants       *types.VariantOptions `json:"variants,omitempty"`
	IsActive       *bool                 `json:"isActive,omitempty"`
	IsFeatured     *bool                 `json:"isFeatured,omitempty"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// StockRequest sets the absolute stock level.
type StockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}
