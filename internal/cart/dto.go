package cart

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddItemRequest is the payload for POST /api/cart/items.
type AddItemRequest struct {
	ProductID uuid.UUID              `json:"productId" validate:"required"`
	Quantity  int                    `json:"quantity" validate:"required,gte=1,lte=1000"`
	Variants  types.VariantSelection `json:"variants"`
}

// UpdateItemRequest is the payload for PUT /api/cart/items/{itemId}.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"lte=1000"`
}

// SyncRequest replaces the whole cart.
type SyncRequest struct {
	Items []AddItemRequest `json:"items" validate:"max=100,dive"`
}

// ProductSummary is the live view of a cart line's product.
type ProductSummary struct {
	Name        string          `json:"name"`
	Image       string          `json:"image,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	IsAvailable bool            `json:"isAvailable"`
}

type ItemDTO struct {
	ID        uuid.UUID              `json:"id"`
	ProductID uuid.UUID              `json:"productId"`
	Quantity  int                    `json:"quantity"`
	Price     decimal.Decimal        `json:"price"`
	Variants  types.VariantSelection `json:"variants"`
	AddedAt   time.Time              `json:"addedAt"`
	Product   *ProductSummary        `json:"product,omitempty"`
}

type CartDTO struct {
	ID         uuid.UUID       `json:"id,omitempty"`
	CustomerID uuid.UUID       `json:"customerId"`
	Items      []ItemDTO       `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
}

// FromModel maps a cart and, when available, the live products behind its lines.
func FromModel(cart *models.Cart, products map[uuid.UUID]*models.Product) *CartDTO {
	dto := &CartDTO{
		ID:         cart.ID,
		CustomerID: cart.CustomerID,
		Items:      make([]ItemDTO, 0, len(cart.Items)),
		TotalItems: cart.TotalItems,
		TotalPrice: cart.TotalPrice,
	}
	if !cart.UpdatedAt.IsZero() {
		updated := cart.UpdatedAt
		dto.UpdatedAt = &updated
	}
	for _, item := range cart.Items {
		line := ItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Variants:  item.Variants,
			AddedAt:   item.AddedAt,
		}
		if product, ok := products[item.ProductID]; ok {
			line.Product = &ProductSummary{
				Name:        product.Name,
				Image:       product.PrimaryImage(),
				Price:       product.Price,
				Stock:       product.Stock,
				IsAvailable: product.IsPurchasable() && product.Stock >= item.Quantity,
			}
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
