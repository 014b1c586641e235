package wishlist

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddItemRequest is the payload for POST /api/users/me/wishlist/items.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Category  string    `json:"category" validate:"max=60"`
	Notes     string    `json:"notes" validate:"max=500"`
	Priority  string    `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// UpdateItemRequest edits the annotations of a saved product.
type UpdateItemRequest struct {
	Category *string `json:"category" validate:"omitempty,max=60"`
	Notes    *string `json:"notes" validate:"omitempty,max=500"`
	Priority *string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// MoveToCartRequest picks the quantity and variants for the cart line.
type MoveToCartRequest struct {
	Quantity int                    `json:"quantity" validate:"omitempty,gte=1,lte=1000"`
	Variants types.VariantSelection `json:"variants"`
}

type ProductSummary struct {
	Name         string          `json:"name"`
	Image        string          `json:"image,omitempty"`
	Price        decimal.Decimal `json:"price"`
	IsAvailable  bool            `json:"isAvailable"`
	PriceDropped bool            `json:"priceDropped"`
}

type ItemDTO struct {
	ProductID  uuid.UUID              `json:"productId"`
	PriceAtAdd decimal.Decimal        `json:"priceAtAdd"`
	Category   string                 `json:"category,omitempty"`
	Notes      string                 `json:"notes,omitempty"`
	Priority   enums.WishlistPriority `json:"priority"`
	AddedAt    time.Time              `json:"addedAt"`
	Product    *ProductSummary        `json:"product,omitempty"`
}

type WishlistDTO struct {
	ID         uuid.UUID  `json:"id,omitempty"`
	CustomerID uuid.UUID  `json:"customerId"`
	Name       string     `json:"name"`
	Items      []ItemDTO  `json:"items"`
	Categories []string   `json:"categories"`
	IsPublic   bool       `json:"isPublic"`
	ShareToken *string    `json:"shareToken,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

// ShareDTO is returned when a wishlist is published.
type ShareDTO struct {
	ShareToken string `json:"shareToken"`
	SharePath  string `json:"sharePath"`
}

// FromModel maps a wishlist. Hidden products are dropped from shared views.
func FromModel(list *models.Wishlist, products map[uuid.UUID]*models.Product, shared bool) *WishlistDTO {
	dto := &WishlistDTO{
		ID:         list.ID,
		CustomerID: list.CustomerID,
		Name:       list.Name,
		Items:      make([]ItemDTO, 0, len(list.Items)),
		Categories: list.Categories(),
		IsPublic:   list.IsPublic,
	}
	if !shared {
		dto.ShareToken = list.ShareToken
	}
	if !list.UpdatedAt.IsZero() {
		updated := list.UpdatedAt
		dto.UpdatedAt = &updated
	}
	for _, item := range list.Items {
		product, ok := products[item.ProductID]
		if shared && (!ok || !product.IsPubliclyVisible()) {
			continue
		}
		line := ItemDTO{
			ProductID:  item.ProductID,
			PriceAtAdd: item.PriceAtAdd,
			Category:   item.Category,
			Notes:      item.Notes,
			Priority:   item.Priority,
			AddedAt:    item.AddedAt,
		}
		if ok {
			line.Product = &ProductSummary{
				Name:         product.Name,
				Image:        product.PrimaryImage(),
				Price:        product.Price,
				IsAvailable:  product.IsPurchasable() && product.Stock > 0,
				PriceDropped: product.Price.LessThan(item.PriceAtAdd),
			}
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
