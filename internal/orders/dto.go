package orders

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceOrderItem is one requested line.
type PlaceOrderItem struct {
	ProductID uuid.UUID              `json:"productId" validate:"required"`
	Quantity  int                    `json:"quantity" validate:"required,gte=1,lte=1000"`
	Variants  types.VariantSelection `json:"variants"`
}

// PlaceOrderRequest is the checkout payload.
type PlaceOrderRequest struct {
	Items           []PlaceOrderItem `json:"items" validate:"required,min=1,max=100,dive"`
	ShippingAddress types.Address    `json:"shippingAddress" validate:"required"`
	PaymentMethod   string           `json:"paymentMethod" validate:"required"`
	Notes           string           `json:"notes" validate:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=500"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type AssignAgentRequest struct {
	DeliveryAgentID uuid.UUID `json:"deliveryAgentId" validate:"required"`
}

type DeliveryUpdateRequest struct {
	Status   string          `json:"status" validate:"required"`
	Location *types.GeoPoint `json:"location"`
	Notes    string          `json:"notes" validate:"max=500"`
	Photos   []string        `json:"photos" validate:"max=10,dive,max=500"`
}

type IssueRequest struct {
	Type        string `json:"type" validate:"required,max=60"`
	Description string `json:"description" validate:"required,max=1000"`
}

type ResolveIssueRequest struct {
	Resolution string `json:"resolution" validate:"required,max=1000"`
}

type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ListQuery scopes GET /api/orders.
type ListQuery struct {
	Status string
	Page   int
	Limit  int
}

type LineItemDTO struct {
	ProductID uuid.UUID              `json:"productId"`
	Name      string                 `json:"name"`
	Image     string                 `json:"image,omitempty"`
	Price     decimal.Decimal        `json:"price"`
	Quantity  int                    `json:"quantity"`
	Variants  types.VariantSelection `json:"variants"`
	Subtotal  decimal.Decimal        `json:"subtotal"`
}

type StatusEventDTO struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	ChangedBy uuid.UUID         `json:"changedBy"`
	ChangedAt time.Time         `json:"changedAt"`
}

type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	CustomerID      uuid.UUID             `json:"customerId"`
	VendorID        uuid.UUID             `json:"vendorId"`
	Items           []LineItemDTO         `json:"items"`
	ShippingAddress types.Address         `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   enums.PaymentStatus   `json:"paymentStatus"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	Tax             decimal.Decimal       `json:"tax"`
	ShippingCost    decimal.Decimal       `json:"shippingCost"`
	Discount        decimal.Decimal       `json:"discount"`
	Total           decimal.Decimal       `json:"total"`
	OrderStatus     enums.OrderStatus     `json:"orderStatus"`
	DeliveryStatus  *enums.DeliveryStatus `json:"deliveryStatus,omitempty"`
	DeliveryAgentID *uuid.UUID            `json:"deliveryAgentId,omitempty"`
	StatusHistory   []StatusEventDTO      `json:"statusHistory"`
	Notes           *string               `json:"notes,omitempty"`
	CancelReason    *string               `json:"cancelReason,omitempty"`
	DeliveredAt     *time.Time            `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

type IssueDTO struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	ReportedAt  time.Time  `json:"reportedAt"`
	Resolved    bool       `json:"resolved"`
	Resolution  string     `json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

type FeedbackDTO struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type DeliveryStatusDTO struct {
	ID              uuid.UUID            `json:"id"`
	OrderID         uuid.UUID            `json:"orderId"`
	DeliveryAgentID uuid.UUID            `json:"deliveryAgentId"`
	Status          enums.DeliveryStatus `json:"status"`
	Location        *types.GeoPoint      `json:"location,omitempty"`
	Notes           *string              `json:"notes,omitempty"`
	Photos          []string             `json:"photos"`
	Issue           *IssueDTO            `json:"issue,omitempty"`
	Feedback        *FeedbackDTO         `json:"feedback,omitempty"`
	RecordedAt      time.Time            `json:"recordedAt"`
}

// TrackingDTO is the customer-facing delivery timeline.
type TrackingDTO struct {
	OrderID         uuid.UUID             `json:"orderId"`
	OrderNumber     string                `json:"orderNumber"`
	OrderStatus     enums.OrderStatus     `json:"orderStatus"`
	DeliveryStatus  *enums.DeliveryStatus `json:"deliveryStatus,omitempty"`
	DeliveryAgentID *uuid.UUID            `json:"deliveryAgentId,omitempty"`
	DeliveredAt     *time.Time            `json:"deliveredAt,omitempty"`
	History         []DeliveryStatusDTO   `json:"history"`
}

// VendorStatsDTO summarises a vendor's order book.
type VendorStatsDTO struct {
	TotalOrders   int64                       `json:"totalOrders"`
	OrdersByState map[enums.OrderStatus]int64 `json:"ordersByStatus"`
	Revenue       decimal.Decimal             `json:"revenue"`
	OpenOrders    int64                       `json:"openOrders"`
}

func FromModel(o *models.Order) *OrderDTO {
	items := make([]LineItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, LineItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Variants:  item.Variants,
			Subtotal:  item.Subtotal,
		})
	}
	history := make([]StatusEventDTO, 0, len(o.StatusHistory))
	for _, event := range o.StatusHistory {
		history = append(history, StatusEventDTO{
			Status:    event.Status,
			Note:      event.Note,
			ChangedBy: event.ChangedBy,
			ChangedAt: event.ChangedAt,
		})
	}
	return &OrderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		VendorID:        o.VendorID,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		Subtotal:        o.Subtotal,
		Tax:             o.Tax,
		ShippingCost:    o.ShippingCost,
		Discount:        o.Discount,
		Total:           o.Total,
		OrderStatus:     o.OrderStatus,
		DeliveryStatus:  o.DeliveryStatus,
		DeliveryAgentID: o.DeliveryAgentID,
		StatusHistory:   history,
		Notes:           o.Notes,
		CancelReason:    o.CancelReason,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func FromDeliveryStatus(d *models.DeliveryStatus) DeliveryStatusDTO {
	photos := []string(d.Photos)
	if photos == nil {
		photos = []string{}
	}
	dto := DeliveryStatusDTO{
		ID:              d.ID,
		OrderID:         d.OrderID,
		DeliveryAgentID: d.DeliveryAgentID,
		Status:          d.Status,
		Location:        d.Location,
		Notes:           d.Notes,
		Photos:          photos,
		RecordedAt:      d.RecordedAt,
	}
	if d.Issue != nil {
		dto.Issue = &IssueDTO{
			Type:        d.Issue.Type,
			Description: d.Issue.Description,
			ReportedAt:  d.Issue.ReportedAt,
			Resolved:    d.Issue.Resolved,
			Resolution:  d.Issue.Resolution,
			ResolvedBy:  d.Issue.ResolvedBy,
			ResolvedAt:  d.Issue.ResolvedAt,
		}
	}
	if d.Feedback != nil {
		dto.Feedback = &FeedbackDTO{
			Rating:      d.Feedback.Rating,
			Comment:     d.Feedback.Comment,
			SubmittedAt: d.Feedback.SubmittedAt,
		}
	}
	return dto
}
