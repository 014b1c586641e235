package reviews

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
)

type CreateReviewRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	OrderID   uuid.UUID `json:"orderId" validate:"required"`
	Rating    int       `json:"rating" validate:"required,gte=1,lte=5"`
	Title     string    `json:"title" validate:"required,max=100"`
	Comment   string    `json:"comment" validate:"required,max=1000"`
}

// UpdateReviewRequest edits the author's own review. Nil fields are kept.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Title   *string `json:"title" validate:"omitempty,max=100"`
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

type ReportRequest struct {
	Reason string `json:"reason" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type ReportDTO struct {
	ReporterID uuid.UUID          `json:"reporterId"`
	Reason     enums.ReportReason `json:"reason"`
	Note       string             `json:"note,omitempty"`
	ReportedAt time.Time          `json:"reportedAt"`
}

type ReviewDTO struct {
	ID         uuid.UUID   `json:"id"`
	ProductID  uuid.UUID   `json:"productId"`
	CustomerID uuid.UUID   `json:"customerId"`
	OrderID    uuid.UUID   `json:"orderId"`
	Rating     int         `json:"rating"`
	Title      string      `json:"title"`
	Comment    string      `json:"comment"`
	IsApproved bool        `json:"isApproved"`
	IsFlagged  bool        `json:"isFlagged"`
	Reports    []ReportDTO `json:"reports,omitempty"`
	ApprovedAt *time.Time  `json:"approvedAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// FromModel maps a review. Reports are only exposed to moderators.
func FromModel(review *models.Review, withReports bool) ReviewDTO {
	dto := ReviewDTO{
		ID:         review.ID,
		ProductID:  review.ProductID,
		CustomerID: review.CustomerID,
		OrderID:    review.OrderID,
		Rating:     review.Rating,
		Title:      review.Title,
		Comment:    review.Comment,
		IsApproved: review.IsApproved,
		IsFlagged:  review.IsFlagged,
		ApprovedAt: review.ApprovedAt,
		CreatedAt:  review.CreatedAt,
		UpdatedAt:  review.UpdatedAt,
	}
	if withReports {
		for _, report := range review.Reports {
			dto.Reports = append(dto.Reports, ReportDTO(report))
		}
	}
	return dto
}
