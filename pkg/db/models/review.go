package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Review is customer feedback on a purchased product. One per (product, customer).
type Review struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID      `gorm:"column:product_id;type:uuid;not null;uniqueIndex:reviews_product_customer_key,priority:1"`
	CustomerID uuid.UUID      `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:reviews_product_customer_key,priority:2"`
	OrderID    uuid.UUID      `gorm:"column:order_id;type:uuid;not null"`
	Rating     int            `gorm:"column:rating;not null"`
	Title      string         `gorm:"column:title;not null"`
	Comment    string         `gorm:"column:comment;not null"`
	IsApproved bool           `gorm:"column:is_approved;not null;index:reviews_is_approved_idx"`
	IsFlagged  bool           `gorm:"column:is_flagged;not null"`
	Reports    []ReviewReport `gorm:"column:reports;type:jsonb;serializer:json"`
	ApprovedBy *uuid.UUID     `gorm:"column:approved_by;type:uuid"`
	ApprovedAt *time.Time     `gorm:"column:approved_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

type ReviewReport struct {
	ReporterID uuid.UUID          `json:"reporterId"`
	Reason     enums.ReportReason `json:"reason"`
	Note       string             `json:"note,omitempty"`
	ReportedAt time.Time          `json:"reportedAt"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// ReportedBy reports whether reporterID already flagged this review.
func (r *Review) ReportedBy(reporterID uuid.UUID) bool {
	for _, report := range r.Reports {
		if report.ReporterID == reporterID {
			return true
		}
	}
	return false
}
