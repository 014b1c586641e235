package models

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus is one append-only entry of an order's courier history. Only the
// Issue resolution fields and Feedback are written after insert.
type DeliveryStatus struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index:delivery_statuses_order_id_idx"`
	DeliveryAgentID uuid.UUID            `gorm:"column:delivery_agent_id;type:uuid;not null;index:delivery_statuses_agent_id_idx"`
	Status          enums.DeliveryStatus `gorm:"column:status;type:text;not null"`
	Location        *types.GeoPoint      `gorm:"column:location;type:jsonb;serializer:json"`
	Notes           *string              `gorm:"column:notes"`
	Photos          types.StringList     `gorm:"column:photos;type:jsonb;not null"`
	Issue           *DeliveryIssue       `gorm:"column:issue;type:jsonb;serializer:json"`
	Feedback        *DeliveryFeedback    `gorm:"column:feedback;type:jsonb;serializer:json"`
	RecordedBy      uuid.UUID            `gorm:"column:recorded_by;type:uuid;not null"`
	RecordedAt      time.Time            `gorm:"column:recorded_at;not null"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the plural form; gorm would otherwise derive delivery_status.
func (DeliveryStatus) TableName() string {
	return "delivery_statuses"
}

type DeliveryIssue struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	ReportedAt  time.Time  `json:"reportedAt"`
	Resolved    bool       `json:"resolved"`
	Resolution  string     `json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

type DeliveryFeedback struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (d *DeliveryStatus) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	if d.RecordedAt.IsZero() {
		d.RecordedAt = time.Now().UTC()
	}
	return nil
}
