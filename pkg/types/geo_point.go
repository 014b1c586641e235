package types

import "time"

// GeoPoint is a courier position report.
type GeoPoint struct {
	Lat       float64    `json:"lat" validate:"latitude"`
	Lng       float64    `json:"lng" validate:"longitude"`
	Address   string     `json:"address,omitempty" validate:"omitempty,max=200"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
