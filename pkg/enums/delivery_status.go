package enums

import "fmt"

// DeliveryStatus tracks the courier sub-workflow of an order.
type DeliveryStatus string

const (
	DeliveryStatusAssigned       DeliveryStatus = "assigned"
	DeliveryStatusPickedUp       DeliveryStatus = "picked_up"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
	DeliveryStatusReturned       DeliveryStatus = "returned"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusAssigned,
	DeliveryStatusPickedUp,
	DeliveryStatusInTransit,
	DeliveryStatusOutForDelivery,
	DeliveryStatusDelivered,
	DeliveryStatusFailed,
	DeliveryStatusReturned,
}

var deliveryProgression = map[DeliveryStatus]int{
	DeliveryStatusAssigned:       0,
	DeliveryStatusPickedUp:       1,
	DeliveryStatusInTransit:      2,
	DeliveryStatusOutForDelivery: 3,
	DeliveryStatusDelivered:      4,
}

// String implements fmt.Stringer.
func (s DeliveryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (s DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the delivery attempt has concluded. A failed attempt
// ends the run but the order may be reassigned.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusReturned:
		return true
	}
	return false
}

// CanTransitionTo reports whether next may be recorded after s.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if s.IsTerminal() || !next.IsValid() || s == next {
		return false
	}
	if next == DeliveryStatusFailed || next == DeliveryStatusReturned {
		return true
	}
	from, okFrom := deliveryProgression[s]
	to, okTo := deliveryProgression[next]
	return okFrom && okTo && to > from
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
