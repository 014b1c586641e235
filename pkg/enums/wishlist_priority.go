package enums

import "fmt"

type WishlistPriority string

const (
	WishlistPriorityLow    WishlistPriority = "low"
	WishlistPriorityMedium WishlistPriority = "medium"
	WishlistPriorityHigh   WishlistPriority = "high"
)

var validWishlistPriorities = []WishlistPriority{
	WishlistPriorityLow,
	WishlistPriorityMedium,
	WishlistPriorityHigh,
}

// String implements fmt.Stringer.
func (p WishlistPriority) String() string {
	return string(p)
}

// IsValid reports whether the value is a known WishlistPriority.
func (p WishlistPriority) IsValid() bool {
	for _, candidate := range validWishlistPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseWishlistPriority converts raw input into a WishlistPriority; empty input
// yields medium.
func ParseWishlistPriority(value string) (WishlistPriority, error) {
	if value == "" {
		return WishlistPriorityMedium, nil
	}
	for _, candidate := range validWishlistPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wishlist priority %q", value)
}
