package types

import (
	"fmt"
	"strings"
)

// VariantSelection is the size/color/style chosen for a cart or order line. It is
// part of the line identity.
type VariantSelection struct {
	Size  string `json:"size,omitempty" validate:"omitempty,max=40"`
	Color string `json:"color,omitempty" validate:"omitempty,max=40"`
	Style string `json:"style,omitempty" validate:"omitempty,max=40"`
}

// Normalize trims each dimension so equality is whitespace-insensitive.
func (v VariantSelection) Normalize() VariantSelection {
	return VariantSelection{
		Size:  strings.TrimSpace(v.Size),
		Color: strings.TrimSpace(v.Color),
		Style: strings.TrimSpace(v.Style),
	}
}

// Equal compares two selections after normalization.
func (v VariantSelection) Equal(other VariantSelection) bool {
	return v.Normalize() == other.Normalize()
}

// IsZero reports whether no dimension was chosen.
func (v VariantSelection) IsZero() bool {
	return v.Normalize() == VariantSelection{}
}

// VariantOptions lists the dimensions a product offers. An empty list means the
// dimension is not constrained.
type VariantOptions struct {
	Sizes  []string `json:"sizes,omitempty"`
	Colors []string `json:"colors,omitempty"`
	Styles []string `json:"styles,omitempty"`
}

// Validate reports the first dimension in sel the product does not offer.
func (o VariantOptions) Validate(sel VariantSelection) error {
	sel = sel.Normalize()
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"size", sel.Size, o.Sizes},
		{"color", sel.Color, o.Colors},
		{"style", sel.Style, o.Styles},
	}
	for _, c := range checks {
		if c.value == "" || len(c.allowed) == 0 {
			continue
		}
		if !containsFold(c.allowed, c.value) {
			return fmt.Errorf("%s %q is not offered", c.name, c.value)
		}
	}
	return nil
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
