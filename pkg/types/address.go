package types

import "strings"

// Address is the shipping destination captured on a customer profile and copied
// into an order at placement time.
type Address struct {
	Label     string `json:"label,omitempty" validate:"omitempty,max=40"`
	FullName  string `json:"fullName" validate:"required,max=120"`
	Phone     string `json:"phone" validate:"required,max=32"`
	Street    string `json:"street" validate:"required,max=200"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	ZipCode   string `json:"zipCode" validate:"required,max=20"`
	Country   string `json:"country" validate:"omitempty,max=60"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// Normalize trims whitespace and defaults the country.
func (a Address) Normalize() Address {
	a.Label = strings.TrimSpace(a.Label)
	a.FullName = strings.TrimSpace(a.FullName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = "US"
	}
	return a
}
