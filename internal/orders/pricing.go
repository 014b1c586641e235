package orders

import (
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/shopspring/decimal"
)

// Pricing holds the checkout constants.
type Pricing struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// Quote is the money breakdown of an order.
type Quote struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// PricingFromConfig parses the configured rates.
func PricingFromConfig(cfg config.OrdersConfig) (Pricing, error) {
	tax, fee, threshold, err := cfg.Pricing()
	if err != nil {
		return Pricing{}, err
	}
	return Pricing{TaxRate: tax, ShippingFee: fee, FreeShippingThreshold: threshold}, nil
}

// Quote prices a subtotal. Shipping is waived strictly above the threshold and
// the discount is always zero at placement.
func (p Pricing) Quote(subtotal decimal.Decimal) Quote {
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(p.TaxRate).Round(2)
	shipping := p.ShippingFee.Round(2)
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	discount := decimal.Zero
	return Quote{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Discount:     discount,
		Total:        subtotal.Add(tax).Add(shipping).Sub(discount),
	}
}

// NewOrderNumber formats ORD-<epoch millis><5 upper-case base36 chars>.
func NewOrderNumber(now time.Time) (string, error) {
	suffix, err := security.RandomBase36(5)
	if err != nil {
		return "", fmt.Errorf("order number suffix: %w", err)
	}
	return "ORD-" + strconv.FormatInt(now.UnixMilli(), 10) + suffix, nil
}
