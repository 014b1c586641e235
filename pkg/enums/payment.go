package enums

import "fmt"

// PaymentMethod records how the buyer intends to pay. Capture happens elsewhere.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodDebitCard      PaymentMethod = "debit_card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
)

var paymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodCreditCard:     {},
	PaymentMethodDebitCard:      {},
	PaymentMethodPayPal:         {},
	PaymentMethodCashOnDelivery: {},
	PaymentMethodBankTransfer:   {},
}

func (p PaymentMethod) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethods[p]
	return ok
}

// CollectedOnDelivery reports whether money changes hands at the door.
func (p PaymentMethod) CollectedOnDelivery() bool {
	return p == PaymentMethodCashOnDelivery
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if p := PaymentMethod(value); p.IsValid() {
		return p, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentStatus mirrors the settlement state reported for an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// AfterDelivery is the payment status once the goods are handed over: a
// pending cash-on-delivery order becomes paid, anything else is unchanged.
func (p PaymentStatus) AfterDelivery(method PaymentMethod) PaymentStatus {
	if p == PaymentStatusPending && method.CollectedOnDelivery() {
		return PaymentStatusPaid
	}
	return p
}
