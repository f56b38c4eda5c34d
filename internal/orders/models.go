package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCard      PaymentMethod = "card"
	PaymentTransfer  PaymentMethod = "transfer"
	PaymentStoreCash PaymentMethod = "store-cash"
)

// ParsePaymentMethod defaults an empty tag to card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PaymentCard, nil
	case PaymentCard, PaymentTransfer, PaymentStoreCash:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown payment method %q", apperr.ErrValidation, s)
	}
}

type ShippingInfo struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Phone      string
}

type Order struct {
	ID            string
	UserID        string
	CustomerName  string
	CustomerEmail string
	ItemCount     int
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	Discount      decimal.Decimal
	GrandTotal    decimal.Decimal
	CouponCode    string
	CountryCode   string
	PaymentMethod PaymentMethod
	ShipTo        ShippingInfo
	CreatedAt     time.Time

	Lines   []Line // filled by Get and Checkout
	Summary string // "2x Mustang (sports) • 1x Beetle (classic)", filled by list queries
}

// Line is the immutable snapshot of one product inside an order.
type Line struct {
	ID          string
	OrderID     string
	Position    int
	ProductID   string
	ProductName string
	Category    string
	UnitPrice   decimal.Decimal
	Quantity    int
	Subtotal    decimal.Decimal
}

type CheckoutInput struct {
	UserID        string
	ShipTo        ShippingInfo
	PaymentMethod PaymentMethod
	CountryCode   string
	CouponCode    string
}

func (in CheckoutInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(in.CountryCode) == "" {
		missing = append(missing, "countryCode")
	}
	if strings.TrimSpace(in.ShipTo.Name) == "" {
		missing = append(missing, "shippingInfo.name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperr.ErrValidation, strings.Join(missing, ", "))
	}
	if _, err := ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return err
	}
	return nil
}

// Receipt is what a successful checkout returns.
type Receipt struct {
	Order  Order
	Totals pricing.Totals
}
