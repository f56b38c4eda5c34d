package notify

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced            = "OrderPlaced"
	EventUserRegistered         = "UserRegistered"
	EventPasswordResetRequested = "PasswordResetRequested"
	EventNewsletterSubscribed   = "NewsletterSubscribed"
	EventContactReceived        = "ContactReceived"
)

// All notification events share one topic; consumers dispatch on event_type.
const TopicNotifications = "astro.notifications"

// PartitionKey keeps every event about one entity on one partition.
func PartitionKey(id string) []byte { return []byte(id) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ReceiptLine struct {
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderPlaced struct {
	OrderID       string          `json:"order_id"`
	Customer      Recipient       `json:"customer"`
	PlacedAt      time.Time       `json:"placed_at"`
	CountryCode   string          `json:"country_code"`
	CountryName   string          `json:"country_name"`
	PaymentMethod string          `json:"payment_method"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	ItemCount     int             `json:"item_count"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Shipping      decimal.Decimal `json:"shipping"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Lines         []ReceiptLine   `json:"lines"`
	ShipToName    string          `json:"ship_to_name"`
	ShipToAddress string          `json:"ship_to_address,omitempty"`
	ShipToCity    string          `json:"ship_to_city,omitempty"`
}

type UserRegistered struct {
	Recipient
	Coupon string `json:"coupon"`
}

type PasswordResetRequested struct {
	Recipient
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type NewsletterSubscribed struct {
	Email  string `json:"email"`
	Coupon string `json:"coupon"`
}

type ContactReceived struct {
	Recipient
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// OrderPlacedFrom builds the receipt payload for a committed checkout.
func OrderPlacedFrom(rc orders.Receipt, customer Recipient) OrderPlaced {
	o := rc.Order
	p := OrderPlaced{
		OrderID:       o.ID,
		Customer:      customer,
		PlacedAt:      o.CreatedAt,
		CountryCode:   rc.Totals.CountryCode,
		CountryName:   rc.Totals.CountryName,
		PaymentMethod: string(o.PaymentMethod),
		CouponCode:    o.CouponCode,
		ItemCount:     o.ItemCount,
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		Shipping:      o.Shipping,
		Discount:      o.Discount,
		GrandTotal:    o.GrandTotal,
		Lines:         make([]ReceiptLine, 0, len(o.Lines)),
		ShipToName:    o.ShipTo.Name,
		ShipToAddress: o.ShipTo.Address,
		ShipToCity:    o.ShipTo.City,
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, ReceiptLine{
			ProductName: l.ProductName,
			Category:    l.Category,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		})
	}
	return p
}
