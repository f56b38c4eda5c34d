package cart

import (
	"time"

	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string
	UserID    string
	State     State
	CreatedAt time.Time
}

// Line carries the unit price captured when the product was first added;
// later catalog price changes do not move it.
type Line struct {
	ID        string
	CartID    string
	ProductID string
	Name      string
	ImageURL  string
	Category  string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Summary struct {
	Subtotal       decimal.Decimal
	TotalItemCount int
}

func Summarize(lines []Line) Summary {
	sub, n := pricing.Sum(PricingLines(lines))
	return Summary{Subtotal: sub, TotalItemCount: n}
}

func PricingLines(lines []Line) []pricing.Line {
	out := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		out = append(out, pricing.Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	return out
}

// View is what cart endpoints return after every read or mutation.
type View struct {
	CartID string
	Lines  []Line
	Summary
}
