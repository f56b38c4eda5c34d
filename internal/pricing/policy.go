package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCountry is the entry used for any country code not in the table.
const DefaultCountry = "OTHER"

// DefaultCoupon is the storefront's welcome coupon.
const DefaultCoupon = "ASTRO10"

type Country struct {
	Code     string
	Name     string
	TaxRate  decimal.Decimal
	Shipping decimal.Decimal
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	ItemCount   int
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Shipping    decimal.Decimal
	Discount    decimal.Decimal
	GrandTotal  decimal.Decimal
	CouponCode  string // applied code, empty when no coupon matched
	CountryCode string
	CountryName string
}

// Policy maps (country, subtotal, coupon) to tax, shipping and discount.
// A Policy is read-only after construction and safe for concurrent use.
type Policy struct {
	countries map[string]Country
	fallback  Country
	coupons   map[string]decimal.Decimal // upper-cased code -> fraction of subtotal
}

func DefaultCountries() []Country {
	return []Country{
		{Code: "MX", Name: "México", TaxRate: decimal.RequireFromString("0.16"), Shipping: decimal.NewFromInt(250)},
		{Code: "US", Name: "Estados Unidos", TaxRate: decimal.RequireFromString("0.10"), Shipping: decimal.NewFromInt(500)},
		{Code: "ES", Name: "España", TaxRate: decimal.RequireFromString("0.21"), Shipping: decimal.NewFromInt(600)},
		{Code: DefaultCountry, Name: "Otro", TaxRate: decimal.Zero, Shipping: decimal.NewFromInt(300)},
	}
}

// NewPolicy builds a policy from a country table and a coupon table given in percent.
// The table must contain DefaultCountry; if it does not, DefaultCountries' fallback is used.
func NewPolicy(countries []Country, couponPercents map[string]int) *Policy {
	p := &Policy{
		countries: make(map[string]Country, len(countries)),
		coupons:   make(map[string]decimal.Decimal, len(couponPercents)),
	}
	for _, c := range countries {
		p.countries[strings.ToUpper(c.Code)] = c
	}
	fb, ok := p.countries[DefaultCountry]
	if !ok {
		all := DefaultCountries()
		fb = all[len(all)-1]
	}
	p.fallback = fb
	for code, pct := range couponPercents {
		if pct <= 0 || pct > 100 {
			continue
		}
		p.coupons[normalize(code)] = decimal.NewFromInt(int64(pct)).Div(decimal.NewFromInt(100))
	}
	return p
}

func DefaultPolicy() *Policy {
	return NewPolicy(DefaultCountries(), map[string]int{DefaultCoupon: 10})
}

// Country returns the table entry for code, falling back to the default entry.
func (p *Policy) Country(code string) Country {
	if c, ok := p.countries[normalize(code)]; ok {
		return c
	}
	return p.fallback
}

// Sum reduces lines to an exact subtotal and an item count. No rounding happens here.
func Sum(lines []Line) (decimal.Decimal, int) {
	subtotal := decimal.Zero
	count := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		count += l.Quantity
	}
	return subtotal, count
}

// Compute never fails: an unknown country falls back to the default entry and an
// unknown or empty coupon yields a zero discount.
// Components are rounded to cents and the grand total is their sum, so
// GrandTotal == Subtotal + Tax + Shipping - Discount holds exactly on the returned values.
func (p *Policy) Compute(lines []Line, countryCode, couponCode string) Totals {
	subtotal, count := Sum(lines)
	country := p.Country(countryCode)

	t := Totals{
		ItemCount:   count,
		Subtotal:    cents(subtotal),
		Tax:         cents(subtotal.Mul(country.TaxRate)),
		Shipping:    cents(country.Shipping),
		Discount:    decimal.Zero,
		CountryCode: country.Code,
		CountryName: country.Name,
	}
	code := normalize(couponCode)
	if rate, ok := p.coupons[code]; ok && code != "" {
		t.Discount = cents(subtotal.Mul(rate))
		t.CouponCode = code
	}
	t.GrandTotal = t.Subtotal.Add(t.Tax).Add(t.Shipping).Sub(t.Discount)
	return t
}

func cents(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
