package httpx

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/astro-motors/internal/auth"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/ariefcatur/astro-motors/internal/reports"
	"github.com/ariefcatur/astro-motors/internal/users"
	"github.com/shopspring/decimal"
)

// money renders an amount as a JSON number with exactly two decimals.
func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(2)) }

type productDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       json.Number  `json:"price"`
	OldPrice    *json.Number `json:"oldPrice,omitempty"`
	ImageURL    string       `json:"imageUrl"`
	Category    string       `json:"category"`
	Stock       int          `json:"stock"`
	IsOffer     bool         `json:"isOffer"`
	Available   bool         `json:"available"`
}

func toProduct(p catalog.Product) productDTO {
	out := productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		ImageURL:    p.ImageURL,
		Category:    string(p.Category),
		Stock:       p.Stock,
		IsOffer:     p.IsOffer,
		Available:   p.Available(),
	}
	if p.OldPrice.Valid {
		old := money(p.OldPrice.Decimal)
		out.OldPrice = &old
	}
	return out
}

func toProducts(ps []catalog.Product) []productDTO {
	out := make([]productDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProduct(p))
	}
	return out
}

type productReq struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	OldPrice    *decimal.Decimal `json:"oldPrice"`
	ImageURL    string           `json:"imageUrl"`
	Category    string           `json:"category"`
	Stock       int              `json:"stock"`
	IsOffer     bool             `json:"isOffer"`
}

func (r productReq) product() catalog.Product {
	return catalog.Product{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		OldPrice:    oldPrice(r.OldPrice),
		ImageURL:    r.ImageURL,
		Category:    catalog.Category(r.Category),
		Stock:       r.Stock,
		IsOffer:     r.IsOffer,
	}
}

// productPatchReq leaves absent fields untouched. An oldPrice of 0 clears it.
type productPatchReq struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	OldPrice    *decimal.Decimal `json:"oldPrice"`
	ImageURL    *string          `json:"imageUrl"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	IsOffer     *bool            `json:"isOffer"`
}

func (r productPatchReq) patch() catalog.Patch {
	p := catalog.Patch{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
		Stock:       r.Stock,
		IsOffer:     r.IsOffer,
	}
	if r.OldPrice != nil {
		old := oldPrice(r.OldPrice)
		p.OldPrice = &old
	}
	if r.Category != nil {
		c := catalog.Category(*r.Category)
		p.Category = &c
	}
	return p
}

func oldPrice(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil || d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(2))
}

type cartLineDTO struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	ImageURL  string      `json:"imageUrl"`
	Category  string      `json:"category"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unitPrice"`
	Total     json.Number `json:"total"`
}

type cartDTO struct {
	CartID         string        `json:"cartId"`
	Items          []cartLineDTO `json:"items"`
	Subtotal       json.Number   `json:"subtotal"`
	TotalItemCount int           `json:"totalItemCount"`
}

func toCart(v cart.View) cartDTO {
	items := make([]cartLineDTO, 0, len(v.Lines))
	for _, l := range v.Lines {
		items = append(items, cartLineDTO{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
			Category:  l.Category,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			Total:     money(l.Total()),
		})
	}
	return cartDTO{CartID: v.CartID, Items: items, Subtotal: money(v.Subtotal), TotalItemCount: v.TotalItemCount}
}

type shippingDTO struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

func (s shippingDTO) info() orders.ShippingInfo {
	return orders.ShippingInfo{Name: s.Name, Address: s.Address, City: s.City, PostalCode: s.PostalCode, Phone: s.Phone}
}

func toShipping(s orders.ShippingInfo) shippingDTO {
	return shippingDTO{Name: s.Name, Address: s.Address, City: s.City, PostalCode: s.PostalCode, Phone: s.Phone}
}

type orderLineDTO struct {
	Position    int         `json:"position"`
	ProductID   string      `json:"productId"`
	ProductName string      `json:"productName"`
	Category    string      `json:"category"`
	UnitPrice   json.Number `json:"unitPrice"`
	Quantity    int         `json:"quantity"`
	Subtotal    json.Number `json:"subtotal"`
}

type orderDTO struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	CustomerName  string         `json:"customerName,omitempty"`
	CustomerEmail string         `json:"customerEmail,omitempty"`
	ItemCount     int            `json:"itemCount"`
	Subtotal      json.Number    `json:"subtotal"`
	Tax           json.Number    `json:"tax"`
	Shipping      json.Number    `json:"shipping"`
	Discount      json.Number    `json:"discount"`
	GrandTotal    json.Number    `json:"grandTotal"`
	CouponCode    string         `json:"couponCode,omitempty"`
	CountryCode   string         `json:"countryCode"`
	PaymentMethod string         `json:"paymentMethod"`
	ShippingInfo  shippingDTO    `json:"shippingInfo"`
	CreatedAt     time.Time      `json:"createdAt"`
	Items         []orderLineDTO `json:"items,omitempty"`
	Summary       string         `json:"summary,omitempty"`
}

func toOrder(o orders.Order) orderDTO {
	out := orderDTO{
		ID:            o.ID,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		ItemCount:     o.ItemCount,
		Subtotal:      money(o.Subtotal),
		Tax:           money(o.Tax),
		Shipping:      money(o.Shipping),
		Discount:      money(o.Discount),
		GrandTotal:    money(o.GrandTotal),
		CouponCode:    o.CouponCode,
		CountryCode:   o.CountryCode,
		PaymentMethod: string(o.PaymentMethod),
		ShippingInfo:  toShipping(o.ShipTo),
		CreatedAt:     o.CreatedAt,
		Summary:       o.Summary,
	}
	for _, l := range o.Lines {
		out.Items = append(out.Items, orderLineDTO{
			Position:    l.Position,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Category:    l.Category,
			UnitPrice:   money(l.UnitPrice),
			Quantity:    l.Quantity,
			Subtotal:    money(l.Subtotal),
		})
	}
	return out
}

func toOrders(list []orders.Order) []orderDTO {
	out := make([]orderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out
}

type totalsDTO struct {
	ItemCount   int         `json:"itemCount"`
	Subtotal    json.Number `json:"subtotal"`
	Tax         json.Number `json:"tax"`
	Shipping    json.Number `json:"shipping"`
	Discount    json.Number `json:"discount"`
	GrandTotal  json.Number `json:"grandTotal"`
	CouponCode  *string     `json:"couponCode"`
	CountryCode string      `json:"countryCode"`
	CountryName string      `json:"countryName,omitempty"`
}

func toTotals(t pricing.Totals) totalsDTO {
	out := totalsDTO{
		ItemCount:   t.ItemCount,
		Subtotal:    money(t.Subtotal),
		Tax:         money(t.Tax),
		Shipping:    money(t.Shipping),
		Discount:    money(t.Discount),
		GrandTotal:  money(t.GrandTotal),
		CountryCode: t.CountryCode,
		CountryName: t.CountryName,
	}
	if t.CouponCode != "" {
		c := t.CouponCode
		out.CouponCode = &c
	}
	return out
}

// totalsOf rebuilds the totals block from a stored order, for idempotent replays.
func totalsOf(o orders.Order) pricing.Totals {
	return pricing.Totals{
		ItemCount:   o.ItemCount,
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Shipping:    o.Shipping,
		Discount:    o.Discount,
		GrandTotal:  o.GrandTotal,
		CouponCode:  o.CouponCode,
		CountryCode: o.CountryCode,
	}
}

type checkoutReq struct {
	CountryCode    string          `json:"countryCode"`
	CouponCode     string          `json:"couponCode"`
	ShippingInfo   shippingDTO     `json:"shippingInfo"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentDetails json.RawMessage `json:"paymentDetails"` // accepted, never stored
}

type checkoutResp struct {
	Order        orderDTO    `json:"order"`
	Totals       totalsDTO   `json:"totals"`
	ShippingInfo shippingDTO `json:"shippingInfo"`
}

func toCheckout(o orders.Order, t pricing.Totals) checkoutResp {
	return checkoutResp{Order: toOrder(o), Totals: toTotals(t), ShippingInfo: toShipping(o.ShipTo)}
}

type userDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUser(u users.User) userDTO {
	return userDTO{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), Verified: u.Verified, CreatedAt: u.CreatedAt}
}

type adminUserDTO struct {
	userDTO
	FailedAttempts int        `json:"failedAttempts"`
	LockedUntil    *time.Time `json:"lockedUntil"`
}

func toAdminUsers(us []users.User) []adminUserDTO {
	out := make([]adminUserDTO, 0, len(us))
	for _, u := range us {
		out = append(out, adminUserDTO{userDTO: toUser(u), FailedAttempts: u.FailedAttempts, LockedUntil: u.LockedUntil})
	}
	return out
}

type sessionDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userDTO   `json:"user"`
}

func toSession(s auth.Session) sessionDTO {
	return sessionDTO{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUser(s.User)}
}

type categorySalesDTO struct {
	Category string      `json:"category"`
	Units    int         `json:"units"`
	Revenue  json.Number `json:"revenue"`
}

func toCategorySales(rows []reports.CategorySales) []categorySalesDTO {
	out := make([]categorySalesDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, categorySalesDTO{Category: r.Category, Units: r.Units, Revenue: money(r.Revenue)})
	}
	return out
}

type stockLineDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Stock     int    `json:"stock"`
}

func toStockReport(rows []reports.StockLine) []stockLineDTO {
	out := make([]stockLineDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, stockLineDTO{ProductID: r.ProductID, Name: r.Name, Category: r.Category, Stock: r.Stock})
	}
	return out
}
