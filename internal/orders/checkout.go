package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Repo struct {
	DB     postgres.DB
	Policy *pricing.Policy
}

// Checkout turns the user's open cart into an order in one transaction:
// lock cart, load lines, price, insert order, then per line insert the snapshot and
// take the stock, and finally close the cart. Nothing persists unless every step succeeds.
func (r *Repo) Checkout(ctx context.Context, in CheckoutInput) (Receipt, error) {
	if err := in.Validate(); err != nil {
		return Receipt{}, err
	}
	method, _ := ParsePaymentMethod(string(in.PaymentMethod))

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := cart.OpenForUpdateTx(ctx, tx, in.UserID)
	if err != nil {
		return Receipt{}, err
	}
	lines, err := cart.LoadLinesTx(ctx, tx, c.ID)
	if err != nil {
		return Receipt{}, err
	}
	if len(lines) == 0 {
		return Receipt{}, apperr.ErrEmptyCart
	}

	totals := r.policy().Compute(cart.PricingLines(lines), in.CountryCode, in.CouponCode)

	o := Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		ItemCount:     totals.ItemCount,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Shipping:      totals.Shipping,
		Discount:      totals.Discount,
		GrandTotal:    totals.GrandTotal,
		CouponCode:    totals.CouponCode,
		CountryCode:   totals.CountryCode,
		PaymentMethod: method,
		ShipTo:        trimShipping(in.ShipTo),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, item_count, subtotal, tax, shipping, discount, grand_total,
			coupon_code, country_code, payment_method,
			ship_name, ship_address, ship_city, ship_postal_code, ship_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`,
		o.ID, o.UserID, o.ItemCount, o.Subtotal, o.Tax, o.Shipping, o.Discount, o.GrandTotal,
		optText(o.CouponCode), o.CountryCode, string(o.PaymentMethod),
		o.ShipTo.Name, o.ShipTo.Address, o.ShipTo.City, o.ShipTo.PostalCode, o.ShipTo.Phone,
	).Scan(&o.CreatedAt)
	if err != nil {
		return Receipt{}, fmt.Errorf("insert order: %w", err)
	}

	o.Lines = make([]Line, 0, len(lines))
	for i, cl := range lines {
		ol := Line{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			Position:    i + 1,
			ProductID:   cl.ProductID,
			ProductName: cl.Name,
			Category:    cl.Category,
			UnitPrice:   cl.UnitPrice,
			Quantity:    cl.Quantity,
			Subtotal:    cl.Total().Round(2),
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, position, product_id, product_name, category, unit_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ol.ID, ol.OrderID, ol.Position, ol.ProductID, ol.ProductName, ol.Category, ol.UnitPrice, ol.Quantity, ol.Subtotal,
		); err != nil {
			return Receipt{}, fmt.Errorf("insert order line %d: %w", ol.Position, err)
		}
		if err := catalog.DecrementStock(ctx, tx, cl.ProductID, cl.Quantity); err != nil {
			return Receipt{}, err
		}
		o.Lines = append(o.Lines, ol)
	}

	if err := cart.CloseTx(ctx, tx, c); err != nil {
		return Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, fmt.Errorf("commit checkout: %w", err)
	}
	return Receipt{Order: o, Totals: totals}, nil
}

func (r *Repo) policy() *pricing.Policy {
	if r.Policy == nil {
		return pricing.DefaultPolicy()
	}
	return r.Policy
}

func optText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func trimShipping(s ShippingInfo) ShippingInfo {
	return ShippingInfo{
		Name:       strings.TrimSpace(s.Name),
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Phone:      strings.TrimSpace(s.Phone),
	}
}

// money rounds a value read back from a numeric column for display.
func money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
