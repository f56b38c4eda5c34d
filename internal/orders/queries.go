package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/jackc/pgx/v5"
)

const orderSelect = `
	SELECT o.id, o.user_id, u.name, u.email, o.item_count,
		o.subtotal, o.tax, o.shipping, o.discount, o.grand_total,
		COALESCE(o.coupon_code, ''), o.country_code, o.payment_method,
		o.ship_name, o.ship_address, o.ship_city, o.ship_postal_code, o.ship_phone, o.created_at,
		COALESCE((
			SELECT string_agg(ol.quantity || 'x ' || ol.product_name || ' (' || ol.category || ')', ' • ' ORDER BY ol.position)
			FROM order_lines ol
			WHERE ol.order_id = o.id
		), '')
	FROM orders o
	JOIN users u ON u.id = o.user_id`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		method string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.CustomerName, &o.CustomerEmail, &o.ItemCount,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.GrandTotal,
		&o.CouponCode, &o.CountryCode, &method,
		&o.ShipTo.Name, &o.ShipTo.Address, &o.ShipTo.City, &o.ShipTo.PostalCode, &o.ShipTo.Phone, &o.CreatedAt,
		&o.Summary)
	if err != nil {
		return Order{}, err
	}
	o.PaymentMethod = PaymentMethod(method)
	o.Subtotal, o.Tax, o.Shipping = money(o.Subtotal), money(o.Tax), money(o.Shipping)
	o.Discount, o.GrandTotal = money(o.Discount), money(o.GrandTotal)
	return o, nil
}

// ListAll returns every order, newest first.
func (r *Repo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, orderSelect+` ORDER BY o.created_at DESC, o.id`)
}

// ListByUser returns one customer's orders, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, orderSelect+` WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id`, userID)
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Get loads one order with its line snapshots in position order.
func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, position, product_id, product_name, category, unit_price, quantity, subtotal
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()

	o.Lines = []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Position, &l.ProductID, &l.ProductName, &l.Category,
			&l.UnitPrice, &l.Quantity, &l.Subtotal); err != nil {
			return Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}
