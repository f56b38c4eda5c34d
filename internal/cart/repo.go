package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB postgres.DB }

// ErrClosed reports a mutation that reached a cart after checkout closed it.
var ErrClosed = fmt.Errorf("%w: cart is closed", apperr.ErrConflict)

// GetOrCreate returns the user's open cart. The insert relies on the partial unique
// index over open carts, so concurrent first calls converge on one row.
func (r *Repo) GetOrCreate(ctx context.Context, userID string) (Cart, error) {
	if _, err := r.DB.Exec(ctx, `
		INSERT INTO carts (id, user_id, state)
		VALUES ($1, $2, 'open')
		ON CONFLICT (user_id) WHERE state = 'open' DO NOTHING`, uuid.NewString(), userID); err != nil {
		return Cart{}, err
	}

	var (
		c     Cart
		state string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, state, created_at
		FROM carts
		WHERE user_id = $1 AND state = 'open'`, userID).Scan(&c.ID, &c.UserID, &state, &c.CreatedAt)
	if err != nil {
		return Cart{}, err
	}
	c.State = State(state)
	return c, nil
}

const lineQuery = `
	SELECT cl.id, cl.cart_id, cl.product_id, p.name, p.image_url, p.category, cl.quantity, cl.unit_price
	FROM cart_lines cl
	JOIN products p ON p.id = cl.product_id
	WHERE cl.cart_id = $1
	ORDER BY cl.created_at, cl.id`

func (r *Repo) Lines(ctx context.Context, cartID string) ([]Line, error) {
	return loadLines(ctx, r.DB, cartID)
}

func loadLines(ctx context.Context, q postgres.Querier, cartID string) ([]Line, error) {
	rows, err := q.Query(ctx, lineQuery, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Name, &l.ImageURL, &l.Category, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LoadLinesTx reads the lines of a cart within an existing transaction.
func LoadLinesTx(ctx context.Context, tx pgx.Tx, cartID string) ([]Line, error) {
	return loadLines(ctx, tx, cartID)
}

// AddOrIncrement adds qty units of a product to the cart. The stock check here is
// advisory: it compares the requested delta with current stock and reserves nothing.
// The binding check happens at checkout.
func (r *Repo) AddOrIncrement(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}

	var (
		price decimal.Decimal
		stock int
	)
	err := r.DB.QueryRow(ctx, `SELECT price, stock FROM products WHERE id = $1`, productID).Scan(&price, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	if err != nil {
		return err
	}
	if qty > stock {
		return &catalog.StockError{ProductID: productID, Requested: qty, Available: stock}
	}

	// FOR SHARE waits out a checkout holding the cart and then sees it closed.
	// An existing line keeps the price captured when it was first added.
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity, unit_price)
		SELECT $1, c.id, $3, $4, $5
		FROM carts c
		WHERE c.id = $2 AND c.state = 'open'
		FOR SHARE
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		uuid.NewString(), cartID, productID, qty, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart %s", ErrClosed, cartID)
	}
	return nil
}

// UpdateQuantity sets a line's quantity verbatim; zero or negative removes the line.
func (r *Repo) UpdateQuantity(ctx context.Context, cartID, lineID string, qty int) error {
	if qty <= 0 {
		return r.RemoveLine(ctx, cartID, lineID)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE cart_lines SET quantity = $3 WHERE id = $1 AND cart_id = $2`, lineID, cartID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart line %s", apperr.ErrNotFound, lineID)
	}
	return nil
}

func (r *Repo) RemoveLine(ctx context.Context, cartID, lineID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND cart_id = $2`, lineID, cartID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: cart line %s", apperr.ErrNotFound, lineID)
	}
	return nil
}

func (r *Repo) Clear(ctx context.Context, cartID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID)
	return err
}

// View loads the user's open cart with its lines and summary.
func (r *Repo) View(ctx context.Context, userID string) (View, error) {
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return View{}, err
	}
	lines, err := r.Lines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	return View{CartID: c.ID, Lines: lines, Summary: Summarize(lines)}, nil
}

// OpenForUpdateTx locks the user's open cart row for the duration of tx.
// It returns apperr.ErrEmptyCart when the user has no open cart.
func OpenForUpdateTx(ctx context.Context, tx pgx.Tx, userID string) (Cart, error) {
	var c Cart
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, created_at
		FROM carts
		WHERE user_id = $1 AND state = 'open'
		FOR UPDATE`, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, apperr.ErrEmptyCart
	}
	if err != nil {
		return Cart{}, err
	}
	c.State = StateOpen
	return c, nil
}

// CloseTx moves the cart to closed and deletes its lines, which now live on as order lines.
func CloseTx(ctx context.Context, tx pgx.Tx, c Cart) error {
	if !CanTransition(c.State, StateClosed) {
		return fmt.Errorf("%w: cart %s is %s", apperr.ErrConflict, c.ID, c.State)
	}
	ct, err := tx.Exec(ctx, `UPDATE carts SET state = 'closed', closed_at = now() WHERE id = $1 AND state = 'open'`, c.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: cart %s already closed", apperr.ErrConflict, c.ID)
	}
	_, err = tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, c.ID)
	return err
}
