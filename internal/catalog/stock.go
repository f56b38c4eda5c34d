package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// DecrementStock takes qty units of a product as one conditional update, so two
// transactions can never both succeed on the last units. Call it inside the
// transaction that records the sale; on failure the transaction must be rolled back.
func DecrementStock(ctx context.Context, q postgres.Querier, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be >= 1", apperr.ErrValidation)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	if err != nil {
		return err
	}
	return &StockError{ProductID: productID, Requested: qty, Available: available}
}

