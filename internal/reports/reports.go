// Package reports serves the back-office statistics. Sales figures come from the
// order line snapshots, so they describe what was sold even after catalog edits.
package reports

import (
	"context"

	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/shopspring/decimal"
)

type CategorySales struct {
	Category string
	Units    int
	Revenue  decimal.Decimal
}

type StockLine struct {
	ProductID string
	Name      string
	Category  string
	Stock     int
}

type Repo struct{ DB postgres.Querier }

// SalesByCategory returns units and revenue per category, highest revenue first.
func (r *Repo) SalesByCategory(ctx context.Context) ([]CategorySales, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT category, SUM(quantity)::int, SUM(subtotal)
		FROM order_lines
		GROUP BY category
		ORDER BY SUM(subtotal) DESC, category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CategorySales{}
	for rows.Next() {
		var s CategorySales
		if err := rows.Scan(&s.Category, &s.Units, &s.Revenue); err != nil {
			return nil, err
		}
		s.Revenue = s.Revenue.Round(2)
		out = append(out, s)
	}
	return out, rows.Err()
}

// StockReport lists every product, scarcest first.
func (r *Repo) StockReport(ctx context.Context) ([]StockLine, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, category, stock FROM products ORDER BY stock ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StockLine{}
	for rows.Next() {
		var s StockLine
		if err := rows.Scan(&s.ProductID, &s.Name, &s.Category, &s.Stock); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
