package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, description, price, old_price, image_url, category, stock, is_offer, created_at, updated_at`

type Repo struct{ DB postgres.DB }

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p   Product
		cat string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.OldPrice, &p.ImageURL,
		&cat, &p.Stock, &p.IsOffer, &p.CreatedAt, &p.UpdatedAt)
	p.Category = Category(cat)
	return p, err
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.OfferOnly {
		where = append(where, "is_offer")
	}
	q := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY name`

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	return get(ctx, r.DB, id, false)
}

func get(ctx context.Context, q postgres.Querier, id string, lock bool) (Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return p, err
}

func (r *Repo) Create(ctx context.Context, p Product) (Product, error) {
	p.Price = p.Price.Round(2)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	p.ID = uuid.NewString()
	row := r.DB.QueryRow(ctx, `
		INSERT INTO products (id, name, description, price, old_price, image_url, category, stock, is_offer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.OldPrice, p.ImageURL, string(p.Category), p.Stock, p.IsOffer)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Update loads the product under a row lock, merges the patch and writes the result back.
func (r *Repo) Update(ctx context.Context, id string, patch Patch) (Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := get(ctx, tx, id, true)
	if err != nil {
		return Product{}, err
	}
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return Product{}, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, old_price = $5, image_url = $6,
		    category = $7, stock = $8, is_offer = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		id, next.Name, next.Description, next.Price, next.OldPrice, next.ImageURL,
		string(next.Category), next.Stock, next.IsOffer).Scan(&next.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return next, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return nil
}
