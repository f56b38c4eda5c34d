package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateEmail is returned by Create when the address is already registered.
var ErrDuplicateEmail = fmt.Errorf("%w: email already registered", apperr.ErrValidation)

type Repo struct{ DB postgres.DB }

const userColumns = `id, name, email, password_hash, role, verified, failed_attempts, locked_until, created_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Verified,
		&u.FailedAttempts, &u.LockedUntil, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func (r *Repo) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, verified)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role)).Scan(&u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return User{}, ErrDuplicateEmail
	}
	if err != nil {
		return User{}, err
	}
	u.Verified = true
	return u, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	return u, err
}

func (r *Repo) GetByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return u, err
}

// List returns all accounts, newest first.
func (r *Repo) List(ctx context.Context) ([]User, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) RecordFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET failed_attempts = $2, locked_until = $3 WHERE id = $1`, id, attempts, lockedUntil)
	return err
}

func (r *Repo) ResetFailures(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = $1`, id)
	return err
}

// SetResetToken stores the hash of a password reset token; the raw token is never persisted.
func (r *Repo) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET reset_token_hash = $2, reset_expires = $3 WHERE id = $1`, id, tokenHash, expires)
	return err
}

// ConsumeResetToken swaps in a new password hash if tokenHash matches an unexpired
// token, and clears the token and any lockout in the same statement.
func (r *Repo) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $2, reset_token_hash = NULL, reset_expires = NULL,
			failed_attempts = 0, locked_until = NULL
		WHERE reset_token_hash = $1 AND reset_expires > $3
		RETURNING id`, tokenHash, passwordHash, now).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: invalid or expired token", apperr.ErrValidation)
	}
	return id, err
}

// EnsureAdmin creates the account if missing, or promotes it and resets its password.
func (r *Repo) EnsureAdmin(ctx context.Context, name, email, passwordHash string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, verified)
		VALUES ($1, $2, $3, $4, 'admin', TRUE)
		ON CONFLICT ((lower(email)))
		DO UPDATE SET role = 'admin', password_hash = EXCLUDED.password_hash`,
		uuid.NewString(), name, email, passwordHash)
	return err
}
