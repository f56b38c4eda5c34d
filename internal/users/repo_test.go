package users

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "name", "email", "password_hash", "role", "verified", "failed_attempts", "locked_until", "created_at"}

func newRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Repo{DB: mock}, mock
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Ana", "ana@example.com", "hash", "customer").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := repo.Create(context.Background(), User{Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_DefaultsToCustomer(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "Ana", "ana@example.com", "hash", "customer").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	u, err := repo.Create(context.Background(), User{Name: "Ana", Email: "ana@example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, RoleCustomer, u.Role)
	assert.True(t, u.Verified)
	assert.Equal(t, now, u.CreatedAt)
}

func TestGetByEmail(t *testing.T) {
	repo, mock := newRepo(t)
	until := time.Now().Add(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE lower(email) = lower($1)`)).WithArgs("ANA@example.com").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("u1", "Ana", "ana@example.com", "hash", "admin", true, 3, &until, time.Now()))
	mock.ExpectQuery(`FROM users WHERE lower\(email\)`).WithArgs("nobody@example.com").
		WillReturnRows(pgxmock.NewRows(cols))

	u, err := repo.GetByEmail(context.Background(), "ANA@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
	assert.Equal(t, 3, u.FailedAttempts)
	require.NotNil(t, u.LockedUntil)

	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConsumeResetToken(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE reset_token_hash = $1 AND reset_expires > $3 RETURNING id`)).
		WithArgs("h1", "newhash", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectQuery(`WHERE reset_token_hash`).
		WithArgs("h2", "newhash", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	id, err := repo.ConsumeResetToken(context.Background(), "h1", "newhash", now)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = repo.ConsumeResetToken(context.Background(), "h2", "newhash", now)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailureAndReset(t *testing.T) {
	repo, mock := newRepo(t)
	until := time.Now().Add(5 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET failed_attempts = $2, locked_until = $3 WHERE id = $1`)).
		WithArgs("u1", 3, &until).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET failed_attempts = 0, locked_until = NULL WHERE id = $1`)).
		WithArgs("u1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.RecordFailure(context.Background(), "u1", 3, &until))
	require.NoError(t, repo.ResetFailures(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
