package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/astro-motors/internal/apperr"
	"github.com/ariefcatur/astro-motors/internal/logging"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/ariefcatur/astro-motors/internal/users"
)

// ErrInvalidCredentials is deliberately vague: it never says which half was wrong.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrValidation)

// UserStore is the slice of users.Repo the auth flows need.
type UserStore interface {
	Create(ctx context.Context, u users.User) (users.User, error)
	GetByEmail(ctx context.Context, email string) (users.User, error)
	GetByID(ctx context.Context, id string) (users.User, error)
	RecordFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
	ResetFailures(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	EnsureAdmin(ctx context.Context, name, email, passwordHash string) error
}

type Events interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

type Service struct {
	Users    UserStore
	Captcha  CaptchaStore
	Tokens   *Tokens
	Events   Events
	Lockout  users.Lockout
	ResetTTL time.Duration
	Coupon   string
	Now      func() time.Time
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      users.User
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) coupon() string {
	if s.Coupon == "" {
		return pricing.DefaultCoupon
	}
	return s.Coupon
}

func (s *Service) session(u users.User) (Session, error) {
	tok, exp, err := s.Tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// notify hands an event to the sink; failures are logged and never reach the caller.
func (s *Service) notify(ctx context.Context, eventType, key string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, eventType, key, payload); err != nil {
		logging.FromCtx(ctx).Warn("notification publish failed", "event_type", eventType, "err", err)
	}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(email) == "" || password == "" {
		return Session{}, fmt.Errorf("%w: name, email and password are required", apperr.ErrValidation)
	}
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	u, err := s.Users.Create(ctx, users.User{Name: name, Email: email, PasswordHash: hash, Role: users.RoleCustomer})
	if err != nil {
		return Session{}, err
	}

	s.notify(ctx, notify.EventUserRegistered, u.ID, notify.UserRegistered{
		Recipient: notify.Recipient{Name: u.Name, Email: u.Email},
		Coupon:    s.coupon(),
	})
	return s.session(u)
}

func (s *Service) IssueCaptcha(ctx context.Context) (Captcha, error) {
	return s.Captcha.Issue(ctx)
}

type LoginInput struct {
	Email       string
	Password    string
	CaptchaID   string
	CaptchaText string
}

// Login checks the captcha before anything else, then the lockout, then the password.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	if strings.TrimSpace(in.CaptchaID) == "" || strings.TrimSpace(in.CaptchaText) == "" {
		return Session{}, fmt.Errorf("%w: captcha required", apperr.ErrValidation)
	}
	ok, err := s.Captcha.VerifyAndConsume(ctx, in.CaptchaID, in.CaptchaText)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, fmt.Errorf("%w: captcha invalid or expired", apperr.ErrValidation)
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", apperr.ErrValidation)
	}

	u, err := s.Users.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	if s.Lockout.Locked(u, now) {
		return Session{}, fmt.Errorf("%w: too many failed attempts, try again in a few minutes", apperr.ErrLocked)
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		attempts, until := s.Lockout.Fail(u, now)
		if err := s.Users.RecordFailure(ctx, u.ID, attempts, until); err != nil {
			return Session{}, err
		}
		if until != nil {
			logging.FromCtx(ctx).Warn("account locked", "user_id", u.ID, "attempts", attempts, "until", *until)
		}
		return Session{}, ErrInvalidCredentials
	}

	if u.FailedAttempts > 0 || u.LockedUntil != nil {
		if err := s.Users.ResetFailures(ctx, u.ID); err != nil {
			return Session{}, err
		}
		u.FailedAttempts, u.LockedUntil = 0, nil
	}
	return s.session(u)
}

// Authenticate verifies a bearer token and reloads its user, so role changes and
// deleted accounts take effect before the token expires.
func (s *Service) Authenticate(ctx context.Context, raw string) (users.User, error) {
	c, err := s.Tokens.Parse(raw)
	if err != nil {
		return users.User{}, err
	}
	u, err := s.Users.GetByID(ctx, c.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return users.User{}, fmt.Errorf("%w: unknown user", apperr.ErrUnauthorized)
	}
	return u, err
}

// ForgotPassword behaves the same whether or not the address is registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	u, err := s.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := randomHex(32)
	if err != nil {
		return err
	}
	ttl := s.ResetTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expires := s.now().Add(ttl)
	if err := s.Users.SetResetToken(ctx, u.ID, hashToken(token), expires); err != nil {
		return err
	}

	s.notify(ctx, notify.EventPasswordResetRequested, u.ID, notify.PasswordResetRequested{
		Recipient: notify.Recipient{Name: u.Name, Email: u.Email},
		Token:     token,
		ExpiresAt: expires,
	})
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if strings.TrimSpace(token) == "" || password == "" {
		return fmt.Errorf("%w: token and new password are required", apperr.ErrValidation)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.Users.ConsumeResetToken(ctx, hashToken(strings.TrimSpace(token)), hash, s.now())
	return err
}

// Subscribe sends the newsletter coupon. Nothing is stored, so a publish failure is
// reported to the caller instead of being swallowed.
func (s *Service) Subscribe(ctx context.Context, email string) error {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if s.Events == nil {
		return nil
	}
	return s.Events.Publish(ctx, notify.EventNewsletterSubscribed, email, notify.NewsletterSubscribed{
		Email:  email,
		Coupon: s.coupon(),
	})
}

// Bootstrap makes sure the configured admin account exists with the given password.
func (s *Service) Bootstrap(ctx context.Context, name, email, password string) error {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrador"
	}
	return s.Users.EnsureAdmin(ctx, name, email, hash)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
