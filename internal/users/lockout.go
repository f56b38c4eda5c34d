package users

import "time"

// Lockout counts consecutive failed logins. Once the count reaches MaxAttempts the
// account is locked for Duration. The count is only cleared by a successful login,
// so a failure after the lock expires locks the account again immediately.
type Lockout struct {
	MaxAttempts int
	Duration    time.Duration
}

func DefaultLockout() Lockout { return Lockout{MaxAttempts: 3, Duration: 5 * time.Minute} }

func (l Lockout) Locked(u User, now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Fail returns the attempt count and lock expiry to store after one more failure.
func (l Lockout) Fail(u User, now time.Time) (int, *time.Time) {
	attempts := u.FailedAttempts + 1
	max := l.MaxAttempts
	if max <= 0 {
		max = 3
	}
	if attempts < max {
		return attempts, nil
	}
	until := now.Add(l.Duration)
	return attempts, &until
}
