package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// Idempotency remembers which order a client-supplied key produced.
type Idempotency struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotency(rdb redis.Cmdable, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

// Claim reserves key for the caller. When the key is already taken it reports the
// stored order id, or "" with inFlight set while the first request is still running.
func (s *Idempotency) Claim(ctx context.Context, userID, key string) (claimed bool, orderID string, inFlight bool, err error) {
	k := fmt.Sprintf(KeyIdemCheckout, userID, key)
	ok, err := s.rdb.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return false, "", false, err
	}
	if ok {
		return true, "", false, nil
	}
	v, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls; let the caller retry
		return false, "", true, nil
	}
	if err != nil {
		return false, "", false, err
	}
	if v == pending {
		return false, "", true, nil
	}
	return false, v, false, nil
}

func (s *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), orderID, s.ttl).Err()
}

// Release frees a claimed key after a failed attempt so the client may retry.
func (s *Idempotency) Release(ctx context.Context, userID, key string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Err()
}
