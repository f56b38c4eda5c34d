package redisx

import "time"

const (
	// captcha:{id} -> expected text, single use
	KeyCaptcha = "captcha:%s"

	// idem:checkout:{user_id}:{Idempotency-Key} -> "pending" | order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCaptcha     = 5 * time.Minute
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
