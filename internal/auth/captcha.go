package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ariefcatur/astro-motors/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// captchaAlphabet leaves out I, O, 0 and 1.
const captchaAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const captchaLen = 6

type Captcha struct {
	ID   string
	Text string
}

type CaptchaStore interface {
	Issue(ctx context.Context) (Captcha, error)
	// VerifyAndConsume deletes the captcha whatever the outcome, so each id is tried once.
	VerifyAndConsume(ctx context.Context, id, text string) (bool, error)
}

// RedisCaptchaStore keeps captchas in Redis so any api instance can verify them.
type RedisCaptchaStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCaptchaStore(rdb redis.Cmdable, ttl time.Duration) *RedisCaptchaStore {
	if ttl <= 0 {
		ttl = redisx.TTLCaptcha
	}
	return &RedisCaptchaStore{rdb: rdb, ttl: ttl}
}

func (s *RedisCaptchaStore) Issue(ctx context.Context) (Captcha, error) {
	id, err := randomHex(12)
	if err != nil {
		return Captcha{}, err
	}
	text, err := randomText(captchaLen)
	if err != nil {
		return Captcha{}, err
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(redisx.KeyCaptcha, id), text, s.ttl).Err(); err != nil {
		return Captcha{}, err
	}
	return Captcha{ID: id, Text: text}, nil
}

func (s *RedisCaptchaStore) VerifyAndConsume(ctx context.Context, id, text string) (bool, error) {
	want, err := s.rdb.GetDel(ctx, fmt.Sprintf(redisx.KeyCaptcha, id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(want, strings.TrimSpace(text)), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomText(n int) (string, error) {
	max := big.NewInt(int64(len(captchaAlphabet)))
	out := make([]byte, n)
	for i := range out {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = captchaAlphabet[k.Int64()]
	}
	return string(out), nil
}
