package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service is the worker side of the Notification Sink. Its Handle method is
// installed as the Kafka consumer handler.
type Service struct {
	Redis       redis.Cmdable
	Renderer    *Renderer
	Mail        Sender
	ServiceName string
	MaxAttempts int
	Backoff     time.Duration
	Log         *slog.Logger
	Metrics     *metrics.Metrics
}

// Handle delivers one notification. Delivery failures are logged and swallowed so a
// message that can never be sent does not hold up its partition; only shutdown
// returns an error, leaving the offset uncommitted for redelivery.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	log := s.logger()

	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("notification decode failed", "offset", m.Offset, "err", err)
		s.Metrics.Notification("unknown", "invalid")
		return nil
	}
	log = log.With("event_id", env.EventID, "event_type", env.EventType, "correlation_id", env.CorrelationID)

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, err := redisx.Exists(ctx, s.Redis, dkey)
	if err != nil {
		// deliver anyway
		log.Warn("dedup check failed", "err", err)
	}
	if exists {
		log.Debug("notification already delivered")
		s.Metrics.Notification(env.EventType, "duplicate")
		return nil
	}

	msg, err := s.Renderer.Render(env)
	if errors.Is(err, ErrUnknownEvent) {
		log.Warn("notification skipped")
		s.Metrics.Notification(env.EventType, "skipped")
		return nil
	}
	if err != nil {
		log.Error("notification render failed", "err", err)
		s.Metrics.Notification(env.EventType, "invalid")
		return nil
	}

	if err := s.deliver(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("notification delivery failed", "to", msg.To, "attempts", s.attempts(), "err", err)
		s.Metrics.Notification(env.EventType, "failed")
		return nil
	}

	if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
		log.Warn("dedup mark failed", "err", err)
	}
	log.Info("notification sent", "to", msg.To)
	s.Metrics.Notification(env.EventType, "sent")
	return nil
}

// deliver sends with linear backoff: Backoff, 2*Backoff, ...
func (s *Service) deliver(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= s.attempts(); attempt++ {
		if err = s.Mail.Send(ctx, msg); err == nil {
			return nil
		}
		if attempt == s.attempts() {
			break
		}
		s.logger().Warn("mail send retry", "to", msg.To, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.Backoff):
		}
	}
	return err
}

func (s *Service) attempts() int {
	if s.MaxAttempts <= 0 {
		return 3
	}
	return s.MaxAttempts
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
