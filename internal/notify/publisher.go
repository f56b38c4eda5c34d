package notify

import (
	"context"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/astro-motors/internal/kafka"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type producer interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Publisher is the api side of the Notification Sink.
type Publisher struct {
	p       producer
	name    string
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPublisher(p producer, name string, timeout time.Duration, m *metrics.Metrics) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{p: p, name: name, timeout: timeout, metrics: m, now: time.Now}
}

// Publish wraps payload in an envelope and enqueues it. It runs on a context detached
// from the caller's cancellation and bounded by the publish timeout, so a finished or
// aborted request neither cancels nor waits indefinitely on delivery.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	trace := middleware.GetReqID(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    p.now().UTC(),
		Producer:      p.name,
		TraceID:       trace,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := p.p.Publish(ctx, PartitionKey(key), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	if err != nil {
		p.metrics.Notification(eventType, "publish_failed")
		return err
	}
	p.metrics.Notification(eventType, "published")
	return nil
}
