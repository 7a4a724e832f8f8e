// Package publisher fans audit events out to the durable store and, when a
// Kafka sink is configured, to the audit topic for downstream consumers.
//
// Persistence is fail-open: a sink failure is logged and counted but never
// fails the business operation that emitted the event.
package publisher

import (
	"context"
	"log/slog"
	"time"

	audit "brickvault/pkg/platform/audit"
)

// Sink delivers an already-persisted event to an external system.
type Sink interface {
	Send(ctx context.Context, event audit.Event) error
}

// Publisher implements audit.Publisher over a store plus an optional sink.
type Publisher struct {
	store  audit.Store
	sink   Sink
	logger *slog.Logger
}

type Option func(*Publisher)

func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists the event and forwards it to the sink. Store and sink
// failures are logged, never propagated: audit must not block the write path.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit store append failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
	if p.sink != nil {
		if err := p.sink.Send(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink delivery failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	}
	return nil
}

// Nop discards every event. Used when auditing is disabled.
type Nop struct{}

func (Nop) Emit(context.Context, audit.Event) error { return nil }
