package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink receives events after they are persisted, e.g. the Kafka producer.
// Sinks are best-effort; the store append is the durable record.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. An optional
// async buffer decouples emitters from store latency.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	inbox  chan Event
	done   chan struct{}
	closed bool
}

type PublisherOption func(*Publisher)

func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) { p.sink = sink }
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithAsyncBuffer switches Emit to buffered fan-out through a background
// goroutine. Events are dropped with a log line when the buffer is full
// rather than blocking the voting hot path.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) { p.inbox = make(chan Event, size) }
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records an event. The category is derived from the action when unset,
// the timestamp defaults to now.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = CategoryOf(AuditEvent(event.Action))
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
		return nil
	}
	return p.persist(ctx, event)
}

func (p *Publisher) List(ctx context.Context, electionID uuid.UUID) ([]Event, error) {
	return p.store.ListByElection(ctx, electionID)
}

// Close stops the async drain goroutine after flushing buffered events.
func (p *Publisher) Close() {
	if p.inbox == nil || p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
	<-p.done
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.persist(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event", "action", event.Action, "error", err)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Warn("audit sink publish failed", "action", event.Action, "error", err)
		}
	}
	return nil
}
