package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/infrastructure/resilience"
)

const DefaultSubject = "bible.index.updated"

// Queue carries index-updated events. Without a queue group every subscriber
// receives every event, which is what per-process caches need.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	now      func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	// QueueGroup load-balances events across subscribers sharing one cache.
	QueueGroup         string
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("bible-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    options.QueueGroup,
		executor: options.ResilienceExecutor,
		now:      time.Now,
	}, nil
}

// Broadcast returns a view of q that subscribes without the queue group, so
// every process hears every event. The connection is shared with q.
func (q *Queue) Broadcast() *Queue {
	c := *q
	c.group = ""
	return &c
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIndexUpdated(ctx context.Context, source string) error {
	payload, err := encodeEvent(newEvent(source, q.now()))
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return q.conn.FlushTimeout(2 * time.Second)
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("nats publish index event", err)
	}
	return nil
}

// SubscribeIndexUpdated blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeIndexUpdated(ctx context.Context, handler func(context.Context, domain.IndexUpdatedEvent) error) error {
	onMsg := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("index_event_malformed", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("index_event_handler_failed", "event_id", event.ID, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if q.group != "" {
		sub, err = q.conn.QueueSubscribe(q.subject, q.group, onMsg)
	} else {
		sub, err = q.conn.Subscribe(q.subject, onMsg)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func newEvent(source string, now time.Time) domain.IndexUpdatedEvent {
	if source == "" {
		source = "unknown"
	}
	return domain.IndexUpdatedEvent{
		ID:         uuid.NewString(),
		Source:     source,
		OccurredAt: now.UTC().Format(time.RFC3339),
	}
}

func encodeEvent(event domain.IndexUpdatedEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal index event: %w", err)
	}
	return payload, nil
}

// decodeEvent also accepts a bare source string from older publishers.
func decodeEvent(data []byte) (domain.IndexUpdatedEvent, error) {
	var event domain.IndexUpdatedEvent
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.IndexUpdatedEvent{}, fmt.Errorf("decode index event: %w", err)
		}
		return event, nil
	}
	if len(data) == 0 {
		return domain.IndexUpdatedEvent{}, fmt.Errorf("empty index event")
	}
	return domain.IndexUpdatedEvent{ID: uuid.NewString(), Source: string(data)}, nil
}
