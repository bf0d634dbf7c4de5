package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/resilience"
)

const (
	eventTypeHeader = "Contribution-Event"
	workerGroup     = "renderers"
)

// EventBus publishes contribution events and delivers them to workers.
type EventBus struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*EventBus, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*EventBus, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("contribution-wizard"),
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
	return &EventBus{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (b *EventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *EventBus) PublishContributionEvent(ctx context.Context, event domain.ContributionEvent) error {
	msg, err := encodeEvent(b.subject, event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// SubscribeContributionEvents blocks until ctx is done, then drains the subscription.
func (b *EventBus) SubscribeContributionEvents(ctx context.Context, handler func(context.Context, domain.ContributionEvent) error) error {
	sub, err := b.conn.QueueSubscribe(b.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeEvent(msg)
		if err != nil {
			slog.Warn("contribution_event_dropped", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("contribution_event_handler_failed", "record_id", event.ID, "type", string(event.Type), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(subject string, event domain.ContributionEvent) (*nats.Msg, error) {
	if event.ID == "" {
		return nil, domain.WrapError(domain.ErrValidation, "encode contribution event", errors.New("event without record id"))
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal contribution event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(eventTypeHeader, string(event.Type))
	msg.Data = data
	return msg, nil
}

func decodeEvent(msg *nats.Msg) (domain.ContributionEvent, error) {
	var event domain.ContributionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return domain.ContributionEvent{}, fmt.Errorf("decode contribution event: %w", err)
	}
	if event.Type == "" && msg.Header != nil {
		event.Type = domain.ContributionEventType(msg.Header.Get(eventTypeHeader))
	}
	if event.ID == "" {
		return domain.ContributionEvent{}, errors.New("contribution event without record id")
	}
	return event, nil
}
