// Package relay bridges the toast manager and the EDR backend over Redis
// pub/sub: alerts flow in, lifecycle events flow out.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/internal/toast"
)

// NewClient opens a Redis client for the relay settings.
func NewClient(cfg config.RelayConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// AlertMessage is the JSON the EDR backend publishes for each detection.
type AlertMessage struct {
	Severity string `json:"severity"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
	AgentID  string `json:"agent_id,omitempty"`
	Rule     string `json:"rule,omitempty"`
}

// Alert converts the wire message to a toast alert.
func (m AlertMessage) Alert() toast.Alert {
	return toast.Alert{
		Severity: toast.ParseSeverity(m.Severity),
		Title:    m.Title,
		Message:  m.Message,
		AgentRef: m.AgentID,
	}
}

// AlertSink receives decoded alerts. *toast.Manager satisfies it.
type AlertSink interface {
	AddAlert(a toast.Alert, opts ...toast.Option) string
}

// Reconnect backoff bounds for the subscriber.
const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Subscriber turns alert messages on a channel into alert toasts.
type Subscriber struct {
	client     *redis.Client
	channel    string
	sink       AlertSink
	logger     *slog.Logger
	ready      chan struct{}
	readyOnce  sync.Once
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSubscriber creates a subscriber for channel.
func NewSubscriber(client *redis.Client, channel string, sink AlertSink, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:     client,
		channel:    channel,
		sink:       sink,
		logger:     logger,
		ready:      make(chan struct{}),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Ready is closed once the first subscription is confirmed by the server.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Run consumes alerts until ctx is cancelled. When Redis is unreachable
// it keeps retrying with exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		subscribed, err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			backoff = s.minBackoff
		}
		s.logger.Warn("relay subscription lost, retrying",
			"channel", s.channel, "retry_in", backoff, "error", err)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

// consume runs one subscription. It reports whether the subscription was
// confirmed before it ended.
func (s *Subscriber) consume(ctx context.Context) (bool, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribing to %s: %w", s.channel, err)
	}
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("relay subscribed", "channel", s.channel)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-ch:
			if !ok {
				return true, fmt.Errorf("subscription to %s closed", s.channel)
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Subscriber) handle(payload string) {
	var m AlertMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		s.logger.Warn("relay: malformed alert", "channel", s.channel, "error", err)
		return
	}
	var opts []toast.Option
	if m.Rule != "" {
		opts = append(opts, toast.WithMetadata("rule", m.Rule))
	}
	id := s.sink.AddAlert(m.Alert(), opts...)
	s.logger.Debug("relay: alert received", "toast_id", id, "severity", strings.ToLower(m.Severity), "agent", m.AgentID)
}

// Publisher forwards manager events to a channel so dashboard replicas can
// mirror them.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewPublisher creates a publisher for channel.
func NewPublisher(client *redis.Client, channel string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, channel: channel, logger: logger}
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, ev toast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// Run publishes events until the channel closes or ctx is done. Failures
// are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, events <-chan toast.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ctx, ev); err != nil {
				p.logger.Warn("relay publish failed", "event", ev.Type, "error", err)
			}
		}
	}
}
