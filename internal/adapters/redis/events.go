package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/ports"
)

// DefaultEventsChannel is the pub/sub channel carrying session change events.
const DefaultEventsChannel = "auth:session-events"

// SessionEvents publishes and subscribes to session change events over Redis pub/sub.
type SessionEvents struct {
	client  redis.UniversalClient
	channel string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ ports.SessionEvents = (*SessionEvents)(nil)

// SessionEventsOptions groups dependencies for SessionEvents.
type SessionEventsOptions struct {
	Client  redis.UniversalClient
	Channel string
	// Metrics counts published events by kind; nil disables counting.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewSessionEvents constructs a SessionEvents adapter.
func NewSessionEvents(opts SessionEventsOptions) *SessionEvents {
	ch := opts.Channel
	if ch == "" {
		ch = DefaultEventsChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionEvents{
		client:  opts.Client,
		channel: ch,
		metrics: opts.Metrics,
		logger:  logger.With("component", "session_events"),
	}
}

// Publish broadcasts ev to every subscriber.
func (e *SessionEvents) Publish(ctx context.Context, ev domainauth.SessionEvent) error {
	if ev.Kind == "" {
		return errors.New("event kind is required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := e.client.Publish(ctx, e.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	e.metrics.RecordAuthEvent(string(ev.Kind))
	return nil
}

// Subscribe returns a channel of events. The channel is closed when ctx is done or cancel is called.
func (e *SessionEvents) Subscribe(ctx context.Context) (<-chan domainauth.SessionEvent, func(), error) {
	ps := e.client.Subscribe(ctx, e.channel)
	// Wait for the subscription confirmation so no event published after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", e.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan domainauth.SessionEvent, 16)
	msgs := ps.Channel()

	var closeOnce sync.Once
	stop := func() {
		closeOnce.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domainauth.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.logger.WarnContext(subCtx, "dropping malformed session event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, stop, nil
}
