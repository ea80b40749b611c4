package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

const (
	streamRetryMin = time.Second
	streamRetryMax = 30 * time.Second
)

// eventHub fans events out to subscribers without blocking the publisher.
type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan domainauth.SessionEvent
	next int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan domainauth.SessionEvent)}
}

func (h *eventHub) subscribe() (<-chan domainauth.SessionEvent, func()) {
	ch := make(chan domainauth.SessionEvent, 16)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *eventHub) publish(ev domainauth.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe merges changes made through this client with the server's event stream
// for the signed-in user. The stream is reopened after each sign-in and after drops.
// The returned stop func is idempotent and closes the channel.
func (c *Client) Subscribe(ctx context.Context) (<-chan domainauth.SessionEvent, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	local, unsubscribe := c.local.subscribe()
	out := make(chan domainauth.SessionEvent, 16)
	remote := make(chan domainauth.SessionEvent, 16)
	signedIn := make(chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.relayStream(ctx, remote, signedIn)
	}()
	go func() {
		defer wg.Done()
		for {
			var ev domainauth.SessionEvent
			select {
			case <-ctx.Done():
				return
			case ev = <-local:
				if ev.Kind == domainauth.EventSignedIn {
					select {
					case signedIn <- struct{}{}:
					default:
					}
				}
			case ev = <-remote:
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			unsubscribe()
			wg.Wait()
			close(out)
		})
	}
	return out, stop, nil
}

// relayStream keeps one event stream open while signed in. A 401 parks it until the
// next local sign-in; other failures back off exponentially.
func (c *Client) relayStream(ctx context.Context, out chan<- domainauth.SessionEvent, signedIn <-chan struct{}) {
	backoff := streamRetryMin
	for {
		err := c.readStream(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if IsStatus(err, http.StatusUnauthorized) {
			select {
			case <-ctx.Done():
				return
			case <-signedIn:
				backoff = streamRetryMin
				continue
			}
		}
		if err == nil {
			backoff = streamRetryMin
		} else {
			c.logger.DebugContext(ctx, "event stream dropped", "error", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-signedIn:
			backoff = streamRetryMin
		case <-time.After(backoff):
			backoff = min(backoff*2, streamRetryMax)
		}
	}
}

// readStream reads server-sent events until the stream ends or ctx is canceled.
func (c *Client) readStream(ctx context.Context, out chan<- domainauth.SessionEvent) error {
	req, err := c.newRequest(ctx, requestParams{method: http.MethodGet, path: "/auth/events"})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.decodeResponse(resp, nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				c.emit(ctx, out, data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// comment or heartbeat
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (c *Client) emit(ctx context.Context, out chan<- domainauth.SessionEvent, payload string) {
	var ev domainauth.SessionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		c.logger.WarnContext(ctx, "malformed session event", "error", err)
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
