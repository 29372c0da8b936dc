package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/technosupport/ts-hubmon/internal/hub"
	"github.com/technosupport/ts-hubmon/internal/metrics"
)

// FrameHandler consumes one raw SSE data payload. Handler errors are
// the handler's problem; the stream keeps reading regardless.
type FrameHandler func(ctx context.Context, payload []byte)

// Config carries the stream client's tunables.
type Config struct {
	BridgeIP     string
	Key          hub.KeyProvider
	VerifyTLS    bool
	IdleTimeout  time.Duration // no bytes for this long counts as a read failure
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	HealthyReset time.Duration // streaming at least this long resets the backoff
}

// Client maintains the hub event stream: connect, consume, and retry
// forever until the context is cancelled. It moves through
// Disconnected -> Connecting -> Streaming -> BackingOff -> Connecting.
type Client struct {
	url     string
	key     hub.KeyProvider
	http    *http.Client
	handler FrameHandler
	sinks   []StatusSink

	idleTimeout  time.Duration
	healthyReset time.Duration
	backoff      *Backoff

	state State
}

func NewClient(cfg Config, handler FrameHandler, sinks ...StatusSink) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
		// SSE responses never finish; an overall client timeout would
		// kill a healthy stream, so only the dial is bounded.
		ResponseHeaderTimeout: 15 * time.Second,
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	healthy := cfg.HealthyReset
	if healthy <= 0 {
		healthy = 2 * time.Minute
	}
	return &Client{
		url:          fmt.Sprintf("https://%s/eventstream/clip/v2", cfg.BridgeIP),
		key:          cfg.Key,
		http:         &http.Client{Transport: transport},
		handler:      handler,
		sinks:        sinks,
		idleTimeout:  idle,
		healthyReset: healthy,
		backoff:      NewBackoff(cfg.BackoffBase, cfg.BackoffMax),
		state:        StateDisconnected,
	}
}

// Run drives the connect/consume/retry loop until ctx is cancelled.
// It always returns ctx.Err(); no stream failure is terminal.
func (c *Client) Run(ctx context.Context) error {
	log.Printf("Stream: starting against %s", c.url)
	for {
		if err := ctx.Err(); err != nil {
			c.setState(ctx, StateDisconnected, "shutdown")
			return err
		}

		c.setState(ctx, StateConnecting, "")
		resp, reason, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(ctx, StateDisconnected, "shutdown")
				return ctx.Err()
			}
			metrics.StreamFailuresTotal.WithLabelValues(reason).Inc()
			log.Printf("[WARN] Stream: connect failed (%s): %v", reason, err)
			if !c.wait(ctx, reason) {
				return ctx.Err()
			}
			continue
		}

		c.setState(ctx, StateStreaming, "")
		metrics.StreamConnected.Set(1)
		started := time.Now()

		reason, err = c.consume(ctx, resp.Body)
		metrics.StreamConnected.Set(0)

		if ctx.Err() != nil {
			c.setState(ctx, StateDisconnected, "shutdown")
			return ctx.Err()
		}

		if time.Since(started) >= c.healthyReset {
			c.backoff.Reset()
		}
		metrics.StreamFailuresTotal.WithLabelValues(reason).Inc()
		metrics.StreamReconnectsTotal.Inc()
		log.Printf("[WARN] Stream: connection lost after %s (%s): %v",
			time.Since(started).Round(time.Second), reason, err)

		if !c.wait(ctx, reason) {
			return ctx.Err()
		}
	}
}

// State reports the last state Run moved through. Safe only for the
// goroutine running Run; external observers use a StatusSink.
func (c *Client) State() State {
	return c.state
}

func (c *Client) connect(ctx context.Context) (*http.Response, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, "request", err
	}
	req.Header.Set(hub.AppKeyHeader, c.key.Key())
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "connect", err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, "", nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The app key may be rotated on disk while we retry; auth
		// rejection is retryable like everything else.
		resp.Body.Close()
		return nil, "auth", fmt.Errorf("hub rejected application key: status %d", resp.StatusCode)
	default:
		resp.Body.Close()
		return nil, "http_status", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// consume reads SSE frames until the stream breaks. Silence beyond the
// idle timeout closes the body, which surfaces as a read error here.
func (c *Client) consume(ctx context.Context, body io.ReadCloser) (string, error) {
	defer body.Close()

	var idled atomic.Bool
	watchdog := time.AfterFunc(c.idleTimeout, func() {
		idled.Store(true)
		body.Close()
	})
	defer watchdog.Stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		watchdog.Reset(c.idleTimeout)
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				// The watchdog measures hub silence, not handler
				// latency; pause it while the frame is processed.
				watchdog.Stop()
				c.handler(ctx, []byte(strings.Join(data, "\n")))
				watchdog.Reset(c.idleTimeout)
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// event:, id:, and keep-alive comments carry nothing we use.
		}
	}

	err := scanner.Err()
	if idled.Load() {
		return "idle", fmt.Errorf("no data for %s", c.idleTimeout)
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return "read", err
}

// wait sits out the backoff delay. Returns false when ctx was
// cancelled during the wait.
func (c *Client) wait(ctx context.Context, reason string) bool {
	delay := c.backoff.Next()
	c.setState(ctx, StateBackingOff, reason)
	log.Printf("Stream: reconnecting in %s", delay)

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		c.setState(ctx, StateDisconnected, "shutdown")
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setState(ctx context.Context, s State, reason string) {
	if c.state == s {
		return
	}
	c.state = s
	change := StatusChange{State: s, Reason: reason, At: time.Now().UTC()}
	for _, sink := range c.sinks {
		sink.StreamStatus(ctx, change)
	}
}
