package stream_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-hubmon/internal/stream"
)

type staticKey string

func (k staticKey) Key() string { return string(k) }

type recordingSink struct {
	mu      sync.Mutex
	changes []stream.StatusChange
}

func (s *recordingSink) StreamStatus(_ context.Context, change stream.StatusChange) {
	s.mu.Lock()
	s.changes = append(s.changes, change)
	s.mu.Unlock()
}

func (s *recordingSink) states() []stream.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.State, len(s.changes))
	for i, c := range s.changes {
		out[i] = c.State
	}
	return out
}

func testConfig(srv *httptest.Server) stream.Config {
	return stream.Config{
		BridgeIP:     strings.TrimPrefix(srv.URL, "https://"),
		Key:          staticKey("test-key"),
		IdleTimeout:  time.Second,
		BackoffBase:  10 * time.Millisecond,
		BackoffMax:   50 * time.Millisecond,
		HealthyReset: time.Hour,
	}
}

func TestClientDeliversFramesAndReconnects(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("hue-application-key"))
		n := connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "id: %d\ndata: [{\"type\":\"update\",\"data\":[]}]\n\n", n)
		w.(http.Flusher).Flush()
		// Returning closes the stream; the client must reconnect.
	}))
	defer srv.Close()

	frames := make(chan string, 16)
	client := stream.NewClient(testConfig(srv), func(_ context.Context, payload []byte) {
		frames <- string(payload)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case frame := <-frames:
			require.Equal(t, `[{"type":"update","data":[]}]`, frame)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	require.GreaterOrEqual(t, connects.Load(), int32(2), "expected a reconnect after the stream closed")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientIdleTimeoutForcesReconnect(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		// Silence: no frames, no keep-alives.
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.IdleTimeout = 100 * time.Millisecond
	client := stream.NewClient(cfg, func(context.Context, []byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		return connects.Load() >= 2
	}, 5*time.Second, 20*time.Millisecond, "idle stream should be dropped and redialed")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientSlowHandlerDoesNotTripIdleTimeout(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [{\"type\":\"update\",\"data\":[]}]\n\n")
		w.(http.Flusher).Flush()
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, "data: [{\"type\":\"add\",\"data\":[]}]\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.IdleTimeout = 200 * time.Millisecond
	frames := make(chan string, 4)
	client := stream.NewClient(cfg, func(_ context.Context, payload []byte) {
		frames <- string(payload)
		// Slower than the idle timeout; the hub itself is not silent.
		time.Sleep(300 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-frames:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	require.Equal(t, int32(1), connects.Load(), "a stalled handler must not be misread as hub silence")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientRetriesAfterAuthRejection(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := stream.NewClient(testConfig(srv), func(context.Context, []byte) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	// Auth rejection is retryable: the key may be rotated while we wait.
	require.Eventually(t, func() bool {
		return connects.Load() >= 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClientReportsStateTransitions(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [{\"type\":\"update\",\"data\":[]}]\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	sink := &recordingSink{}
	frames := make(chan struct{}, 1)
	client := stream.NewClient(testConfig(srv), func(context.Context, []byte) {
		select {
		case frames <- struct{}{}:
		default:
		}
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	cancel()
	require.Error(t, <-done)

	states := sink.states()
	require.Equal(t, stream.State("connecting"), states[0])
	require.Contains(t, states, stream.StateStreaming)
	require.Equal(t, stream.StateDisconnected, states[len(states)-1])
}
