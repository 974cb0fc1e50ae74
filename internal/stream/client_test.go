package stream_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/infrastructure/memory"
	"vn.io.arda/storefront-notifier/internal/notifystore"
	"vn.io.arda/storefront-notifier/internal/stream"
)

func newStore() *notifystore.Store {
	return notifystore.New(memory.New(), "u1", notifystore.Options{})
}

func fastConfig(url string) stream.Config {
	return stream.Config{
		BaseURL:        url,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		MaxRetries:     5,
	}
}

// sseServer writes frames then keeps the connection open until the client leaves.
func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/stream", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
}

func TestClient_DeliversEvents(t *testing.T) {
	srv := sseServer(t,
		"event: connected\ndata: {\"status\":\"ok\"}\n\n",
		"data: {\"event\":\"order_created\",\"payload\":{\"order_id\":123}}\n\n",
		"data: {\"event\":\"foo\",\"payload\":{}}\n\n",
		"data: not json\n\n",
		"data: {\"event\":\"order_created\",\"payload\":{\"order_id\":123}}\n\n",
		"event: wholesale_approved\ndata: {\"request_id\":9}\n\n",
	)
	defer srv.Close()

	store := newStore()
	opened := make(chan struct{}, 1)
	c := stream.New(fastConfig(srv.URL), store, stream.Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	c.Start(context.Background(), "secret")
	defer c.Stop()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never opened")
	}

	require.Eventually(t, func() bool { return len(store.List()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StateOpen, c.State())

	list := store.List()
	assert.Equal(t, "wholesale_approved-9", list[0].ID)
	assert.Equal(t, "order_created-123", list[1].ID)
	assert.Equal(t, "stream", list[1].Meta["source"])
}

func TestClient_UnknownEventLeavesListUnchanged(t *testing.T) {
	srv := sseServer(t, "data: {\"event\":\"foo\"}\n\n")
	defer srv.Close()

	store := newStore()
	c := stream.New(fastConfig(srv.URL), store, stream.Hooks{})
	c.Start(context.Background(), "secret")

	require.Eventually(t, func() bool { return c.State() == domain.StateOpen }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	assert.Empty(t, store.List())
	assert.Equal(t, domain.StateClosed, c.State())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exhausted := make(chan struct{})
	var retries []time.Duration
	var mu sync.Mutex
	c := stream.New(fastConfig(srv.URL), newStore(), stream.Hooks{
		OnExhausted: func() { close(exhausted) },
		OnRetry: func(_ int, d time.Duration) {
			mu.Lock()
			retries = append(retries, d)
			mu.Unlock()
		},
	})
	c.Start(context.Background(), "secret")
	defer c.Stop()

	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never gave up")
	}

	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 5, hits.Load(), "no attempts after giving up")
	assert.Equal(t, domain.StateClosed, c.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{
		time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond,
	}, retries)
}

func TestClient_BackoffResetsAfterOpen(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1, 2, 4:
			w.WriteHeader(http.StatusInternalServerError)
		case 3:
			// handshake succeeds, then the server drops the stream
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
		default:
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var retries []time.Duration
	var opens atomic.Int32
	c := stream.New(fastConfig(srv.URL), newStore(), stream.Hooks{
		OnOpen: func() { opens.Add(1) },
		OnRetry: func(_ int, d time.Duration) {
			mu.Lock()
			retries = append(retries, d)
			mu.Unlock()
		},
	})
	c.Start(context.Background(), "secret")
	defer c.Stop()

	require.Eventually(t, func() bool { return opens.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Failures())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{
		time.Millisecond, 2 * time.Millisecond, // failures before the first open
		time.Millisecond, 2 * time.Millisecond, // escalation restarts after the open
	}, retries)
}

func TestClient_StopCancelsPendingReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	var states []domain.ConnectionState
	var mu sync.Mutex
	c := stream.New(cfg, newStore(), stream.Hooks{
		OnStateChange: func(s domain.ConnectionState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	c.Start(context.Background(), "secret")
	require.Eventually(t, func() bool { return c.State() == domain.StateError }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the reconnect timer")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ConnectionState{domain.StateConnecting, domain.StateError, domain.StateClosed}, states)
}
