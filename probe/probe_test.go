package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Interval: 10 * time.Millisecond, RequestTimeout: 200 * time.Millisecond}
}

func newTestProber(p Policy) *Prober {
	return New(log.NewLogger(log.DiscardHandler()), p, nil)
}

func closedPortURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr + "/status"
}

func TestWaitReadyImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestProber(fastPolicy(3)).WaitReady(context.Background(), srv.URL))
}

func TestWaitReadyAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestProber(fastPolicy(5)).WaitReady(context.Background(), srv.URL))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReadyExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestProber(fastPolicy(4)).WaitReady(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(4), calls.Load())
}

func TestWaitReadyPortNeverOpens(t *testing.T) {
	err := newTestProber(fastPolicy(3)).WaitReady(context.Background(), closedPortURL(t))
	require.ErrorIs(t, err, ErrNotReady)
}

func TestWaitReadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	p := newTestProber(Policy{MaxAttempts: 1000, Interval: 10 * time.Millisecond, RequestTimeout: 100 * time.Millisecond})
	start := time.Now()
	err := p.WaitReady(ctx, closedPortURL(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPolicyDefaults(t *testing.T) {
	p := New(nil, Policy{}, nil).Policy()
	assert.Equal(t, DefaultPolicy(), p)
	assert.Equal(t, 29*time.Second, p.Budget())
}
