package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestProber_TransitionsFireOnce(t *testing.T) {
	p := NewProber(nil, time.Minute, testLogger)
	require.True(t, p.Online(), "prober starts optimistic")

	var onlineCalls, offlineCalls atomic.Int32
	unsubscribe := p.Subscribe(func(online bool) {
		if online {
			onlineCalls.Add(1)
		} else {
			offlineCalls.Add(1)
		}
	})
	defer unsubscribe()

	// Repeated probes with the same result are not transitions.
	p.SetOnline(true)
	p.SetOnline(true)
	assert.Equal(t, int32(0), onlineCalls.Load())

	p.SetOnline(false)
	p.SetOnline(false)
	assert.Equal(t, int32(1), offlineCalls.Load())
	assert.False(t, p.Online())

	p.SetOnline(true)
	assert.Equal(t, int32(1), onlineCalls.Load())
	assert.True(t, p.Online())
}

func TestProber_Unsubscribe(t *testing.T) {
	p := NewProber(nil, time.Minute, testLogger)

	var calls atomic.Int32
	unsubscribe := p.Subscribe(func(bool) { calls.Add(1) })

	p.SetOnline(false)
	assert.Equal(t, int32(1), calls.Load())

	unsubscribe()
	p.SetOnline(true)
	p.SetOnline(false)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProber_PollLoop(t *testing.T) {
	var reachable atomic.Bool
	check := func(ctx context.Context) bool { return reachable.Load() }

	p := NewProber(check, 5*time.Millisecond, testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var transitions atomic.Int32
	p.Subscribe(func(bool) { transitions.Add(1) })

	p.Start(ctx)
	require.Eventually(t, func() bool { return !p.Online() }, time.Second, time.Millisecond,
		"first failing probe flips the optimistic start")

	reachable.Store(true)
	require.Eventually(t, func() bool { return p.Online() }, time.Second, time.Millisecond)

	// offline once, online once; steady polling adds nothing.
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(2), transitions.Load())
}

func TestHTTPCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	check := HTTPCheck(server.Client(), server.URL, time.Second)
	assert.True(t, check(context.Background()), "any HTTP answer proves reachability")

	server.Close()
	assert.False(t, check(context.Background()))
}
