// ABOUTME: Tests for the monitor's feed consumers
// ABOUTME: Runs them against a simulated system
package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/heos-go/internal/config"
	"github.com/harperreed/heos-go/pkg/heos"
	"github.com/harperreed/heos-go/pkg/mock"
	"github.com/harperreed/heos-go/pkg/transport"
)

func statefulConn(t *testing.T) (*heos.Conn, *mock.System) {
	t.Helper()
	sys := mock.New()
	conn, err := heos.Connect(context.Background(), "mock", heos.Config{Dialer: sys})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.InitStateful(context.Background()))
	return conn, sys
}

func TestWatchChangesRefreshes(t *testing.T) {
	conn, _ := statefulConn(t)
	ctx, cancel := context.WithCancel(context.Background())

	var refreshes atomic.Int32
	done := make(chan struct{})
	go func() {
		watchChanges(ctx, conn, func() { refreshes.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool {
		_ = conn.SetVolume(context.Background(), 1, 33)
		return refreshes.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchChanges did not stop")
	}
}

func TestStreamChangesStopsWithConnection(t *testing.T) {
	conn, sys := statefulConn(t)

	done := make(chan struct{})
	go func() {
		streamChanges(context.Background(), conn)
		close(done)
	}()

	sys.Hangup()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("streamChanges did not stop when the feeds closed")
	}
}

func TestDialerFollowsTransport(t *testing.T) {
	assert.IsType(t, transport.WebSocketDialer{}, dialer(config.Config{Transport: "websocket"}))
	assert.IsType(t, transport.TCPDialer{}, dialer(config.Config{Transport: "tcp"}))
}
