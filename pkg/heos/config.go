// ABOUTME: Connection configuration with defaults
// ABOUTME: Dialer, timeouts, heartbeat and state engine options
package heos

import (
	"time"

	"github.com/harperreed/heos-go/pkg/state"
	"github.com/harperreed/heos-go/pkg/transport"
)

const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultCommandTimeout = 15 * time.Second
	DefaultPrimeWorkers   = 4
)

// Config configures a connection. The zero value is usable.
type Config struct {
	// Dialer opens the stream (default: transport.TCPDialer)
	Dialer transport.Dialer

	// DialTimeout bounds connection setup (default: 5s)
	DialTimeout time.Duration

	// CommandTimeout applies to commands whose context has no deadline
	// (default: 15s)
	CommandTimeout time.Duration

	// Heartbeat sends system/heart_beat on this interval; zero disables it
	Heartbeat time.Duration

	// PrimeWorkers bounds concurrent per-player queries while loading state
	// (default: 4)
	PrimeWorkers int

	// FeedBuffer is the capacity of each change subscription
	// (default: state.DefaultFeedBuffer)
	FeedBuffer int

	// StateOptions are passed to the state engine
	StateOptions []state.Option

	// OnStateChange is called on every connection state transition
	OnStateChange func(State)
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = transport.TCPDialer{Timeout: DefaultDialTimeout}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.PrimeWorkers <= 0 {
		c.PrimeWorkers = DefaultPrimeWorkers
	}
	if c.FeedBuffer <= 0 {
		c.FeedBuffer = state.DefaultFeedBuffer
	}
	return c
}
