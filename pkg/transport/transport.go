// ABOUTME: Line stream abstraction the HEOS client runs on
// ABOUTME: Stream and Dialer interfaces shared by TCP, WebSocket and mock backends
package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
)

// ErrClosed is returned by operations on a closed stream
var ErrClosed = errors.New("stream closed")

// Stream is a bidirectional line stream. ReadLine is called from a single
// goroutine; WriteLine calls are serialized by the caller.
type Stream interface {
	// ReadLine returns the next line without its terminator. io.EOF means
	// the peer closed the stream cleanly.
	ReadLine() (string, error)
	// WriteLine sends one line; a missing terminator is added
	WriteLine(line string) error
	Close() error
}

// Dialer opens streams to device addresses
type Dialer interface {
	Dial(ctx context.Context, addr string) (Stream, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, addr string) (Stream, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context, addr string) (Stream, error) {
	return f(ctx, addr)
}

// WithDefaultPort appends port when addr has none
func WithDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}
