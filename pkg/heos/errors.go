// ABOUTME: Error kinds surfaced by the HEOS client
// ABOUTME: Connection errors plus re-exports of codec and correlation errors
package heos

import (
	"errors"

	"github.com/harperreed/heos-go/internal/correlate"
	"github.com/harperreed/heos-go/pkg/protocol"
)

var (
	// ErrNoDeviceFound means no candidate address accepted a connection
	ErrNoDeviceFound = errors.New("no device found")

	// ErrInitStatefulFailed means change events could not be enabled or the
	// initial state could not be loaded
	ErrInitStatefulFailed = errors.New("could not enter stateful mode")

	// ErrUnsubscribeFailed means change events could not be disabled
	ErrUnsubscribeFailed = errors.New("could not unsubscribe from change events")

	// ErrNotConnected is returned for commands on a connection that is
	// closing, closed or errored
	ErrNotConnected = errors.New("not connected")

	// ErrNotStateful is returned by operations that need change events
	ErrNotStateful = errors.New("not in stateful mode")
)

// Re-exported so callers only import this package.
var (
	ErrMalformedMessage = protocol.ErrMalformedMessage
	ErrDeviceRejected   = protocol.ErrDeviceRejected
	ErrInvalidVolume    = protocol.ErrInvalidVolume
	ErrAlreadyPending   = correlate.ErrAlreadyPending
	ErrConnectionLost   = correlate.ErrConnectionLost
)

type (
	// DeviceError carries the eid, text and syserrno of a failed command
	DeviceError = protocol.DeviceError
	// MalformedError describes an inbound line that could not be decoded
	MalformedError = protocol.MalformedError
)
