// ABOUTME: Error types for the HEOS wire protocol
// ABOUTME: Malformed inbound lines and device-reported command failures
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is matched by every decode failure
	ErrMalformedMessage = errors.New("malformed message")

	// ErrDeviceRejected is matched by every failure reported by the device
	ErrDeviceRejected = errors.New("device rejected command")

	// ErrInvalidVolume indicates a volume level outside 0..100
	ErrInvalidVolume = errors.New("volume out of range")
)

// MalformedError describes an inbound line that could not be decoded
type MalformedError struct {
	Line   string
	Reason string
	Cause  error
}

// Error implements the error interface
func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// Unwrap returns the underlying cause
func (e *MalformedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrMalformedMessage) true
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(line, reason string, cause error) error {
	return &MalformedError{Line: line, Reason: reason, Cause: cause}
}

// ErrorCode is the vendor "eid" value of a failed command
type ErrorCode int

const (
	ErrorCodeUnknown                   ErrorCode = 0
	ErrorCodeUnrecognizedCommand       ErrorCode = 1
	ErrorCodeInvalidID                 ErrorCode = 2
	ErrorCodeInvalidArguments          ErrorCode = 3
	ErrorCodeDataNotAvailable          ErrorCode = 4
	ErrorCodeResourceNotAvailable      ErrorCode = 5
	ErrorCodeInvalidCredentials        ErrorCode = 6
	ErrorCodeCommandNotExecuted        ErrorCode = 7
	ErrorCodeUserNotLoggedIn           ErrorCode = 8
	ErrorCodeParamOutOfRange           ErrorCode = 9
	ErrorCodeUserNotFound              ErrorCode = 10
	ErrorCodeInternalError             ErrorCode = 11
	ErrorCodeSystemError               ErrorCode = 12
	ErrorCodeProcessingPreviousCommand ErrorCode = 13
	ErrorCodeMediaCannotBePlayed       ErrorCode = 14
	ErrorCodeOptionNotSupported        ErrorCode = 15
	ErrorCodeCommandQueueFull          ErrorCode = 16
	ErrorCodeSkipLimit                 ErrorCode = 17
)

var errorCodeText = map[ErrorCode]string{
	ErrorCodeUnrecognizedCommand:       "command not recognized",
	ErrorCodeInvalidID:                 "ID not valid",
	ErrorCodeInvalidArguments:          "command arguments are invalid",
	ErrorCodeDataNotAvailable:          "requested data not available",
	ErrorCodeResourceNotAvailable:      "resource currently not available",
	ErrorCodeInvalidCredentials:        "invalid credentials",
	ErrorCodeCommandNotExecuted:        "command could not be executed",
	ErrorCodeUserNotLoggedIn:           "user not logged in",
	ErrorCodeParamOutOfRange:           "parameter out of range",
	ErrorCodeUserNotFound:              "user not found",
	ErrorCodeInternalError:             "internal system error",
	ErrorCodeSystemError:               "system error",
	ErrorCodeProcessingPreviousCommand: "busy processing previous command",
	ErrorCodeMediaCannotBePlayed:       "media cannot be played",
	ErrorCodeOptionNotSupported:        "option not supported",
	ErrorCodeCommandQueueFull:          "too many commands in message queue",
	ErrorCodeSkipLimit:                 "reached skip limit",
}

// Known reports whether the code is part of the published table
func (c ErrorCode) Known() bool {
	_, ok := errorCodeText[c]
	return ok
}

// String returns a human readable description
func (c ErrorCode) String() string {
	if text, ok := errorCodeText[c]; ok {
		return text
	}
	return fmt.Sprintf("unknown error %d", int(c))
}

// DeviceError is a command failure reported by the device
type DeviceError struct {
	Command  string
	Code     ErrorCode
	Text     string
	SysErrNo int64 // only set for ErrorCodeSystemError
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	switch {
	case e.Code == ErrorCodeSystemError:
		return fmt.Sprintf("%s: %s (syserrno=%d)", e.Command, e.Code, e.SysErrNo)
	case !e.Code.Known() && e.Text != "":
		return fmt.Sprintf("%s: error %d: %s", e.Command, int(e.Code), e.Text)
	default:
		return fmt.Sprintf("%s: %s", e.Command, e.Code)
	}
}

// Is makes errors.Is(err, ErrDeviceRejected) true
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceRejected
}

// deviceErrorFromAttrs maps the eid/text/syserrno attributes of a failed reply
func deviceErrorFromAttrs(command string, attrs Attrs) *DeviceError {
	derr := &DeviceError{Command: command, Text: attrs.Value("text")}
	if eid, ok := attrs.Int("eid"); ok {
		derr.Code = ErrorCode(eid)
	}
	if derr.Code == ErrorCodeSystemError {
		derr.SysErrNo, _ = attrs.Int("syserrno")
	}
	return derr
}
