// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed is matched by errors returned when the server rejects the login exchange,
	// either by answering with a different request ID (servers use -1) or with a non-empty body.
	ErrAuthFailed = errors.New("rcon: authentication failed")

	// ErrCorrelationMismatch is matched by errors returned when a command response carries a
	// request ID other than the session's. The stream can no longer be trusted.
	ErrCorrelationMismatch = errors.New("rcon: response request id mismatch")

	// ErrSessionClosed is returned by operations on a session after Close.
	ErrSessionClosed = errors.New("rcon: session closed")

	// ErrSessionBroken is matched by errors returned from a session that previously failed with a
	// transport, decode, or correlation error.
	ErrSessionBroken = errors.New("rcon: session broken")

	ErrPacketTooLarge  = errors.New("rcon: packet too large")
	ErrPacketTooSmall  = errors.New("rcon: packet too small")
	ErrMalformedPacket = errors.New("rcon: malformed packet")
)

// MismatchError reports a response whose request ID differs from the session's.
type MismatchError struct {
	Op   string // "login" or "command"
	Want int32
	Got  int32
	Body []byte // response body, kept for diagnostics
}

func (e *MismatchError) Error() string {
	if e.Op == opLogin {
		if e.Got == e.Want {
			return fmt.Sprintf("rcon: authentication failed: unexpected login response %q", e.Body)
		}
		if e.Got == -1 {
			return "rcon: authentication failed: password rejected"
		}
		return fmt.Sprintf("rcon: authentication failed: response id %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("rcon: %s response id %d, want %d", e.Op, e.Got, e.Want)
}

// Is makes login mismatches match [ErrAuthFailed] and all others match [ErrCorrelationMismatch].
func (e *MismatchError) Is(target error) bool {
	if e.Op == opLogin {
		return target == ErrAuthFailed
	}
	return target == ErrCorrelationMismatch
}

// NetworkError represents a failure of the underlying connection.
type NetworkError struct {
	Op   string // "dial", "write", "read", "close"
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rcon: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// brokenError is returned by a session for every call after it failed fatally. It matches both
// [ErrSessionBroken] and the original cause.
type brokenError struct {
	cause error
}

func (e *brokenError) Error() string { return fmt.Sprintf("%v: %v", ErrSessionBroken, e.cause) }

func (e *brokenError) Unwrap() []error { return []error{ErrSessionBroken, e.cause} }

// IsTransport reports whether err is a connection level failure, including a response that could
// not be decoded. Callers own any retry policy for these.
func IsTransport(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, ErrMalformedPacket) || errors.Is(err, ErrPacketTooSmall)
}

// IsFatal reports whether err leaves the session unusable.
func IsFatal(err error) bool {
	return IsTransport(err) ||
		errors.Is(err, ErrCorrelationMismatch) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrSessionBroken) ||
		errors.Is(err, ErrSessionClosed)
}
