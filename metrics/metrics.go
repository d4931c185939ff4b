// Package metrics provides lightweight, lock-free counters for tracking
// the traffic and failures of RCON sessions.
//
// All methods are safe for concurrent use. A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one or more sessions. A single
// Collector may be shared by every session an application opens.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	exchanges      atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	authFailures   atomic.Int64
	mismatches     atomic.Int64
	errorsTotal    atomic.Int64
	reconnects     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastExchange time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of authenticated, unclosed sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// Exchange records one completed request/response round trip.
func (c *Collector) Exchange(sent, received int64) {
	if c == nil {
		return
	}
	c.exchanges.Add(1)
	c.bytesOut.Add(sent)
	c.bytesIn.Add(received)
	c.mu.Lock()
	c.lastExchange = time.Now()
	c.mu.Unlock()
}

// Exchanges returns the number of completed round trips.
func (c *Collector) Exchanges() int64 {
	if c == nil {
		return 0
	}
	return c.exchanges.Load()
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// Reconnect records a replacement session being opened after a failure.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the total reconnection count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// AuthFailure records a rejected login exchange.
func (c *Collector) AuthFailure() {
	if c == nil {
		return
	}
	c.authFailures.Add(1)
}

// AuthFailures returns the number of rejected logins.
func (c *Collector) AuthFailures() int64 {
	if c == nil {
		return 0
	}
	return c.authFailures.Load()
}

// Mismatch records a response whose request id did not match.
func (c *Collector) Mismatch() {
	if c == nil {
		return
	}
	c.mismatches.Add(1)
}

// Mismatches returns the number of correlation mismatches seen.
func (c *Collector) Mismatches() int64 {
	if c == nil {
		return 0
	}
	return c.mismatches.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Exchanges        int64  `json:"exchanges"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	AuthFailures     int64  `json:"auth_failures"`
	Mismatches       int64  `json:"mismatches"`
	Reconnects       int64  `json:"reconnects"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastExchange     string `json:"last_exchange,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		Exchanges:      c.exchanges.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		AuthFailures:   c.authFailures.Load(),
		Mismatches:     c.mismatches.Load(),
		Reconnects:     c.reconnects.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastExchange.IsZero() {
		s.LastExchange = c.lastExchange.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
