// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/schultz-is/mcrcon-go/metrics"
	"github.com/schultz-is/mcrcon-go/retry"
)

// RedialPolicy controls how a [Redialer] opens replacement sessions.
type RedialPolicy struct {
	// Backoff paces attempts to open a session. Nil means [retry.DefaultBackoff].
	Backoff *retry.Backoff

	// Breaker configures the circuit breaker shared by all attempts. Nil means
	// [retry.DefaultCircuitBreakerConfig].
	Breaker *retry.CircuitBreakerConfig

	// Logger receives reconnect records. Nil disables logging.
	Logger *slog.Logger
}

// Redialer executes commands over a session it opens on first use and replaces after the session
// breaks. It never resends a command: the call that observed the failure returns its error, and
// only the next call opens a new session.
//
// A rejected password is not retried. Once the circuit breaker opens, calls fail fast with an
// error matching [retry.ErrCircuitOpen] until its reset timeout passes.
type Redialer struct {
	open    func(ctx context.Context) (*Session, error)
	backoff *retry.Backoff
	breaker *retry.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Collector

	// closing is cancelled by Close to abandon a reconnect in progress.
	closing context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	session *Session
	opened  bool
	closed  bool
}

// NewRedialer returns a Redialer for the server at host and port. No connection is made until the
// first call to [Redialer.Execute]. Sessions share config.Metrics, or a collector private to the
// Redialer when it is nil.
func NewRedialer(host string, port int, password string, config SessionConfig, policy RedialPolicy) *Redialer {
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	open := func(ctx context.Context) (*Session, error) {
		return Open(ctx, host, port, password, config)
	}
	r := NewRedialerFunc(open, policy)
	r.metrics = config.Metrics
	return r
}

// NewRedialerFunc returns a Redialer that opens sessions with open.
func NewRedialerFunc(open func(ctx context.Context) (*Session, error), policy RedialPolicy) *Redialer {
	closing, stop := context.WithCancel(context.Background())
	r := &Redialer{
		closing: closing,
		stop:    stop,
		open:    open,
		backoff: policy.Backoff,
		breaker: retry.NewCircuitBreaker(policy.Breaker),
		logger:  policy.Logger,
		metrics: metrics.New(),
	}
	if r.backoff == nil {
		r.backoff = retry.DefaultBackoff()
	}
	return r
}

// Execute runs command on the current session, opening one first when needed.
func (r *Redialer) Execute(ctx context.Context, command string) (string, error) {
	s, err := r.acquire(ctx)
	if err != nil {
		return "", err
	}

	resp, err := s.Execute(ctx, command)
	if err != nil && IsFatal(err) {
		r.discard(s)
	}
	return resp, err
}

// Close closes the current session, if any. A reconnect in progress is abandoned rather than
// waited out. Later calls to Execute fail with [ErrSessionClosed].
func (r *Redialer) Close() error {
	r.stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.session == nil {
		return nil
	}
	s := r.session
	r.session = nil
	return s.Close()
}

// Stats returns the counters shared by every session the Redialer opened.
func (r *Redialer) Stats() metrics.Snapshot {
	return r.metrics.Snapshot()
}

// acquire returns the current session, opening a new one when there is none.
func (r *Redialer) acquire(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionClosed
	}
	if r.session != nil {
		return r.session, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(r.closing, cancel)()

	var s *Session
	err := r.backoff.Do(ctx, func(attempt int) error {
		err := r.breaker.Execute(func() error {
			var err error
			s, err = r.open(ctx)
			if errors.Is(err, ErrAuthFailed) {
				return retry.Permanent(err)
			}
			return err
		})
		if errors.Is(err, retry.ErrCircuitOpen) {
			return retry.Permanent(err)
		}
		if err != nil && !retry.IsPermanent(err) && r.logger != nil {
			r.logger.Warn("opening session failed", slog.Int("attempt", attempt), slog.Any("error", err))
		}
		return err
	})
	if r.closing.Err() != nil {
		if s != nil {
			s.Close() //nolint:errcheck
		}
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}

	if r.opened {
		r.metrics.Reconnect()
		if r.logger != nil {
			r.logger.Info("session reopened", slog.String("session", s.Label()))
		}
	}
	r.opened = true
	r.session = s
	return s, nil
}

// discard drops s if it is still the current session. s has already released its connection.
func (r *Redialer) discard(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == s {
		r.session = nil
	}
}
