// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schultz-is/mcrcon-go/metrics"
	"github.com/schultz-is/mcrcon-go/transport"
)

const (
	opLogin   = "login"
	opCommand = "command"
)

// aLongTimeAgo is a deadline in the past, used to unblock I/O when a context is cancelled.
var aLongTimeAgo = time.Unix(1, 0)

// Session is an authenticated RCON session over a single connection. Sessions are created already
// logged in by [Open] or [NewSession] and stay usable until [Session.Close] or until a fatal error.
//
// Every request a session sends carries the same request ID, chosen when the session is created,
// and every response must echo it. The protocol has no multiplexing, so a session serializes
// exchanges: each call to [Session.Execute] holds the session for the full write and read of its
// round trip, and concurrent callers queue behind it. Sessions are safe for concurrent use but
// should likely be pooled to avoid contention in high-throughput scenarios.
//
// A transport failure, an undecodable response, or a response carrying the wrong request ID
// leaves the stream in an unknown position with no way to resynchronize. When that happens the
// session releases its connection and every later call fails with an error matching
// [ErrSessionBroken]. Callers must open a new session.
//
// RCON does not specify any keep alive functionality, so an idle session may fail with an EOF or
// similar error on its next use.
type Session struct {
	// id is the request ID stamped on every outbound packet.
	id int32

	// label identifies the session in log records. It never goes over the wire.
	label string

	// addr is the remote address, for errors and logs.
	addr string

	// mu is held for the full duration of an exchange, and by Close.
	mu sync.Mutex

	// conn is the underlying connection RCON messages are sent and received over.
	conn net.Conn

	// opened is set once the login exchange succeeded.
	opened bool

	// closed is set by Close.
	closed bool

	// broken holds the first fatal error the session observed.
	broken error

	// timeout limits each round trip. Zero means no limit beyond the caller's context.
	timeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Collector

	// logOutboundAuthPackets disables scrubbing of the password from debug logs.
	logOutboundAuthPackets bool
}

// SessionConfig contains settings to control [Session] instances.
type SessionConfig struct {
	// Timeout limits the time a session may spend on one request and response round trip,
	// including the login exchange. Zero means no limit, in which case a silent server blocks the
	// caller until the context passed to the call is done.
	Timeout time.Duration

	// RequestID fixes the session's request ID. Values less than one are ignored and a random
	// positive ID is chosen instead. IDs are never negative, so a server's -1 login rejection can
	// not collide with a real ID.
	RequestID int32

	// Dialer opens the connection for [Open]. Nil means a plain [transport.TCPDialer].
	Dialer transport.Dialer

	// Logger receives log entries from a session. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives counters from the session. Nil gives each session a private collector,
	// readable through [Session.Stats].
	Metrics *metrics.Collector

	// LogOutboundAuthPackets is a flag that must be explicitly enabled when the session is
	// created. This field enables debug logging to include outbound login packets, exposing server
	// passwords in plaintext. When this field is false (the default value,) outbound login packets
	// are sanitized to hide both the password text and packet length.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool
}

// Open connects to the RCON server at host and port and logs in with password. On failure no
// connection is left open.
//
// Login rejections match [ErrAuthFailed]. Connection failures are returned as a [*NetworkError].
func Open(ctx context.Context, host string, port int, password string, config SessionConfig) (*Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var dialer transport.Dialer = &transport.TCPDialer{}
	if config.Dialer != nil {
		dialer = config.Dialer
	}

	conn, err := dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		config.Metrics.RecordError(err.Error())
		return nil, &NetworkError{Op: "dial", Addr: addr, Err: err}
	}
	return NewSession(ctx, conn, password, config)
}

// NewSession logs in over an already established conn and returns the resulting session. The
// session takes ownership of conn: it is closed if the login fails, and must not be used outside the
// session afterwards.
//
// Any [net.Conn] works as the transport, such as a [crypto/tls.Conn] for servers behind a TLS
// terminating proxy, or one end of a [net.Pipe] in tests.
func NewSession(ctx context.Context, conn net.Conn, password string, config SessionConfig) (*Session, error) {
	s := &Session{
		id:                     config.RequestID,
		label:                  uuid.Must(uuid.NewV7()).String(),
		conn:                   conn,
		timeout:                config.Timeout,
		logger:                 config.Logger,
		metrics:                config.Metrics,
		logOutboundAuthPackets: config.LogOutboundAuthPackets,
	}
	if s.id < 1 {
		s.id = rand.Int32N(math.MaxInt32) + 1
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if ra := conn.RemoteAddr(); ra != nil {
		s.addr = ra.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.login(ctx, password); err != nil {
		s.fail(err)
		return nil, err
	}

	s.opened = true
	s.metrics.SessionOpened()
	s.log(ctx, slog.LevelInfo, "session opened",
		slog.String("addr", s.addr), slog.Int("request_id", int(s.id)))

	return s, nil
}

// Execute sends command to the server and returns the server's reply. The command is sent as is,
// with no validation beyond the request size limit.
//
// Replies longer than [MaximumFragmentSize] arrive split across several packets. When a packet
// fills a whole fragment, Execute sends a second request of type 0 and joins every packet read
// before its reply, so the full output is returned and nothing is left in the stream. Servers that
// do not answer such a request leave the call waiting for its deadline.
//
// Errors matching [ErrCorrelationMismatch], or for which [IsTransport] reports true, are fatal:
// the session is broken afterwards. A request too large to send, or a context that is already
// done before anything was written, leaves the session usable.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	body, err := s.ExecuteBytes(ctx, []byte(command))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ExecuteBytes is [Session.Execute] for callers that hold the command as bytes.
func (s *Session) ExecuteBytes(ctx context.Context, command []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}

	resp, err := s.exchange(ctx, Packet{ID: s.id, Type: PacketTypeCommand, Body: command}, true)
	if err != nil {
		return nil, err
	}

	if resp.ID != s.id {
		s.metrics.Mismatch()
		err := &MismatchError{Op: opCommand, Want: s.id, Got: resp.ID, Body: resp.Body}
		s.fail(err)
		return nil, err
	}

	return resp.Body, nil
}

// Close releases the session's connection. It waits for an exchange in progress to finish, and
// may be called any number of times, including on the nil session returned by a failed [Open].
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// A broken session has already released its connection.
	if s.broken != nil {
		return nil
	}

	s.metrics.SessionClosed()
	s.log(context.Background(), slog.LevelInfo, "session closed")

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return &NetworkError{Op: "close", Addr: s.addr, Err: err}
	}
	return nil
}

// RequestID returns the request ID the session stamps on its packets.
func (s *Session) RequestID() int32 {
	return s.id
}

// Label returns a unique identifier for the session, attached to its log records.
func (s *Session) Label() string {
	return s.label
}

// Stats returns the session's counters. Sessions sharing a [metrics.Collector] report the shared
// totals.
func (s *Session) Stats() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// Err returns the fatal error that broke the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *Session) String() string {
	return fmt.Sprintf("Session[requestID=%d, addr=%s]", s.id, s.addr)
}

// login performs the login exchange. The caller holds mu.
func (s *Session) login(ctx context.Context, password string) error {
	resp, err := s.exchange(ctx, Packet{ID: s.id, Type: PacketTypeLogin, Body: []byte(password)}, false)
	if err != nil {
		return err
	}

	if resp.ID != s.id || len(resp.Body) != 0 {
		s.metrics.AuthFailure()
		return &MismatchError{Op: opLogin, Want: s.id, Got: resp.ID, Body: resp.Body}
	}
	return nil
}

// usable reports why the session can not take another exchange. The caller holds mu.
func (s *Session) usable() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.broken != nil:
		return &brokenError{s.broken}
	}
	return nil
}

// exchange writes req and reads its response. When collect is set and the response fills a whole
// fragment, the rest of a split reply is read too and joined into the returned packet. I/O failures
// break the session. The caller holds mu.
func (s *Session) exchange(ctx context.Context, req Packet, collect bool) (Packet, error) {
	bs, err := req.MarshalBinary()
	if err != nil {
		return Packet{}, err
	}
	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}

	deadline := time.Time{}
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		err = &NetworkError{Op: "deadline", Addr: s.addr, Err: err}
		s.fail(err)
		return Packet{}, err
	}

	// Cancellation interrupts blocked I/O by moving the deadline into the past. The exchange then
	// fails like any other I/O error, which breaks the session.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(aLongTimeAgo) //nolint:errcheck
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
	}()

	sent, err := s.send(ctx, req, bs)
	if err != nil {
		return Packet{}, err
	}
	resp, received, err := s.receive(ctx)
	if err != nil {
		return Packet{}, err
	}

	if collect && resp.ID == s.id && len(resp.Body) == MaximumFragmentSize {
		var n, m int64
		resp, n, m, err = s.collect(ctx, resp)
		sent, received = sent+n, received+m
		if err != nil {
			return Packet{}, err
		}
	}

	s.metrics.Exchange(sent, received)
	return resp, nil
}

// endMarker is the reply Minecraft servers give to a request of type 0, which they do not handle.
var endMarker = []byte("Unknown request 0")

// collect reads the remaining fragments of a reply whose first packet is first. Servers answer
// requests in order and every fragment carries the session's request ID, so the end of the reply is
// found by sending a request of type 0 and reading until its [endMarker] reply arrives. A packet
// with a foreign ID is returned as is for the caller to reject. The caller holds mu.
func (s *Session) collect(ctx context.Context, first Packet) (Packet, int64, int64, error) {
	marker := Packet{ID: s.id, Type: PacketTypeResponse}
	bs, err := marker.MarshalBinary()
	if err != nil {
		return Packet{}, 0, 0, err
	}
	sent, err := s.send(ctx, marker, bs)
	if err != nil {
		return Packet{}, sent, 0, err
	}

	body := first.Body
	var received int64
	for {
		p, m, err := s.receive(ctx)
		received += m
		if err != nil {
			return Packet{}, sent, received, err
		}
		if p.ID != s.id {
			return p, sent, received, nil
		}
		if bytes.Equal(p.Body, endMarker) {
			first.Body = body
			return first, sent, received, nil
		}
		body = append(body, p.Body...)
	}
}

// send writes the encoded packet bs. The caller holds mu.
func (s *Session) send(ctx context.Context, p Packet, bs []byte) (int64, error) {
	s.logPacket(ctx, "sending packet", p)
	n, err := s.conn.Write(bs)
	if err != nil {
		err = s.ioError(ctx, "write", err)
		s.fail(err)
		return int64(n), err
	}
	return int64(n), nil
}

// receive reads one packet. The caller holds mu.
func (s *Session) receive(ctx context.Context) (Packet, int64, error) {
	var p Packet
	n, err := p.ReadFrom(s.conn)
	if err != nil {
		err = s.ioError(ctx, "read", err)
		s.fail(err)
		return Packet{}, n, err
	}
	s.logPacket(ctx, "received packet", p)
	return p, n, nil
}

// ioError wraps an I/O failure, attributing it to ctx when ctx is what interrupted it.
func (s *Session) ioError(ctx context.Context, op string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		err = fmt.Errorf("%w: %w", cerr, err)
	}
	return &NetworkError{Op: op, Addr: s.addr, Err: err}
}

// fail marks the session broken by err and releases the connection. Only the first call has an
// effect. The caller holds mu.
func (s *Session) fail(err error) {
	if s.broken != nil {
		return
	}
	s.broken = err
	s.metrics.RecordError(err.Error())
	s.conn.Close() //nolint:errcheck
	if s.opened {
		s.metrics.SessionClosed()
	}
}

// log emits a record tagged with the session label. A nil logger makes this a NOP.
func (s *Session) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	attrs = append(attrs, slog.String("session", s.label))
	s.logger.LogAttrs(ctx, level, msg, attrs...)
}

// logPacket sends a log record containing the provided log message and packet to the session's
// logger for handling. When the logger is nil or is not level set for debug records, this function
// is essentially a NOP. If the provided packet is an outbound login packet, its body and length are
// obfuscated to prevent leaking a plaintext password into logs.
func (s *Session) logPacket(ctx context.Context, logMsg string, packet Packet) {
	// NOP if the session logger is nil or is not level set for debug log messages.
	if s.logger == nil || !s.logger.Handler().Enabled(ctx, slog.LevelDebug) {
		return
	}

	// Unless the session is explicitly configured to log outbound login packets, scrub the
	// password when applicable.
	if packet.Type == PacketTypeLogin && !s.logOutboundAuthPackets {
		packet.Body = []byte{'x', 'x', 'x', 'x', 'x'}
	}

	s.log(ctx, slog.LevelDebug, logMsg, slog.String("packet", packet.hexDump()))
}
