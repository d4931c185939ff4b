package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	// Timeout bounds connection establishment only. Zero means the
	// context alone decides.
	Timeout time.Duration

	// KeepAlive is passed to [net.Dialer]. RCON has no heartbeat of
	// its own, so OS keep-alives are the only way to notice a peer that
	// vanished while a session sat idle. Zero uses the Go default.
	KeepAlive time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
