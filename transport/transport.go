// Package transport provides the ways an RCON session can reach its
// server. A transport only produces the duplex byte stream; framing,
// authentication and request pairing stay in package rcon.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections. Implementations include
// a plain TCP dialer and an SSH-tunnelled dialer that reaches RCON
// ports only exposed on a private network behind a bastion host.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session). Stateless dialers return nil.
	Close() error
}
