package config

import "time"

// Defaults shared by the config file, environment and flag layers.
const (
	// DefaultPort is the port Minecraft servers listen on for RCON unless rcon.port is set in
	// server.properties.
	DefaultPort = 25575

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultTimeout bounds one request and response round trip.
	DefaultTimeout = 10 * time.Second

	// DefaultConnTimeout bounds the SSH gateway handshake.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times a lost session is reopened before giving up.
	DefaultMaxReconnectAttempts = 5

	// DefaultReconnectDelay is the first wait between reconnect attempts.
	DefaultReconnectDelay = 500 * time.Millisecond

	// DefaultMaxReconnectDelay caps the exponential backoff between reconnect attempts.
	DefaultMaxReconnectDelay = 30 * time.Second

	// DefaultBreakerFailures is the number of failed opens that stops further attempts until
	// DefaultBreakerReset passes.
	DefaultBreakerFailures = 3

	// DefaultBreakerReset is how long an open circuit rejects reconnects.
	DefaultBreakerReset = 30 * time.Second

	// EnvPrefix prefixes every environment variable read by LoadFromEnv.
	EnvPrefix = "RCON_"
)
