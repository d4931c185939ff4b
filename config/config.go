// Package config defines the settings a program embedding the RCON client needs to reach a server,
// and turns them into the values the rcon and transport packages consume.
//
// Settings are layered. Precedence order (highest wins):
//  1. flags bound with RegisterFlags
//  2. RCON_* environment variables (LoadFromEnv)
//  3. a YAML file (Load)
//  4. Default
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/schultz-is/mcrcon-go"
	"github.com/schultz-is/mcrcon-go/retry"
	"github.com/schultz-is/mcrcon-go/transport"
)

// Config holds every setting for talking to one RCON server.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"`
	AskPassword  bool          `yaml:"ask_password"` // prompt on the terminal when no password is set
	Timeout      time.Duration `yaml:"timeout"`
	RequestID    int32         `yaml:"request_id"` // 0 picks a random ID per session

	Strict         bool `yaml:"strict"` // treat unexpected replies from mutating commands as errors
	Verbose        int  `yaml:"verbose"`
	LogAuthPackets bool `yaml:"log_auth_packets"`

	Tunnel    TunnelConfig    `yaml:"tunnel"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// TunnelConfig routes the RCON connection through an SSH gateway, for servers whose RCON port is
// only reachable from the server host.
type TunnelConfig struct {
	Spec          string `yaml:"spec"` // [user@]host[:port]; empty disables the tunnel
	KeyPath       string `yaml:"key"`
	AskPassword   bool   `yaml:"ask_password"`
	UseAgent      bool   `yaml:"agent"`
	StrictHostKey bool   `yaml:"strict_host_key"`
	KnownHosts    string `yaml:"known_hosts"`
}

// ReconnectConfig controls how rcon.Redialer replaces lost sessions.
type ReconnectConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// Default returns a Config with every default applied and no server set.
func Default() *Config {
	return &Config{
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
		Reconnect: ReconnectConfig{
			MaxAttempts:     DefaultMaxReconnectAttempts,
			InitialDelay:    DefaultReconnectDelay,
			MaxDelay:        DefaultMaxReconnectDelay,
			BreakerFailures: DefaultBreakerFailures,
			BreakerReset:    DefaultBreakerReset,
		},
	}
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string // flag name of the field
	Value   any    // the invalid value, nil if missing
	Message string
	Hint    string // suggestion for the user, optional
}

func (e *ConfigError) Error() string {
	msg := "config: --" + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// Validate checks that the configuration is complete and internally consistent. The first
// problem found is returned as a *ConfigError.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ConfigError{Field: "host", Message: "server host is required",
			Hint: "set host in the config file, " + EnvPrefix + "HOST, or --host"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Field: "port", Value: c.Port, Message: "port out of range 1-65535",
			Hint: fmt.Sprintf("Minecraft uses %d unless rcon.port is set in server.properties", DefaultPort)}
	}
	if c.Password != "" && c.PasswordFile != "" {
		return &ConfigError{Field: "password-file", Value: c.PasswordFile,
			Message: "password and password file are mutually exclusive"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "timeout", Value: c.Timeout, Message: "timeout must not be negative",
			Hint: "use 0 to wait as long as the caller's context allows"}
	}
	if c.RequestID < 0 {
		return &ConfigError{Field: "request-id", Value: c.RequestID, Message: "request id must not be negative",
			Hint: "servers answer a rejected login with -1, so negative ids are ambiguous"}
	}
	if c.Tunnel.Spec != "" {
		if _, _, _, err := ParseTunnelSpec(c.Tunnel.Spec); err != nil {
			return &ConfigError{Field: "tunnel", Value: c.Tunnel.Spec, Message: err.Error()}
		}
	}
	if c.Reconnect.MaxAttempts < 0 {
		return &ConfigError{Field: "reconnect-attempts", Value: c.Reconnect.MaxAttempts,
			Message: "attempts must not be negative", Hint: "use 0 to retry until the context is done"}
	}
	return nil
}

// Address returns the server address in host:port form.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolvePassword returns the RCON password: the configured one, else the first line of the
// password file, else one read with prompt when AskPassword is set. A nil prompt reads from the
// terminal.
func (c *Config) ResolvePassword(prompt transport.PromptFunc) (string, error) {
	switch {
	case c.Password != "":
		return c.Password, nil

	case c.PasswordFile != "":
		b, err := os.ReadFile(c.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		line, _, _ := strings.Cut(string(b), "\n")
		return strings.TrimRight(line, "\r"), nil

	case c.AskPassword:
		if prompt == nil {
			prompt = transport.TerminalPrompt
		}
		b, err := prompt(fmt.Sprintf("RCON password for %s: ", c.Address()))
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}

	return "", &ConfigError{Field: "password", Message: "no password configured",
		Hint: "set password or password_file, " + EnvPrefix + "PASSWORD, or --ask-password"}
}

// Dialer returns the transport for reaching the server: a TCP dialer, or an SSH dialer when a
// tunnel is configured. The caller owns the dialer and must Close it.
func (c *Config) Dialer(logger *slog.Logger) (transport.Dialer, error) {
	if c.Tunnel.Spec == "" {
		return &transport.TCPDialer{Timeout: c.Timeout}, nil
	}

	user, host, port, err := ParseTunnelSpec(c.Tunnel.Spec)
	if err != nil {
		return nil, &ConfigError{Field: "tunnel", Value: c.Tunnel.Spec, Message: err.Error()}
	}
	return transport.NewSSHDialer(&transport.SSHConfig{
		User:          user,
		Host:          host,
		Port:          port,
		KeyPath:       c.Tunnel.KeyPath,
		PromptPass:    c.Tunnel.AskPassword,
		UseAgent:      c.Tunnel.UseAgent,
		StrictHostKey: c.Tunnel.StrictHostKey,
		KnownHosts:    c.Tunnel.KnownHosts,
		ConnTimeout:   DefaultConnTimeout,
	}, logger), nil
}

// SessionConfig returns the session settings for this configuration, including its dialer.
func (c *Config) SessionConfig(logger *slog.Logger) (rcon.SessionConfig, error) {
	d, err := c.Dialer(logger)
	if err != nil {
		return rcon.SessionConfig{}, err
	}
	return rcon.SessionConfig{
		Timeout:                c.Timeout,
		RequestID:              c.RequestID,
		Dialer:                 d,
		Logger:                 logger,
		LogOutboundAuthPackets: c.LogAuthPackets,
	}, nil
}

// RedialPolicy returns the reconnect policy for rcon.Redialer.
func (c *Config) RedialPolicy(logger *slog.Logger) rcon.RedialPolicy {
	return rcon.RedialPolicy{
		Backoff: &retry.Backoff{
			InitialDelay: c.Reconnect.InitialDelay,
			MaxDelay:     c.Reconnect.MaxDelay,
			Multiplier:   2,
			MaxAttempts:  c.Reconnect.MaxAttempts,
			Jitter:       true,
		},
		Breaker: &retry.CircuitBreakerConfig{
			MaxFailures:  c.Reconnect.BreakerFailures,
			ResetTimeout: c.Reconnect.BreakerReset,
		},
		Logger: logger,
	}
}

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "minecraft@bastion.example.com:2222". Port defaults to 22 and user to the
// empty string, which the SSH dialer leaves to the gateway to reject.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}
