package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrNotConnected is returned when dialing through a tunnel that is down.
var ErrNotConnected = errors.New("transport: ssh tunnel not connected")

// SSHError represents an SSH-specific failure with gateway context.
type SSHError struct {
	Op   string // "auth", "hostkey", "dial", "handshake"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // used as-is when set; never prompted
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads a secret from the user. Defaults to [TerminalPrompt].
	Prompt PromptFunc
}

// SSHDialer routes connections through an SSH gateway. The gateway
// connection is established lazily on the first Dial and shared by
// every connection dialed afterwards, until Close.
type SSHDialer struct {
	config *SSHConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH gateway. The gateway is not contacted until the first Dial. A
// nil logger disables logging.
func NewSSHDialer(cfg *SSHConfig, logger *slog.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Prompt == nil {
		cfg.Prompt = TerminalPrompt
	}
	return &SSHDialer{config: cfg, logger: logger}
}

// connect returns the live gateway client, establishing it if needed.
func (d *SSHDialer) connect(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	authMethods, err := BuildAuthMethods(d.config)
	if err != nil {
		return nil, &SSHError{"auth", d.config.Host, d.config.Port, err}
	}

	hkCallback, err := hostKeyCallback(d.config)
	if err != nil {
		return nil, &SSHError{"hostkey", d.config.Host, d.config.Port, err}
	}

	sshCfg := &ssh.ClientConfig{
		User:            d.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         d.config.ConnTimeout,
	}

	addr := net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
	d.debug(ctx, "dialing ssh gateway", slog.String("addr", addr), slog.String("user", d.config.User))

	dialer := net.Dialer{Timeout: d.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &SSHError{"dial", d.config.Host, d.config.Port, err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, &SSHError{"handshake", d.config.Host, d.config.Port, err}
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	d.client = client
	go d.monitor(client)

	d.debug(ctx, "ssh gateway established", slog.String("addr", addr))
	return client, nil
}

// Dial connects to address through the gateway, establishing the
// gateway on the first call. Cancelling ctx abandons both the gateway
// handshake and the forwarded dial.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	d.debug(ctx, "forwarding through ssh gateway", slog.String("network", network), slog.String("addr", address))
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the gateway connection. Connections already dialed
// through it fail once it is gone.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// IsAlive reports whether the gateway connection is up.
func (d *SSHDialer) IsAlive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

// monitor blocks until the gateway connection ends and forgets it, so
// the next Dial reconnects.
func (d *SSHDialer) monitor(client *ssh.Client) {
	err := client.Wait()

	d.mu.Lock()
	if d.client == client {
		d.client = nil
	}
	d.mu.Unlock()

	if err != nil {
		d.debug(context.Background(), "ssh gateway closed", slog.String("error", err.Error()))
	} else {
		d.debug(context.Background(), "ssh gateway closed")
	}
}

func (d *SSHDialer) debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	if d.logger == nil {
		return
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}
