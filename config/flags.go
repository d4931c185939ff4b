package config

import (
	flag "github.com/spf13/pflag"
)

// RegisterFlags binds cfg's fields to flags on fs. The current values of cfg become the flag
// defaults, so loading the file and environment first keeps them unless a flag overrides them.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	// Server
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "RCON server host")
	fs.IntVarP(&cfg.Port, "port", "P", cfg.Port, "RCON server port")
	fs.StringVarP(&cfg.PasswordFile, "password-file", "F", cfg.PasswordFile, "Read the RCON password from a file")
	fs.BoolVar(&cfg.AskPassword, "ask-password", cfg.AskPassword, "Prompt for the RCON password")
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Round trip timeout (0 for none)")
	fs.Int32Var(&cfg.RequestID, "request-id", cfg.RequestID, "Fixed request ID (0 for random)")

	// Behaviour
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail when a command that should be silent replies")
	// CountVarP zeroes its target; each -v adds to the configured level instead.
	verbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	cfg.Verbose = verbose
	fs.BoolVar(&cfg.LogAuthPackets, "log-auth-packets", cfg.LogAuthPackets, "Log login packets unscrubbed (exposes the password)")

	// SSH tunnel
	fs.StringVarP(&cfg.Tunnel.Spec, "tunnel", "T", cfg.Tunnel.Spec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.Tunnel.KeyPath, "ssh-key", cfg.Tunnel.KeyPath, "SSH private key file")
	fs.BoolVar(&cfg.Tunnel.AskPassword, "ssh-password", cfg.Tunnel.AskPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.Tunnel.UseAgent, "ssh-agent", cfg.Tunnel.UseAgent, "Use SSH agent")
	fs.BoolVar(&cfg.Tunnel.StrictHostKey, "strict-hostkey", cfg.Tunnel.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.Tunnel.KnownHosts, "known-hosts", cfg.Tunnel.KnownHosts, "Custom known_hosts path")

	// Reconnect
	fs.IntVar(&cfg.Reconnect.MaxAttempts, "reconnect-attempts", cfg.Reconnect.MaxAttempts, "Attempts to reopen a lost session (0 for unlimited)")
}
