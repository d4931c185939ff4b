package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file over the defaults. Unknown keys are rejected so typos do not go
// unnoticed.
//
//	host: mc.example.com
//	port: 25575
//	password_file: /run/secrets/rcon
//	timeout: 5s
//	tunnel:
//	  spec: minecraft@mc.example.com
//	  agent: true
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays RCON_* environment variables onto cfg. Only non-empty variables override
// the existing value. Call it after Load and before parsing flags so that flags take precedence.
//
// Booleans accept "1", "true" or "yes" (case-insensitive). Durations accept Go syntax such as
// "1m30s" or a bare number of seconds.
func LoadFromEnv(cfg *Config) {
	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Port = v
	}
	if v := env("PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := env("PASSWORD_FILE"); v != "" {
		cfg.PasswordFile = v
	}
	if envBool("ASK_PASSWORD") {
		cfg.AskPassword = true
	}
	if v, ok := envDuration("TIMEOUT"); ok {
		cfg.Timeout = v
	}
	if v, err := strconv.ParseInt(env("REQUEST_ID"), 10, 32); err == nil && v > 0 {
		cfg.RequestID = int32(v)
	}
	if envBool("STRICT") {
		cfg.Strict = true
	}
	if v := envInt("VERBOSE"); v > 0 {
		cfg.Verbose = v
	}

	// SSH tunnel
	if v := env("TUNNEL"); v != "" {
		cfg.Tunnel.Spec = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.Tunnel.KeyPath = v
	}
	if envBool("SSH_PASSWORD") {
		cfg.Tunnel.AskPassword = true
	}
	if envBool("SSH_AGENT") {
		cfg.Tunnel.UseAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.Tunnel.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.Tunnel.KnownHosts = v
	}

	// Reconnect
	if v := envInt("RECONNECT_ATTEMPTS"); v > 0 {
		cfg.Reconnect.MaxAttempts = v
	}
}

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func envInt(key string) int {
	n, err := strconv.Atoi(env(key))
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
