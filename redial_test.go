// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/schultz-is/mcrcon-go"
	"github.com/schultz-is/mcrcon-go/retry"
)

// flakyServer hands out pipe backed sessions. A "drop" command makes the server hang up without
// answering.
type flakyServer struct {
	password string

	mu       sync.Mutex
	opens    int
	commands []string
}

func (f *flakyServer) open(ctx context.Context) (*rcon.Session, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()

	cc, sc := net.Pipe()
	done := servePeer(sc, func(req rcon.Packet) []rcon.Packet {
		if req.Type == rcon.PacketTypeCommand {
			f.mu.Lock()
			f.commands = append(f.commands, string(req.Body))
			f.mu.Unlock()
			if string(req.Body) == "drop" {
				return nil
			}
		}
		return fakeServer(f.password, func(cmd string) string { return "ok " + cmd })(req)
	})
	go func() {
		<-done
		sc.Close()
	}()

	return rcon.NewSession(ctx, cc, "password", rcon.SessionConfig{})
}

func (f *flakyServer) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, slices.Clone(f.commands)
}

func quickPolicy() rcon.RedialPolicy {
	return rcon.RedialPolicy{
		Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3},
	}
}

func TestRedialer(t *testing.T) {
	t.Run(
		"opens lazily and reuses the session",
		func(t *testing.T) {
			f := &flakyServer{password: "password"}
			r := rcon.NewRedialerFunc(f.open, quickPolicy())
			defer r.Close()

			if opens, _ := f.counts(); opens != 0 {
				t.Fatalf("Redialer opened %d sessions before first use", opens)
			}

			for i := 0; i < 3; i++ {
				resp, err := r.Execute(context.Background(), "list")
				if err != nil || resp != "ok list" {
					t.Fatalf("Execute = %q, %v", resp, err)
				}
			}
			if opens, _ := f.counts(); opens != 1 {
				t.Fatalf("Redialer opened %d sessions, want 1", opens)
			}
		},
	)

	t.Run(
		"failed command is not resent",
		func(t *testing.T) {
			f := &flakyServer{password: "password"}
			r := rcon.NewRedialerFunc(f.open, quickPolicy())
			defer r.Close()

			_, err := r.Execute(context.Background(), "drop")
			if !rcon.IsTransport(err) {
				t.Fatalf("Execute(drop) = %v, want a transport error", err)
			}
			if opens, cmds := f.counts(); opens != 1 || !slices.Equal(cmds, []string{"drop"}) {
				t.Fatalf("after failure: %d opens, commands %v", opens, cmds)
			}

			resp, err := r.Execute(context.Background(), "list")
			if err != nil || resp != "ok list" {
				t.Fatalf("Execute after reconnect = %q, %v", resp, err)
			}
			if opens, cmds := f.counts(); opens != 2 || !slices.Equal(cmds, []string{"drop", "list"}) {
				t.Fatalf("after reconnect: %d opens, commands %v", opens, cmds)
			}
			if got := r.Stats().Reconnects; got != 1 {
				t.Fatalf("Stats().Reconnects = %d, want 1", got)
			}
		},
	)

	t.Run(
		"rejected password is not retried",
		func(t *testing.T) {
			f := &flakyServer{password: "something else"}
			r := rcon.NewRedialerFunc(f.open, quickPolicy())
			defer r.Close()

			_, err := r.Execute(context.Background(), "list")
			if !errors.Is(err, rcon.ErrAuthFailed) {
				t.Fatalf("Execute = %v, want ErrAuthFailed", err)
			}
			if opens, _ := f.counts(); opens != 1 {
				t.Fatalf("Redialer opened %d sessions, want 1", opens)
			}
		},
	)

	t.Run(
		"circuit breaker stops dialing an unreachable server",
		func(t *testing.T) {
			var opens int
			open := func(context.Context) (*rcon.Session, error) {
				opens++
				return nil, &rcon.NetworkError{Op: "dial", Addr: "192.0.2.1:25575", Err: errors.New("connection refused")}
			}
			policy := rcon.RedialPolicy{
				Backoff: &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 10},
				Breaker: &retry.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
			}
			r := rcon.NewRedialerFunc(open, policy)
			defer r.Close()

			_, err := r.Execute(context.Background(), "list")
			if !errors.Is(err, retry.ErrCircuitOpen) {
				t.Fatalf("Execute = %v, want ErrCircuitOpen", err)
			}
			if opens != 3 {
				t.Fatalf("dialed %d times, want 3", opens)
			}

			_, err = r.Execute(context.Background(), "list")
			if !errors.Is(err, retry.ErrCircuitOpen) || opens != 3 {
				t.Fatalf("Execute with open circuit = %v after %d dials", err, opens)
			}
		},
	)

	t.Run(
		"gives up when the context is done",
		func(t *testing.T) {
			open := func(context.Context) (*rcon.Session, error) {
				return nil, &rcon.NetworkError{Op: "dial", Err: errors.New("connection refused")}
			}
			policy := rcon.RedialPolicy{Backoff: &retry.Backoff{InitialDelay: time.Hour}}
			r := rcon.NewRedialerFunc(open, policy)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			if _, err := r.Execute(ctx, "list"); !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("Execute = %v, want context.DeadlineExceeded", err)
			}
		},
	)

	t.Run(
		"close",
		func(t *testing.T) {
			f := &flakyServer{password: "password"}
			r := rcon.NewRedialerFunc(f.open, quickPolicy())

			if _, err := r.Execute(context.Background(), "list"); err != nil {
				t.Fatalf("Execute failed: %s", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close failed: %s", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("second Close failed: %s", err)
			}
			if _, err := r.Execute(context.Background(), "list"); !errors.Is(err, rcon.ErrSessionClosed) {
				t.Fatalf("Execute after Close = %v, want ErrSessionClosed", err)
			}
			if opens, _ := f.counts(); opens != 1 {
				t.Fatalf("Redialer opened %d sessions, want 1", opens)
			}
		},
	)

	t.Run(
		"close abandons a reconnect in progress",
		func(t *testing.T) {
			attempted := make(chan struct{}, 1)
			open := func(context.Context) (*rcon.Session, error) {
				select {
				case attempted <- struct{}{}:
				default:
				}
				return nil, &rcon.NetworkError{Op: "dial", Err: errors.New("connection refused")}
			}
			policy := rcon.RedialPolicy{
				Backoff: &retry.Backoff{InitialDelay: time.Hour, MaxAttempts: 4},
			}
			r := rcon.NewRedialerFunc(open, policy)

			result := make(chan error, 1)
			go func() {
				_, err := r.Execute(context.Background(), "list")
				result <- err
			}()
			<-attempted

			start := time.Now()
			if err := r.Close(); err != nil {
				t.Fatalf("Close failed: %s", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Fatalf("Close took %v while a reconnect was backing off", elapsed)
			}
			if err := <-result; !errors.Is(err, rcon.ErrSessionClosed) {
				t.Fatalf("Execute during Close = %v, want ErrSessionClosed", err)
			}
		},
	)
}

func TestNewRedialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			done := servePeer(conn, fakeServer("password", func(cmd string) string { return "ok " + cmd }))
			go func() {
				<-done
				conn.Close()
			}()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	r := rcon.NewRedialer(host, port, "password", rcon.SessionConfig{Timeout: 5 * time.Second}, quickPolicy())
	defer r.Close()

	resp, err := r.Execute(context.Background(), "seed")
	if err != nil || resp != "ok seed" {
		t.Fatalf("Execute = %q, %v", resp, err)
	}
	if s := r.Stats(); s.Exchanges != 2 || s.SessionsActive != 1 {
		t.Fatalf("Stats() = %+v, want 2 exchanges on 1 session", s)
	}
}
