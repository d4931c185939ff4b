package minecraft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ErrInvalidArgument is matched by errors for arguments that can not be placed on a command line.
var ErrInvalidArgument = errors.New("minecraft: invalid argument")

// Executor runs one console command and returns the server's reply. *rcon.Session and
// *rcon.Redialer implement it.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Options controls how a [Server] treats replies.
type Options struct {
	// Strict makes a non-empty reply to a state changing command an error.
	Strict bool

	// Logger receives ignored replies at debug level. Nil disables logging.
	Logger *slog.Logger
}

// UnexpectedResponseError reports a reply to a command expected to succeed silently.
type UnexpectedResponseError struct {
	Command  string
	Response string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("minecraft: %q: unexpected response %q", e.Command, e.Response)
}

// Server issues commands to one Minecraft server.
type Server struct {
	exec Executor
	opts Options
}

// New returns a Server that runs commands with exec.
func New(exec Executor, opts Options) *Server {
	return &Server{exec: exec, opts: opts}
}

// Raw runs command unchanged and returns the reply.
func (s *Server) Raw(ctx context.Context, command string) (string, error) {
	return s.exec.Execute(ctx, command)
}

// Ban adds player to the ban list.
func (s *Server) Ban(ctx context.Context, player string) error {
	return s.run(ctx, "ban", name(player))
}

// BanIP bans every connection from host.
func (s *Server) BanIP(ctx context.Context, host string) error {
	return s.run(ctx, "ban-ip", name(host))
}

// BanList returns the banned players.
func (s *Server) BanList(ctx context.Context) ([]string, error) {
	return s.list(ctx, "banlist", ParseListing)
}

// BanIPList returns the banned hosts.
func (s *Server) BanIPList(ctx context.Context) ([]string, error) {
	return s.list(ctx, "banlist ips", ParseListing)
}

// DeOp revokes operator status from player.
func (s *Server) DeOp(ctx context.Context, player string) error {
	return s.run(ctx, "deop", name(player))
}

// GameMode sets player's game mode.
func (s *Server) GameMode(ctx context.Context, player string, mode GameMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: game mode %d", ErrInvalidArgument, int(mode))
	}
	return s.run(ctx, "gamemode", word(mode.String()), name(player))
}

// Give spawns amount of item with the given damage value at player's location. item is a numeric
// data value on old servers and a namespaced ID such as "minecraft:torch" on newer ones.
func (s *Server) Give(ctx context.Context, player, item string, amount, damage int) error {
	return s.run(ctx, "give", name(player), name(item), number(amount), number(damage))
}

// Kick disconnects player.
func (s *Server) Kick(ctx context.Context, player string) error {
	return s.run(ctx, "kick", name(player))
}

// List returns the players online.
func (s *Server) List(ctx context.Context) ([]string, error) {
	return s.list(ctx, "list", ParseListing)
}

// Op grants operator status to player.
func (s *Server) Op(ctx context.Context, player string) error {
	return s.run(ctx, "op", name(player))
}

// Pardon removes player from the ban list.
func (s *Server) Pardon(ctx context.Context, player string) error {
	return s.run(ctx, "pardon", name(player))
}

// PardonIP removes host from the IP ban list.
func (s *Server) PardonIP(ctx context.Context, host string) error {
	return s.run(ctx, "pardon-ip", name(host))
}

// SaveAll writes the world to disk.
func (s *Server) SaveAll(ctx context.Context) error {
	return s.run(ctx, "save-all")
}

// SaveOff disables automatic world saves.
func (s *Server) SaveOff(ctx context.Context) error {
	return s.run(ctx, "save-off")
}

// SaveOn enables automatic world saves.
func (s *Server) SaveOn(ctx context.Context) error {
	return s.run(ctx, "save-on")
}

// Say broadcasts message to every player.
func (s *Server) Say(ctx context.Context, message string) error {
	return s.run(ctx, "say", text(message))
}

// Stop shuts the server down. The server may close the connection instead of replying.
func (s *Server) Stop(ctx context.Context) error {
	return s.run(ctx, "stop")
}

// Tell sends message privately to player.
func (s *Server) Tell(ctx context.Context, player, message string) error {
	return s.run(ctx, "tell", name(player), text(message))
}

// TimeAdd advances the world time by amount ticks.
func (s *Server) TimeAdd(ctx context.Context, amount int) error {
	return s.run(ctx, "time add", number(amount))
}

// TimeSet sets the world time in ticks.
func (s *Server) TimeSet(ctx context.Context, ticks int) error {
	return s.run(ctx, "time set", number(ticks))
}

// ToggleDownfall starts or stops rain.
func (s *Server) ToggleDownfall(ctx context.Context) error {
	return s.run(ctx, "toggledownfall")
}

// TP teleports player to target.
func (s *Server) TP(ctx context.Context, player, target string) error {
	return s.run(ctx, "tp", name(player), name(target))
}

// Whitelist returns the whitelisted players.
func (s *Server) Whitelist(ctx context.Context) ([]string, error) {
	return s.list(ctx, "whitelist list", ParseWhitelist)
}

// WhitelistAdd adds player to the whitelist.
func (s *Server) WhitelistAdd(ctx context.Context, player string) error {
	return s.run(ctx, "whitelist add", name(player))
}

// WhitelistOff disables the whitelist.
func (s *Server) WhitelistOff(ctx context.Context) error {
	return s.run(ctx, "whitelist off")
}

// WhitelistOn enables the whitelist.
func (s *Server) WhitelistOn(ctx context.Context) error {
	return s.run(ctx, "whitelist on")
}

// WhitelistReload rereads the whitelist file.
func (s *Server) WhitelistReload(ctx context.Context) error {
	return s.run(ctx, "whitelist reload")
}

// WhitelistRemove removes player from the whitelist.
func (s *Server) WhitelistRemove(ctx context.Context, player string) error {
	return s.run(ctx, "whitelist remove", name(player))
}

// XP gives player amount experience points.
func (s *Server) XP(ctx context.Context, player string, amount int) error {
	return s.run(ctx, "xp", name(player), number(amount))
}

// arg is one validated command argument.
type arg struct {
	val string
	err error
}

// name is a single token: a player, host or item.
func name(v string) arg {
	if v == "" || strings.IndexFunc(v, isSpaceOrControl) >= 0 {
		return arg{v, fmt.Errorf("%w: %q must be one non-empty word", ErrInvalidArgument, v)}
	}
	return arg{val: v}
}

// text is free text that ends the command line, so it may contain spaces but not line breaks.
func text(v string) arg {
	if strings.IndexFunc(v, isControl) >= 0 {
		return arg{v, fmt.Errorf("%w: %q contains control characters", ErrInvalidArgument, v)}
	}
	return arg{val: v}
}

func word(v string) arg { return arg{val: v} }
func number(n int) arg  { return arg{val: strconv.Itoa(n)} }

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

func isSpaceOrControl(r rune) bool {
	return r == ' ' || isControl(r)
}

func build(verb string, args []arg) (string, error) {
	var b strings.Builder
	b.WriteString(verb)
	for _, a := range args {
		if a.err != nil {
			return "", a.err
		}
		b.WriteByte(' ')
		b.WriteString(a.val)
	}
	return b.String(), nil
}

// run executes a state changing command. Replies are errors in strict mode and ignored otherwise.
func (s *Server) run(ctx context.Context, verb string, args ...arg) error {
	cmd, err := build(verb, args)
	if err != nil {
		return err
	}
	reply, err := s.exec.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	if s.opts.Strict {
		return &UnexpectedResponseError{Command: cmd, Response: reply}
	}
	if s.opts.Logger != nil {
		s.opts.Logger.LogAttrs(ctx, slog.LevelDebug, "ignored reply",
			slog.String("command", cmd), slog.String("reply", reply))
	}
	return nil
}

// list executes a query and parses its reply.
func (s *Server) list(ctx context.Context, cmd string, parse func(string) []string) ([]string, error) {
	reply, err := s.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parse(reply), nil
}
