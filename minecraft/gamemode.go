package minecraft

import "fmt"

// GameMode is a player game mode. The values match the numeric IDs older servers accept.
type GameMode int

const (
	Survival GameMode = iota
	Creative
	Adventure
	Spectator
)

// String returns the mode's command name, which every server version accepts.
func (m GameMode) String() string {
	switch m {
	case Survival:
		return "survival"
	case Creative:
		return "creative"
	case Adventure:
		return "adventure"
	case Spectator:
		return "spectator"
	default:
		return fmt.Sprintf("GameMode(%d)", int(m))
	}
}

// Valid reports whether m is a known game mode.
func (m GameMode) Valid() bool {
	return m >= Survival && m <= Spectator
}
