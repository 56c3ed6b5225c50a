// internal/belt/belt.go
package belt

import (
	"fmt"
	"strings"
)

// Rank is an ordered belt rank. Ordering is positional (White lowest,
// Black highest); never compare ranks by their string names.
type Rank int

const (
	White Rank = iota
	Yellow
	Orange
	Green
	Blue
	Purple
	Brown
	Red
	Black
)

var rankNames = [...]string{
	White:  "white",
	Yellow: "yellow",
	Orange: "orange",
	Green:  "green",
	Blue:   "blue",
	Purple: "purple",
	Brown:  "brown",
	Red:    "red",
	Black:  "black",
}

// Lowest is the default rank for identities with no usable rating.
const Lowest = White

func (r Rank) String() string {
	if r < White || r > Black {
		return fmt.Sprintf("rank(%d)", int(r))
	}
	return rankNames[r]
}

// Valid reports whether r is one of the defined ranks.
func (r Rank) Valid() bool {
	return r >= White && r <= Black
}

// ParseRank maps a rank name (case-insensitive) back to its Rank.
func ParseRank(s string) (Rank, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for r, n := range rankNames {
		if n == name {
			return Rank(r), nil
		}
	}
	return White, fmt.Errorf("unknown rank %q", s)
}

// Names returns every rank name in ascending order. The chat-role set
// is derived from this list, one role per rank.
func Names() []string {
	names := make([]string, len(rankNames))
	copy(names, rankNames[:])
	return names
}

// Max returns the highest rank among the given candidates, or Lowest
// when called with none.
func Max(ranks ...Rank) Rank {
	best := Lowest
	for _, r := range ranks {
		if r > best {
			best = r
		}
	}
	return best
}
