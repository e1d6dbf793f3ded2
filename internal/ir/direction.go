package ir

import "fmt"

// Direction selects one of the two symmetric transition graphs.
type Direction int

const (
	// Forward edges point from a token to the tokens observed after it.
	Forward Direction = iota
	// Reverse edges point from a token to the tokens observed before it.
	Reverse
)

// Directions lists both graphs in a stable order.
var Directions = []Direction{Forward, Reverse}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid reports whether d is Forward or Reverse.
func (d Direction) Valid() bool {
	return d == Forward || d == Reverse
}
