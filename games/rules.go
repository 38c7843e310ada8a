// games/rules.go
package games

import "fmt"

// GameType identifies which chance game a duel is played with.
type GameType string

const (
	Dice       GameType = "dice"
	Darts      GameType = "darts"
	Football   GameType = "football"
	Basketball GameType = "basketball"
	Bowling    GameType = "bowling"
	Slots      GameType = "slots"
)

// Winner is the side that took a round.
type Winner int

const (
	Draw Winner = iota
	SideA
	SideB
)

func (w Winner) String() string {
	switch w {
	case SideA:
		return "a"
	case SideB:
		return "b"
	default:
		return "draw"
	}
}

// Comparison modes of a game. Every quirk of a game lives in its Rule, not in code paths.
const (
	compareHighest   = "highest"    // greater value wins
	compareCenterHit = "center_hit" // max value beats any non-max, then greater wins
	compareThreshold = "threshold"  // value >= threshold scores, exactly one scorer wins
	compareBand      = "band"       // in-band beats out-of-band, then greater wins
)

// Rule describes the outcome domain of a game as delivered by the randomness source.
type Rule struct {
	Min, Max  int
	Mode      string
	Threshold int // compareThreshold
	BandLow   int // compareBand, inclusive
	BandHigh  int // compareBand, inclusive
}

var rules = map[GameType]Rule{
	Dice:       {Min: 1, Max: 6, Mode: compareHighest},
	Bowling:    {Min: 1, Max: 6, Mode: compareHighest},
	Darts:      {Min: 1, Max: 6, Mode: compareCenterHit},
	Football:   {Min: 1, Max: 5, Mode: compareThreshold, Threshold: 4},
	Basketball: {Min: 1, Max: 5, Mode: compareThreshold, Threshold: 4},
	Slots:      {Min: 1, Max: 64, Mode: compareBand, BandLow: 32, BandHigh: 64},
}

// Valid reports whether g is a supported game type.
func (g GameType) Valid() bool {
	_, ok := rules[g]
	return ok
}

// ValidateOutcome checks that v lies in the value domain of the game.
func ValidateOutcome(g GameType, v int) error {
	r, ok := rules[g]
	if !ok {
		return fmt.Errorf("unknown game type %q", g)
	}
	if v < r.Min || v > r.Max {
		return fmt.Errorf("value %d outside %d..%d for %s", v, r.Min, r.Max, g)
	}
	return nil
}

// ResolveRound classifies a pair of outcomes into a round winner. It is pure.
// An unknown game type is a contract violation between components and is
// returned as an error, never coerced into a draw.
func ResolveRound(g GameType, a, b int) (Winner, error) {
	r, ok := rules[g]
	if !ok {
		return Draw, fmt.Errorf("resolve round: unknown game type %q", g)
	}

	switch r.Mode {
	case compareHighest:
		return highest(a, b), nil
	case compareCenterHit:
		aHit, bHit := a == r.Max, b == r.Max
		if aHit != bHit {
			return pick(aHit), nil
		}
		return highest(a, b), nil
	case compareThreshold:
		aScored, bScored := a >= r.Threshold, b >= r.Threshold
		if aScored != bScored {
			return pick(aScored), nil
		}
		return Draw, nil
	case compareBand:
		aIn := a >= r.BandLow && a <= r.BandHigh
		bIn := b >= r.BandLow && b <= r.BandHigh
		if aIn != bIn {
			return pick(aIn), nil
		}
		return highest(a, b), nil
	}
	return Draw, fmt.Errorf("resolve round: unknown comparison mode %q for %s", r.Mode, g)
}

func highest(a, b int) Winner {
	switch {
	case a > b:
		return SideA
	case b > a:
		return SideB
	default:
		return Draw
	}
}

func pick(aWins bool) Winner {
	if aWins {
		return SideA
	}
	return SideB
}
