package games

import "fmt"

// Format is the best-of-N wrapper around rounds.
type Format string

const (
	Bo1 Format = "bo1"
	Bo3 Format = "bo3"
	Bo5 Format = "bo5"
	Bo7 Format = "bo7"
)

var winsRequired = map[Format]int{
	Bo1: 1,
	Bo3: 2,
	Bo5: 3,
	Bo7: 4,
}

// WinsRequired returns the number of round wins that ends a series.
func WinsRequired(f Format) (int, error) {
	n, ok := winsRequired[f]
	if !ok {
		return 0, fmt.Errorf("unknown duel format %q", f)
	}
	return n, nil
}
