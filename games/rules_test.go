package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRound(t *testing.T) {
	cases := []struct {
		name string
		game GameType
		a, b int
		want Winner
	}{
		{"dice higher wins", Dice, 5, 3, SideA},
		{"dice tie", Dice, 4, 4, Draw},
		{"bowling lower loses", Bowling, 2, 6, SideB},
		{"darts center beats five", Darts, 6, 5, SideA},
		{"darts center beats low", Darts, 1, 6, SideB},
		{"darts both center", Darts, 6, 6, Draw},
		{"darts no center higher wins", Darts, 3, 4, SideB},
		{"football only a scores", Football, 4, 3, SideA},
		{"football both score", Football, 5, 4, Draw},
		{"football neither scores", Football, 1, 3, Draw},
		{"basketball only b scores", Basketball, 2, 5, SideB},
		{"slots band beats outside", Slots, 32, 31, SideA},
		{"slots both in band higher wins", Slots, 40, 64, SideB},
		{"slots both outside higher wins", Slots, 10, 2, SideA},
		{"slots equal", Slots, 50, 50, Draw},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveRound(tc.game, tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveRound_TotalAndSymmetric(t *testing.T) {
	for g, r := range rules {
		for a := r.Min; a <= r.Max; a++ {
			for b := r.Min; b <= r.Max; b++ {
				ab, err := ResolveRound(g, a, b)
				require.NoError(t, err)
				ba, err := ResolveRound(g, b, a)
				require.NoError(t, err)
				switch ab {
				case SideA:
					assert.Equal(t, SideB, ba, "%s %d/%d", g, a, b)
				case SideB:
					assert.Equal(t, SideA, ba, "%s %d/%d", g, a, b)
				default:
					assert.Equal(t, Draw, ba, "%s %d/%d", g, a, b)
				}
				if a == b {
					assert.Equal(t, Draw, ab)
				}
			}
		}
	}
}

func TestResolveRound_UnknownGame(t *testing.T) {
	_, err := ResolveRound("chess", 1, 2)
	assert.Error(t, err)
}

func TestValidateOutcome(t *testing.T) {
	assert.NoError(t, ValidateOutcome(Dice, 1))
	assert.NoError(t, ValidateOutcome(Dice, 6))
	assert.Error(t, ValidateOutcome(Dice, 0))
	assert.Error(t, ValidateOutcome(Dice, 7))
	assert.Error(t, ValidateOutcome(Football, 6))
	assert.NoError(t, ValidateOutcome(Slots, 64))
	assert.Error(t, ValidateOutcome(Slots, 65))
	assert.Error(t, ValidateOutcome("chess", 1))
}

func TestWinsRequired(t *testing.T) {
	for f, want := range map[Format]int{Bo1: 1, Bo3: 2, Bo5: 3, Bo7: 4} {
		got, err := WinsRequired(f)
		require.NoError(t, err)
		assert.Equal(t, want, got, f)
	}
	_, err := WinsRequired("bo9")
	assert.Error(t, err)
	_, err = WinsRequired("bo2")
	assert.Error(t, err)
}
