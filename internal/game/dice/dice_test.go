package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/action-initiative/internal/game/dice"
)

func TestD20_Text(t *testing.T) {
	assert.Equal(t, "1d20", dice.D20(0).Text)
	assert.Equal(t, "1d20+3", dice.D20(3).Text)
	assert.Equal(t, "1d20-1", dice.D20(-1).Text)
	f := dice.D20(4)
	assert.Equal(t, 1, f.Count)
	assert.Equal(t, 20, f.Sides)
	assert.Equal(t, 4, f.Bonus)
}

func TestParseFormula(t *testing.T) {
	cases := []struct {
		in           string
		count, sides int
		bonus        int
	}{
		{"d20", 1, 20, 0},
		{"1d20+3", 1, 20, 3},
		{"2d6", 2, 6, 0},
		{"4D8-2", 4, 8, -2},
		{"1d8 + 3", 1, 8, 3},
	}
	for _, tc := range cases {
		f, err := dice.ParseFormula(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.count, f.Count, tc.in)
		assert.Equal(t, tc.sides, f.Sides, tc.in)
		assert.Equal(t, tc.bonus, f.Bonus, tc.in)
		assert.Equal(t, tc.in, f.Text)
	}
}

func TestParseFormula_Rejects(t *testing.T) {
	for _, in := range []string{"", "  ", "20", "0d6", "1d1", "1dx", "1d20+x", "-1d6"} {
		_, err := dice.ParseFormula(in)
		assert.Error(t, err, in)
	}
}

func TestResult_StringAndNatural(t *testing.T) {
	r := dice.Result{Formula: "1d20+3", Faces: []int{14}, Bonus: 3}
	assert.Equal(t, 17, r.Total())
	assert.Equal(t, 14, r.Natural())
	assert.Equal(t, "1d20+3: 14 (+3) = 17", r.String())

	r = dice.Result{Formula: "2d6", Faces: []int{4, 5}}
	assert.Equal(t, "2d6: 4 + 5 = 9", r.String())
	assert.Zero(t, dice.Result{}.Natural())
}

func TestFixedSource_ReplaysAndClamps(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.NewFixedSource(17, 3, 30), zaptest.NewLogger(t))

	r := roller.Roll(dice.D20(2))
	assert.Equal(t, []int{17}, r.Faces)
	assert.Equal(t, 19, r.Total())
	assert.Equal(t, 5, roller.Roll(dice.D20(2)).Total())
	assert.Equal(t, 20, roller.Roll(dice.D20(0)).Total(), "faces above the die clamp")
	assert.Equal(t, 17, roller.Roll(dice.D20(0)).Total(), "faces wrap around")
}

func TestRoller_FillsMissingText(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.NewFixedSource(2), zaptest.NewLogger(t))
	r := roller.Roll(dice.Formula{Count: 2, Sides: 6, Bonus: -1})
	assert.Equal(t, "2d6-1", r.Formula)
	assert.Equal(t, 3, r.Total())
}

func TestCryptoSource_PanicsOnZeroSides(t *testing.T) {
	assert.Panics(t, func() { dice.NewCryptoSource().Face(0) })
}

func TestProperty_RollWithinBounds(t *testing.T) {
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), zaptest.NewLogger(t))
	rapid.Check(t, func(rt *rapid.T) {
		f := dice.Formula{
			Count: rapid.IntRange(1, 6).Draw(rt, "count"),
			Sides: rapid.SampledFrom([]int{4, 6, 8, 10, 12, 20}).Draw(rt, "sides"),
			Bonus: rapid.IntRange(-5, 10).Draw(rt, "bonus"),
		}
		r := roller.Roll(f)
		require.Len(rt, r.Faces, f.Count)
		sum := 0
		for _, v := range r.Faces {
			if v < 1 || v > f.Sides {
				rt.Fatalf("face %d outside d%d", v, f.Sides)
			}
			sum += v
		}
		assert.Equal(rt, sum+f.Bonus, r.Total())
	})
}

func TestProperty_CanonicalFormulaParses(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mod := rapid.IntRange(-10, 10).Draw(rt, "mod")
		f, err := dice.ParseFormula(dice.D20(mod).Text)
		require.NoError(rt, err)
		assert.Equal(rt, mod, f.Bonus)
	})
}
