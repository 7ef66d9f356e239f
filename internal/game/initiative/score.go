// Package initiative encodes action-driven initiative values and orders
// combatants by them.
//
// A score is a (category, magnitude, tiebreak) triple. Category dominates:
// declared actions act before ranged, ranged before melee. Within a category
// the higher magnitude acts first, then the higher tiebreak.
package initiative

import (
	"errors"
	"fmt"
	"math"
)

// Category is the action triage group a score belongs to.
type Category int

const (
	// CategoryNone is the zero value and is never a valid score category.
	CategoryNone Category = iota
	// Melee actions resolve last.
	Melee
	// Ranged actions resolve after declared actions.
	Ranged
	// Declared actions (healing, utility, non-damaging spells) resolve first.
	Declared
)

// MaxValue bounds magnitude and tiebreak.
const MaxValue = 99

// ErrUnknownCategory is returned when a score is built from an invalid category.
var ErrUnknownCategory = errors.New("initiative: unknown category")

// Valid reports whether c is one of Melee, Ranged, Declared.
func (c Category) Valid() bool {
	return c >= Melee && c <= Declared
}

// String returns the lower-case category name.
func (c Category) String() string {
	switch c {
	case Melee:
		return "melee"
	case Ranged:
		return "ranged"
	case Declared:
		return "declared"
	default:
		return "none"
	}
}

// Score is an encoded initiative value. Magnitude and tiebreak are kept as
// separate fields; Key derives the single comparable number when one is needed.
type Score struct {
	Category  Category
	Magnitude int
	// Tiebreak is nil when the tiebreaker rule was not active for this roll.
	Tiebreak *int
}

// Encode builds a Score from its parts.
//
// Precondition: cat must be valid.
// Postcondition: Magnitude and *Tiebreak are clamped into [0, 99]; the returned
// Score does not alias tiebreak.
func Encode(cat Category, magnitude int, tiebreak *int) (Score, error) {
	if !cat.Valid() {
		return Score{}, fmt.Errorf("%w: %d", ErrUnknownCategory, int(cat))
	}
	s := Score{Category: cat, Magnitude: clamp(magnitude)}
	if tiebreak != nil {
		tb := clamp(*tiebreak)
		s.Tiebreak = &tb
	}
	return s, nil
}

// MustEncode is Encode for callers holding a known-valid category.
func MustEncode(cat Category, magnitude int, tiebreak *int) Score {
	s, err := Encode(cat, magnitude, tiebreak)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode recovers a Score from its concatenated decimal form
// ("category.magnitude[tiebreak]", e.g. 2.1714). Four fractional digits are
// read as magnitude plus tiebreak; two or fewer as magnitude only.
//
// Postcondition: Decode(s.Key()) round-trips category and magnitude, and the
// tiebreak when hasTiebreak is true.
func Decode(key float64, hasTiebreak bool) (Score, error) {
	if math.IsNaN(key) || math.IsInf(key, 0) || key < 0 {
		return Score{}, fmt.Errorf("initiative: cannot decode %v", key)
	}
	cat := Category(math.Floor(key))
	if !cat.Valid() {
		return Score{}, fmt.Errorf("%w: %v", ErrUnknownCategory, key)
	}
	frac := int(math.Round((key - math.Floor(key)) * 10000))
	s := Score{Category: cat, Magnitude: frac / 100}
	if hasTiebreak {
		tb := frac % 100
		s.Tiebreak = &tb
	}
	return s, nil
}

// Key returns the single comparable number for s: category + magnitude/100 +
// tiebreak/10000. Larger keys act earlier.
func (s Score) Key() float64 {
	k := float64(s.Category) + float64(s.Magnitude)/100
	if s.Tiebreak != nil {
		k += float64(*s.Tiebreak) / 10000
	}
	return k
}

// String renders the concatenated decimal form, e.g. "1.07" or "1.0705".
func (s Score) String() string {
	if s.Tiebreak != nil {
		return fmt.Sprintf("%d.%02d%02d", int(s.Category), s.Magnitude, *s.Tiebreak)
	}
	return fmt.Sprintf("%d.%02d", int(s.Category), s.Magnitude)
}

// Display renders what the turn tracker shows: the magnitude without its category digit.
func (s Score) Display() string {
	if s.Tiebreak != nil {
		return fmt.Sprintf("%02d%02d", s.Magnitude, *s.Tiebreak)
	}
	return fmt.Sprintf("%02d", s.Magnitude)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}
