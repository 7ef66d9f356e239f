// Package dice rolls the d20 checks behind initiative and validates the damage
// formulas carried by actions.
package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Formula is a parsed "NdS+B" dice formula.
type Formula struct {
	Text  string
	Count int
	Sides int
	Bonus int
}

// D20 returns the single-die initiative formula with bonus mod.
//
// Postcondition: Text is "1d20" when mod is 0, else "1d20+N" or "1d20-N".
func D20(mod int) Formula {
	f := Formula{Count: 1, Sides: 20, Bonus: mod}
	f.Text = f.canonical()
	return f
}

func (f Formula) canonical() string {
	s := strconv.Itoa(f.Count) + "d" + strconv.Itoa(f.Sides)
	if f.Bonus != 0 {
		s += fmt.Sprintf("%+d", f.Bonus)
	}
	return s
}

// ParseFormula reads forms such as "d20", "1d20+3", "2d6" or "4D8-2".
// Whitespace around the operator is tolerated.
//
// Postcondition: On success Count >= 1 and Sides >= 2.
func ParseFormula(text string) (Formula, error) {
	s := strings.ToLower(strings.Join(strings.Fields(text), ""))
	if s == "" {
		return Formula{}, fmt.Errorf("dice: empty formula")
	}
	head, tail, ok := strings.Cut(s, "d")
	if !ok {
		return Formula{}, fmt.Errorf("dice: %q has no 'd'", text)
	}
	f := Formula{Text: text, Count: 1}
	if head != "" {
		n, err := strconv.Atoi(head)
		if err != nil || n < 1 {
			return Formula{}, fmt.Errorf("dice: %q: die count must be a positive integer", text)
		}
		f.Count = n
	}
	sides := tail
	if i := strings.IndexAny(tail, "+-"); i > 0 {
		sides = tail[:i]
		b, err := strconv.Atoi(tail[i:])
		if err != nil {
			return Formula{}, fmt.Errorf("dice: %q: bad bonus: %w", text, err)
		}
		f.Bonus = b
	}
	n, err := strconv.Atoi(sides)
	if err != nil || n < 2 {
		return Formula{}, fmt.Errorf("dice: %q: die must have at least two sides", text)
	}
	f.Sides = n
	return f, nil
}

// Result is one evaluated formula.
type Result struct {
	Formula string
	Faces   []int
	Bonus   int
}

// Total sums the faces and the bonus.
func (r Result) Total() int {
	t := r.Bonus
	for _, f := range r.Faces {
		t += f
	}
	return t
}

// Natural returns the first face rolled, or 0 for an empty result.
func (r Result) Natural() int {
	if len(r.Faces) == 0 {
		return 0
	}
	return r.Faces[0]
}

// String renders the result the way it appears in the chat log, e.g.
// "1d20+3: 14 (+3) = 17".
func (r Result) String() string {
	faces := make([]string, len(r.Faces))
	for i, f := range r.Faces {
		faces[i] = strconv.Itoa(f)
	}
	s := r.Formula + ": " + strings.Join(faces, " + ")
	if r.Bonus != 0 {
		s += fmt.Sprintf(" (%+d)", r.Bonus)
	}
	return fmt.Sprintf("%s = %d", s, r.Total())
}
