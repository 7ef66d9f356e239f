package initiative

import (
	"cmp"
	"slices"
)

// Ordering is the result of Compare in turn order.
type Ordering int

const (
	// Before means a acts before b.
	Before Ordering = -1
	// Equal is only reported for identical ids with identical scores.
	Equal Ordering = 0
	// After means a acts after b.
	After Ordering = 1
)

// Entry is anything with a stable id and an optional score.
type Entry interface {
	EntryID() string
	// EntryScore returns the score and true, or false when the entry has not acted.
	EntryScore() (Score, bool)
}

// Compare orders a and b for a descending turn order. Entries without a score
// act after every entry with one. Equal scores, including two absent scores,
// fall back to ascending id so the order is total.
func Compare(a, b Entry) Ordering {
	sa, okA := a.EntryScore()
	sb, okB := b.EntryScore()
	switch {
	case okA && !okB:
		return Before
	case !okA && okB:
		return After
	case okA && okB:
		if c := compareScores(sa, sb); c != Equal {
			return c
		}
	}
	return Ordering(cmp.Compare(a.EntryID(), b.EntryID()))
}

// compareScores returns Before when a acts earlier than b.
func compareScores(a, b Score) Ordering {
	if c := cmp.Compare(b.Category, a.Category); c != 0 {
		return Ordering(c)
	}
	if c := cmp.Compare(b.Magnitude, a.Magnitude); c != 0 {
		return Ordering(c)
	}
	ta, tb := -1, -1
	if a.Tiebreak != nil {
		ta = *a.Tiebreak
	}
	if b.Tiebreak != nil {
		tb = *b.Tiebreak
	}
	return Ordering(cmp.Compare(tb, ta))
}

// Sort orders entries in place, first actor first.
//
// Postcondition: for all i < j, Compare(entries[i], entries[j]) != After.
func Sort[E Entry](entries []E) {
	slices.SortStableFunc(entries, func(a, b E) int {
		return int(Compare(a, b))
	})
}
