package dice

import "go.uber.org/zap"

// Roller evaluates formulas against a Source and logs every result.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Roll evaluates f.
//
// Postcondition: len(result.Faces) == f.Count and every face is in [1, f.Sides].
func (r *Roller) Roll(f Formula) Result {
	res := Result{Formula: f.Text, Faces: make([]int, f.Count), Bonus: f.Bonus}
	if res.Formula == "" {
		res.Formula = f.canonical()
	}
	for i := range res.Faces {
		res.Faces[i] = r.src.Face(f.Sides)
	}
	r.logger.Debug("rolled",
		zap.String("formula", res.Formula),
		zap.Ints("faces", res.Faces),
		zap.Int("total", res.Total()),
	)
	return res
}
