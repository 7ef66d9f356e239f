package dice

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// Source produces die faces. Implementations must be safe for concurrent use.
type Source interface {
	// Face returns a value in [1, sides].
	//
	// Precondition: sides >= 1.
	Face(sides int) int
}

// CryptoSource draws faces from crypto/rand.
type CryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source { return CryptoSource{} }

// Face implements Source. It panics when sides < 1 or the system RNG fails.
func (CryptoSource) Face(sides int) int {
	if sides < 1 {
		panic("dice: Face called with sides < 1")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		panic("dice: reading crypto/rand: " + err.Error())
	}
	return int(v.Int64()) + 1
}

// FixedSource replays scripted faces in order, wrapping when exhausted.
// Faces larger than the die are clamped to its highest face.
type FixedSource struct {
	mu    sync.Mutex
	faces []int
	pos   int
}

// NewFixedSource returns a FixedSource cycling through faces.
//
// Precondition: faces must be non-empty.
func NewFixedSource(faces ...int) *FixedSource {
	if len(faces) == 0 {
		panic("dice: NewFixedSource requires at least one face")
	}
	return &FixedSource{faces: append([]int(nil), faces...)}
}

// Face implements Source.
func (f *FixedSource) Face(sides int) int {
	if sides < 1 {
		panic("dice: Face called with sides < 1")
	}
	f.mu.Lock()
	v := f.faces[f.pos%len(f.faces)]
	f.pos++
	f.mu.Unlock()
	return min(max(v, 1), sides)
}
