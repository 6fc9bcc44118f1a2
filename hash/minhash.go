package hash

import (
	"math/bits"

	"lshdb-go/internal/vecmath"
)

// mersennePrime61 is the modulus of the MinHash permutations. It keeps every
// symbol within int64. Set elements are reduced modulo P before hashing, so
// elements that differ by a multiple of P hash alike.
const mersennePrime61 = uint64(1)<<61 - 1

// MinHash hashes for Jaccard similarity over integer sets. Input vectors
// are interpreted as sets of non-negative integer elements; every symbol is
// the minimum of a universal hash (a·x + b) mod P over the elements.
type MinHash[N Float] struct {
	a []uint64
	b []uint64
}

var _ VecHash[float32] = (*MinHash[float32])(nil)

// NewMinHash draws k permutation coefficient pairs from [1, P).
func NewMinHash[N Float](k int, seed uint64) *MinHash[N] {
	rng := NewRNG(seed)
	a := make([]uint64, k)
	b := make([]uint64, k)
	for i := 0; i < k; i++ {
		a[i] = 1 + rng.Uint64N(mersennePrime61-1)
		b[i] = 1 + rng.Uint64N(mersennePrime61-1)
	}
	return &MinHash[N]{a: a, b: b}
}

// mulMod61 computes (a * x) mod P without overflowing, via the 128-bit
// product.
func mulMod61(a, x uint64) uint64 {
	hi, lo := bits.Mul64(a%mersennePrime61, x%mersennePrime61)
	_, rem := bits.Div64(hi, lo, mersennePrime61)
	return rem
}

func (m *MinHash[N]) HashQuery(v []N) ([]int64, error) {
	elems := make([]uint64, len(v))
	for i, x := range v {
		if !vecmath.IsFinite(x) || x < 0 {
			return nil, ErrNumerical
		}
		elems[i] = uint64(x)
	}
	sig := make([]int64, len(m.a))
	for i := range m.a {
		min := mersennePrime61
		for _, x := range elems {
			h := (mulMod61(m.a[i], x) + m.b[i]) % mersennePrime61
			if h < min {
				min = h
			}
		}
		sig[i] = int64(min)
	}
	return sig, nil
}

func (m *MinHash[N]) HashPut(v []N) ([]int64, error) {
	return m.HashQuery(v)
}

func (m *MinHash[N]) Similarity(a, b []N) N {
	return vecmath.JaccardSim(a, b)
}
