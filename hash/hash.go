// Package hash implements the locality sensitive hash families: sign random
// projections for cosine similarity, p-stable projections for Euclidean
// distance, the asymmetric MIPS transform for maximum inner product and
// MinHash for Jaccard similarity. A hasher turns one vector into one
// signature of K int64 symbols for a single table; an index owns L of them.
package hash

import "errors"

// Float covers the element types supported for data points.
type Float interface {
	~float32 | ~float64
}

var (
	// ErrNotFit is returned when a hasher needs global statistics (the MIPS
	// maximum norm) that have not been fitted yet.
	ErrNotFit = errors.New("hasher is not fitted")
	// ErrNumerical is returned when a projection or input is not finite.
	ErrNumerical = errors.New("non-finite value in hash computation")
	// ErrProbesDepleted is returned when a multi-probe enumeration runs out
	// of perturbation combinations before the budget is spent.
	ErrProbesDepleted = errors.New("probing combinations depleted")
)

// VecHash is one member of a hash family, parameterized for a single table.
//
// HashPut hashes a vector that is being stored, HashQuery one that is being
// queried. The two only differ for asymmetric families (MIPS); symmetric
// families implement HashPut as HashQuery.
type VecHash[N Float] interface {
	HashQuery(v []N) ([]int64, error)
	HashPut(v []N) ([]int64, error)

	// Similarity is the family's exact similarity, used for re-ranking
	// candidates. Higher is more similar.
	Similarity(a, b []N) N
}

// StepWiseProber yields the primary signature followed by signatures at
// increasing Hamming distance. Implemented by bit-valued hashers.
type StepWiseProber[N Float] interface {
	StepWiseProbe(q []N, budget int) ([][]int64, error)
}

// QueryDirectedProber yields the primary signature followed by perturbed
// signatures in increasing order of expected distance to the query
// projection. Implemented by bucket-valued hashers.
type QueryDirectedProber[N Float] interface {
	QueryDirectedProbe(q []N, budget int) ([][]int64, error)
}
