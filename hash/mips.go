package hash

import "lshdb-go/internal/vecmath"

// MIPS hashes for maximum inner product search using the asymmetric
// transform of Shrivastava and Li: stored points are scaled into a ball of
// radius u and extended with powers of their squared norm, queries are
// normalized to unit length and extended with constant halves. The extended
// vectors are hashed by an inner L2 hasher over dim+m dimensions.
type MIPS[N Float] struct {
	u       N
	m       int
	dim     int
	maxNorm N // frozen at first Fit; zero means not fitted
	hasher  *L2[N]
}

var _ VecHash[float32] = (*MIPS[float32])(nil)
var _ QueryDirectedProber[float32] = (*MIPS[float32])(nil)

// NewMIPS builds a MIPS hasher for one table with k projections. r is the
// inner L2 bucket width; u must lie in (0, 1) and m must be at least 1.
func NewMIPS[N Float](dim int, r float64, u float64, m, k int, seed uint64) *MIPS[N] {
	return &MIPS[N]{
		u:      N(u),
		m:      m,
		dim:    dim,
		hasher: NewL2[N](dim+m, r, k, seed),
	}
}

// Fit records the maximum L2 norm over the data set. The first call freezes
// the scale; points stored later are hashed against the frozen norm even if
// they are longer. A later Fit call is a no-op.
func (mh *MIPS[N]) Fit(vs [][]N) error {
	if mh.maxNorm > 0 {
		return nil
	}
	var max N
	for _, v := range vs {
		if n := vecmath.Norm(v); n > max {
			max = n
		}
	}
	if !vecmath.IsFinite(max) || max == 0 {
		return ErrNumerical
	}
	mh.maxNorm = max
	return nil
}

// Fitted reports whether the norm scale has been frozen.
func (mh *MIPS[N]) Fitted() bool { return mh.maxNorm > 0 }

// MaxNorm returns the frozen scale, zero when not fitted.
func (mh *MIPS[N]) MaxNorm() float64 { return float64(mh.maxNorm) }

// SetMaxNorm restores a frozen scale, used when deserializing an index.
func (mh *MIPS[N]) SetMaxNorm(norm float64) { mh.maxNorm = N(norm) }

// TransformPut scales a stored point by u/maxNorm and appends
// [‖p‖², ‖p‖⁴, …, ‖p‖^(2m)]. Points larger than the frozen norm are clipped
// back to radius u so the appended series stays bounded.
func (mh *MIPS[N]) TransformPut(v []N) ([]N, error) {
	if mh.maxNorm == 0 {
		return nil, ErrNotFit
	}
	out := make([]N, 0, len(v)+mh.m)
	scale := mh.u / mh.maxNorm
	for _, x := range v {
		out = append(out, x*scale)
	}
	if n := vecmath.Norm(out); n > mh.u {
		clip := mh.u / n
		for i := range out {
			out[i] *= clip
		}
	}
	normSq := vecmath.Dot(out, out)
	pow := N(1)
	for i := 0; i < mh.m; i++ {
		pow *= normSq
		out = append(out, pow)
	}
	return out, nil
}

// TransformQuery normalizes a query to unit length and appends m halves.
func (mh *MIPS[N]) TransformQuery(v []N) []N {
	out := make([]N, 0, len(v)+mh.m)
	n := vecmath.Norm(v)
	for _, x := range v {
		out = append(out, x/n)
	}
	for i := 0; i < mh.m; i++ {
		out = append(out, N(0.5))
	}
	return out
}

func (mh *MIPS[N]) HashQuery(v []N) ([]int64, error) {
	return mh.hasher.HashQuery(mh.TransformQuery(v))
}

func (mh *MIPS[N]) HashPut(v []N) ([]int64, error) {
	p, err := mh.TransformPut(v)
	if err != nil {
		return nil, err
	}
	return mh.hasher.HashQuery(p)
}

// Similarity is the inner product on the original, untransformed vectors.
func (mh *MIPS[N]) Similarity(a, b []N) N {
	return vecmath.Dot(a, b)
}

// QueryDirectedProbe probes the inner L2 hasher with the transformed query.
func (mh *MIPS[N]) QueryDirectedProbe(q []N, budget int) ([][]int64, error) {
	return mh.hasher.QueryDirectedProbe(mh.TransformQuery(q), budget)
}
