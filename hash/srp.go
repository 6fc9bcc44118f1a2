package hash

import "lshdb-go/internal/vecmath"

// SignRandomProjections hashes for cosine similarity. Every symbol is the
// sign bit of the dot product between the vector and one random hyperplane,
// so two vectors collide on a symbol with probability 1 - θ/π.
type SignRandomProjections[N Float] struct {
	planes [][]N // k rows of dim entries, i.i.d. N(0,1)
}

var _ VecHash[float32] = (*SignRandomProjections[float32])(nil)

// NewSignRandomProjections draws k hyperplanes of the given dimension from
// the seeded generator.
func NewSignRandomProjections[N Float](k, dim int, seed uint64) *SignRandomProjections[N] {
	rng := NewRNG(seed)
	planes := make([][]N, k)
	for i := range planes {
		row := make([]N, dim)
		for j := range row {
			row[j] = N(rng.NormFloat64())
		}
		planes[i] = row
	}
	return &SignRandomProjections[N]{planes: planes}
}

func (s *SignRandomProjections[N]) HashQuery(v []N) ([]int64, error) {
	sig := make([]int64, len(s.planes))
	for i, plane := range s.planes {
		d := vecmath.Dot(plane, v)
		if !vecmath.IsFinite(d) {
			return nil, ErrNumerical
		}
		if d >= 0 {
			sig[i] = 1
		}
	}
	return sig, nil
}

func (s *SignRandomProjections[N]) HashPut(v []N) ([]int64, error) {
	return s.HashQuery(v)
}

func (s *SignRandomProjections[N]) Similarity(a, b []N) N {
	return vecmath.CosineSim(a, b)
}

// StepWiseProbe returns the primary signature followed by up to budget
// signatures obtained by flipping bits, one bit first, then two bits, in
// ascending index order within each Hamming weight.
func (s *SignRandomProjections[N]) StepWiseProbe(q []N, budget int) ([][]int64, error) {
	primary, err := s.HashQuery(q)
	if err != nil {
		return nil, err
	}
	out := make([][]int64, 0, budget+1)
	out = append(out, primary)

	k := len(primary)
	for weight := 1; weight <= k && len(out) < budget+1; weight++ {
		combs := combinations(k, weight)
		for _, comb := range combs {
			if len(out) == budget+1 {
				break
			}
			sig := make([]int64, k)
			copy(sig, primary)
			for _, i := range comb {
				sig[i] = 1 - sig[i]
			}
			out = append(out, sig)
		}
	}
	return out, nil
}

// combinations lists all size-r index subsets of [0, n) in lexicographic
// order.
func combinations(n, r int) [][]int {
	if r > n {
		return nil
	}
	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	var out [][]int
	for {
		comb := make([]int, r)
		copy(comb, idx)
		out = append(out, comb)

		// advance to the next combination
		i := r - 1
		for i >= 0 && idx[i] == n-r+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < r; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
