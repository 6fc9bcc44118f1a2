package lsh

import (
	"fmt"

	"lshdb-go/hash"
	"lshdb-go/store"
)

// Family identifies the hash family of an index.
type Family string

const (
	FamilySRP     Family = "srp"
	FamilyL2      Family = "l2"
	FamilyMIPS    Family = "mips"
	FamilyMinHash Family = "minhash"
)

// Builder configures an index before a family finalizer constructs it.
//
//	idx, err := lsh.New[float32](9, 30, 3).Seed(42).SRP()
type Builder[N hash.Float] struct {
	k, l, dim int
	seed      uint64
	onlyIndex bool
	budget    int
	reserve   int
	backend   store.HashTables[N]
}

// New starts a builder for an index with hash length k, l hash tables and
// vector dimension dim.
func New[N hash.Float](k, l, dim int) *Builder[N] {
	return &Builder[N]{k: k, l: l, dim: dim}
}

// Seed sets the seed of the hasher parameter generators. Seed 0 (the
// default) seeds from OS entropy.
func (b *Builder[N]) Seed(seed uint64) *Builder[N] {
	b.seed = seed
	return b
}

// OnlyIndex disables vector retention: the index stores point ids only and
// cannot re-rank or expand buckets to vectors.
func (b *Builder[N]) OnlyIndex() *Builder[N] {
	b.onlyIndex = true
	return b
}

// MultiProbe sets the number of extra buckets probed per table at query
// time. Zero (the default) probes only the primary bucket.
func (b *Builder[N]) MultiProbe(budget int) *Builder[N] {
	b.budget = budget
	return b
}

// IncreaseStorage pre-reserves backend capacity for n points.
func (b *Builder[N]) IncreaseStorage(n int) *Builder[N] {
	b.reserve = n
	return b
}

// Backend replaces the default in-memory backend. The backend must have
// been created with the same table count and vector retention mode.
func (b *Builder[N]) Backend(ht store.HashTables[N]) *Builder[N] {
	b.backend = ht
	return b
}

// SRP finalizes a cosine-similarity index over sign random projections.
func (b *Builder[N]) SRP() (*LSH[N], error) {
	return b.build(FamilySRP, 0, 0, 0)
}

// L2 finalizes a Euclidean index over p-stable projections with bucket
// width r.
func (b *Builder[N]) L2(r float64) (*LSH[N], error) {
	return b.build(FamilyL2, r, 0, 0)
}

// MIPS finalizes a maximum inner product index. r is the inner L2 bucket
// width, u the norm bound in (0, 1) and m the augmentation length.
func (b *Builder[N]) MIPS(r, u float64, m int) (*LSH[N], error) {
	return b.build(FamilyMIPS, r, u, m)
}

// MinHash finalizes a Jaccard index over integer sets. The index dimension
// is not enforced on set inputs; sets of any positive length are accepted.
func (b *Builder[N]) MinHash() (*LSH[N], error) {
	return b.build(FamilyMinHash, 0, 0, 0)
}

func (b *Builder[N]) build(family Family, r, u float64, m int) (*LSH[N], error) {
	if b.k < 1 || b.l < 1 || b.dim < 1 {
		return nil, fmt.Errorf("%w: k, l and dim must be at least 1 (k=%d l=%d dim=%d)",
			ErrInvalidConfig, b.k, b.l, b.dim)
	}
	switch family {
	case FamilyL2:
		if r <= 0 {
			return nil, fmt.Errorf("%w: r must be positive, got %v", ErrInvalidConfig, r)
		}
	case FamilyMIPS:
		if r <= 0 {
			return nil, fmt.Errorf("%w: r must be positive, got %v", ErrInvalidConfig, r)
		}
		if u <= 0 || u >= 1 {
			return nil, fmt.Errorf("%w: u must lie in (0, 1), got %v", ErrInvalidConfig, u)
		}
		if m < 1 {
			return nil, fmt.Errorf("%w: m must be at least 1, got %d", ErrInvalidConfig, m)
		}
	}

	master := hash.NewRNG(b.seed)
	subSeeds := make([]uint64, b.l)
	for i := range subSeeds {
		subSeeds[i] = master.Uint64()
	}
	hashers := newHashers[N](family, b.k, b.dim, r, u, m, subSeeds)

	backend := b.backend
	if backend == nil {
		backend = store.NewMemoryTable[N](b.l, b.onlyIndex)
	}
	if b.reserve > 0 {
		backend.IncreaseStorage(b.reserve)
	}

	return &LSH[N]{
		family:       family,
		nProjections: b.k,
		nTables:      b.l,
		dim:          b.dim,
		seed:         b.seed,
		subSeeds:     subSeeds,
		r:            r,
		u:            u,
		m:            m,
		onlyIndex:    b.onlyIndex,
		budget:       b.budget,
		hashers:      hashers,
		tables:       backend,
	}, nil
}

// newHashers materializes the per-table hashers from their sub-seeds. Also
// used when deserializing an index.
func newHashers[N hash.Float](family Family, k, dim int, r, u float64, m int, subSeeds []uint64) []hash.VecHash[N] {
	hashers := make([]hash.VecHash[N], len(subSeeds))
	for i, seed := range subSeeds {
		switch family {
		case FamilySRP:
			hashers[i] = hash.NewSignRandomProjections[N](k, dim, seed)
		case FamilyL2:
			hashers[i] = hash.NewL2[N](dim, r, k, seed)
		case FamilyMIPS:
			hashers[i] = hash.NewMIPS[N](dim, r, u, m, k, seed)
		case FamilyMinHash:
			hashers[i] = hash.NewMinHash[N](k, seed)
		}
	}
	return hashers
}
