// Package lsh implements a locality-sensitive-hashing index for approximate
// nearest neighbor search: l independent hash tables over k-symbol
// signatures, with pluggable hash families for cosine, Euclidean, maximum
// inner product and Jaccard similarity, optional multi-probing and
// exchangeable storage backends.
package lsh

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"lshdb-go/hash"
	"lshdb-go/internal/filter"
	"lshdb-go/store"
)

// LSH is one index instance. Mutating calls are exclusive, queries are
// shared; the index synchronizes internally so callers may parallelize
// queries freely.
type LSH[N hash.Float] struct {
	mu sync.RWMutex

	family       Family
	nProjections int // k
	nTables      int // l
	dim          int
	seed         uint64
	subSeeds     []uint64
	r, u         float64
	m            int
	onlyIndex    bool
	budget       int

	hashers []hash.VecHash[N]
	tables  store.HashTables[N]
}

// Config is the immutable parameter set of an index.
type Config struct {
	Family           Family  `json:"family"`
	K                int     `json:"k"`
	L                int     `json:"l"`
	Dim              int     `json:"dim"`
	Seed             uint64  `json:"seed"`
	R                float64 `json:"r,omitempty"`
	U                float64 `json:"u,omitempty"`
	M                int     `json:"m,omitempty"`
	OnlyIndex        bool    `json:"only_index"`
	MultiProbeBudget int     `json:"multi_probe_budget"`
}

// Config returns the index parameters.
func (e *LSH[N]) Config() Config {
	return Config{
		Family:           e.family,
		K:                e.nProjections,
		L:                e.nTables,
		Dim:              e.dim,
		Seed:             e.seed,
		R:                e.r,
		U:                e.u,
		M:                e.m,
		OnlyIndex:        e.onlyIndex,
		MultiProbeBudget: e.budget,
	}
}

// Match is one re-ranked query result.
type Match struct {
	ID    uint32  `json:"id"`
	Score float64 `json:"score"`
}

// validateVec enforces the index dimension. MinHash inputs are sets, so
// only emptiness is rejected there.
func (e *LSH[N]) validateVec(v []N) error {
	if e.family == FamilyMinHash {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty set", ErrDimensionMismatch)
		}
		return nil
	}
	if len(v) != e.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.dim)
	}
	return nil
}

// StoreVec hashes and stores a single vector, returning its id.
//
// For MIPS the maximum norm must have been fitted first, either via Fit or
// an initial StoreVecs call.
func (e *LSH[N]) StoreVec(v []N) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storeVecLocked(v)
}

func (e *LSH[N]) storeVecLocked(v []N) (uint32, error) {
	if err := e.validateVec(v); err != nil {
		return 0, err
	}
	// Hash against every table before minting the id, so a rejected vector
	// consumes nothing.
	keys := make([]string, e.nTables)
	for i, h := range e.hashers {
		sig, err := h.HashPut(v)
		if err != nil {
			return 0, err
		}
		keys[i] = hash.EncodeKey(sig)
	}
	id, err := e.tables.StoreVector(v)
	if err != nil {
		return 0, fmt.Errorf("backend: %w", err)
	}
	for i, key := range keys {
		if err := e.tables.Put(i, key, id); err != nil {
			// The id is consumed; the point is present in the tables
			// reached so far.
			return id, fmt.Errorf("backend: %w", err)
		}
	}
	return id, nil
}

// StoreVecs stores a batch of vectors and returns their ids, which are
// consecutive in input order. For a MIPS index that has not been fitted
// yet, the batch fixes the maximum norm before any point is hashed.
//
// On failure the ids assigned before the first error are returned together
// with that error; later vectors are not stored.
func (e *LSH[N]) StoreVecs(vs [][]N) ([]uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.family == FamilyMIPS && !e.mipsFitted() {
		if err := e.fitLocked(vs); err != nil {
			return nil, err
		}
	}
	e.tables.IncreaseStorage(len(vs))

	ids := make([]uint32, 0, len(vs))
	for _, v := range vs {
		id, err := e.storeVecLocked(v)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Fit records the global statistics a family needs before hashing stored
// points. Only MIPS has any: the maximum norm, frozen at the first call.
// For other families Fit is a no-op.
func (e *LSH[N]) Fit(vs [][]N) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fitLocked(vs)
}

func (e *LSH[N]) fitLocked(vs [][]N) error {
	if e.family != FamilyMIPS {
		return nil
	}
	for _, h := range e.hashers {
		if err := h.(*hash.MIPS[N]).Fit(vs); err != nil {
			return err
		}
	}
	return nil
}

func (e *LSH[N]) mipsFitted() bool {
	return e.hashers[0].(*hash.MIPS[N]).Fitted()
}

// queryBucketUnion unions the matching buckets over all tables, probing
// extra buckets per table when a multi-probe budget is configured.
func (e *LSH[N]) queryBucketUnion(v []N) (*roaring.Bitmap, error) {
	if err := e.validateVec(v); err != nil {
		return nil, err
	}
	out := roaring.New()

	if e.budget > 0 {
		switch e.hashers[0].(type) {
		case hash.QueryDirectedProber[N]:
			for i, h := range e.hashers {
				probes, err := h.(hash.QueryDirectedProber[N]).QueryDirectedProbe(v, e.budget)
				if err != nil {
					return nil, err
				}
				if err := e.unionBuckets(i, probes, out); err != nil {
					return nil, err
				}
			}
			return out, nil
		case hash.StepWiseProber[N]:
			for i, h := range e.hashers {
				probes, err := h.(hash.StepWiseProber[N]).StepWiseProbe(v, e.budget)
				if err != nil {
					return nil, err
				}
				if err := e.unionBuckets(i, probes, out); err != nil {
					return nil, err
				}
			}
			return out, nil
		}
		// MinHash has no probing scheme; fall through to the primary
		// buckets only.
	}

	for i, h := range e.hashers {
		sig, err := h.HashQuery(v)
		if err != nil {
			return nil, err
		}
		if err := e.unionBuckets(i, [][]int64{sig}, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *LSH[N]) unionBuckets(table int, sigs [][]int64, out *roaring.Bitmap) error {
	for _, sig := range sigs {
		bucket, err := e.tables.Query(table, hash.EncodeKey(sig))
		if err != nil {
			return fmt.Errorf("backend: %w", err)
		}
		out.Or(bucket)
	}
	return nil
}

// QueryBucket returns the vectors sharing a bucket with q in any table, in
// ascending id order. Requires vector retention.
func (e *LSH[N]) QueryBucket(q []N) ([][]N, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.onlyIndex {
		return nil, fmt.Errorf("%w: use QueryBucketIDs", ErrNoVectorStore)
	}
	candidates, err := e.queryBucketUnion(q)
	if err != nil {
		return nil, err
	}
	out := make([][]N, 0, candidates.GetCardinality())
	for _, id := range candidates.ToArray() {
		v, err := e.tables.GetVector(id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryBucketIDs returns the ids sharing a bucket with q in any table, in
// ascending order.
func (e *LSH[N]) QueryBucketIDs(q []N) ([]uint32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	candidates, err := e.queryBucketUnion(q)
	if err != nil {
		return nil, err
	}
	return candidates.ToArray(), nil
}

// QueryBucketIDsBatch queries bucket collisions for a batch of vectors.
func (e *LSH[N]) QueryBucketIDsBatch(qs [][]N) ([][]uint32, error) {
	out := make([][]uint32, len(qs))
	for i, q := range qs {
		ids, err := e.QueryBucketIDs(q)
		if err != nil {
			return nil, err
		}
		out[i] = ids
	}
	return out, nil
}

// QueryBucketIDsTopK re-ranks the bucket union by the family's exact
// similarity and returns the best k matches in descending score order, ties
// broken by ascending id. Requires vector retention.
func (e *LSH[N]) QueryBucketIDsTopK(q []N, k int, opts ...QueryOption) ([]Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.onlyIndex {
		return nil, fmt.Errorf("%w: top-k re-ranking needs stored vectors", ErrNoVectorStore)
	}
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}

	candidates, err := e.queryBucketUnion(q)
	if err != nil {
		return nil, err
	}
	if qo.exclude != nil {
		qo.exclude.RemoveFrom(candidates)
	}

	matches := make([]Match, 0, candidates.GetCardinality())
	for _, id := range candidates.ToArray() {
		v, err := e.tables.GetVector(id)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{ID: id, Score: float64(e.hashers[0].Similarity(q, v))})
	}
	// Candidates arrive in ascending id order, so a stable sort on score
	// alone leaves ties ordered by id.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteVec removes the lowest id whose stored vector equals v from every
// bucket containing it. The vector slot itself is kept: ids are never
// reused and remaining points are not re-hashed.
func (e *LSH[N]) DeleteVec(v []N) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteVecLocked(v)
}

func (e *LSH[N]) deleteVecLocked(v []N) error {
	if err := e.validateVec(v); err != nil {
		return err
	}
	id, err := e.tables.Position(v)
	if err != nil {
		return err
	}
	for i, h := range e.hashers {
		sig, err := h.HashPut(v)
		if err != nil {
			return err
		}
		if err := e.tables.Delete(i, hash.EncodeKey(sig), id); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	}
	return nil
}

// UpdateByVector stores the replacement under a fresh id and deletes the
// old vector. Ids are not recycled: the returned id is always new.
func (e *LSH[N]) UpdateByVector(oldVec, newVec []N) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.storeVecLocked(newVec)
	if err != nil {
		return 0, err
	}
	if err := e.deleteVecLocked(oldVec); err != nil {
		return id, err
	}
	return id, nil
}

// Describe reports point and bucket statistics of the backend.
func (e *LSH[N]) Describe() (*store.Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tables.Describe()
}

// Commit flushes a transactional backend. In-memory backends are a no-op.
func (e *LSH[N]) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tables.Commit()
}

// Close releases the backend.
func (e *LSH[N]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tables.Close()
}

// QueryOption adjusts a single top-k query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	exclude *filter.IdFilter
}

// WithExclude drops the given ids from the candidate set, e.g. to leave a
// training point out of its own result list.
func WithExclude(ids ...uint32) QueryOption {
	f := filter.NewIdFilter()
	f.AddAll(ids)
	return func(qo *queryOptions) { qo.exclude = f }
}

// WithExcludeFilter drops every id in the filter from the candidate set.
func WithExcludeFilter(f *filter.IdFilter) QueryOption {
	return func(qo *queryOptions) { qo.exclude = f }
}
