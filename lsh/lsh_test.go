package lsh

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lshdb-go/hash"
	"lshdb-go/store"
)

func TestBuilderValidation(t *testing.T) {
	_, err := New[float32](0, 10, 3).SRP()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New[float32](5, 0, 3).SRP()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New[float32](5, 10, 0).SRP()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New[float32](5, 10, 3).L2(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New[float32](5, 10, 3).L2(-1)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New[float32](5, 10, 3).MIPS(4.0, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New[float32](5, 10, 3).MIPS(4.0, 1.0, 3)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New[float32](5, 10, 3).MIPS(4.0, 0.83, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	idx, err := New[float32](5, 10, 3).Seed(1).SRP()
	require.NoError(t, err)
	assert.Equal(t, FamilySRP, idx.Config().Family)
}

func TestSRPSmoke(t *testing.T) {
	idx, err := New[float32](9, 30, 3).Seed(42).SRP()
	require.NoError(t, err)

	ids, err := idx.StoreVecs([][]float32{{1, 1.5, 2}, {2, 1.1, -0.3}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)

	q := []float32{1.1, 1.2, 1.2}
	got, err := idx.QueryBucketIDs(q)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	for _, id := range got {
		assert.Contains(t, []uint32{0, 1}, id)
	}

	matches, err := idx.QueryBucketIDsTopK(q, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint32(0), matches[0].ID)
}

func TestL2Bucketing(t *testing.T) {
	idx, err := New[float32](8, 3, 2).Seed(7).L2(10.0)
	require.NoError(t, err)

	_, err = idx.StoreVecs([][]float32{{0, 0}, {0.05, 0.05}, {100, 100}})
	require.NoError(t, err)

	ids, err := idx.QueryBucketIDs([]float32{0.05, 0.05})
	require.NoError(t, err)
	assert.Contains(t, ids, uint32(0))
	assert.Contains(t, ids, uint32(1))
	assert.NotContains(t, ids, uint32(2))
}

func TestMIPSScaleFreeze(t *testing.T) {
	idx, err := New[float32](5, 2, 2).Seed(3).MIPS(4.0, 0.83, 3)
	require.NoError(t, err)

	// storing before the scale is fitted fails and mints no id
	_, err = idx.StoreVec([]float32{1, 0})
	assert.ErrorIs(t, err, ErrNotFit)

	ids, err := idx.StoreVecs([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)
	assert.Equal(t, 1.0, idx.hashers[0].(*hash.MIPS[float32]).MaxNorm())

	// a longer vector stored later is hashed against the frozen scale
	id, err := idx.StoreVec([]float32{5, 0})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id)
	for _, h := range idx.hashers {
		assert.Equal(t, 1.0, h.(*hash.MIPS[float32]).MaxNorm())
	}
}

func TestMinHashJaccard(t *testing.T) {
	idx, err := New[float64](1, 32, 4).Seed(21).MinHash()
	require.NoError(t, err)

	// set-valued inputs may differ in length
	a := []float64{1, 2, 3, 4}
	b := []float64{3, 4, 5, 6}
	c := []float64{100, 101}
	ids, err := idx.StoreVecs([][]float64{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids)

	got, err := idx.QueryBucketIDs(a)
	require.NoError(t, err)
	assert.Contains(t, got, uint32(0))
	assert.Contains(t, got, uint32(1))
	assert.NotContains(t, got, uint32(2))

	matches, err := idx.QueryBucketIDsTopK(a, 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, uint32(0), matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-12)
}

func TestDeterminism(t *testing.T) {
	build := func() *LSH[float32] {
		idx, err := New[float32](6, 8, 4).Seed(11).L2(2.0)
		require.NoError(t, err)
		return idx
	}
	a, b := build(), build()

	rng := rand.New(rand.NewPCG(5, 5))
	var vs [][]float32
	for i := 0; i < 40; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vs = append(vs, v)
	}
	idsA, err := a.StoreVecs(vs)
	require.NoError(t, err)
	idsB, err := b.StoreVecs(vs)
	require.NoError(t, err)
	assert.Equal(t, idsA, idsB)

	for _, q := range vs[:10] {
		ra, err := a.QueryBucketIDs(q)
		require.NoError(t, err)
		rb, err := b.QueryBucketIDs(q)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestMonotonicIDs(t *testing.T) {
	idx, err := New[float32](4, 5, 2).Seed(1).SRP()
	require.NoError(t, err)

	ids, err := idx.StoreVecs([][]float32{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids)

	more, err := idx.StoreVecs([][]float32{{7, 8}, {9, 10}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 4}, more)
}

func TestStoreVecsPartialFailure(t *testing.T) {
	idx, err := New[float32](4, 5, 2).Seed(1).SRP()
	require.NoError(t, err)

	ids, err := idx.StoreVecs([][]float32{{1, 2}, {3, 4, 5}, {6, 7}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, []uint32{0}, ids)

	// the failed vector and its successors minted no ids
	id, err := idx.StoreVec([]float32{6, 7})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}

func TestDimensionMismatchMintsNoID(t *testing.T) {
	idx, err := New[float32](4, 5, 2).Seed(1).SRP()
	require.NoError(t, err)

	_, err = idx.StoreVec([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	id, err := idx.StoreVec([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	_, err = idx.QueryBucketIDs([]float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTopKOrdering(t *testing.T) {
	idx, err := New[float32](5, 10, 2).Seed(4).SRP()
	require.NoError(t, err)

	_, err = idx.StoreVecs([][]float32{{1, 0}, {1, 0}, {0.9, 0.1}, {-1, 0}})
	require.NoError(t, err)

	matches, err := idx.QueryBucketIDsTopK([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(matches), 2)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
	// the two exact duplicates tie at cosine 1 and come first, id order
	assert.Equal(t, uint32(0), matches[0].ID)
	assert.Equal(t, uint32(1), matches[1].ID)

	top1, err := idx.QueryBucketIDsTopK([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, uint32(0), top1[0].ID)
}

func TestQueryBucketReturnsVectors(t *testing.T) {
	idx, err := New[float32](5, 10, 3).Seed(1).SRP()
	require.NoError(t, err)

	v1 := []float32{2, 3, 4}
	v2 := []float32{-1, -1, 1}
	_, err = idx.StoreVecs([][]float32{v1, v2})
	require.NoError(t, err)

	vecs, err := idx.QueryBucket(v2)
	require.NoError(t, err)
	assert.NotEmpty(t, vecs)
	assert.Contains(t, vecs, v2)
}

func TestOnlyIndexMode(t *testing.T) {
	idx, err := New[float32](5, 10, 3).Seed(1).OnlyIndex().SRP()
	require.NoError(t, err)

	v := []float32{2, 3, 4}
	id, err := idx.StoreVec(v)
	require.NoError(t, err)

	ids, err := idx.QueryBucketIDs(v)
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	_, err = idx.QueryBucket(v)
	assert.ErrorIs(t, err, ErrNoVectorStore)
	_, err = idx.QueryBucketIDsTopK(v, 1)
	assert.ErrorIs(t, err, ErrNoVectorStore)
	err = idx.DeleteVec(v)
	assert.ErrorIs(t, err, ErrNoVectorStore)
}

func TestSelfRetrieval(t *testing.T) {
	idx, err := New[float32](8, 4, 3).Seed(2).L2(3.0)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 9))
	var vs [][]float32
	for i := 0; i < 25; i++ {
		v := make([]float32, 3)
		for j := range v {
			v[j] = float32(rng.NormFloat64() * 2)
		}
		vs = append(vs, v)
	}
	ids, err := idx.StoreVecs(vs)
	require.NoError(t, err)

	for i, v := range vs {
		got, err := idx.QueryBucketIDs(v)
		require.NoError(t, err)
		assert.Contains(t, got, ids[i])
	}
}

func TestMultiProbeMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	var vs [][]float32
	for i := 0; i < 50; i++ {
		v := make([]float32, 2)
		for j := range v {
			v[j] = float32(rng.NormFloat64() * 3)
		}
		vs = append(vs, v)
	}
	q := []float32{0.1, 0.2}

	candidates := func(budget int) []uint32 {
		idx, err := New[float32](4, 2, 2).Seed(13).MultiProbe(budget).L2(1.0)
		require.NoError(t, err)
		_, err = idx.StoreVecs(vs)
		require.NoError(t, err)
		ids, err := idx.QueryBucketIDs(q)
		require.NoError(t, err)
		return ids
	}

	prev := candidates(0)
	for _, budget := range []int{2, 4, 8} {
		cur := candidates(budget)
		for _, id := range prev {
			assert.Contains(t, cur, id, "budget %d lost id %d", budget, id)
		}
		prev = cur
	}
}

func TestMultiProbeRecallGainSRP(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 8))
	var vs [][]float32
	for i := 0; i < 100; i++ {
		v := make([]float32, 3)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vs = append(vs, v)
	}
	q := []float32{0.5, -0.5, 0.5}

	candidates := func(budget int) []uint32 {
		idx, err := New[float32](3, 1, 3).Seed(5).MultiProbe(budget).SRP()
		require.NoError(t, err)
		_, err = idx.StoreVecs(vs)
		require.NoError(t, err)
		ids, err := idx.QueryBucketIDs(q)
		require.NoError(t, err)
		return ids
	}

	base := candidates(0)
	// budget 7 probes every 3-bit signature, so every point is a candidate
	all := candidates(7)
	assert.Len(t, all, len(vs))
	assert.Greater(t, len(all), len(base))
	for _, id := range base {
		assert.Contains(t, all, id)
	}
}

func TestMinHashIgnoresProbeBudget(t *testing.T) {
	idx, err := New[float64](2, 4, 4).Seed(1).MultiProbe(8).MinHash()
	require.NoError(t, err)

	_, err = idx.StoreVecs([][]float64{{1, 2, 3}, {7, 8, 9}})
	require.NoError(t, err)

	ids, err := idx.QueryBucketIDs([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Contains(t, ids, uint32(0))
}

func TestDeleteVec(t *testing.T) {
	idx, err := New[float32](5, 10, 3).Seed(1).SRP()
	require.NoError(t, err)

	v := []float32{2, 3, 4}
	other := []float32{-1, -1, 1}
	_, err = idx.StoreVecs([][]float32{v, v, other})
	require.NoError(t, err)

	// the lowest matching id is removed from its buckets
	require.NoError(t, idx.DeleteVec(v))
	ids, err := idx.QueryBucketIDs(v)
	require.NoError(t, err)
	assert.NotContains(t, ids, uint32(0))
	assert.Contains(t, ids, uint32(1))

	err = idx.DeleteVec([]float32{9, 9, 9})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateByVector(t *testing.T) {
	idx, err := New[float32](5, 10, 3).Seed(1).SRP()
	require.NoError(t, err)

	old := []float32{2, 3, 4}
	id, err := idx.StoreVec(old)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	// the replacement hashes to the complement buckets, so the old bucket
	// membership must be gone
	updated := []float32{-2, -3, -4}
	newID, err := idx.UpdateByVector(old, updated)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), newID)

	ids, err := idx.QueryBucketIDs(updated)
	require.NoError(t, err)
	assert.Contains(t, ids, uint32(1))

	oldIDs, err := idx.QueryBucketIDs(old)
	require.NoError(t, err)
	assert.NotContains(t, oldIDs, uint32(0))
}

func TestTopKExclude(t *testing.T) {
	idx, err := New[float32](5, 10, 2).Seed(6).SRP()
	require.NoError(t, err)

	v := []float32{1, 0}
	_, err = idx.StoreVecs([][]float32{v, v, {0.9, 0.1}})
	require.NoError(t, err)

	matches, err := idx.QueryBucketIDsTopK(v, 5, WithExclude(0))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.NotEqual(t, uint32(0), m.ID)
	}
	assert.Equal(t, uint32(1), matches[0].ID)
}

func TestQueryBucketIDsBatch(t *testing.T) {
	idx, err := New[float32](5, 8, 2).Seed(6).SRP()
	require.NoError(t, err)

	vs := [][]float32{{1, 0}, {0, 1}, {-1, 0}}
	_, err = idx.StoreVecs(vs)
	require.NoError(t, err)

	batch, err := idx.QueryBucketIDsBatch(vs)
	require.NoError(t, err)
	require.Len(t, batch, len(vs))
	for i, q := range vs {
		single, err := idx.QueryBucketIDs(q)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestSQLiteBackendIndex(t *testing.T) {
	backend, err := store.NewSQLTableMem[float32](4, false)
	require.NoError(t, err)

	idx, err := New[float32](5, 4, 2).Seed(3).Backend(backend).SRP()
	require.NoError(t, err)
	defer idx.Close()

	vs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	ids, err := idx.StoreVecs(vs)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, ids)
	require.NoError(t, idx.Commit())

	for i, v := range vs {
		got, err := idx.QueryBucketIDs(v)
		require.NoError(t, err)
		assert.Contains(t, got, ids[i])
	}

	matches, err := idx.QueryBucketIDsTopK([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint32(0), matches[0].ID)

	stats, err := idx.Describe()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Points)
}

func TestNutsBackendIndex(t *testing.T) {
	backend, err := store.NewNutsTable[float32](t.TempDir(), false)
	require.NoError(t, err)

	idx, err := New[float32](5, 4, 2).Seed(3).Backend(backend).SRP()
	require.NoError(t, err)
	defer idx.Close()

	vs := [][]float32{{1, 0}, {0, 1}}
	ids, err := idx.StoreVecs(vs)
	require.NoError(t, err)

	for i, v := range vs {
		got, err := idx.QueryBucketIDs(v)
		require.NoError(t, err)
		assert.Contains(t, got, ids[i])
	}
}

func TestDescribe(t *testing.T) {
	idx, err := New[float32](4, 6, 2).Seed(2).SRP()
	require.NoError(t, err)

	_, err = idx.StoreVecs([][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)

	stats, err := idx.Describe()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Points)
	assert.Greater(t, stats.Buckets, 0)
	assert.GreaterOrEqual(t, stats.Max, stats.Min)
}

func TestIncreaseStorageBuilder(t *testing.T) {
	idx, err := New[float32](4, 3, 2).Seed(2).IncreaseStorage(100).SRP()
	require.NoError(t, err)

	ids, err := idx.StoreVecs([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)
}
