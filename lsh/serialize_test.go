package lsh

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lshdb-go/hash"
	"lshdb-go/store"
)

func buildL2Index(t *testing.T) (*LSH[float32], [][]float32) {
	idx, err := New[float32](6, 5, 3).Seed(9).MultiProbe(2).L2(2.5)
	require.NoError(t, err)

	vs := [][]float32{
		{1, 2, 3},
		{1.1, 2.1, 2.9},
		{-4, 0, 2},
		{0.5, 0.5, 0.5},
	}
	_, err = idx.StoreVecs(vs)
	require.NoError(t, err)
	return idx, vs
}

func TestSerializeRoundTrip(t *testing.T) {
	idx, vs := buildL2Index(t)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	loaded, err := Load[float32](bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, idx.Config(), loaded.Config())

	for _, q := range vs {
		want, err := idx.QueryBucketIDs(q)
		require.NoError(t, err)
		got, err := loaded.QueryBucketIDs(q)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		wantK, err := idx.QueryBucketIDsTopK(q, 2)
		require.NoError(t, err)
		gotK, err := loaded.QueryBucketIDsTopK(q, 2)
		require.NoError(t, err)
		assert.Equal(t, wantK, gotK)
	}

	wantStats, err := idx.Describe()
	require.NoError(t, err)
	gotStats, err := loaded.Describe()
	require.NoError(t, err)
	assert.Equal(t, wantStats, gotStats)

	// stores after the round trip stay in lockstep
	extra := []float32{2, 2, 2}
	idWant, err := idx.StoreVec(extra)
	require.NoError(t, err)
	idGot, err := loaded.StoreVec(extra)
	require.NoError(t, err)
	assert.Equal(t, idWant, idGot)

	want, err := idx.QueryBucketIDs(extra)
	require.NoError(t, err)
	got, err := loaded.QueryBucketIDs(extra)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSerializeFileRoundTrip(t *testing.T) {
	idx, vs := buildL2Index(t)
	path := filepath.Join(t.TempDir(), "index.lshx")

	require.NoError(t, idx.SaveFile(path))
	loaded, err := LoadFile[float32](path)
	require.NoError(t, err)

	got, err := loaded.QueryBucketIDs(vs[0])
	require.NoError(t, err)
	want, err := idx.QueryBucketIDs(vs[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSerializeMIPSKeepsFrozenNorm(t *testing.T) {
	idx, err := New[float32](4, 3, 2).Seed(12).MIPS(4.0, 0.83, 2)
	require.NoError(t, err)
	_, err = idx.StoreVecs([][]float32{{3, 4}, {1, 0}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))
	loaded, err := Load[float32](&buf)
	require.NoError(t, err)

	assert.Equal(t, 5.0, loaded.hashers[0].(*hash.MIPS[float32]).MaxNorm())

	// both instances hash a later point identically
	idWant, err := idx.StoreVec([]float32{7, 0})
	require.NoError(t, err)
	idGot, err := loaded.StoreVec([]float32{7, 0})
	require.NoError(t, err)
	assert.Equal(t, idWant, idGot)

	want, err := idx.QueryBucketIDs([]float32{3, 4})
	require.NoError(t, err)
	got, err := loaded.QueryBucketIDs([]float32{3, 4})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSerializeMinHashRoundTrip(t *testing.T) {
	idx, err := New[float64](2, 6, 4).Seed(8).MinHash()
	require.NoError(t, err)
	_, err = idx.StoreVecs([][]float64{{1, 2, 3, 4}, {3, 4, 5, 6}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))
	loaded, err := Load[float64](&buf)
	require.NoError(t, err)

	want, err := idx.QueryBucketIDs([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	got, err := loaded.QueryBucketIDs([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	idx, _ := buildL2Index(t)
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	data := buf.Bytes()
	data[0] = 'X'
	_, err := Load[float32](bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	idx, _ := buildL2Index(t)
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	data := buf.Bytes()
	data[4] = 99
	_, err := Load[float32](bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestLoadRejectsCorruptedPayload(t *testing.T) {
	idx, _ := buildL2Index(t)
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	data := buf.Bytes()
	data[20] ^= 0xff
	_, err := Load[float32](bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorruptedState)
}

func TestLoadRejectsTruncated(t *testing.T) {
	idx, _ := buildL2Index(t)
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	data := buf.Bytes()
	_, err := Load[float32](bytes.NewReader(data[:len(data)/2]))
	assert.ErrorIs(t, err, ErrCorruptedState)
}

func TestLoadRejectsElementWidthMismatch(t *testing.T) {
	idx, _ := buildL2Index(t)
	var buf bytes.Buffer
	require.NoError(t, idx.Save(&buf))

	_, err := Load[float64](bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrCorruptedState)
}

func TestSaveRequiresMemoryBackend(t *testing.T) {
	backend, err := store.NewSQLTableMem[float32](3, false)
	require.NoError(t, err)
	idx, err := New[float32](4, 3, 2).Seed(1).Backend(backend).SRP()
	require.NoError(t, err)
	defer idx.Close()

	var buf bytes.Buffer
	assert.Error(t, idx.Save(&buf))
}
