// Package store provides the bucket storage backends behind an LSH index:
// an in-memory table, a SQLite-backed table and a nutsdb-backed table. A
// backend maps (table, signature key) to a set of point ids and, unless the
// index runs in only-index mode, retains the stored vectors.
package store

import (
	"encoding/binary"
	"errors"
	"iter"
	"math"

	"github.com/RoaringBitmap/roaring"

	"lshdb-go/hash"
)

var (
	// ErrNotFound is returned when a point id or vector is unknown.
	ErrNotFound = errors.New("not found")
	// ErrNoVectorStore is returned when an operation needs retained vectors
	// but the backend runs in only-index mode.
	ErrNoVectorStore = errors.New("vector storage disabled")
)

// HashTables is the storage contract of an index: L bucket tables plus the
// vector store and the id allocator. Mutation is exclusive, reads are
// shared; the index enforces this. The in-memory backend does not lock; the
// SQLite backend locks only around its pending write transaction.
type HashTables[N hash.Float] interface {
	// Put adds id to the bucket (table, key). Adding an existing id is a
	// no-op.
	Put(table int, key string, id uint32) error
	// Query returns the ids previously put under (table, key). A missing
	// bucket yields an empty set.
	Query(table int, key string) (*roaring.Bitmap, error)
	// Delete removes id from the bucket (table, key) if present.
	Delete(table int, key string, id uint32) error

	// StoreVector mints the next id and, when vectors are retained, records
	// v under it. Ids are dense, 0-based and never reused.
	StoreVector(v []N) (uint32, error)
	// GetVector returns the vector stored under id.
	GetVector(id uint32) ([]N, error)
	// Position returns the lowest id whose retained vector equals v.
	Position(v []N) (uint32, error)

	// IncreaseStorage pre-reserves capacity for n more points where the
	// backend supports it.
	IncreaseStorage(n int)
	// Commit flushes buffered writes. In-memory backends are a no-op.
	Commit() error
	// Describe reports point and bucket statistics.
	Describe() (*Stats, error)
	Close() error
}

// Stats summarizes backend contents.
type Stats struct {
	Points  uint32  `json:"points"`
	Buckets int     `json:"buckets"`
	Mean    float64 `json:"mean"`
	Stdev   float64 `json:"stdev"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

// statsFromLengths aggregates bucket lengths into Stats.
func statsFromLengths(points uint32, lengths []int) *Stats {
	st := &Stats{Points: points, Buckets: len(lengths)}
	if len(lengths) == 0 {
		return st
	}
	st.Min = lengths[0]
	var sum, sumSq float64
	for _, l := range lengths {
		if l < st.Min {
			st.Min = l
		}
		if l > st.Max {
			st.Max = l
		}
		sum += float64(l)
		sumSq += float64(l) * float64(l)
	}
	n := float64(len(lengths))
	st.Mean = sum / n
	st.Stdev = math.Sqrt(sumSq/n - st.Mean*st.Mean)
	return st
}

// KVPair is one entry yielded by a backend iterator.
type KVPair struct {
	Key   []byte
	Value []byte
}

// KVIterator ranges over backend entries.
type KVIterator iter.Seq[KVPair]

// EncodeVector packs a vector into the BLOB layout shared by the persistent
// backends: 8 little-endian bytes per element, float64 bits.
func EncodeVector[N hash.Float](v []N) []byte {
	buf := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(float64(x)))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector[N hash.Float](b []byte) []N {
	v := make([]N, len(b)/8)
	for i := range v {
		v[i] = N(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
	}
	return v
}

// EncodeID converts a point id to the byte key used by persistent backends.
func EncodeID(id uint32) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// DecodeID converts a byte key back to a point id.
func DecodeID(key []byte) uint32 {
	if len(key) < 8 {
		return 0
	}
	return uint32(binary.BigEndian.Uint64(key))
}

// vecEqual reports element-wise equality.
func vecEqual[N hash.Float](a, b []N) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
