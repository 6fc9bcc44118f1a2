package store

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring"

	"lshdb-go/hash"
)

// MemoryTable keeps buckets and vectors in process memory. Buckets are
// roaring bitmaps keyed by the packed signature.
type MemoryTable[N hash.Float] struct {
	tables    []map[string]*roaring.Bitmap
	vectors   [][]N
	onlyIndex bool
	nextID    uint32
}

var _ HashTables[float32] = (*MemoryTable[float32])(nil)

// NewMemoryTable creates an empty in-memory backend with nTables bucket
// tables. With onlyIndex set, vectors are not retained.
func NewMemoryTable[N hash.Float](nTables int, onlyIndex bool) *MemoryTable[N] {
	tables := make([]map[string]*roaring.Bitmap, nTables)
	for i := range tables {
		tables[i] = make(map[string]*roaring.Bitmap)
	}
	return &MemoryTable[N]{tables: tables, onlyIndex: onlyIndex}
}

func (m *MemoryTable[N]) Put(table int, key string, id uint32) error {
	tbl := m.tables[table]
	bucket, ok := tbl[key]
	if !ok {
		bucket = roaring.New()
		tbl[key] = bucket
	}
	bucket.Add(id)
	return nil
}

func (m *MemoryTable[N]) Query(table int, key string) (*roaring.Bitmap, error) {
	if bucket, ok := m.tables[table][key]; ok {
		return bucket, nil
	}
	return roaring.New(), nil
}

func (m *MemoryTable[N]) Delete(table int, key string, id uint32) error {
	if bucket, ok := m.tables[table][key]; ok {
		bucket.Remove(id)
	}
	return nil
}

func (m *MemoryTable[N]) StoreVector(v []N) (uint32, error) {
	id := m.nextID
	m.nextID++
	if !m.onlyIndex {
		cp := make([]N, len(v))
		copy(cp, v)
		m.vectors = append(m.vectors, cp)
	}
	return id, nil
}

func (m *MemoryTable[N]) GetVector(id uint32) ([]N, error) {
	if m.onlyIndex {
		return nil, ErrNoVectorStore
	}
	if int(id) >= len(m.vectors) {
		return nil, ErrNotFound
	}
	return m.vectors[id], nil
}

func (m *MemoryTable[N]) Position(v []N) (uint32, error) {
	if m.onlyIndex {
		return 0, ErrNoVectorStore
	}
	for id, stored := range m.vectors {
		if vecEqual(stored, v) {
			return uint32(id), nil
		}
	}
	return 0, ErrNotFound
}

func (m *MemoryTable[N]) IncreaseStorage(n int) {
	if !m.onlyIndex && cap(m.vectors)-len(m.vectors) < n {
		grown := make([][]N, len(m.vectors), len(m.vectors)+n)
		copy(grown, m.vectors)
		m.vectors = grown
	}
}

func (m *MemoryTable[N]) Commit() error { return nil }

func (m *MemoryTable[N]) Describe() (*Stats, error) {
	var lengths []int
	for _, tbl := range m.tables {
		for _, bucket := range tbl {
			lengths = append(lengths, int(bucket.GetCardinality()))
		}
	}
	return statsFromLengths(m.nextID, lengths), nil
}

func (m *MemoryTable[N]) Close() error { return nil }

// NTables returns the number of bucket tables.
func (m *MemoryTable[N]) NTables() int { return len(m.tables) }

// OnlyIndex reports whether vector retention is disabled.
func (m *MemoryTable[N]) OnlyIndex() bool { return m.onlyIndex }

// EncodeTo writes the full table contents in the binary layout used by
// index serialization: bucket tables with their roaring bitmaps, then the
// retained vectors.
func (m *MemoryTable[N]) EncodeTo(w io.Writer) error {
	write := func(v any) error { return binary.Write(w, binary.BigEndian, v) }

	if err := write(uint32(len(m.tables))); err != nil {
		return err
	}
	var flags uint8
	if m.onlyIndex {
		flags = 1
	}
	if err := write(flags); err != nil {
		return err
	}
	if err := write(m.nextID); err != nil {
		return err
	}
	for _, tbl := range m.tables {
		if err := write(uint32(len(tbl))); err != nil {
			return err
		}
		for key, bucket := range tbl {
			if err := write(uint32(len(key))); err != nil {
				return err
			}
			if _, err := io.WriteString(w, key); err != nil {
				return err
			}
			blob, err := bucket.MarshalBinary()
			if err != nil {
				return err
			}
			if err := write(uint32(len(blob))); err != nil {
				return err
			}
			if _, err := w.Write(blob); err != nil {
				return err
			}
		}
	}
	if err := write(uint32(len(m.vectors))); err != nil {
		return err
	}
	for _, v := range m.vectors {
		blob := EncodeVector(v)
		if err := write(uint32(len(blob))); err != nil {
			return err
		}
		if _, err := w.Write(blob); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMemoryTable reads the layout written by EncodeTo.
func DecodeMemoryTable[N hash.Float](r io.Reader) (*MemoryTable[N], error) {
	read := func(v any) error { return binary.Read(r, binary.BigEndian, v) }

	var nTables uint32
	if err := read(&nTables); err != nil {
		return nil, err
	}
	var flags uint8
	if err := read(&flags); err != nil {
		return nil, err
	}
	m := NewMemoryTable[N](int(nTables), flags&1 != 0)
	if err := read(&m.nextID); err != nil {
		return nil, err
	}
	for t := range m.tables {
		var nBuckets uint32
		if err := read(&nBuckets); err != nil {
			return nil, err
		}
		for i := uint32(0); i < nBuckets; i++ {
			var keyLen uint32
			if err := read(&keyLen); err != nil {
				return nil, err
			}
			key := make([]byte, keyLen)
			if _, err := io.ReadFull(r, key); err != nil {
				return nil, err
			}
			var blobLen uint32
			if err := read(&blobLen); err != nil {
				return nil, err
			}
			blob := make([]byte, blobLen)
			if _, err := io.ReadFull(r, blob); err != nil {
				return nil, err
			}
			bucket := roaring.New()
			if err := bucket.UnmarshalBinary(blob); err != nil {
				return nil, fmt.Errorf("bucket bitmap: %w", err)
			}
			m.tables[t][string(key)] = bucket
		}
	}
	var nVectors uint32
	if err := read(&nVectors); err != nil {
		return nil, err
	}
	for i := uint32(0); i < nVectors; i++ {
		var blobLen uint32
		if err := read(&blobLen); err != nil {
			return nil, err
		}
		blob := make([]byte, blobLen)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, err
		}
		m.vectors = append(m.vectors, DecodeVector[N](blob))
	}
	return m, nil
}
