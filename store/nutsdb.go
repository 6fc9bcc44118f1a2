package store

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/nutsdb/nutsdb"

	"lshdb-go/hash"
)

const (
	bucketHashes  = "hashes"
	bucketVectors = "vectors"
	bucketMeta    = "meta"
)

var keyNextID = []byte("__next_id__")

// NutsTable is a bucket store on an embedded nutsdb key/value database.
// Bucket keys prefix the signature key with the table index; bucket values
// are serialized roaring bitmaps.
type NutsTable[N hash.Float] struct {
	db        *nutsdb.DB
	onlyIndex bool
	nextID    uint32
}

var _ HashTables[float32] = (*NutsTable[float32])(nil)

// NewNutsTable opens (or creates) a nutsdb database under dir. An existing
// database resumes from its persisted next id.
func NewNutsTable[N hash.Float](dir string, onlyIndex bool) (*NutsTable[N], error) {
	opts := nutsdb.DefaultOptions
	opts.Dir = dir
	opts.EntryIdxMode = nutsdb.HintKeyValAndRAMIdxMode
	opts.SegmentSize = 64 * 1024 * 1024

	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open nutsdb: %w", err)
	}
	for _, bucket := range []string{bucketHashes, bucketVectors, bucketMeta} {
		if err := db.Update(func(tx *nutsdb.Tx) error {
			if tx.ExistBucket(nutsdb.DataStructureBTree, bucket) {
				return nil
			}
			return tx.NewBucket(nutsdb.DataStructureBTree, bucket)
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	s := &NutsTable[N]{db: db, onlyIndex: onlyIndex}
	if err := s.loadNextID(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *NutsTable[N]) loadNextID() error {
	return s.db.View(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(bucketMeta, keyNextID)
		if err == nutsdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load next id: %w", err)
		}
		s.nextID = uint32(binary.BigEndian.Uint64(entry))
		return nil
	})
}

// hashKey prefixes the signature key with the table index.
func hashKey(table int, key string) []byte {
	buf := make([]byte, 4+len(key))
	binary.BigEndian.PutUint32(buf, uint32(table))
	copy(buf[4:], key)
	return buf
}

func (s *NutsTable[N]) Put(table int, key string, id uint32) error {
	k := hashKey(table, key)
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		bucket := roaring.New()
		if entry, err := tx.Get(bucketHashes, k); err == nil {
			if err := bucket.UnmarshalBinary(entry); err != nil {
				return fmt.Errorf("bucket bitmap: %w", err)
			}
		} else if err != nutsdb.ErrKeyNotFound {
			return err
		}
		if bucket.Contains(id) {
			return nil
		}
		bucket.Add(id)
		blob, err := bucket.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Put(bucketHashes, k, blob, 0)
	})
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (s *NutsTable[N]) Query(table int, key string) (*roaring.Bitmap, error) {
	bucket := roaring.New()
	err := s.db.View(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(bucketHashes, hashKey(table, key))
		if err == nutsdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return bucket.UnmarshalBinary(entry)
	})
	if err != nil {
		return nil, fmt.Errorf("query bucket: %w", err)
	}
	return bucket, nil
}

func (s *NutsTable[N]) Delete(table int, key string, id uint32) error {
	k := hashKey(table, key)
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(bucketHashes, k)
		if err == nutsdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		bucket := roaring.New()
		if err := bucket.UnmarshalBinary(entry); err != nil {
			return fmt.Errorf("bucket bitmap: %w", err)
		}
		if !bucket.Contains(id) {
			return nil
		}
		bucket.Remove(id)
		blob, err := bucket.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Put(bucketHashes, k, blob, 0)
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (s *NutsTable[N]) StoreVector(v []N) (uint32, error) {
	id := s.nextID
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, uint64(id)+1)
		if err := tx.Put(bucketMeta, keyNextID, next, 0); err != nil {
			return err
		}
		if s.onlyIndex {
			return nil
		}
		return tx.Put(bucketVectors, EncodeID(id), EncodeVector(v), 0)
	})
	if err != nil {
		return id, fmt.Errorf("store vector: %w", err)
	}
	s.nextID++
	return id, nil
}

func (s *NutsTable[N]) GetVector(id uint32) ([]N, error) {
	if s.onlyIndex {
		return nil, ErrNoVectorStore
	}
	var v []N
	err := s.db.View(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(bucketVectors, EncodeID(id))
		if err == nutsdb.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		v = DecodeVector[N](entry)
		return nil
	})
	if err == ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	return v, nil
}

func (s *NutsTable[N]) Position(v []N) (uint32, error) {
	if s.onlyIndex {
		return 0, ErrNoVectorStore
	}
	it, err := s.iterate(bucketVectors)
	if err != nil {
		return 0, err
	}
	found := false
	var id uint32
	for pair := range it {
		if vecEqual(DecodeVector[N](pair.Value), v) {
			found = true
			id = DecodeID(pair.Key)
			break
		}
	}
	if !found {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *NutsTable[N]) IncreaseStorage(int) {}

// Commit is a no-op: every Update transaction is durable on return.
func (s *NutsTable[N]) Commit() error { return nil }

func (s *NutsTable[N]) Describe() (*Stats, error) {
	it, err := s.iterate(bucketHashes)
	if err != nil {
		return nil, err
	}
	var lengths []int
	for pair := range it {
		bucket := roaring.New()
		if err := bucket.UnmarshalBinary(pair.Value); err != nil {
			return nil, fmt.Errorf("bucket bitmap: %w", err)
		}
		lengths = append(lengths, int(bucket.GetCardinality()))
	}
	return statsFromLengths(s.nextID, lengths), nil
}

func (s *NutsTable[N]) Close() error { return s.db.Close() }

// iterate snapshots a bucket and yields its entries in key order.
func (s *NutsTable[N]) iterate(bucket string) (KVIterator, error) {
	var keys, values [][]byte
	err := s.db.View(func(tx *nutsdb.Tx) error {
		var err error
		keys, values, err = tx.GetAll(bucket)
		if err == nutsdb.ErrBucketEmpty {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", bucket, err)
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return string(keys[order[i]]) < string(keys[order[j]])
	})
	return func(yield func(KVPair) bool) {
		for _, i := range order {
			if !yield(KVPair{Key: keys[i], Value: values[i]}) {
				return
			}
		}
	}, nil
}
