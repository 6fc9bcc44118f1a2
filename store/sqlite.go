package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	_ "modernc.org/sqlite"

	"lshdb-go/hash"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS hashes (
	table_id INTEGER NOT NULL,
	hash     BLOB NOT NULL,
	id       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS hashes_lookup ON hashes (table_id, hash);
CREATE TABLE IF NOT EXISTS vectors (
	id  INTEGER PRIMARY KEY,
	vec BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// SQLTable is a SQLite-backed bucket store. Writes are batched in one open
// transaction and flushed by Commit; reads flush first, so queries always
// observe earlier puts.
type SQLTable[N hash.Float] struct {
	db *sql.DB
	// txMu serializes the commit-on-read path between concurrent readers.
	txMu      sync.Mutex
	tx        *sql.Tx
	nTables   int
	onlyIndex bool
	nextID    uint32
}

var _ HashTables[float32] = (*SQLTable[float32])(nil)

// NewSQLTable opens (or creates) the database at path. An existing database
// resumes from its persisted next id.
func NewSQLTable[N hash.Float](path string, nTables int, onlyIndex bool) (*SQLTable[N], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The single connection keeps the write transaction and reads on the
	// same session.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = OFF;
PRAGMA synchronous = OFF;
PRAGMA cache_size = 100000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &SQLTable[N]{db: db, nTables: nTables, onlyIndex: onlyIndex}
	if err := s.loadNextID(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLTableMem is the buffered in-memory variant, backed by a `:memory:`
// database.
func NewSQLTableMem[N hash.Float](nTables int, onlyIndex bool) (*SQLTable[N], error) {
	return NewSQLTable[N](":memory:", nTables, onlyIndex)
}

func (s *SQLTable[N]) loadNextID() error {
	var blob []byte
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'next_id'`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load next id: %w", err)
	}
	if len(blob) == 8 {
		s.nextID = uint32(binary.BigEndian.Uint64(blob))
	}
	return nil
}

// ensureTx opens the write transaction if none is pending.
func (s *SQLTable[N]) ensureTx() (*sql.Tx, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *SQLTable[N]) Put(table int, key string, id uint32) error {
	tx, err := s.ensureTx()
	if err != nil {
		return err
	}
	// Duplicate rows are tolerated; Query dedups through the bitmap.
	if _, err := tx.Exec(`INSERT INTO hashes (table_id, hash, id) VALUES (?, ?, ?)`,
		table, []byte(key), id); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (s *SQLTable[N]) Query(table int, key string) (*roaring.Bitmap, error) {
	if err := s.Commit(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT id FROM hashes WHERE table_id = ? AND hash = ?`,
		table, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("query bucket: %w", err)
	}
	defer rows.Close()

	bucket := roaring.New()
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("query bucket: %w", err)
		}
		bucket.Add(id)
	}
	return bucket, rows.Err()
}

func (s *SQLTable[N]) Delete(table int, key string, id uint32) error {
	tx, err := s.ensureTx()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM hashes WHERE table_id = ? AND hash = ? AND id = ?`,
		table, []byte(key), id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (s *SQLTable[N]) StoreVector(v []N) (uint32, error) {
	id := s.nextID
	s.nextID++
	if s.onlyIndex {
		return id, nil
	}
	tx, err := s.ensureTx()
	if err != nil {
		return id, err
	}
	if _, err := tx.Exec(`INSERT INTO vectors (id, vec) VALUES (?, ?)`,
		id, EncodeVector(v)); err != nil {
		return id, fmt.Errorf("store vector: %w", err)
	}
	return id, nil
}

func (s *SQLTable[N]) GetVector(id uint32) ([]N, error) {
	if s.onlyIndex {
		return nil, ErrNoVectorStore
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.QueryRow(`SELECT vec FROM vectors WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	return DecodeVector[N](blob), nil
}

func (s *SQLTable[N]) Position(v []N) (uint32, error) {
	if s.onlyIndex {
		return 0, ErrNoVectorStore
	}
	if err := s.Commit(); err != nil {
		return 0, err
	}
	rows, err := s.db.Query(`SELECT id, vec FROM vectors ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("position: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uint32
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return 0, fmt.Errorf("position: %w", err)
		}
		if vecEqual(DecodeVector[N](blob), v) {
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return 0, ErrNotFound
}

func (s *SQLTable[N]) IncreaseStorage(int) {}

// Commit persists the id counter and flushes the pending transaction.
func (s *SQLTable[N]) Commit() error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.tx == nil {
		return nil
	}
	blob := make([]byte, 8)
	binary.BigEndian.PutUint64(blob, uint64(s.nextID))
	if _, err := s.tx.Exec(`INSERT INTO meta (key, value) VALUES ('next_id', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, blob); err != nil {
		return fmt.Errorf("commit meta: %w", err)
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLTable[N]) Describe() (*Stats, error) {
	if err := s.Commit(); err != nil {
		return nil, err
	}
	lens, err := s.db.Query(`SELECT count(DISTINCT id) AS c FROM hashes GROUP BY table_id, hash`)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	defer lens.Close()
	var lengths []int
	for lens.Next() {
		var c int
		if err := lens.Scan(&c); err != nil {
			return nil, fmt.Errorf("describe: %w", err)
		}
		lengths = append(lengths, c)
	}
	if err := lens.Err(); err != nil {
		return nil, err
	}
	return statsFromLengths(s.nextID, lengths), nil
}

func (s *SQLTable[N]) Close() error {
	if err := s.Commit(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
