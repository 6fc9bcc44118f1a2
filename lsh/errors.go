package lsh

import (
	"errors"

	"lshdb-go/hash"
	"lshdb-go/store"
)

var (
	// ErrInvalidConfig is returned by the builder for out-of-range
	// parameters.
	ErrInvalidConfig = errors.New("invalid index configuration")
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension. No id is minted for the rejected vector.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrVersionMismatch is returned when a serialized index has an unknown
	// magic header or version.
	ErrVersionMismatch = errors.New("unsupported index file version")
	// ErrCorruptedState is returned when a serialized index fails
	// validation.
	ErrCorruptedState = errors.New("corrupted index file")

	// ErrNotFit mirrors the hash package sentinel: an operation needs the
	// MIPS maximum norm before Fit was called.
	ErrNotFit = hash.ErrNotFit
	// ErrNumerical mirrors the hash package sentinel for non-finite inputs
	// or projections.
	ErrNumerical = hash.ErrNumerical
	// ErrNotFound mirrors the store sentinel for unknown ids or vectors.
	ErrNotFound = store.ErrNotFound
	// ErrNoVectorStore mirrors the store sentinel: the operation needs
	// retained vectors but the index is in only-index mode.
	ErrNoVectorStore = store.ErrNoVectorStore
)
