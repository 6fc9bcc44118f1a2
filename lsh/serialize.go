package lsh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"lshdb-go/hash"
	"lshdb-go/store"
)

// Self-describing binary layout:
//
//	[4 bytes: magic "LSHX"]
//	[1 byte:  version]
//	[8 bytes: payload length]
//	[payload]
//	[4 bytes: CRC32 (IEEE) of the payload]
//
// The payload carries the configuration, the per-table hasher sub-seeds
// (hasher parameters are a pure function of sub-seed and configuration),
// the frozen MIPS norm and the backend contents. Only the in-memory
// backend is serializable; persistent backends carry their own state.

var serializeMagic = [4]byte{'L', 'S', 'H', 'X'}

const serializeVersion uint8 = 1

const backendTagMemory uint8 = 0

var familyTags = map[Family]uint8{
	FamilySRP:     0,
	FamilyL2:      1,
	FamilyMIPS:    2,
	FamilyMinHash: 3,
}

// elemSize returns the width of the element type in bytes.
func elemSize[N hash.Float]() uint8 {
	var z N
	switch any(z).(type) {
	case float32:
		return 4
	default:
		return 8
	}
}

// Save writes the index in the LSHX layout. The backend must be the
// in-memory table.
func (e *LSH[N]) Save(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	mem, ok := e.tables.(*store.MemoryTable[N])
	if !ok {
		return fmt.Errorf("serialization requires the in-memory backend, got %T", e.tables)
	}

	var payload bytes.Buffer
	write := func(v any) error { return binary.Write(&payload, binary.BigEndian, v) }

	if err := write(familyTags[e.family]); err != nil {
		return err
	}
	for _, v := range []uint32{uint32(e.nProjections), uint32(e.nTables), uint32(e.dim)} {
		if err := write(v); err != nil {
			return err
		}
	}
	if err := write(e.seed); err != nil {
		return err
	}
	var flags uint8
	if e.onlyIndex {
		flags |= 1
	}
	if err := write(flags); err != nil {
		return err
	}
	if err := write(uint32(e.budget)); err != nil {
		return err
	}
	for _, v := range []float64{e.r, e.u} {
		if err := write(v); err != nil {
			return err
		}
	}
	if err := write(uint32(e.m)); err != nil {
		return err
	}
	var maxNorm float64
	if e.family == FamilyMIPS {
		maxNorm = e.hashers[0].(*hash.MIPS[N]).MaxNorm()
	}
	if err := write(maxNorm); err != nil {
		return err
	}
	for _, s := range e.subSeeds {
		if err := write(s); err != nil {
			return err
		}
	}
	if err := write(elemSize[N]()); err != nil {
		return err
	}
	if err := write(backendTagMemory); err != nil {
		return err
	}
	if err := mem.EncodeTo(&payload); err != nil {
		return err
	}

	if _, err := w.Write(serializeMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, serializeVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint64(payload.Len())); err != nil {
		return err
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, crc32.ChecksumIEEE(payload.Bytes()))
}

// SaveFile writes the index to a file.
func (e *LSH[N]) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads an index written by Save.
func Load[N hash.Float](r io.Reader) (*LSH[N], error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	if magic != serializeMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrVersionMismatch, magic[:])
	}
	var version uint8
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	if version != serializeVersion {
		return nil, fmt.Errorf("%w: version %d", ErrVersionMismatch, version)
	}
	var payloadLen uint64
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	var checksum uint32
	if err := binary.Read(r, binary.BigEndian, &checksum); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	if checksum != crc32.ChecksumIEEE(payload) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptedState)
	}
	return decodePayload[N](bytes.NewReader(payload))
}

// LoadFile reads an index from a file.
func LoadFile[N hash.Float](path string) (*LSH[N], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load[N](f)
}

func decodePayload[N hash.Float](r io.Reader) (*LSH[N], error) {
	read := func(v any) error { return binary.Read(r, binary.BigEndian, v) }
	corrupted := func(err error) (*LSH[N], error) {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}

	var familyTag uint8
	if err := read(&familyTag); err != nil {
		return corrupted(err)
	}
	var family Family
	for f, tag := range familyTags {
		if tag == familyTag {
			family = f
		}
	}
	if family == "" {
		return nil, fmt.Errorf("%w: unknown family tag %d", ErrCorruptedState, familyTag)
	}
	var k, l, dim uint32
	if err := read(&k); err != nil {
		return corrupted(err)
	}
	if err := read(&l); err != nil {
		return corrupted(err)
	}
	if err := read(&dim); err != nil {
		return corrupted(err)
	}
	var seed uint64
	if err := read(&seed); err != nil {
		return corrupted(err)
	}
	var flags uint8
	if err := read(&flags); err != nil {
		return corrupted(err)
	}
	var budget uint32
	if err := read(&budget); err != nil {
		return corrupted(err)
	}
	var rParam, uParam float64
	if err := read(&rParam); err != nil {
		return corrupted(err)
	}
	if err := read(&uParam); err != nil {
		return corrupted(err)
	}
	var m uint32
	if err := read(&m); err != nil {
		return corrupted(err)
	}
	var maxNorm float64
	if err := read(&maxNorm); err != nil {
		return corrupted(err)
	}
	subSeeds := make([]uint64, l)
	for i := range subSeeds {
		if err := read(&subSeeds[i]); err != nil {
			return corrupted(err)
		}
	}
	var width uint8
	if err := read(&width); err != nil {
		return corrupted(err)
	}
	if width != elemSize[N]() {
		return nil, fmt.Errorf("%w: element width %d does not match index type", ErrCorruptedState, width)
	}
	var backendTag uint8
	if err := read(&backendTag); err != nil {
		return corrupted(err)
	}
	if backendTag != backendTagMemory {
		return nil, fmt.Errorf("%w: unknown backend tag %d", ErrCorruptedState, backendTag)
	}
	mem, err := store.DecodeMemoryTable[N](r)
	if err != nil {
		return corrupted(err)
	}
	if !validFloat(rParam) || !validFloat(uParam) || !validFloat(maxNorm) {
		return nil, fmt.Errorf("%w: non-finite parameter", ErrCorruptedState)
	}

	hashers := newHashers[N](family, int(k), int(dim), rParam, uParam, int(m), subSeeds)
	if family == FamilyMIPS && maxNorm > 0 {
		for _, h := range hashers {
			h.(*hash.MIPS[N]).SetMaxNorm(maxNorm)
		}
	}

	return &LSH[N]{
		family:       family,
		nProjections: int(k),
		nTables:      int(l),
		dim:          int(dim),
		seed:         seed,
		subSeeds:     subSeeds,
		r:            rParam,
		u:            uParam,
		m:            int(m),
		onlyIndex:    flags&1 != 0,
		budget:       int(budget),
		hashers:      hashers,
		tables:       mem,
	}, nil
}

func validFloat(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
