package hash

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// NewRNG returns a deterministic ChaCha8-backed generator for the given seed.
// Seed 0 seeds from OS entropy instead.
func NewRNG(seed uint64) *rand.Rand {
	var key [32]byte
	if seed == 0 {
		if _, err := crand.Read(key[:]); err != nil {
			panic("hash: reading entropy: " + err.Error())
		}
	} else {
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint64(key[i*8:], seed+uint64(i)*0x9e3779b97f4a7c15)
		}
	}
	return rand.New(rand.NewChaCha8(key))
}
