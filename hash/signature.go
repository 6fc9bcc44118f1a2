package hash

import "encoding/binary"

// EncodeKey packs a signature into the byte string used as bucket key. Every
// symbol takes 8 big-endian bytes, so equal signatures map to equal keys and
// the key doubles as the BLOB stored by persistent backends.
func EncodeKey(sig []int64) string {
	buf := make([]byte, len(sig)*8)
	for i, s := range sig {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(s))
	}
	return string(buf)
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey(key []byte) []int64 {
	sig := make([]int64, len(key)/8)
	for i := range sig {
		sig[i] = int64(binary.BigEndian.Uint64(key[i*8:]))
	}
	return sig
}

// PackBits packs a bit-valued signature into a single unsigned integer with
// the first symbol as the least significant bit. Symbols beyond 64 are
// ignored.
func PackBits(sig []int64) uint64 {
	var packed uint64
	for i, s := range sig {
		if i == 64 {
			break
		}
		if s != 0 {
			packed |= 1 << uint(i)
		}
	}
	return packed
}
