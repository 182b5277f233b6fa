// Package hashing provides the two hash functions the rest of the module
// builds on: a seeded per-row placement hash over uint64 keys, and a
// byte-oriented prehash for callers whose keys are not already uint64.
package hashing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// H hashes a 64-bit key under a seed, producing a well-distributed uint64
// with strong avalanche. The same (key, seed) pair yields the same result
// forever, in any process — callers rely on this for reproducible routing.
//
// The key is folded into xxhash64 and the seed is mixed in with the
// SplitMix64 finalizer, matching the way two independent hash components are
// derived from one xxhash call elsewhere in this ecosystem (double hashing
// for count-min-style sketches).
func H(key uint64, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	h := xxhash.Sum64(buf[:])
	return mixSeed(h, seed)
}

// Hp is the keyspace partition hash: it determines which partition owns a
// key across merge/split boundaries. Implemented by reusing H with the
// partition seed, since partition compatibility only requires that Hp be
// stable and shared by every row of a family of sketches.
func Hp(key uint64, partitionSeed uint64) uint64 {
	return H(key, partitionSeed)
}

// PreHash hashes an arbitrary byte-oriented key into the uniform uint64
// domain Update/Estimate expect. Use it when keys are strings, URLs, or any
// input whose natural bytes are not already uniformly distributed.
//
// xxh3 is used here rather than xxhash64 because it is the pack's preferred
// choice for exactly this "prehash a non-uniform byte key" role.
func PreHash(key []byte) uint64 {
	return xxh3.Hash(key)
}

// mixSeed decorrelates a hash value from a seed using the SplitMix64
// finalizer, avoiding a second full hash pass over the key.
func mixSeed(h, seed uint64) uint64 {
	x := h ^ seed
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// SeedFrom derives a deterministic 64-bit seed from a set of uint64
// components, using xxhash over their little-endian encoding. Used to turn a
// sketch's (partitionSeed, rowSeed, purpose) into a PRNG seed, so ring
// construction is reproducible from configuration alone.
func SeedFrom(components ...uint64) uint64 {
	buf := make([]byte, 8*len(components))
	for i, c := range components {
		binary.LittleEndian.PutUint64(buf[i*8:], c)
	}
	return xxhash.Sum64(buf)
}
