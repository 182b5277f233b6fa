// Package kll implements a weighted KLL quantile compactor over uint64
// values.
//
// A KLL summarizes a multiset of uint64 values in bounded memory by keeping
// an ordered sequence of level buffers: the buffer at level ℓ holds items
// each carrying an implicit weight of 2^ℓ. The highest level has capacity k;
// each level below it has c = 2/3 times the capacity of the one above
// (rounded up). When a level fills, it is compacted: sorted, then every other
// element starting from a per-compaction random offset is promoted to the
// next level, the rest discarded. On an odd-sized level the largest item
// stays behind, so compaction never changes the total retained weight, which
// always equals N. This is the standard KLL sketch construction, adapted here to
// answer two questions the rest of this module needs: the estimated
// multiplicity of a single value (Estimate) and the estimated count and
// sub-sketch of a value range (CountInRange, Rebuild) — the latter is what
// lets a ring resize without discarding the mass already absorbed.
//
// Total retained items across all levels never exceeds ceil(k/(1-c)) = 3k,
// so a KLL's worst-case memory is 3k * 8 bytes.
package kll

import (
	"math"
	"math/rand/v2"
	"sort"

	"resketch.lopezb.dev/errors"
)

// compactionRatio is the geometric shrink factor between adjacent levels.
const compactionRatio = 2.0 / 3.0

// KLL is a weighted quantile compactor over uint64 hash values.
type KLL struct {
	k      uint32
	n      uint64
	levels [][]uint64
	rng    *rand.Rand
}

// New creates an empty KLL with the given precision k. seed determines the
// per-compaction coin flips; two KLLs built with the same seed and fed the
// same update sequence compact identically.
func New(k uint32, seed uint64) *KLL {
	return &KLL{
		k:      k,
		levels: [][]uint64{make([]uint64, 0, k)},
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// K returns the sketch's precision parameter.
func (kll *KLL) K() uint32 { return kll.k }

// N returns the total weighted count absorbed so far.
func (kll *KLL) N() uint64 { return kll.n }

// Update absorbs one occurrence of v with weight 1.
func (kll *KLL) Update(v uint64) {
	kll.levels[0] = append(kll.levels[0], v)
	kll.n++
	if uint32(len(kll.levels[0])) >= kll.levelCapacity(0) {
		kll.compress(0)
	}
}

// UpdateWeighted absorbs v with weight w, decomposing w into powers of two
// and inserting v once at each set bit's level. Equivalent to w unit
// updates, delivered in O(log w).
func (kll *KLL) UpdateWeighted(v uint64, w uint64) {
	if w == 0 {
		return
	}
	kll.n += w
	level := 0
	for w > 0 {
		if w&1 == 1 {
			kll.ensureLevel(level)
			kll.levels[level] = append(kll.levels[level], v)
		}
		w >>= 1
		level++
	}
	for i := 0; i < len(kll.levels); i++ {
		if uint32(len(kll.levels[i])) >= kll.levelCapacity(i) {
			kll.compress(i)
		}
	}
}

// Merge absorbs other's contents into kll. Both sketches must share k, even
// when other is empty.
func (kll *KLL) Merge(other *KLL) error {
	if other == nil {
		return nil
	}
	if kll.k != other.k {
		return errors.ErrConfigMismatch
	}
	if other.n == 0 {
		return nil
	}
	kll.n += other.n
	if len(other.levels) > len(kll.levels) {
		kll.ensureLevel(len(other.levels) - 1)
	}
	for i, lvl := range other.levels {
		if len(lvl) == 0 {
			continue
		}
		kll.levels[i] = append(kll.levels[i], lvl...)
	}
	for i := 0; i < len(kll.levels); i++ {
		if uint32(len(kll.levels[i])) >= kll.levelCapacity(i) {
			kll.compress(i)
		}
	}
	return nil
}

// Estimate returns the estimated multiplicity of v: the sum, over all
// levels, of 2^level times the number of retained items at that level equal
// to v.
func (kll *KLL) Estimate(v uint64) float64 {
	var total float64
	for level, lvl := range kll.levels {
		if len(lvl) == 0 {
			continue
		}
		weight := float64(uint64(1) << uint(level))
		var count float64
		for _, item := range lvl {
			if item == v {
				count++
			}
		}
		total += count * weight
	}
	return total
}

// CountInRange returns the estimated count of values x with lo < x <= hi.
// When lo >= hi the range wraps around the top of the uint64 space and holds
// every x with x > lo or x <= hi. The half-open-upper convention is
// load-bearing: it is what lets Remap partition a ring's points into
// non-overlapping, wrap-safe arcs.
func (kll *KLL) CountInRange(lo, hi uint64) float64 {
	var total float64
	for level, lvl := range kll.levels {
		if len(lvl) == 0 {
			continue
		}
		weight := float64(uint64(1) << uint(level))
		var count float64
		for _, item := range lvl {
			if inRange(item, lo, hi) {
				count++
			}
		}
		total += count * weight
	}
	return total
}

// Rebuild produces a new KLL of the same k containing only the items whose
// value lies in (lo, hi] (wrapping when lo >= hi, as in CountInRange), each
// retained at its original level. The result's
// N equals CountInRange(lo, hi) rounded, and it is valid input to further
// Merge/Update/Rebuild calls.
func (kll *KLL) Rebuild(lo, hi uint64) *KLL {
	seed := kll.rng.Uint64()
	out := New(kll.k, seed)
	out.levels = make([][]uint64, len(kll.levels))
	for level, lvl := range kll.levels {
		if len(lvl) == 0 {
			out.levels[level] = nil
			continue
		}
		weight := uint64(1) << uint(level)
		kept := make([]uint64, 0, len(lvl))
		for _, item := range lvl {
			if inRange(item, lo, hi) {
				kept = append(kept, item)
				out.n += weight
			}
		}
		out.levels[level] = kept
	}
	if len(out.levels) == 0 {
		out.levels = [][]uint64{nil}
	}
	return out
}

// inRange reports whether x lies on the arc (lo, hi], which wraps past the
// top of the uint64 space when lo >= hi.
func inRange(x, lo, hi uint64) bool {
	if lo < hi {
		return x > lo && x <= hi
	}
	return x > lo || x <= hi
}

// MaxMemoryUsage returns the worst-case number of bytes this KLL's levels
// can hold: ceil(k/(1-c)) items, 8 bytes each.
func (kll *KLL) MaxMemoryUsage() uint64 {
	maxItems := uint64(math.Ceil(float64(kll.k) / (1.0 - compactionRatio)))
	return maxItems * 8
}

func (kll *KLL) ensureLevel(level int) {
	for level >= len(kll.levels) {
		kll.levels = append(kll.levels, nil)
	}
}

// levelCapacity returns cap(level) = ceil(k * c^(L-1-level)) where L is the
// current number of levels.
func (kll *KLL) levelCapacity(level int) uint32 {
	if kll.k == 0 {
		return math.MaxUint32
	}
	l := len(kll.levels)
	exp := float64(l - 1 - level)
	return uint32(math.Ceil(float64(kll.k) * math.Pow(compactionRatio, exp)))
}

// compress promotes half of level's (sorted) contents to level+1, discarding
// the rest, then recurses if level+1 now overflows. On an odd-sized level the
// largest item stays at level, so the retained weight is unchanged.
func (kll *KLL) compress(level int) {
	if level >= len(kll.levels) || uint32(len(kll.levels[level])) < kll.levelCapacity(level) {
		return
	}
	if len(kll.levels[level]) < 2 {
		return
	}
	kll.ensureLevel(level + 1)

	src := kll.levels[level]
	sort.Slice(src, func(i, j int) bool { return src[i] < src[j] })

	odd := len(src)%2 == 1
	var leftover uint64
	if odd {
		leftover = src[len(src)-1]
		src = src[:len(src)-1]
	}

	offset := 0
	if kll.rng.IntN(2) == 1 {
		offset = 1
	}

	kept := 0
	for i := offset; i < len(src); i += 2 {
		src[kept] = src[i]
		kept++
	}
	src = src[:kept]

	kll.levels[level+1] = append(kll.levels[level+1], src...)
	kll.levels[level] = kll.levels[level][:0]
	if odd {
		kll.levels[level] = append(kll.levels[level], leftover)
	}

	if uint32(len(kll.levels[level+1])) >= kll.levelCapacity(level+1) {
		kll.compress(level + 1)
	}
}
