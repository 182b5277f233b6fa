// Package resketch implements a family of resizable probabilistic frequency
// sketches over 64-bit keys.
//
// A Sketch holds depth independent rows. Each row pairs a consistent-hashing
// Ring with an array of per-bucket KLL quantile compactors: updating a key
// hashes it once per row, routes the hash through that row's ring to a
// bucket, and folds the hash into that bucket's KLL. Estimating a key's
// frequency reruns the same routing and averages the per-row KLL estimates.
//
// The distinguishing capability is structural plasticity: Expand and Shrink
// change a sketch's width in place without discarding absorbed frequency
// information, Merge combines two independently-populated sketches, and
// Split partitions one sketch's key space into two. All four operations are
// built on the same primitive — internal/remap's mass-conserving transfer of
// bucket contents from an old ring to a new one.
package resketch

import (
	"fmt"
	"math/rand/v2"

	"resketch.lopezb.dev/errors"
	"resketch.lopezb.dev/internal/hashing"
	"resketch.lopezb.dev/internal/kll"
	"resketch.lopezb.dev/internal/remap"
	"resketch.lopezb.dev/internal/ring"
)

// sketchState tracks the Live/Consumed state machine: a sketch that has been
// the source of a Merge or Split call is Consumed and rejects every further
// operation.
type sketchState int

const (
	stateLive sketchState = iota
	stateConsumed
)

// sketchRow is one of a sketch's depth independent planes.
type sketchRow struct {
	ring    *ring.Ring
	buckets []*kll.KLL
	rng     *rand.Rand
}

// splitOrigin records enough of a parent sketch to answer IsResponsibleFor
// after a Split: the parent's original (pre-split) row-0 ring, the width
// boundary the split used, and which side of that boundary this child owns.
type splitOrigin struct {
	parentRing0 *ring.Ring
	boundary    uint32
	isLowHalf   bool
}

// Sketch is a resizable, depth-row frequency sketch.
type Sketch struct {
	depth         uint32
	width         uint32
	k             uint32
	partitionSeed uint64
	rowSeeds      []uint64
	rows          []*sketchRow
	state         sketchState
	splitOrigin   *splitOrigin
}

// New constructs an empty, Live sketch from cfg. If cfg.PartitionSeed is
// zero or cfg.RowSeeds is nil, fresh seeds are sampled from a process-wide
// source.
func New(cfg Config) (*Sketch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.resolveSeeds()

	rows := make([]*sketchRow, cfg.Depth)
	for i := uint32(0); i < cfg.Depth; i++ {
		rows[i] = newRow(cfg.Width, cfg.K, cfg.PartitionSeed, cfg.RowSeeds[i])
	}

	return &Sketch{
		depth:         cfg.Depth,
		width:         cfg.Width,
		k:             cfg.K,
		partitionSeed: cfg.PartitionSeed,
		rowSeeds:      cfg.RowSeeds,
		rows:          rows,
		state:         stateLive,
	}, nil
}

// newRow builds a fresh row with its own ring and bucket array, all
// deterministically seeded from (partitionSeed, rowSeed) so two sketches
// built from identical config produce identical routing.
func newRow(width, k uint32, partitionSeed, rowSeed uint64) *sketchRow {
	ringSeed := seedFor(partitionSeed, rowSeed, "ring")
	rng := rand.New(rand.NewPCG(ringSeed, ringSeed^0x9e3779b97f4a7c15))

	r := ring.New(width, rng)
	buckets := make([]*kll.KLL, width)
	for j := range buckets {
		buckets[j] = kll.New(k, rng.Uint64())
	}

	return &sketchRow{ring: r, buckets: buckets, rng: rng}
}

// Depth returns the number of independent rows.
func (s *Sketch) Depth() uint32 { return s.depth }

// Width returns the current number of buckets per row.
func (s *Sketch) Width() uint32 { return s.width }

// K returns the per-bucket KLL precision.
func (s *Sketch) K() uint32 { return s.k }

// IsLive reports whether the sketch still accepts operations, i.e. has not
// been consumed by Merge or Split.
func (s *Sketch) IsLive() bool { return s.state == stateLive }

// Update absorbs one occurrence of key.
func (s *Sketch) Update(key uint64) error {
	if s.state != stateLive {
		return errors.ErrConsumed
	}
	for i, row := range s.rows {
		h := hashing.H(key, s.rowSeeds[i])
		b := row.ring.FindBucket(h)
		row.buckets[b].Update(h)
	}
	return nil
}

// Estimate returns the mean, across rows, of each row's KLL estimate for
// key's routed hash.
func (s *Sketch) Estimate(key uint64) (float64, error) {
	if s.state != stateLive {
		return 0, errors.ErrConsumed
	}
	var total float64
	for i, row := range s.rows {
		h := hashing.H(key, s.rowSeeds[i])
		b := row.ring.FindBucket(h)
		total += row.buckets[b].Estimate(h)
	}
	return total / float64(s.depth), nil
}

// Expand grows the sketch to newWidth (> current width), remapping every
// row's existing frequency mass onto the enlarged ring.
func (s *Sketch) Expand(newWidth uint32) error {
	if s.state != stateLive {
		return errors.ErrConsumed
	}
	if newWidth <= s.width {
		return fmt.Errorf("resketch: expand target %d must exceed current width %d: %w", newWidth, s.width, errors.ErrInvalidWidth)
	}
	newRows := s.remapRows(func(r *sketchRow) *ring.Ring {
		return r.ring.Expand(newWidth, r.rng)
	})
	s.rows = newRows
	s.width = newWidth
	return nil
}

// Shrink reduces the sketch to newWidth (in (0, current width)), remapping
// every row's existing frequency mass onto the shrunk ring.
func (s *Sketch) Shrink(newWidth uint32) error {
	if s.state != stateLive {
		return errors.ErrConsumed
	}
	if newWidth == 0 || newWidth >= s.width {
		return fmt.Errorf("resketch: shrink target %d must be in (0, %d): %w", newWidth, s.width, errors.ErrInvalidWidth)
	}
	newRows := s.remapRows(func(r *sketchRow) *ring.Ring {
		return r.ring.Shrink(newWidth, r.rng)
	})
	s.rows = newRows
	s.width = newWidth
	return nil
}

// remapRows builds a full set of new rows before any field on s is mutated,
// so a construction failure never leaves s partially updated.
func (s *Sketch) remapRows(buildRing func(*sketchRow) *ring.Ring) []*sketchRow {
	newRows := make([]*sketchRow, s.depth)
	for i, row := range s.rows {
		newRing := buildRing(row)
		newBuckets := remap.Remap(row.ring, row.buckets, newRing, s.k, row.rng)
		newRows[i] = &sketchRow{ring: newRing, buckets: newBuckets, rng: row.rng}
	}
	return newRows
}

// MaxMemoryUsage returns an upper bound, in bytes, on this sketch's steady
// state memory: depth * width * (one KLL's worst case plus one ring entry).
func (s *Sketch) MaxMemoryUsage() uint64 {
	return uint64(s.depth) * uint64(s.width) * perBucketBytes(s.k)
}

// IsResponsibleFor reports whether this sketch, produced as one half of a
// Split, owns key. Checking row 0 suffices because every row shares the same
// partition seed and the split boundary is defined in terms of the shared
// pre-split ring, per the routing-agreement invariant. Called on a sketch
// that was not produced by Split, it always returns true.
func (s *Sketch) IsResponsibleFor(key uint64) bool {
	if s.splitOrigin == nil {
		return true
	}
	h := hashing.H(key, s.rowSeeds[0])
	originalBucketID := s.splitOrigin.parentRing0.FindBucket(h)
	if s.splitOrigin.isLowHalf {
		return originalBucketID < s.splitOrigin.boundary
	}
	return originalBucketID >= s.splitOrigin.boundary
}

// Merge combines a and b into a new sketch of width a.Width()+b.Width().
// Both source sketches must be Live and share depth, k, partition seed, and
// row seeds. On success, a and b are both consumed: their state becomes
// Consumed and neither accepts further operations, matching the state
// machine's treatment of any sketch that has served as input to Merge or
// Split.
func Merge(a, b *Sketch) (*Sketch, error) {
	if a.state != stateLive || b.state != stateLive {
		return nil, errors.ErrConsumed
	}
	if a.depth != b.depth || a.k != b.k || a.partitionSeed != b.partitionSeed || !seedsEqual(a.rowSeeds, b.rowSeeds) {
		return nil, errors.ErrConfigMismatch
	}

	newWidth := a.width + b.width
	rows := make([]*sketchRow, a.depth)

	for i := uint32(0); i < a.depth; i++ {
		mergeSeed := seedFor(a.partitionSeed, a.rowSeeds[i], "merge")
		rng := rand.New(rand.NewPCG(mergeSeed, mergeSeed^0x9e3779b97f4a7c15))

		combinedEntries := append(append([]ring.Entry{}, a.rows[i].ring.Entries()...), b.rows[i].ring.Rebase(a.width).Entries()...)
		combined := ring.FromEntries(combinedEntries)

		fromA := remap.Remap(a.rows[i].ring, a.rows[i].buckets, combined, a.k, rng)
		fromB := remap.Remap(b.rows[i].ring, b.rows[i].buckets, combined, a.k, rng)

		buckets := make([]*kll.KLL, newWidth)
		for j := range buckets {
			buckets[j] = fromA[j]
			_ = buckets[j].Merge(fromB[j])
		}

		rows[i] = &sketchRow{ring: combined, buckets: buckets, rng: rng}
	}

	merged := &Sketch{
		depth:         a.depth,
		width:         newWidth,
		k:             a.k,
		partitionSeed: a.partitionSeed,
		rowSeeds:      append([]uint64{}, a.rowSeeds...),
		rows:          rows,
		state:         stateLive,
	}

	a.state, b.state = stateConsumed, stateConsumed
	a.rows, b.rows = nil, nil

	return merged, nil
}

// Split partitions s into two independent sketches whose widths sum to
// s.Width(). s is consumed: after Split returns successfully, s is Consumed
// and rejects further operations. Each row's ring entries with bucket id <
// w1 go to the first child (keeping their ids); the rest go to the second
// child (ids rebased to 0..w2-1). Each bucket's KLL transfers unchanged —
// no remap is needed because a split boundary always falls exactly on
// existing bucket ids.
func Split(s *Sketch, w1, w2 uint32) (*Sketch, *Sketch, error) {
	if s.state != stateLive {
		return nil, nil, errors.ErrConsumed
	}
	if w1+w2 != s.width {
		return nil, nil, fmt.Errorf("resketch: split widths %d+%d must sum to width %d: %w", w1, w2, s.width, errors.ErrInvalidWidth)
	}

	rows1 := make([]*sketchRow, s.depth)
	rows2 := make([]*sketchRow, s.depth)
	var parentRing0 *ring.Ring

	for i, row := range s.rows {
		entries := row.ring.Entries()

		var entries1, entries2 []ring.Entry
		buckets1 := make([]*kll.KLL, w1)
		buckets2 := make([]*kll.KLL, w2)

		for _, e := range entries {
			if e.BucketID < w1 {
				entries1 = append(entries1, e)
				buckets1[e.BucketID] = row.buckets[e.BucketID]
			} else {
				rebased := e.BucketID - w1
				entries2 = append(entries2, ring.Entry{Point: e.Point, BucketID: rebased})
				buckets2[rebased] = row.buckets[e.BucketID]
			}
		}

		if i == 0 {
			parentRing0 = row.ring
		}

		seed1 := seedFor(s.partitionSeed, s.rowSeeds[i], "split-lo")
		seed2 := seedFor(s.partitionSeed, s.rowSeeds[i], "split-hi")
		rows1[i] = &sketchRow{
			ring:    ring.FromEntries(entries1),
			buckets: buckets1,
			rng:     rand.New(rand.NewPCG(seed1, seed1^0x9e3779b97f4a7c15)),
		}
		rows2[i] = &sketchRow{
			ring:    ring.FromEntries(entries2),
			buckets: buckets2,
			rng:     rand.New(rand.NewPCG(seed2, seed2^0x9e3779b97f4a7c15)),
		}
	}

	s1 := &Sketch{
		depth: s.depth, width: w1, k: s.k,
		partitionSeed: s.partitionSeed, rowSeeds: append([]uint64{}, s.rowSeeds...),
		rows: rows1, state: stateLive,
		splitOrigin: &splitOrigin{parentRing0: parentRing0, boundary: w1, isLowHalf: true},
	}
	s2 := &Sketch{
		depth: s.depth, width: w2, k: s.k,
		partitionSeed: s.partitionSeed, rowSeeds: append([]uint64{}, s.rowSeeds...),
		rows: rows2, state: stateLive,
		splitOrigin: &splitOrigin{parentRing0: parentRing0, boundary: w1, isLowHalf: false},
	}

	s.state = stateConsumed
	s.rows = nil

	return s1, s2, nil
}

func seedsEqual(a, b []uint64) bool {
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
