// Package ring implements the consistent-hashing circle a sketch row uses to
// route a placement hash to a bucket.
//
// A Ring is a sorted array of (point, bucketID) pairs. FindBucket does a
// binary search for the smallest point >= h and returns its bucket, wrapping
// to the first entry when h falls after every point on the circle. Expand and
// Shrink change the number of buckets while keeping the property that
// enlarging the ring never reroutes a key except onto a genuinely new
// bucket.
package ring

import (
	"math/rand/v2"
	"sort"
)

// entry is one point on the circle.
type entry struct {
	point    uint64
	bucketID uint32
}

// Entry is a read-only view of one (point, bucketID) pair, exposed to
// callers (the remap engine) that need to walk a ring's raw points.
type Entry struct {
	Point    uint64
	BucketID uint32
}

// Ring is a sorted consistent-hashing circle.
type Ring struct {
	entries []entry
}

// New draws width independent points from rng, assigns them bucket ids
// 0..width-1 in draw order, and sorts by point.
func New(width uint32, rng *rand.Rand) *Ring {
	entries := make([]entry, width)
	for i := uint32(0); i < width; i++ {
		entries[i] = entry{point: rng.Uint64(), bucketID: i}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].point < entries[j].point })
	return &Ring{entries: entries}
}

// Width returns the number of buckets this ring routes to.
func (r *Ring) Width() uint32 { return uint32(len(r.entries)) }

// FindBucket returns the bucket id owning hash h: the smallest entry with
// point >= h, or the first entry's bucket id if h is past every point (the
// classical consistent-hashing wrap-around convention — the only one that
// preserves monotone arc routing, per this system's design notes).
func (r *Ring) FindBucket(h uint64) uint32 {
	if len(r.entries) == 0 {
		return 0
	}
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].point >= h })
	if i == len(r.entries) {
		return r.entries[0].bucketID
	}
	return r.entries[i].bucketID
}

// Points returns every point on the circle, in ascending order. Used by the
// remap engine to form the union of arc boundaries between two rings.
func (r *Ring) Points() []uint64 {
	points := make([]uint64, len(r.entries))
	for i, e := range r.entries {
		points[i] = e.point
	}
	return points
}

// Expand grows the ring to newWidth (> current width): existing points are
// kept unchanged, newWidth-width fresh points are drawn from rng and
// assigned bucket ids width..newWidth-1, then merged in by point order.
func (r *Ring) Expand(newWidth uint32, rng *rand.Rand) *Ring {
	width := r.Width()
	out := make([]entry, len(r.entries), newWidth)
	copy(out, r.entries)
	for id := width; id < newWidth; id++ {
		out = append(out, entry{point: rng.Uint64(), bucketID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].point < out[j].point })
	return &Ring{entries: out}
}

// Shrink reduces the ring to newWidth (< current width): newWidth of the
// existing entries are sampled without replacement, their bucket ids are
// renumbered densely to 0..newWidth-1 in the order of their original bucket
// id (not by point), and the result is re-sorted by point. The two-pass
// renumbering (old-id order, then re-sort) is required because downstream
// code assumes bucket ids are dense in [0, width) — see design notes.
func (r *Ring) Shrink(newWidth uint32, rng *rand.Rand) *Ring {
	survivors := samplePrefix(r.entries, int(newWidth), rng)

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].bucketID < survivors[j].bucketID })
	for i := range survivors {
		survivors[i].bucketID = uint32(i)
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].point < survivors[j].point })

	return &Ring{entries: survivors}
}

// samplePrefix returns n entries sampled uniformly without replacement from
// entries, via a Fisher-Yates partial shuffle on a private copy.
func samplePrefix(entries []entry, n int, rng *rand.Rand) []entry {
	cp := make([]entry, len(entries))
	copy(cp, entries)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	out := make([]entry, n)
	copy(out, cp[:n])
	return out
}

// FromEntries builds a Ring directly from existing (point, bucketID) pairs,
// sorting by point. Used by merge, which combines two rings' entries under a
// renumbered id space, and by split, which slices an existing ring's
// entries.
func FromEntries(entries []Entry) *Ring {
	es := make([]entry, len(entries))
	for i, e := range entries {
		es[i] = entry{point: e.Point, bucketID: e.BucketID}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].point < es[j].point })
	return &Ring{entries: es}
}

// Rebase returns a new Ring with every bucket id shifted by offset; points
// and their relative order are unchanged. Used by merge to make room for a
// second sketch's bucket ids in the combined id space.
func (r *Ring) Rebase(offset uint32) *Ring {
	es := make([]entry, len(r.entries))
	for i, e := range r.entries {
		es[i] = entry{point: e.point, bucketID: e.bucketID + offset}
	}
	return &Ring{entries: es}
}

// Entries exposes the raw (point, bucketID) pairs in ascending point order.
// Used by the remap engine, which needs both rings' points and per-arc
// bucket ownership simultaneously.
func (r *Ring) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = Entry{Point: e.point, BucketID: e.bucketID}
	}
	return out
}
