// Package remap computes a mass-conserving transfer of bucket contents
// between two rings of the same sketch row.
//
// This is the operation expand, shrink, merge and split all reduce to: given
// an old ring and its per-bucket KLLs, and a new ring, produce new per-bucket
// KLLs that route every item the old buckets absorbed to the bucket the new
// ring would have chosen, without discarding any of it.
package remap

import (
	"math/rand/v2"
	"sort"

	"resketch.lopezb.dev/internal/kll"
	"resketch.lopezb.dev/internal/ring"
)

// Remap produces len(outRing.Entries()) new KLLs, each seeded from rng, whose
// total weight sums to the total weight in inBuckets. inBuckets must have one
// entry per bucket id in inRing (i.e. len(inBuckets) == inRing.Width()).
func Remap(inRing *ring.Ring, inBuckets []*kll.KLL, outRing *ring.Ring, k uint32, rng *rand.Rand) []*kll.KLL {
	outWidth := int(outRing.Width())
	out := make([]*kll.KLL, outWidth)
	for i := range out {
		out[i] = kll.New(k, rng.Uint64())
	}

	points := unionPoints(inRing, outRing)
	if len(points) == 0 {
		return out
	}

	// Walk consecutive arcs (start, end], wrapping from the last point back
	// to the first — the previous point in traversal order is the exclusive
	// lower bound, the current point is the inclusive upper bound. Bucket
	// ownership for the whole arc is resolved at end, not start: end is
	// itself a member of the arc (the range is inclusive there) and no ring
	// point falls strictly between start and end by construction, so
	// FindBucket(end) and FindBucket of any other point in the arc agree.
	// Querying at start would resolve the *previous*, non-overlapping arc
	// instead, since start is excluded from this one.
	prev := points[len(points)-1]
	for _, cur := range points {
		start, end := prev, cur
		prev = cur

		inID := inRing.FindBucket(end)
		outID := outRing.FindBucket(end)

		if inID >= uint32(len(inBuckets)) || inBuckets[inID] == nil {
			continue
		}
		bucket := inBuckets[inID]

		count := bucket.CountInRange(start, end)
		if count <= 0 {
			continue
		}

		sub := bucket.Rebuild(start, end)
		_ = out[outID].Merge(sub)
	}

	return out
}

// unionPoints returns the sorted union of both rings' points — the arc
// boundaries that matter for routing under either ring.
func unionPoints(a, b *ring.Ring) []uint64 {
	set := make(map[uint64]struct{}, int(a.Width())+int(b.Width()))
	for _, e := range a.Entries() {
		set[e.Point] = struct{}{}
	}
	for _, e := range b.Entries() {
		set[e.Point] = struct{}{}
	}
	points := make([]uint64, 0, len(set))
	for p := range set {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	return points
}
