package resketch

import (
	"fmt"
	"math"
	"math/rand/v2"

	"resketch.lopezb.dev/errors"
	"resketch.lopezb.dev/internal/hashing"
)

// Config is the validated parameter bundle a Sketch is built from: depth
// (number of independent rows), initial width (buckets per row), the
// per-bucket KLL precision k, and the seeds that make routing reproducible
// across independently-constructed sketches.
type Config struct {
	Depth uint32
	Width uint32
	K     uint32

	// PartitionSeed salts the keyspace hash used for split/merge
	// compatibility. Zero means "derive one from a process-wide source".
	PartitionSeed uint64

	// RowSeeds determines each row's placement hash. If nil, Depth fresh
	// seeds are sampled from a process-wide source. If non-nil, its length
	// must equal Depth.
	RowSeeds []uint64
}

// Validate checks that Depth, Width, and K are positive and that RowSeeds,
// if provided, has exactly Depth entries.
func (c Config) Validate() error {
	if c.Depth == 0 {
		return fmt.Errorf("resketch: depth must be positive: %w", errors.ErrInvalidConfig)
	}
	if c.Width == 0 {
		return fmt.Errorf("resketch: width must be positive: %w", errors.ErrInvalidConfig)
	}
	if c.K == 0 {
		return fmt.Errorf("resketch: k must be positive: %w", errors.ErrInvalidConfig)
	}
	if c.RowSeeds != nil && uint32(len(c.RowSeeds)) != c.Depth {
		return fmt.Errorf("resketch: row_seeds length %d does not match depth %d: %w", len(c.RowSeeds), c.Depth, errors.ErrInvalidConfig)
	}
	return nil
}

// resolveSeeds fills in a PartitionSeed and RowSeeds if they were left zero,
// sampling from a process-wide random source. The returned config is always
// fully seeded and passes Validate.
func (c Config) resolveSeeds() Config {
	out := c
	if out.PartitionSeed == 0 {
		out.PartitionSeed = rand.Uint64()
	}
	if out.RowSeeds == nil {
		out.RowSeeds = make([]uint64, out.Depth)
		for i := range out.RowSeeds {
			out.RowSeeds[i] = rand.Uint64()
		}
	}
	return out
}

// perBucketBytes is the worst-case per-bucket memory footprint: a KLL of
// precision k (bounded by 3k uint64 items) plus one ring entry (a uint64
// point and a uint32 bucket id).
func perBucketBytes(k uint32) uint64 {
	const sizeofUint64 = 8
	const sizeofUint32 = 4
	maxKLLItems := uint64(math.Ceil(float64(k) / (1.0 / 3.0)))
	return maxKLLItems*sizeofUint64 + sizeofUint64 + sizeofUint32
}

// WidthForMemory returns the largest width fitting within budgetBytes for a
// sketch with the given depth and per-bucket KLL precision k.
func WidthForMemory(budgetBytes uint64, depth, k uint32) (uint32, error) {
	if depth == 0 || k == 0 {
		return 0, fmt.Errorf("resketch: depth and k must be positive: %w", errors.ErrInvalidConfig)
	}
	perRow := uint64(depth) * perBucketBytes(k)
	if perRow == 0 {
		return 0, fmt.Errorf("resketch: per-row size computed as zero: %w", errors.ErrOverflow)
	}
	width := budgetBytes / perRow
	if width > math.MaxUint32 {
		return 0, fmt.Errorf("resketch: width %d exceeds uint32 range: %w", width, errors.ErrOverflow)
	}
	return uint32(width), nil
}

// seedFor derives a deterministic PRNG seed for purpose-scoped randomness
// (ring construction, KLL coin flips) from a sketch's configuration, so two
// sketches built with identical config produce identical geometry.
func seedFor(partitionSeed, rowSeed uint64, purpose string) uint64 {
	purposeHash := hashing.PreHash([]byte(purpose))
	return hashing.SeedFrom(partitionSeed, rowSeed, purposeHash)
}
