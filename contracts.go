package resketch

// FrequencySummary is the capability set a benchmark harness needs to hold a
// heterogeneous collection of frequency sketches — this package's Sketch, or
// an external baseline such as a plain count-min sketch — behind one
// interface, without a polymorphic base type. The sketch core itself needs
// no polymorphism; only a harness juggling several sketch families does.
type FrequencySummary interface {
	Update(key uint64) error
	Estimate(key uint64) (float64, error)
	MaxMemoryUsage() uint64
}

var _ FrequencySummary = (*Sketch)(nil)

// DatasetLoader yields a finite sequence of keys for a benchmark harness to
// feed into a sketch. Ordering is caller-defined; this package neither
// implements nor requires one.
type DatasetLoader interface {
	Next() (key uint64, ok bool)
}

// Checkpoint is a result-sink record. Every field is computed outside this
// package from Update, Estimate, and MaxMemoryUsage — the core does not
// compute throughput, error rates, or timings itself.
type Checkpoint struct {
	ItemsProcessed         uint64
	MemoryBytes            uint64
	ThroughputOpsPerS      float64
	QueryThroughputOpsPerS float64
	ARE                    float64
	AAE                    float64
}

// ResultSink receives Checkpoint records from a benchmark harness. This
// package neither implements nor requires one.
type ResultSink interface {
	Record(Checkpoint)
}
