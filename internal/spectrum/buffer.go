package spectrum

// Buffer is the assembled wide-band spectrum: one power value in dBm
// per bin. Segment transforms write disjoint regions concurrently;
// safety relies entirely on the planner's partition of the bin range,
// so Region hands out plain sub-slices without locking.
type Buffer struct {
	cfg  *Config
	bins []float64
}

// NewBuffer allocates a buffer of exactly cfg.Bins power values.
func NewBuffer(cfg *Config) *Buffer {
	return &Buffer{
		cfg:  cfg,
		bins: make([]float64, cfg.Bins),
	}
}

// Config returns the configuration the buffer was sized from.
func (b *Buffer) Config() *Config { return b.cfg }

// Len returns the number of bins.
func (b *Buffer) Len() int { return len(b.bins) }

// Bins returns the underlying power values. Index i corresponds to
// FrequencyAt(i).
func (b *Buffer) Bins() []float64 { return b.bins }

// Region returns the writable sub-slice for bins [lo, hi). An
// out-of-range request is a planner bug and panics like any slice
// bounds violation.
func (b *Buffer) Region(lo, hi int) []float64 { return b.bins[lo:hi] }

// FrequencyAt returns the frequency of bin i in Hz.
func (b *Buffer) FrequencyAt(i int) float64 {
	return float64(b.cfg.FStart) + float64(i)*b.cfg.BinWidth()
}
