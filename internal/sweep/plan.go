// Package sweep plans and drives multi-segment spectrum captures
// against a networked instrument.
package sweep

import (
	"errors"
	"fmt"

	"github.com/openrf/wsasweep/internal/spectrum"
)

var (
	// ErrNonPartitionable is returned when the rbw does not evenly
	// divide the requested band.
	ErrNonPartitionable = errors.New("sweep: rbw does not partition the band")

	// ErrBandTooNarrow is returned when the capture bandwidth cannot
	// hold even a single bin.
	ErrBandTooNarrow = errors.New("sweep: capture bandwidth narrower than one bin")
)

// Segment is one device-sized sub-capture of a sweep: a frequency
// sub-band and the bin range it owns in the global spectrum buffer.
// Segments are immutable once planned.
type Segment struct {
	FStart uint64 // Hz, inclusive
	FStop  uint64 // Hz, exclusive
	Lo, Hi int    // assigned bins [Lo, Hi) in the global buffer
}

// Plan tiles cfg's band into ordered segments no wider than
// maxCaptureBandwidth. Segment widths are whole multiples of the rbw so
// bin ranges stay aligned; the final segment takes whatever remains.
// The segments are contiguous, non-overlapping and their bin ranges
// partition [0, cfg.Bins) exactly.
func Plan(cfg *spectrum.Config, maxCaptureBandwidth uint64) ([]Segment, error) {
	if cfg.FStop <= cfg.FStart {
		return nil, fmt.Errorf("%w: [%d, %d)", spectrum.ErrInvalidSpan, cfg.FStart, cfg.FStop)
	}

	span := cfg.FStop - cfg.FStart
	rbw := uint64(cfg.RBW)
	if rbw == 0 || span%rbw != 0 {
		return nil, fmt.Errorf("%w: span %d Hz, rbw %d Hz", ErrNonPartitionable, span, rbw)
	}

	binsPerSegment := maxCaptureBandwidth / rbw
	if binsPerSegment == 0 {
		return nil, fmt.Errorf("%w: max %d Hz, rbw %d Hz", ErrBandTooNarrow, maxCaptureBandwidth, rbw)
	}

	totalBins := span / rbw
	segments := make([]Segment, 0, (totalBins+binsPerSegment-1)/binsPerSegment)

	for lo := uint64(0); lo < totalBins; lo += binsPerSegment {
		hi := min(lo+binsPerSegment, totalBins)
		segments = append(segments, Segment{
			FStart: cfg.FStart + lo*rbw,
			FStop:  cfg.FStart + hi*rbw,
			Lo:     int(lo),
			Hi:     int(hi),
		})
	}

	return segments, nil
}
