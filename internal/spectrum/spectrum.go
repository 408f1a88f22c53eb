// Package spectrum holds the assembled power spectrum of a sweep: its
// configuration, the shared bin buffer, the sample-to-power transform
// and peak extraction.
package spectrum

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpan is returned when fstop is not above fstart.
	ErrInvalidSpan = errors.New("spectrum: fstop must be greater than fstart")

	// ErrInvalidResolution is returned for a zero rbw or an rbw that
	// yields no bins.
	ErrInvalidResolution = errors.New("spectrum: invalid resolution bandwidth")
)

// Config describes one sweep's frequency span and resolution. It is
// created once per session and read-only thereafter.
type Config struct {
	FStart uint64 // Hz, inclusive
	FStop  uint64 // Hz, exclusive
	RBW    uint32 // Hz per bin
	Mode   string // instrument input mode, e.g. "SH"

	Bins int // (FStop-FStart)/RBW
}

// NewConfig validates the requested span and derives the bin count.
func NewConfig(fstart, fstop uint64, rbw uint32, mode string) (*Config, error) {
	if fstop <= fstart {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidSpan, fstart, fstop)
	}
	if rbw == 0 {
		return nil, fmt.Errorf("%w: rbw=0", ErrInvalidResolution)
	}

	bins := (fstop - fstart) / uint64(rbw)
	if bins == 0 {
		return nil, fmt.Errorf("%w: rbw %d wider than span %d", ErrInvalidResolution, rbw, fstop-fstart)
	}

	return &Config{
		FStart: fstart,
		FStop:  fstop,
		RBW:    rbw,
		Mode:   mode,
		Bins:   int(bins),
	}, nil
}

// BinWidth returns the frequency width of one bin in Hz.
func (c *Config) BinWidth() float64 {
	return float64(c.FStop-c.FStart) / float64(c.Bins)
}
