package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/openrf/wsasweep/internal/vrt"
)

var (
	// ErrEmptyBlock is returned for a sample block with no samples.
	ErrEmptyBlock = errors.New("spectrum: empty sample block")

	// ErrUnknownFormat is returned for a sample block whose encoding
	// the transform does not handle.
	ErrUnknownFormat = errors.New("spectrum: unknown sample format")
)

// magnitudeFloor keeps zero-magnitude bins out of the logarithm. It
// corresponds to -240 dBFS, far below any representable signal.
const magnitudeFloor = 1e-12

// Calibration is the instrument state folded into the power scale,
// refreshed from the most recent context packet.
type Calibration struct {
	ReferenceLevel float64 // dBm
}

// Transform converts one time-domain sample block into len(dst) power
// values and writes them into dst, the caller's slice of the shared
// spectrum buffer.
//
// Samples are normalised to full scale, Hann windowed and passed
// through an FFT sized to the block. I/Q blocks use a complex transform
// whose bins are rotated so dst ascends from the low band edge; real
// blocks use the one-sided real transform. Power per bin is
// 20·log10(mag/ref) + calibration reference level, where ref places a
// windowed full-scale sine at 0 dBFS. The transform's bins are mapped
// onto dst by index selection so exactly len(dst) values are produced
// for any block length.
func Transform(block *vrt.SampleBlock, dst []float64, cal Calibration) error {
	if block == nil || block.Count == 0 {
		return ErrEmptyBlock
	}
	if len(dst) == 0 {
		return nil
	}

	n := block.Count
	win := window.NewValues(window.Hann, n)
	var winSum float64
	for _, w := range win {
		winSum += w
	}

	var spec []float64
	switch block.Format {
	case vrt.FormatI16Q16:
		seq := make([]complex128, n)
		for i := 0; i < n; i++ {
			seq[i] = complex(float64(block.I[i])/math.MaxInt16, float64(block.Q[i])/math.MaxInt16)
		}
		win.TransformComplex(seq)

		coeffs := fourier.NewCmplxFFT(n).Coefficients(nil, seq)

		// Rotate so bin 0 is the low edge of the capture bandwidth
		// (-fs/2) instead of DC.
		spec = make([]float64, n)
		for i := range spec {
			spec[i] = cmplx.Abs(coeffs[(i+n/2)%n]) / winSum
		}

	case vrt.FormatI16, vrt.FormatI32:
		seq := make([]float64, n)
		if block.Format == vrt.FormatI16 {
			for i := 0; i < n; i++ {
				seq[i] = float64(block.I[i]) / math.MaxInt16
			}
		} else {
			for i := 0; i < n; i++ {
				seq[i] = float64(block.I32[i]) / math.MaxInt32
			}
		}
		win.Transform(seq)

		coeffs := fourier.NewFFT(n).Coefficients(nil, seq)

		// One-sided spectrum; a full-scale sine splits its power across
		// the positive and negative halves, hence the winSum/2 reference.
		spec = make([]float64, len(coeffs))
		for i := range spec {
			spec[i] = cmplx.Abs(coeffs[i]) / (winSum / 2)
		}

	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, block.Format)
	}

	for j := range dst {
		mag := spec[j*len(spec)/len(dst)]
		if mag < magnitudeFloor {
			mag = magnitudeFloor
		}
		dst[j] = 20*math.Log10(mag) + cal.ReferenceLevel
	}

	return nil
}
