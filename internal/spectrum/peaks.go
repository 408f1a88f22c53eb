package spectrum

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidPeakCount is returned when zero peaks are requested.
	ErrInvalidPeakCount = errors.New("spectrum: peak count must be positive")

	// ErrEmptyBuffer is returned when peak detection runs on a buffer
	// with no bins.
	ErrEmptyBuffer = errors.New("spectrum: empty buffer")
)

// Peak is one local maximum of the assembled spectrum.
type Peak struct {
	Frequency float64 // Hz
	Power     float64 // dBm
}

// FindPeaks returns up to k local maxima ordered by descending power,
// ties broken by lower frequency. A bin is a local maximum when it is
// strictly greater than both neighbours; the first and last bins are
// compared against their single neighbour. Fewer than k maxima returns
// all of them; a flat buffer returns an empty slice.
func FindPeaks(buf *Buffer, k int) ([]Peak, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidPeakCount, k)
	}
	if buf == nil || buf.Len() == 0 {
		return nil, ErrEmptyBuffer
	}

	bins := buf.Bins()
	var maxima []int

	if len(bins) == 1 {
		maxima = append(maxima, 0)
	} else {
		if bins[0] > bins[1] {
			maxima = append(maxima, 0)
		}
		for i := 1; i < len(bins)-1; i++ {
			if bins[i] > bins[i-1] && bins[i] > bins[i+1] {
				maxima = append(maxima, i)
			}
		}
		if bins[len(bins)-1] > bins[len(bins)-2] {
			maxima = append(maxima, len(bins)-1)
		}
	}

	sort.SliceStable(maxima, func(a, b int) bool {
		if bins[maxima[a]] != bins[maxima[b]] {
			return bins[maxima[a]] > bins[maxima[b]]
		}
		return maxima[a] < maxima[b]
	})

	if len(maxima) > k {
		maxima = maxima[:k]
	}

	peaks := make([]Peak, len(maxima))
	for n, i := range maxima {
		peaks[n] = Peak{
			Frequency: buf.FrequencyAt(i),
			Power:     bins[i],
		}
	}
	return peaks, nil
}
