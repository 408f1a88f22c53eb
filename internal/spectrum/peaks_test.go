package spectrum

import (
	"errors"
	"reflect"
	"testing"
)

func testBuffer(t *testing.T, fstart, fstop uint64, rbw uint32, powers []float64) *Buffer {
	t.Helper()

	cfg, err := NewConfig(fstart, fstop, rbw, "SH")
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	buf := NewBuffer(cfg)
	if len(powers) != buf.Len() {
		t.Fatalf("test data has %d bins, buffer has %d", len(powers), buf.Len())
	}
	copy(buf.Bins(), powers)
	return buf
}

func TestFindPeaks(t *testing.T) {
	// Six bins of 1 MHz starting at 100 MHz.
	buf := testBuffer(t, 100_000_000, 106_000_000, 1_000_000,
		[]float64{-90, -85, -90, -100, -85, -90})

	peaks, err := FindPeaks(buf, 2)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}

	// Bins 1 and 4 tie at -85 dBm; lower frequency wins.
	want := []Peak{
		{Frequency: 101_000_000, Power: -85},
		{Frequency: 104_000_000, Power: -85},
	}
	if !reflect.DeepEqual(peaks, want) {
		t.Errorf("expected %v, got %v", want, peaks)
	}
}

func TestFindPeaksOrdering(t *testing.T) {
	buf := testBuffer(t, 0, 8, 1,
		[]float64{-100, -60, -100, -40, -100, -80, -100, -90})

	peaks, err := FindPeaks(buf, 10)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}

	wantPowers := []float64{-40, -60, -80, -90}
	if len(peaks) != len(wantPowers) {
		t.Fatalf("expected %d peaks, got %d", len(wantPowers), len(peaks))
	}
	for i, p := range peaks {
		if p.Power != wantPowers[i] {
			t.Errorf("peak %d: expected %f dBm, got %f", i, wantPowers[i], p.Power)
		}
	}
}

func TestFindPeaksEdges(t *testing.T) {
	// Edge bins only need to beat their single neighbour.
	buf := testBuffer(t, 0, 4, 1, []float64{-10, -50, -50, -20})

	peaks, err := FindPeaks(buf, 4)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}
	if len(peaks) != 2 {
		t.Fatalf("expected 2 edge peaks, got %d: %v", len(peaks), peaks)
	}
	if peaks[0].Frequency != 0 || peaks[1].Frequency != 3 {
		t.Errorf("expected edge peaks at bins 0 and 3, got %v", peaks)
	}
}

func TestFindPeaksFlatBuffer(t *testing.T) {
	buf := testBuffer(t, 0, 4, 1, []float64{-70, -70, -70, -70})

	peaks, err := FindPeaks(buf, 3)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}
	if len(peaks) != 0 {
		t.Errorf("expected no peaks on a flat buffer, got %v", peaks)
	}
}

func TestFindPeaksIdempotent(t *testing.T) {
	buf := testBuffer(t, 0, 6, 1, []float64{-90, -85, -90, -100, -85, -90})

	first, err := FindPeaks(buf, 2)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}
	second, err := FindPeaks(buf, 2)
	if err != nil {
		t.Fatalf("FindPeaks failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results, got %v then %v", first, second)
	}
}

func TestFindPeaksInvalidInput(t *testing.T) {
	buf := testBuffer(t, 0, 4, 1, []float64{-10, -20, -30, -40})

	if _, err := FindPeaks(buf, 0); !errors.Is(err, ErrInvalidPeakCount) {
		t.Errorf("expected ErrInvalidPeakCount for k=0, got %v", err)
	}
	if _, err := FindPeaks(nil, 1); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("expected ErrEmptyBuffer for nil buffer, got %v", err)
	}
}
