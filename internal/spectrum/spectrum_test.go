package spectrum

import (
	"errors"
	"testing"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name    string
		fstart  uint64
		fstop   uint64
		rbw     uint32
		bins    int
		wantErr error
	}{
		{"one GHz at 100 kHz", 2_000_000_000, 3_000_000_000, 100_000, 10_000, nil},
		{"single bin", 1_000_000, 2_000_000, 1_000_000, 1, nil},
		{"inverted span", 3_000_000_000, 2_000_000_000, 100_000, 0, ErrInvalidSpan},
		{"empty span", 2_000_000_000, 2_000_000_000, 100_000, 0, ErrInvalidSpan},
		{"zero rbw", 2_000_000_000, 3_000_000_000, 0, 0, ErrInvalidResolution},
		{"rbw wider than span", 1_000_000, 1_500_000, 1_000_000, 0, ErrInvalidResolution},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.fstart, tc.fstop, tc.rbw, "SH")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewConfig failed: %v", err)
			}
			if cfg.Bins != tc.bins {
				t.Errorf("expected %d bins, got %d", tc.bins, cfg.Bins)
			}
		})
	}
}

func TestBufferGeometry(t *testing.T) {
	cfg, err := NewConfig(2_000_000_000, 3_000_000_000, 100_000, "SH")
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	buf := NewBuffer(cfg)
	if buf.Len() != cfg.Bins {
		t.Fatalf("expected buffer length %d, got %d", cfg.Bins, buf.Len())
	}

	if f := buf.FrequencyAt(0); f != 2_000_000_000 {
		t.Errorf("expected bin 0 at fstart, got %f", f)
	}
	if f := buf.FrequencyAt(1); f != 2_000_100_000 {
		t.Errorf("expected bin 1 one rbw above fstart, got %f", f)
	}
	if f := buf.FrequencyAt(buf.Len() - 1); f != 2_999_900_000 {
		t.Errorf("expected last bin one rbw below fstop, got %f", f)
	}

	region := buf.Region(10, 20)
	if len(region) != 10 {
		t.Fatalf("expected region length 10, got %d", len(region))
	}
	region[0] = -55
	if buf.Bins()[10] != -55 {
		t.Error("region write did not reach the underlying buffer")
	}
}
