package vrt

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestDecodeDataI16Q16(t *testing.T) {
	i := []int16{100, -200, 300, -400}
	q := []int16{-1, 2, -3, 4}
	ts := Timestamp{Sec: 1700000000, Psec: 123456789012}

	stream := AppendDataI16Q16(nil, 5, ts, i, q, 1<<18)

	dec := NewDecoder(bytes.NewReader(stream))
	pkt, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if pkt.Header.Kind != KindIF {
		t.Errorf("expected kind IF, got %s", pkt.Header.Kind)
	}
	if pkt.Header.StreamID != StreamDataI16Q16 {
		t.Errorf("expected stream DATA_I16Q16, got %s", pkt.Header.StreamID)
	}
	if pkt.Header.Count != 5 {
		t.Errorf("expected count 5, got %d", pkt.Header.Count)
	}
	if pkt.Header.Timestamp != ts {
		t.Errorf("expected timestamp %+v, got %+v", ts, pkt.Header.Timestamp)
	}
	if pkt.Header.SamplesPerPacket != len(i) {
		t.Errorf("expected %d samples per packet, got %d", len(i), pkt.Header.SamplesPerPacket)
	}

	if pkt.Data == nil {
		t.Fatal("expected data payload")
	}
	if pkt.Data.Format != FormatI16Q16 {
		t.Errorf("expected format I16Q16, got %d", pkt.Data.Format)
	}
	if pkt.Data.Count != len(i) {
		t.Errorf("expected %d samples written, got %d", len(i), pkt.Data.Count)
	}
	for n := range i {
		if pkt.Data.I[n] != i[n] || pkt.Data.Q[n] != q[n] {
			t.Errorf("sample %d: expected (%d, %d), got (%d, %d)", n, i[n], q[n], pkt.Data.I[n], pkt.Data.Q[n])
		}
	}

	if pkt.Trailer == nil {
		t.Fatal("expected trailer")
	}
	if !pkt.Trailer.ValidData() {
		t.Error("expected valid-data trailer flag")
	}
}

func TestDecodeSampleEncodings(t *testing.T) {
	ts := Timestamp{Sec: 10, Psec: 20}

	t.Run("i16", func(t *testing.T) {
		samples := []int16{1, -2, 3, -4, 5, -6}
		dec := NewDecoder(bytes.NewReader(AppendDataI16(nil, 0, ts, samples, 0)))

		pkt, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if pkt.Data == nil || pkt.Data.Format != FormatI16 {
			t.Fatal("expected I16 payload")
		}
		if pkt.Data.Count != len(samples) {
			t.Fatalf("expected %d samples, got %d", len(samples), pkt.Data.Count)
		}
		for n, s := range samples {
			if pkt.Data.I[n] != s {
				t.Errorf("sample %d: expected %d, got %d", n, s, pkt.Data.I[n])
			}
		}
	})

	t.Run("i32", func(t *testing.T) {
		samples := []int32{1 << 20, -(1 << 21), 1 << 22}
		dec := NewDecoder(bytes.NewReader(AppendDataI32(nil, 0, ts, samples, 0)))

		pkt, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if pkt.Data == nil || pkt.Data.Format != FormatI32 {
			t.Fatal("expected I32 payload")
		}
		for n, s := range samples {
			if pkt.Data.I32[n] != s {
				t.Errorf("sample %d: expected %d, got %d", n, s, pkt.Data.I32[n])
			}
		}
	})
}

func TestDecodeContextPackets(t *testing.T) {
	ts := Timestamp{Sec: 42}

	t.Run("receiver", func(t *testing.T) {
		stream := AppendReceiverContext(nil, 1, ts, 2_450_000_000, -22.5)
		pkt, err := NewDecoder(bytes.NewReader(stream)).Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if pkt.Header.Kind != KindContext {
			t.Errorf("expected kind CONTEXT, got %s", pkt.Header.Kind)
		}
		if pkt.Receiver == nil {
			t.Fatal("expected receiver context payload")
		}
		if pkt.Receiver.Frequency == nil || *pkt.Receiver.Frequency != 2_450_000_000 {
			t.Errorf("unexpected frequency: %v", pkt.Receiver.Frequency)
		}
		if pkt.Receiver.ReferenceLevel == nil || *pkt.Receiver.ReferenceLevel != -22.5 {
			t.Errorf("unexpected reference level: %v", pkt.Receiver.ReferenceLevel)
		}
		if pkt.Data != nil || pkt.Digitizer != nil || pkt.Extension != nil {
			t.Error("expected only the receiver payload variant to be set")
		}
	})

	t.Run("digitizer", func(t *testing.T) {
		stream := AppendDigitizerContext(nil, 2, ts, 125_000_000, -10)
		pkt, err := NewDecoder(bytes.NewReader(stream)).Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if pkt.Digitizer == nil {
			t.Fatal("expected digitizer context payload")
		}
		if pkt.Digitizer.Bandwidth == nil || *pkt.Digitizer.Bandwidth != 125_000_000 {
			t.Errorf("unexpected bandwidth: %v", pkt.Digitizer.Bandwidth)
		}
		if pkt.Digitizer.ReferenceLevel == nil || *pkt.Digitizer.ReferenceLevel != -10 {
			t.Errorf("unexpected reference level: %v", pkt.Digitizer.ReferenceLevel)
		}
	})

	t.Run("extension", func(t *testing.T) {
		stream := AppendExtensionContext(nil, 3, ts, 0xa0000000, []uint32{7, 8, 9})
		pkt, err := NewDecoder(bytes.NewReader(stream)).Decode()
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if pkt.Header.Kind != KindExtension {
			t.Errorf("expected kind EXTENSION, got %s", pkt.Header.Kind)
		}
		if pkt.Extension == nil {
			t.Fatal("expected extension context payload")
		}
		if pkt.Extension.Indicator != 0xa0000000 {
			t.Errorf("unexpected indicator: 0x%08x", pkt.Extension.Indicator)
		}
		if len(pkt.Extension.Words) != 3 || pkt.Extension.Words[2] != 9 {
			t.Errorf("unexpected raw words: %v", pkt.Extension.Words)
		}
	})
}

func TestDecodeUnknownStream(t *testing.T) {
	stream := AppendUnknown(nil, 0xdeadbeef, 7, Timestamp{}, []byte{0, 0, 0, 1, 0, 0, 0, 2})

	pkt, err := NewDecoder(bytes.NewReader(stream)).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Header.Kind != KindUnknown {
		t.Errorf("expected kind UNKNOWN, got %s", pkt.Header.Kind)
	}
	if uint32(pkt.Header.StreamID) != 0xdeadbeef {
		t.Errorf("expected raw stream id preserved, got 0x%08x", uint32(pkt.Header.StreamID))
	}
	if pkt.Data != nil || pkt.Receiver != nil || pkt.Digitizer != nil || pkt.Extension != nil {
		t.Error("unknown stream must not populate a payload variant")
	}
}

func TestDecodeMultiplePacketsReuseBuffers(t *testing.T) {
	ts := Timestamp{Sec: 1}
	stream := AppendDataI16Q16(nil, 0, ts, []int16{1, 2}, []int16{3, 4}, 0)
	stream = AppendReceiverContext(stream, 1, ts, 1_000_000_000, -30)
	stream = AppendDataI16Q16(stream, 2, ts, []int16{5, 6}, []int16{7, 8}, 0)

	dec := NewDecoder(bytes.NewReader(stream))

	first, err := dec.Decode()
	if err != nil {
		t.Fatalf("first Decode failed: %v", err)
	}
	if first.Data == nil || first.Data.I[0] != 1 {
		t.Fatal("unexpected first data packet")
	}

	if _, err = dec.Decode(); err != nil {
		t.Fatalf("second Decode failed: %v", err)
	}

	third, err := dec.Decode()
	if err != nil {
		t.Fatalf("third Decode failed: %v", err)
	}
	if third.Data.I[0] != 5 || third.Data.Q[1] != 8 {
		t.Errorf("unexpected third data packet: I=%v Q=%v", third.Data.I, third.Data.Q)
	}
	// The decoder reuses its backing arrays between calls.
	if first.Data.I[0] != 5 {
		t.Error("expected first packet's samples to be overwritten by buffer reuse")
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		dec := NewDecoder(bytes.NewReader([]byte{0x10, 0x00}))
		_, err := dec.Decode()
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		stream := AppendDataI16Q16(nil, 0, Timestamp{}, make([]int16, 64), make([]int16, 64), 0)
		dec := NewDecoder(bytes.NewReader(stream[:len(stream)-16]))
		if _, err := dec.Decode(); !errors.Is(err, ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("closed source", func(t *testing.T) {
		dec := NewDecoder(bytes.NewReader(nil))
		if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
			t.Errorf("expected EOF to surface, got %v", err)
		}
	})

	t.Run("capacity exceeded", func(t *testing.T) {
		stream := AppendDataI32(nil, 0, Timestamp{}, make([]int32, 32), 0)
		dec := NewDecoder(bytes.NewReader(stream), WithMaxSamplesPerPacket(16))
		if _, err := dec.Decode(); !errors.Is(err, ErrPacketTooLarge) {
			t.Errorf("expected ErrPacketTooLarge, got %v", err)
		}
	})

	t.Run("malformed size", func(t *testing.T) {
		// Header word declares a two word packet, smaller than the preamble.
		raw := []byte{
			0x10, 0x00, 0x00, 0x02,
			0x90, 0x00, 0x00, 0x81,
			0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0,
		}
		dec := NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Decode(); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}
