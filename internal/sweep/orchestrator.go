package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/openrf/wsasweep/internal/spectrum"
	"github.com/openrf/wsasweep/internal/vrt"
)

const (
	// DefaultSamplesPerPacket matches the instrument's largest packet.
	DefaultSamplesPerPacket = 1024

	// DefaultPacketsPerBlock captures a single data packet per segment.
	DefaultPacketsPerBlock = 1

	// DefaultReadTimeout bounds the wait for a data packet per segment.
	DefaultReadTimeout = 5 * time.Second
)

// ErrCaptureTimeout is returned when a segment produces no data packet
// before the read deadline. The sweep is aborted, not partially
// returned.
var ErrCaptureTimeout = errors.New("sweep: no data packet before deadline")

// SweepError wraps a segment failure with the band that was being
// captured, so callers can retry with context.
type SweepError struct {
	FStart uint64
	FStop  uint64
	Err    error
}

func (e *SweepError) Error() string {
	return fmt.Sprintf("sweep: segment [%d, %d): %s", e.FStart, e.FStop, e.Err)
}

func (e *SweepError) Unwrap() error { return e.Err }

// Warning is a non-fatal condition observed during a sweep, currently
// only packet counter gaps. The affected data stays in the result.
type Warning struct {
	FStart  uint64
	FStop   uint64
	Message string
}

// Result is a completed sweep: the fully assembled spectrum and any
// warnings collected along the way. A Result is only produced when
// every segment succeeded.
type Result struct {
	Spectrum *spectrum.Buffer
	Warnings []Warning
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSamplesPerPacket sets the capture packet size requested from the
// instrument and the codec's buffer capacity.
func WithSamplesPerPacket(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.samplesPerPacket = n
	}
}

// WithPacketsPerBlock sets how many data packets the instrument emits
// per armed capture.
func WithPacketsPerBlock(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.packetsPerBlock = n
	}
}

// WithReadTimeout bounds how long one segment may wait for its data
// packet before the sweep is aborted.
func WithReadTimeout(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.readTimeout = d
	}
}

// Orchestrator drives one full sweep: it tunes and arms the instrument
// per planned segment, drains packets until each segment's data
// arrives, and hands sample blocks to the spectral transform. Captures
// are sequential because the instrument tunes one band at a time;
// transforms run concurrently with the next capture since each writes
// a disjoint region of the spectrum buffer.
type Orchestrator struct {
	session             Session
	maxCaptureBandwidth uint64

	logger           *slog.Logger
	samplesPerPacket int
	packetsPerBlock  int
	readTimeout      time.Duration
}

// New creates an orchestrator over the given device session.
// maxCaptureBandwidth is the widest band the instrument can digitise in
// one capture.
func New(session Session, maxCaptureBandwidth uint64, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		session:             session,
		maxCaptureBandwidth: maxCaptureBandwidth,
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		samplesPerPacket:    DefaultSamplesPerPacket,
		packetsPerBlock:     DefaultPacketsPerBlock,
		readTimeout:         DefaultReadTimeout,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run performs the sweep described by cfg and returns the assembled
// spectrum. Any segment failure aborts the whole sweep; cancellation of
// ctx aborts the in-flight capture and returns the instrument to idle.
func (o *Orchestrator) Run(ctx context.Context, cfg *spectrum.Config) (*Result, error) {
	segments, err := Plan(cfg, o.maxCaptureBandwidth)
	if err != nil {
		return nil, err
	}

	if err = o.session.ConfigureCapture(ctx, cfg.Mode, o.samplesPerPacket, o.packetsPerBlock); err != nil {
		return nil, fmt.Errorf("configuring capture: %w", err)
	}

	buf := spectrum.NewBuffer(cfg)
	src := &sessionReader{ctx: ctx, session: o.session}
	dec := vrt.NewDecoder(src, vrt.WithMaxSamplesPerPacket(o.samplesPerPacket))

	state := sweepState{
		counts: make(map[vrt.StreamID]uint8),
	}

	var (
		wg           sync.WaitGroup
		transformMu  sync.Mutex
		transformErr error
	)

	for _, seg := range segments {
		o.logger.Debug("capturing segment",
			slog.Uint64("fstart", seg.FStart),
			slog.Uint64("fstop", seg.FStop),
			slog.Int("lo", seg.Lo),
			slog.Int("hi", seg.Hi))

		block, err := o.captureSegment(ctx, src, dec, seg, &state)
		if err != nil {
			o.session.AbortCapture()
			wg.Wait()
			return nil, &SweepError{FStart: seg.FStart, FStop: seg.FStop, Err: err}
		}

		region := buf.Region(seg.Lo, seg.Hi)
		cal := state.cal

		wg.Add(1)
		go func(seg Segment) {
			defer wg.Done()
			if err := spectrum.Transform(block, region, cal); err != nil {
				transformMu.Lock()
				if transformErr == nil {
					transformErr = &SweepError{FStart: seg.FStart, FStop: seg.FStop, Err: err}
				}
				transformMu.Unlock()
			}
		}(seg)
	}

	wg.Wait()
	if transformErr != nil {
		return nil, transformErr
	}

	return &Result{Spectrum: buf, Warnings: state.warnings}, nil
}

// sweepState carries the mutable per-sweep bookkeeping: the modulo-16
// packet counter per stream, the calibration snapshot from the latest
// context packet, and accumulated warnings.
type sweepState struct {
	counts   map[vrt.StreamID]uint8
	cal      spectrum.Calibration
	warnings []Warning
}

// captureSegment tunes, arms and drains packets until the segment's IF
// data packet arrives. The returned block owns its samples; the
// decoder's reusable buffers are copied out before the next capture can
// overwrite them.
func (o *Orchestrator) captureSegment(ctx context.Context, src *sessionReader, dec *vrt.Decoder, seg Segment, state *sweepState) (*vrt.SampleBlock, error) {
	centre := seg.FStart + (seg.FStop-seg.FStart)/2
	if err := o.session.TuneTo(ctx, centre); err != nil {
		return nil, fmt.Errorf("tuning to %d Hz: %w", centre, err)
	}
	if err := o.session.FlushPendingData(ctx); err != nil {
		return nil, fmt.Errorf("flushing pending data: %w", err)
	}
	if err := o.session.ArmCapture(ctx); err != nil {
		return nil, fmt.Errorf("arming capture: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, o.readTimeout)
	defer cancel()
	src.ctx = readCtx

	for {
		pkt, err := dec.Decode()
		if err != nil {
			switch {
			case errors.Is(err, ErrReadTimeout), errors.Is(err, context.DeadlineExceeded):
				return nil, ErrCaptureTimeout
			case errors.Is(err, context.Canceled):
				return nil, context.Canceled
			default:
				return nil, err
			}
		}

		o.trackPacketCount(pkt.Header, seg, state)

		switch {
		case pkt.Data != nil && pkt.Header.Kind == vrt.KindIF:
			return clonedBlock(pkt.Data), nil

		case pkt.Receiver != nil:
			if pkt.Receiver.ReferenceLevel != nil {
				state.cal.ReferenceLevel = *pkt.Receiver.ReferenceLevel
			}

		case pkt.Digitizer != nil:
			if pkt.Digitizer.ReferenceLevel != nil {
				state.cal.ReferenceLevel = *pkt.Digitizer.ReferenceLevel
			}

		default:
			// Extension context, unknown streams and non-IF data are
			// drained and discarded.
		}
	}
}

// trackPacketCount verifies the 4-bit packet counter is contiguous per
// stream. Gaps mean dropped packets; the capture continues but the gap
// is logged and attached to the result.
func (o *Orchestrator) trackPacketCount(h vrt.Header, seg Segment, state *sweepState) {
	last, seen := state.counts[h.StreamID]
	state.counts[h.StreamID] = h.Count
	if !seen {
		return
	}

	if expected := (last + 1) & 0xf; h.Count != expected {
		msg := fmt.Sprintf("packet counter gap on %s: expected %d, got %d", h.StreamID, expected, h.Count)
		o.logger.Warn(msg,
			slog.Uint64("fstart", seg.FStart),
			slog.Uint64("fstop", seg.FStop))
		state.warnings = append(state.warnings, Warning{
			FStart:  seg.FStart,
			FStop:   seg.FStop,
			Message: msg,
		})
	}
}

func clonedBlock(b *vrt.SampleBlock) *vrt.SampleBlock {
	clone := vrt.SampleBlock{
		Format: b.Format,
		Count:  b.Count,
	}
	if b.I != nil {
		clone.I = append([]int16(nil), b.I...)
	}
	if b.Q != nil {
		clone.Q = append([]int16(nil), b.Q...)
	}
	if b.I32 != nil {
		clone.I32 = append([]int32(nil), b.I32...)
	}
	return &clone
}

// sessionReader adapts Session.ReadRaw to io.Reader for the codec. The
// capture loop swaps ctx per segment; reads are single-threaded.
type sessionReader struct {
	ctx     context.Context
	session Session
}

func (r *sessionReader) Read(p []byte) (int, error) {
	return r.session.ReadRaw(r.ctx, p)
}

var _ io.Reader = (*sessionReader)(nil)
