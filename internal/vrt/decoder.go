package vrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// headerWords is the fixed packet preamble: header word, stream id,
	// integer seconds, two words of fractional picoseconds.
	headerWords = 5
	wordSize    = 4

	packetTypeIF        = 0x1
	packetTypeContext   = 0x4
	packetTypeExtension = 0x5

	trailerBit = 1 << 26

	// Context indicator bits.
	indicatorFrequency = 1 << 27
	indicatorRefLevel  = 1 << 24

	// DefaultMaxSamplesPerPacket bounds the reusable sample buffers when
	// no explicit capacity is given.
	DefaultMaxSamplesPerPacket = 1024
)

var (
	// ErrTruncated is returned when the source ends mid-packet.
	ErrTruncated = errors.New("vrt: stream truncated mid-packet")

	// ErrPacketTooLarge is returned when a data packet carries more
	// samples than the decoder's buffer capacity.
	ErrPacketTooLarge = errors.New("vrt: packet exceeds sample buffer capacity")

	// ErrMalformed is returned when header fields are internally
	// inconsistent (e.g. declared size smaller than the preamble).
	ErrMalformed = errors.New("vrt: malformed packet")
)

// DecodeError wraps any failure to produce a packet from the source,
// including transport errors surfaced by the underlying reader.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("vrt: decode: %s", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// WithMaxSamplesPerPacket sets the capacity of the decoder's reusable
// sample buffers. Packets declaring more samples fail with
// ErrPacketTooLarge rather than truncating.
func WithMaxSamplesPerPacket(n int) func(*Decoder) {
	return func(d *Decoder) {
		d.maxSamples = n
	}
}

// Decoder reads packets off a byte stream. Sample buffers are allocated
// once at construction and reused for every data packet, so a decoded
// SampleBlock is only valid until the next Decode call.
type Decoder struct {
	src        io.Reader
	maxSamples int

	scratch []byte
	iBuf    []int16
	qBuf    []int16
	i32Buf  []int32
}

// NewDecoder creates a decoder reading from src.
func NewDecoder(src io.Reader, options ...func(*Decoder)) *Decoder {
	d := Decoder{
		src:        src,
		maxSamples: DefaultMaxSamplesPerPacket,
	}

	for _, option := range options {
		option(&d)
	}

	d.scratch = make([]byte, (d.maxSamples+headerWords+1)*wordSize)
	d.iBuf = make([]int16, d.maxSamples)
	d.qBuf = make([]int16, d.maxSamples)
	d.i32Buf = make([]int32, d.maxSamples)

	return &d
}

// Decode reads exactly one packet from the source. Unknown stream
// identifiers still yield a valid header with kind Unknown and no
// payload. Any read failure, including a short read at end of stream,
// is reported as a *DecodeError.
func (d *Decoder) Decode() (*Packet, error) {
	preamble := d.scratch[:headerWords*wordSize]
	if _, err := io.ReadFull(d.src, preamble); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Err: ErrTruncated}
		}
		return nil, &DecodeError{Err: err}
	}

	word0 := binary.BigEndian.Uint32(preamble[0:])
	sizeWords := int(word0 & 0xffff)
	if sizeWords < headerWords {
		return nil, &DecodeError{Err: fmt.Errorf("%w: declared size %d words", ErrMalformed, sizeWords)}
	}

	pkt := Packet{
		Header: Header{
			StreamID: StreamID(binary.BigEndian.Uint32(preamble[4:])),
			Count:    uint8(word0 >> 16 & 0xf),
			Timestamp: Timestamp{
				Sec:  binary.BigEndian.Uint32(preamble[8:]),
				Psec: binary.BigEndian.Uint64(preamble[12:]),
			},
		},
	}

	hasTrailer := word0&trailerBit != 0
	switch word0 >> 28 {
	case packetTypeIF:
		pkt.Header.Kind = KindIF
	case packetTypeContext:
		pkt.Header.Kind = KindContext
	case packetTypeExtension:
		pkt.Header.Kind = KindExtension
	default:
		pkt.Header.Kind = KindUnknown
	}

	payloadWords := sizeWords - headerWords
	if hasTrailer {
		payloadWords--
	}
	if payloadWords < 0 {
		return nil, &DecodeError{Err: fmt.Errorf("%w: trailer flagged on %d word packet", ErrMalformed, sizeWords)}
	}
	if spp := samplesForPayload(pkt.Header.StreamID, payloadWords); spp > d.maxSamples {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %d samples, capacity %d", ErrPacketTooLarge, spp, d.maxSamples)}
	}
	if payloadWords*wordSize > len(d.scratch) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %d payload words, capacity %d", ErrPacketTooLarge, payloadWords, len(d.scratch)/wordSize)}
	}

	payload := d.scratch[:payloadWords*wordSize]
	if _, err := io.ReadFull(d.src, payload); err != nil {
		return nil, &DecodeError{Err: ErrTruncated}
	}

	if err := d.decodePayload(&pkt, payload); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if hasTrailer {
		var raw [wordSize]byte
		if _, err := io.ReadFull(d.src, raw[:]); err != nil {
			return nil, &DecodeError{Err: ErrTruncated}
		}
		pkt.Trailer = &Trailer{Flags: binary.BigEndian.Uint32(raw[:])}
	}

	return &pkt, nil
}

// samplesForPayload converts a payload word count into a sample count
// for the stream's encoding. Non-data streams report zero.
func samplesForPayload(id StreamID, words int) int {
	switch id {
	case StreamDataI16Q16, StreamDataI32:
		return words
	case StreamDataI16:
		return words * 2
	}
	return 0
}

func (d *Decoder) decodePayload(pkt *Packet, payload []byte) error {
	switch pkt.Header.StreamID {
	case StreamReceiverContext:
		ctx, err := decodeReceiverContext(payload)
		if err != nil {
			return err
		}
		pkt.Receiver = ctx

	case StreamDigitizerContext:
		ctx, err := decodeDigitizerContext(payload)
		if err != nil {
			return err
		}
		pkt.Digitizer = ctx

	case StreamExtensionContext:
		ctx, err := decodeExtensionContext(payload)
		if err != nil {
			return err
		}
		pkt.Extension = ctx

	case StreamDataI16Q16:
		n := len(payload) / wordSize
		for i := 0; i < n; i++ {
			d.iBuf[i] = int16(binary.BigEndian.Uint16(payload[i*wordSize:]))
			d.qBuf[i] = int16(binary.BigEndian.Uint16(payload[i*wordSize+2:]))
		}
		pkt.Data = &SampleBlock{Format: FormatI16Q16, Count: n, I: d.iBuf[:n], Q: d.qBuf[:n]}
		pkt.Header.SamplesPerPacket = n

	case StreamDataI16:
		n := len(payload) / 2
		for i := 0; i < n; i++ {
			d.iBuf[i] = int16(binary.BigEndian.Uint16(payload[i*2:]))
		}
		pkt.Data = &SampleBlock{Format: FormatI16, Count: n, I: d.iBuf[:n]}
		pkt.Header.SamplesPerPacket = n

	case StreamDataI32:
		n := len(payload) / wordSize
		for i := 0; i < n; i++ {
			d.i32Buf[i] = int32(binary.BigEndian.Uint32(payload[i*wordSize:]))
		}
		pkt.Data = &SampleBlock{Format: FormatI32, Count: n, I32: d.i32Buf[:n]}
		pkt.Header.SamplesPerPacket = n
	}

	return nil
}

func decodeReceiverContext(payload []byte) (*ReceiverContext, error) {
	fields, err := newFieldReader(payload)
	if err != nil {
		return nil, err
	}

	ctx := ReceiverContext{Indicator: fields.indicator}
	if fields.indicator&indicatorFrequency != 0 {
		f, err := fields.uint64Field()
		if err != nil {
			return nil, err
		}
		ctx.Frequency = &f
	}
	if fields.indicator&indicatorRefLevel != 0 {
		l, err := fields.refLevelField()
		if err != nil {
			return nil, err
		}
		ctx.ReferenceLevel = &l
	}
	return &ctx, nil
}

func decodeDigitizerContext(payload []byte) (*DigitizerContext, error) {
	fields, err := newFieldReader(payload)
	if err != nil {
		return nil, err
	}

	ctx := DigitizerContext{Indicator: fields.indicator}
	if fields.indicator&indicatorFrequency != 0 {
		bw, err := fields.uint64Field()
		if err != nil {
			return nil, err
		}
		ctx.Bandwidth = &bw
	}
	if fields.indicator&indicatorRefLevel != 0 {
		l, err := fields.refLevelField()
		if err != nil {
			return nil, err
		}
		ctx.ReferenceLevel = &l
	}
	return &ctx, nil
}

func decodeExtensionContext(payload []byte) (*ExtensionContext, error) {
	fields, err := newFieldReader(payload)
	if err != nil {
		return nil, err
	}

	words := make([]uint32, len(fields.rest)/wordSize)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(fields.rest[i*wordSize:])
	}
	return &ExtensionContext{Indicator: fields.indicator, Words: words}, nil
}

// fieldReader walks a context payload: an indicator bitmap word
// followed by the fields the bitmap declares, in bit order.
type fieldReader struct {
	indicator uint32
	rest      []byte
}

func newFieldReader(payload []byte) (*fieldReader, error) {
	if len(payload) < wordSize {
		return nil, fmt.Errorf("%w: context packet without indicator word", ErrMalformed)
	}
	return &fieldReader{
		indicator: binary.BigEndian.Uint32(payload),
		rest:      payload[wordSize:],
	}, nil
}

func (r *fieldReader) uint64Field() (uint64, error) {
	if len(r.rest) < 8 {
		return 0, fmt.Errorf("%w: short context field", ErrMalformed)
	}
	v := binary.BigEndian.Uint64(r.rest)
	r.rest = r.rest[8:]
	return v, nil
}

// refLevelField decodes a reference level carried as a signed 1/128 dBm
// fixed-point value in the low 16 bits of one word.
func (r *fieldReader) refLevelField() (float64, error) {
	if len(r.rest) < wordSize {
		return 0, fmt.Errorf("%w: short context field", ErrMalformed)
	}
	raw := int16(binary.BigEndian.Uint16(r.rest[2:]))
	r.rest = r.rest[wordSize:]
	return float64(raw) / 128, nil
}
