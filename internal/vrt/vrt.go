// Package vrt decodes the instrument's VRT-style binary packet stream
// into typed packet records.
package vrt

import "fmt"

// StreamID identifies the logical stream a packet belongs to.
// Unrecognised values are preserved as-is.
type StreamID uint32

const (
	StreamReceiverContext  StreamID = 0x90000001
	StreamDigitizerContext StreamID = 0x90000002
	StreamExtensionContext StreamID = 0x90000003
	StreamDataI16Q16       StreamID = 0x90000081
	StreamDataI16          StreamID = 0x90000082
	StreamDataI32          StreamID = 0x90000083
)

func (s StreamID) String() string {
	switch s {
	case StreamReceiverContext:
		return "CTX_RECEIVER"
	case StreamDigitizerContext:
		return "CTX_DIGITIZER"
	case StreamExtensionContext:
		return "CTX_EXTENSION"
	case StreamDataI16Q16:
		return "DATA_I16Q16"
	case StreamDataI16:
		return "DATA_I16"
	case StreamDataI32:
		return "DATA_I32"
	}
	return fmt.Sprintf("UNKNOWN(0x%08x)", uint32(s))
}

// PacketKind is the coarse packet class carried in the header word.
type PacketKind uint8

const (
	KindUnknown PacketKind = iota
	KindIF
	KindContext
	KindExtension
)

func (k PacketKind) String() string {
	switch k {
	case KindIF:
		return "IF"
	case KindContext:
		return "CONTEXT"
	case KindExtension:
		return "EXTENSION"
	}
	return "UNKNOWN"
}

// SampleFormat describes how data packet payload words encode samples.
type SampleFormat uint8

const (
	FormatNone SampleFormat = iota
	FormatI16Q16
	FormatI16
	FormatI32
)

// Timestamp is the packet capture time split into integer seconds and
// fractional picoseconds, exactly as carried on the wire.
type Timestamp struct {
	Sec  uint32
	Psec uint64
}

// Header is the fixed leading portion of every packet.
type Header struct {
	StreamID         StreamID
	Kind             PacketKind
	Count            uint8 // modulo-16 packet counter, used to detect drops
	SamplesPerPacket int
	Timestamp        Timestamp
}

// String renders the header in the instrument's diagnostic form.
func (h Header) String() string {
	return fmt.Sprintf("VRT Header(%s): type=%s, count=%d, spp=%d, ts:%d.%012ds",
		h.StreamID, h.Kind, h.Count, h.SamplesPerPacket, h.Timestamp.Sec, h.Timestamp.Psec)
}

// Trailer carries validity and calibration flags; present only on data
// packets that set the trailer bit in the header word.
type Trailer struct {
	Flags uint32
}

// ValidData reports whether the instrument marked the payload valid.
func (t Trailer) ValidData() bool { return t.Flags&(1<<18) != 0 }

// ReferenceLock reports whether the frequency reference was locked
// while the payload was captured.
func (t Trailer) ReferenceLock() bool { return t.Flags&(1<<16) != 0 }

// ReceiverContext is an instrument state snapshot from the receiver
// section. Pointer fields are nil when the indicator bitmap did not
// include the field.
type ReceiverContext struct {
	Indicator      uint32
	Frequency      *uint64  // centre frequency, Hz
	ReferenceLevel *float64 // dBm
}

// DigitizerContext is an instrument state snapshot from the digitizer
// section.
type DigitizerContext struct {
	Indicator      uint32
	Bandwidth      *uint64  // Hz
	ReferenceLevel *float64 // dBm
}

// ExtensionContext carries vendor-specific state. The payload past the
// indicator word is kept raw; callers that understand the extension
// interpret it themselves.
type ExtensionContext struct {
	Indicator uint32
	Words     []uint32
}

// SampleBlock is the payload of one data packet. The backing arrays are
// owned by the Decoder and valid until the next Decode call; Count is
// the number of samples actually written.
type SampleBlock struct {
	Format SampleFormat
	Count  int

	I   []int16 // FormatI16Q16 and FormatI16
	Q   []int16 // FormatI16Q16 only
	I32 []int32 // FormatI32 only
}

// Packet is one decoded record. Exactly one of the payload pointers is
// populated, selected by the header's stream identifier; all are nil
// for unknown streams.
type Packet struct {
	Header  Header
	Trailer *Trailer

	Receiver  *ReceiverContext
	Digitizer *DigitizerContext
	Extension *ExtensionContext
	Data      *SampleBlock
}
