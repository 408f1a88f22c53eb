package vrt

import "encoding/binary"

// Encoding support for loopback tests and instrument simulators. The
// real instrument is the only producer of these packets in production.

// AppendDataI16Q16 appends one I16Q16 data packet carrying the given
// interleaved I/Q samples, with a trailer word.
func AppendDataI16Q16(dst []byte, count uint8, ts Timestamp, i, q []int16, trailerFlags uint32) []byte {
	payload := make([]byte, len(i)*wordSize)
	for n := range i {
		binary.BigEndian.PutUint16(payload[n*wordSize:], uint16(i[n]))
		binary.BigEndian.PutUint16(payload[n*wordSize+2:], uint16(q[n]))
	}
	return appendPacket(dst, packetTypeIF, StreamDataI16Q16, count, ts, payload, &trailerFlags)
}

// AppendDataI16 appends one I16 data packet. The sample count must be
// even so samples pack into whole words.
func AppendDataI16(dst []byte, count uint8, ts Timestamp, samples []int16, trailerFlags uint32) []byte {
	payload := make([]byte, len(samples)*2)
	for n, s := range samples {
		binary.BigEndian.PutUint16(payload[n*2:], uint16(s))
	}
	return appendPacket(dst, packetTypeIF, StreamDataI16, count, ts, payload, &trailerFlags)
}

// AppendDataI32 appends one I32 data packet.
func AppendDataI32(dst []byte, count uint8, ts Timestamp, samples []int32, trailerFlags uint32) []byte {
	payload := make([]byte, len(samples)*wordSize)
	for n, s := range samples {
		binary.BigEndian.PutUint32(payload[n*wordSize:], uint32(s))
	}
	return appendPacket(dst, packetTypeIF, StreamDataI32, count, ts, payload, &trailerFlags)
}

// AppendReceiverContext appends a receiver context packet carrying a
// centre frequency and reference level.
func AppendReceiverContext(dst []byte, count uint8, ts Timestamp, freq uint64, refLevel float64) []byte {
	payload := make([]byte, 4*wordSize)
	binary.BigEndian.PutUint32(payload, indicatorFrequency|indicatorRefLevel)
	binary.BigEndian.PutUint64(payload[4:], freq)
	binary.BigEndian.PutUint16(payload[14:], uint16(int16(refLevel*128)))
	return appendPacket(dst, packetTypeContext, StreamReceiverContext, count, ts, payload, nil)
}

// AppendDigitizerContext appends a digitizer context packet carrying a
// bandwidth and reference level.
func AppendDigitizerContext(dst []byte, count uint8, ts Timestamp, bandwidth uint64, refLevel float64) []byte {
	payload := make([]byte, 4*wordSize)
	binary.BigEndian.PutUint32(payload, indicatorFrequency|indicatorRefLevel)
	binary.BigEndian.PutUint64(payload[4:], bandwidth)
	binary.BigEndian.PutUint16(payload[14:], uint16(int16(refLevel*128)))
	return appendPacket(dst, packetTypeContext, StreamDigitizerContext, count, ts, payload, nil)
}

// AppendExtensionContext appends an extension context packet with raw
// payload words following the indicator.
func AppendExtensionContext(dst []byte, count uint8, ts Timestamp, indicator uint32, words []uint32) []byte {
	payload := make([]byte, (1+len(words))*wordSize)
	binary.BigEndian.PutUint32(payload, indicator)
	for n, w := range words {
		binary.BigEndian.PutUint32(payload[(1+n)*wordSize:], w)
	}
	return appendPacket(dst, packetTypeExtension, StreamExtensionContext, count, ts, payload, nil)
}

// AppendUnknown appends a packet with an unrecognised stream id and an
// opaque payload, for exercising the codec's unknown-stream path.
func AppendUnknown(dst []byte, streamID uint32, count uint8, ts Timestamp, payload []byte) []byte {
	return appendPacket(dst, 0xf, StreamID(streamID), count, ts, payload, nil)
}

func appendPacket(dst []byte, pktType uint32, id StreamID, count uint8, ts Timestamp, payload []byte, trailer *uint32) []byte {
	sizeWords := headerWords + len(payload)/wordSize
	if trailer != nil {
		sizeWords++
	}

	word0 := pktType<<28 | uint32(count&0xf)<<16 | uint32(sizeWords&0xffff)
	if trailer != nil {
		word0 |= trailerBit
	}

	var preamble [headerWords * wordSize]byte
	binary.BigEndian.PutUint32(preamble[0:], word0)
	binary.BigEndian.PutUint32(preamble[4:], uint32(id))
	binary.BigEndian.PutUint32(preamble[8:], ts.Sec)
	binary.BigEndian.PutUint64(preamble[12:], ts.Psec)

	dst = append(dst, preamble[:]...)
	dst = append(dst, payload...)
	if trailer != nil {
		var raw [wordSize]byte
		binary.BigEndian.PutUint32(raw[:], *trailer)
		dst = append(dst, raw[:]...)
	}
	return dst
}
