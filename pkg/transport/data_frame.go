package transport

import "encoding/binary"

// encodeDataFrame prefixes a stream payload with its 4-byte big-endian
// sequence number, the shape Connection.send hands to the frame codec's
// own payload field (stream id and frame type live in the frame header).
func encodeDataFrame(seq uint32, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	copy(buf[4:], payload)
	return buf
}

// decodeDataFrame splits a Data frame's payload back into sequence number
// and chunk bytes.
func decodeDataFrame(buf []byte) (seq uint32, payload []byte, ok bool) {
	if len(buf) < 4 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(buf[0:4]), buf[4:], true
}
