package frame

import (
	"fmt"
	"math/bits"
)

// MinFrameSize is the smallest possible frame: header + CRC, zero options,
// zero payload.
const MinFrameSize = HeaderSize + CRCSize

// Decoded is the result of Decode: a header plus zero-copy views into the
// original buffer for options and payload. Callers must not retain these
// slices past the lifetime of buf.
type Decoded struct {
	Header  Header
	Options []Option
	Payload []byte
}

// EncodedLen returns the number of bytes Encode will write for the given
// options and payload.
func EncodedLen(opts []Option, payload []byte) int {
	return HeaderSize + TotalOptionsLen(opts) + len(payload) + CRCSize
}

// Encode lays out h, opts and payload into out per the wire format and
// appends the little-endian CRC-32C trailer. out must be at least
// EncodedLen(opts, payload) bytes; Encode writes exactly that many bytes
// and returns the count. h.TotalFrameLength and h.OptionsLength are
// overwritten to the values implied by opts/payload before encoding, so
// callers need not compute them by hand.
func Encode(out []byte, h Header, opts []Option, payload []byte) (int, error) {
	optsLen := TotalOptionsLen(opts)
	if optsLen > MaxOptionsLength {
		return 0, fmt.Errorf("%w: %d > %d", ErrOptionsOverflow, optsLen, MaxOptionsLength)
	}
	total := EncodedLen(opts, payload)
	if len(out) < total {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, total, len(out))
	}
	if h.Flags.Has(FlagTensorPayload) && !isPowerOfTwo(h.TensorAlignment) {
		return 0, ErrBadTensorAlignment
	}

	h.Version = ProtocolVersion
	h.OptionsLength = uint16(optsLen)
	h.TotalFrameLength = uint32(total)

	putHeader(out, h)
	n, err := encodeOptions(out[HeaderSize:], opts)
	if err != nil {
		return 0, err
	}
	payloadOff := HeaderSize + n
	copy(out[payloadOff:payloadOff+len(payload)], payload)
	crcOff := payloadOff + len(payload)
	putCRCLittleEndian(out[crcOff:crcOff+CRCSize], out[:crcOff])
	return total, nil
}

// Decode validates and parses buf into a Decoded frame. All failure modes
// return one of the sentinel errors in errors.go; Decode never panics or
// reads out of bounds, even on adversarial input (see the native fuzz test
// in codec_test.go).
func Decode(buf []byte) (Decoded, error) {
	if len(buf) < MinFrameSize {
		return Decoded{}, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(buf), MinFrameSize)
	}
	h := getHeader(buf)
	if h.Version != ProtocolVersion {
		return Decoded{}, fmt.Errorf("%w: got %d", ErrBadVersion, h.Version)
	}
	if int(h.TotalFrameLength) != len(buf) {
		return Decoded{}, fmt.Errorf("%w: header says %d, buffer is %d", ErrLengthMismatch, h.TotalFrameLength, len(buf))
	}
	if int(h.OptionsLength) > MaxOptionsLength {
		return Decoded{}, fmt.Errorf("%w: %d > %d", ErrOptionsOverflow, h.OptionsLength, MaxOptionsLength)
	}
	if HeaderSize+int(h.OptionsLength)+CRCSize > len(buf) {
		return Decoded{}, fmt.Errorf("%w: options length overruns frame", ErrLengthMismatch)
	}
	if h.Flags.Has(FlagTensorPayload) && !isPowerOfTwo(h.TensorAlignment) {
		return Decoded{}, ErrBadTensorAlignment
	}

	crcOff := len(buf) - CRCSize
	want := getCRCLittleEndian(buf[crcOff:])
	got := crc32c(buf[:crcOff])
	if want != got {
		return Decoded{}, fmt.Errorf("%w: want %08x got %08x", ErrBadCRC, want, got)
	}

	optsBuf := buf[HeaderSize : HeaderSize+int(h.OptionsLength)]
	opts, err := decodeOptions(optsBuf)
	if err != nil {
		return Decoded{}, err
	}
	payload := buf[HeaderSize+int(h.OptionsLength) : crcOff]

	return Decoded{Header: h, Options: opts, Payload: payload}, nil
}

func isPowerOfTwo(v uint16) bool {
	return v != 0 && bits.OnesCount16(v) == 1
}
