package frame

import "fmt"

// OptionType is the one-byte TLV option type. The top bit marks a critical
// option: a decoder that does not recognize a critical option type must
// fail the decode, while an unrecognized non-critical option is skipped.
type OptionType uint8

const criticalBit OptionType = 0x80

const (
	OptFragmentInfo     OptionType = 0x01
	OptCompressionAlg   OptionType = 0x02
	OptEncryptionTag    OptionType = 0x03
	OptTensorShape      OptionType = 0x04
	OptTraceID          OptionType = 0x05
	OptHopCount         OptionType = 0x06
	OptSemanticAddress  OptionType = 0x07
	OptGPUHint          OptionType = 0x08
)

// IsCritical reports whether the top bit of the option type is set.
func (t OptionType) IsCritical() bool { return t&criticalBit != 0 }

// knownOptionTypes lists every type this codec recognizes, and the fixed
// length it expects (0 means variable-length, validated by the specific
// field instead).
var knownOptionTypes = map[OptionType]int{
	OptFragmentInfo:    6, // offset(4) + total_fragments(2)
	OptCompressionAlg:  1,
	OptEncryptionTag:   0,
	OptTensorShape:     0,
	OptTraceID:         16,
	OptHopCount:        1,
	OptSemanticAddress: 0,
	OptGPUHint:         0,
}

// Option is a decoded TLV option: one byte type, one byte length, `length`
// bytes of value.
type Option struct {
	Type  OptionType
	Value []byte
}

func (o Option) String() string {
	return fmt.Sprintf("Option{type=0x%02x len=%d}", uint8(o.Type), len(o.Value))
}

// encodeOptions writes opts as a sequence of TLVs into buf and returns the
// number of bytes written. buf must be at least TotalOptionsLen(opts) long.
func encodeOptions(buf []byte, opts []Option) (int, error) {
	n := 0
	for _, o := range opts {
		if len(o.Value) > 255 {
			return 0, fmt.Errorf("%w: option 0x%02x has length %d", ErrOptionTooLong, o.Type, len(o.Value))
		}
		buf[n] = byte(o.Type)
		buf[n+1] = byte(len(o.Value))
		copy(buf[n+2:n+2+len(o.Value)], o.Value)
		n += 2 + len(o.Value)
	}
	return n, nil
}

// TotalOptionsLen returns the wire length of opts.
func TotalOptionsLen(opts []Option) int {
	n := 0
	for _, o := range opts {
		n += 2 + len(o.Value)
	}
	return n
}

// decodeOptions parses a TLV sequence out of buf, rejecting any unknown
// critical option and any mismatched fixed-length known option.
func decodeOptions(buf []byte) ([]Option, error) {
	var opts []Option
	i := 0
	for i < len(buf) {
		if i+2 > len(buf) {
			return nil, fmt.Errorf("%w: truncated option header", ErrLengthMismatch)
		}
		t := OptionType(buf[i])
		l := int(buf[i+1])
		i += 2
		if i+l > len(buf) {
			return nil, fmt.Errorf("%w: option 0x%02x value overruns options block", ErrLengthMismatch, t)
		}
		val := buf[i : i+l]
		i += l

		if wantLen, known := knownOptionTypes[t]; known {
			if wantLen != 0 && l != wantLen {
				return nil, fmt.Errorf("%w: option 0x%02x expected length %d, got %d", ErrLengthMismatch, t, wantLen, l)
			}
		} else if t.IsCritical() {
			return nil, fmt.Errorf("%w: type 0x%02x", ErrUnknownCriticalOption, t)
		}
		// Unknown, non-critical: keep it anyway so callers can still see it;
		// forward-compatibility only requires that we not fail the decode.
		opts = append(opts, Option{Type: t, Value: val})
	}
	return opts, nil
}

// FindOption returns the first option of the given type, if present.
func FindOption(opts []Option, t OptionType) (Option, bool) {
	for _, o := range opts {
		if o.Type == t {
			return o, true
		}
	}
	return Option{}, false
}
