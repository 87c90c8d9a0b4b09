// Package sad implements the Semantic Address Descriptor: a binary TLV
// format describing capabilities or constraints used to select an
// endpoint by what it can do rather than where it is.
package sad

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cortexmesh/corenet/pkg/frame"
)

// Version is the only SAD wire version this codec accepts.
const Version = 1

// MaxFields is the maximum number of fields a SAD may carry.
const MaxFields = 16

// MaxTotalBytes is the maximum encoded size of a SAD.
const MaxTotalBytes = 512

// FieldType is the one-byte TLV field type.
type FieldType uint8

const (
	FieldModelArch       FieldType = 1
	FieldCapability      FieldType = 2
	FieldContextWindow   FieldType = 3
	FieldMaxLatencyMS    FieldType = 4
	FieldMaxCostMilli    FieldType = 5
	FieldMinTrustLevel   FieldType = 6
	FieldRegionPrefer    FieldType = 7
	FieldRegionExclude   FieldType = 8
	FieldPublisherID     FieldType = 9
	FieldMinBenchmark    FieldType = 10
	FieldCustom          FieldType = 11
)

func (t FieldType) String() string {
	switch t {
	case FieldModelArch:
		return "MODEL_ARCH"
	case FieldCapability:
		return "CAPABILITY"
	case FieldContextWindow:
		return "CONTEXT_WINDOW"
	case FieldMaxLatencyMS:
		return "MAX_LATENCY_MS"
	case FieldMaxCostMilli:
		return "MAX_COST_MILLI"
	case FieldMinTrustLevel:
		return "MIN_TRUST_LEVEL"
	case FieldRegionPrefer:
		return "REGION_PREFER"
	case FieldRegionExclude:
		return "REGION_EXCLUDE"
	case FieldPublisherID:
		return "PUBLISHER_ID"
	case FieldMinBenchmark:
		return "MIN_BENCHMARK"
	case FieldCustom:
		return "CUSTOM"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// Capability bitfield values for FieldCapability.
const (
	CapTextGen     uint32 = 1 << 0
	CapCodeGen     uint32 = 1 << 1
	CapImageGen    uint32 = 1 << 2
	CapAudioGen    uint32 = 1 << 3
	CapEmbedding   uint32 = 1 << 4
	CapClassification uint32 = 1 << 5
	CapToolUse     uint32 = 1 << 6
	CapReasoning   uint32 = 1 << 7
)

// fixedLen reports the expected encoded value length for known field types
// whose length is fixed, and whether the type is known at all. Region
// lists are validated separately (non-empty, multiple of 2 bytes).
var fixedLen = map[FieldType]int{
	FieldModelArch:     4,
	FieldCapability:    4,
	FieldContextWindow: 4,
	FieldMaxLatencyMS:  4,
	FieldMaxCostMilli:  4,
	FieldMinTrustLevel: 1,
	FieldPublisherID:   16,
	FieldMinBenchmark:  4,
}

// Field is a decoded SAD TLV field.
type Field struct {
	Type  FieldType
	Value []byte
}

// SAD is a decoded Semantic Address Descriptor. A zero-field SAD is a
// wildcard matching every candidate.
type SAD struct {
	Flags  uint8
	Fields []Field
}

var (
	ErrBadVersion    = errors.New("sad: bad version")
	ErrTooManyFields = errors.New("sad: too many fields")
	ErrTooLarge      = errors.New("sad: encoded size exceeds maximum")
	ErrBadFieldLen   = errors.New("sad: bad field length")
	ErrTruncated     = errors.New("sad: truncated")
)

// Encode writes s to the wire format: version(1) flags(1) num_fields(2)
// then each field as type(1) length(2) value(length), all big-endian.
func Encode(s SAD) ([]byte, error) {
	if len(s.Fields) > MaxFields {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFields, len(s.Fields), MaxFields)
	}
	size := 4
	for _, f := range s.Fields {
		size += 3 + len(f.Value)
	}
	if size > MaxTotalBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, MaxTotalBytes)
	}
	buf := make([]byte, size)
	buf[0] = Version
	buf[1] = s.Flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(s.Fields)))
	off := 4
	for _, f := range s.Fields {
		buf[off] = byte(f.Type)
		binary.BigEndian.PutUint16(buf[off+1:off+3], uint16(len(f.Value)))
		copy(buf[off+3:off+3+len(f.Value)], f.Value)
		off += 3 + len(f.Value)
	}
	return buf, nil
}

// Decode parses buf into a SAD without validating field semantics (use
// Validate for that). It does validate structural integrity: it never
// panics or reads out of bounds on arbitrary input.
func Decode(buf []byte) (SAD, error) {
	if len(buf) < 4 {
		return SAD{}, fmt.Errorf("%w: need at least 4 bytes, have %d", ErrTruncated, len(buf))
	}
	if buf[0] != Version {
		return SAD{}, fmt.Errorf("%w: got %d", ErrBadVersion, buf[0])
	}
	s := SAD{Flags: buf[1]}
	numFields := binary.BigEndian.Uint16(buf[2:4])
	if numFields > MaxFields {
		return SAD{}, fmt.Errorf("%w: %d > %d", ErrTooManyFields, numFields, MaxFields)
	}
	off := 4
	for i := uint16(0); i < numFields; i++ {
		if off+3 > len(buf) {
			return SAD{}, fmt.Errorf("%w: field header at offset %d", ErrTruncated, off)
		}
		t := FieldType(buf[off])
		l := int(binary.BigEndian.Uint16(buf[off+1 : off+3]))
		off += 3
		if off+l > len(buf) {
			return SAD{}, fmt.Errorf("%w: field 0x%02x value at offset %d", ErrTruncated, t, off)
		}
		s.Fields = append(s.Fields, Field{Type: t, Value: buf[off : off+l]})
		off += l
	}
	return s, nil
}

// Validate checks the structural constraints of spec.md §4.5: known field
// types must have the expected length; region lists must be non-empty
// multiples of 2 bytes.
func Validate(buf []byte) error {
	s, err := Decode(buf)
	if err != nil {
		return err
	}
	for _, f := range s.Fields {
		if want, known := fixedLen[f.Type]; known {
			if len(f.Value) != want {
				return fmt.Errorf("%w: field %s expected length %d, got %d", ErrBadFieldLen, f.Type, want, len(f.Value))
			}
			continue
		}
		switch f.Type {
		case FieldRegionPrefer, FieldRegionExclude:
			if len(f.Value) == 0 || len(f.Value)%2 != 0 {
				return fmt.Errorf("%w: field %s must be a non-empty multiple of 2 bytes, got %d", ErrBadFieldLen, f.Type, len(f.Value))
			}
		case FieldCustom:
			// unconstrained
		default:
			// unknown non-critical field type: permitted for forward
			// compatibility, per spec.md §4.5.
		}
	}
	return nil
}

// Get returns the raw value of the first field of type t, if present.
func (s SAD) Get(t FieldType) ([]byte, bool) {
	for _, f := range s.Fields {
		if f.Type == t {
			return f.Value, true
		}
	}
	return nil, false
}

// GetUint32 returns the field's value as a big-endian uint32, or 0 if the
// field is absent or malformed.
func (s SAD) GetUint32(t FieldType) (uint32, bool) {
	v, ok := s.Get(t)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// GetUint8 returns the field's value as a byte, or 0 if absent.
func (s SAD) GetUint8(t FieldType) (uint8, bool) {
	v, ok := s.Get(t)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// GetUint16List decodes a region list field into a slice of region codes.
func (s SAD) GetUint16List(t FieldType) ([]uint16, bool) {
	v, ok := s.Get(t)
	if !ok || len(v) == 0 || len(v)%2 != 0 {
		return nil, false
	}
	out := make([]uint16, len(v)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(v[i*2 : i*2+2])
	}
	return out, true
}

// GetPublisherID returns the 128-bit publisher id field, if present.
func (s SAD) GetPublisherID() (frame.NodeID, bool) {
	v, ok := s.Get(FieldPublisherID)
	if !ok || len(v) != 16 {
		return frame.NodeID{}, false
	}
	var id frame.NodeID
	copy(id[:], v)
	return id, true
}

// IsWildcard reports whether s carries no fields, matching every candidate.
func (s SAD) IsWildcard() bool { return len(s.Fields) == 0 }

// Uint32Field builds a Field carrying a big-endian uint32 value.
func Uint32Field(t FieldType, v uint32) Field {
	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, v)
	return Field{Type: t, Value: val}
}

// Uint8Field builds a Field carrying a single byte value.
func Uint8Field(t FieldType, v uint8) Field {
	return Field{Type: t, Value: []byte{v}}
}

// Uint16ListField builds a Field carrying a region list.
func Uint16ListField(t FieldType, vs []uint16) Field {
	val := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.BigEndian.PutUint16(val[i*2:i*2+2], v)
	}
	return Field{Type: t, Value: val}
}
