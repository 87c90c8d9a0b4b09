// Package frame implements the L1 wire codec: a fixed 64-byte header,
// 0-256 bytes of TLV options, a variable payload and a trailing CRC-32C.
//
// The on-the-wire layout is big-endian for multi-byte integers except the
// trailing CRC, which is little-endian to match the x86 CRC32 instruction
// (see crc.go). Encoding and decoding never allocate beyond the returned
// buffer/views, matching the zero-copy intent of the platform boundary.
package frame

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 64

// CRCSize is the size of the trailing CRC-32C in bytes.
const CRCSize = 4

// MaxOptionsLength is the maximum total length of the TLV options block.
const MaxOptionsLength = 256

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion = 1

// NodeID is an opaque 128-bit endpoint identifier, externally derived from a
// public key but treated here as an opaque byte key.
type NodeID [16]byte

// String renders the node id as hex, matching how the teacher renders
// opaque connection identifiers for logging (e.g. remote/local addr strings
// in sockstats.go's ToMap).
func (n NodeID) String() string {
	return fmt.Sprintf("%032x", [16]byte(n))
}

// IsZero reports whether n is the all-zero node id.
func (n NodeID) IsZero() bool {
	return n == NodeID{}
}

// FrameType enumerates the 16-bit frame type field.
type FrameType uint16

const (
	FrameTypeData               FrameType = 1
	FrameTypeControl            FrameType = 2
	FrameTypeHeartbeat          FrameType = 3
	FrameTypeRouteAdvertisement FrameType = 4
	FrameTypeTrustHandshake     FrameType = 5
	FrameTypeTensorTransfer     FrameType = 6
	FrameTypeStreamControl      FrameType = 7
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "Data"
	case FrameTypeControl:
		return "Control"
	case FrameTypeHeartbeat:
		return "Heartbeat"
	case FrameTypeRouteAdvertisement:
		return "RouteAdvertisement"
	case FrameTypeTrustHandshake:
		return "TrustHandshake"
	case FrameTypeTensorTransfer:
		return "TensorTransfer"
	case FrameTypeStreamControl:
		return "StreamControl"
	default:
		return fmt.Sprintf("FrameType(%d)", uint16(t))
	}
}

// QoSClass enumerates the per-frame delivery discipline.
type QoSClass uint8

const (
	QoSBestEffort       QoSClass = 0
	QoSReliableOrdered   QoSClass = 1
	QoSReliableUnordered QoSClass = 2
	QoSProbabilistic     QoSClass = 3
)

func (q QoSClass) String() string {
	switch q {
	case QoSBestEffort:
		return "BestEffort"
	case QoSReliableOrdered:
		return "ReliableOrdered"
	case QoSReliableUnordered:
		return "ReliableUnordered"
	case QoSProbabilistic:
		return "Probabilistic"
	default:
		return fmt.Sprintf("QoSClass(%d)", uint8(q))
	}
}

// TensorDType enumerates the dtype field used when FlagTensorPayload is set.
type TensorDType uint8

const (
	TensorDTypeNone    TensorDType = 0
	TensorDTypeFloat32 TensorDType = 1
	TensorDTypeFloat16 TensorDType = 2
	TensorDTypeBFloat16 TensorDType = 3
	TensorDTypeInt8    TensorDType = 4
	TensorDTypeUint8   TensorDType = 5
)

// Flags is the per-frame bitfield occupying header byte offset 1.
type Flags uint8

const (
	FlagMoreFragments   Flags = 1 << 0
	FlagCompressed      Flags = 1 << 1
	FlagEncrypted       Flags = 1 << 2
	FlagTensorPayload   Flags = 1 << 3
	FlagPriorityExpress Flags = 1 << 4
	FlagOverlayEncap    Flags = 1 << 5
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the decoded, fixed 64-byte frame header. Field order here
// matches the wire layout written by putHeader below.
type Header struct {
	Version          uint8
	Flags            Flags
	Type             FrameType
	TotalFrameLength uint32
	StreamID         uint32
	Sequence         uint32
	SrcNodeID        NodeID
	DstNodeID        NodeID
	Priority         uint8
	QoS              QoSClass
	TensorDType      TensorDType
	TensorAlignment  uint16
	OptionsLength    uint16
	TimestampNS      uint64
}

func (h Header) String() string {
	return fmt.Sprintf("Header{type=%s stream=%d seq=%d src=%s dst=%s qos=%s prio=%d len=%d}",
		h.Type, h.StreamID, h.Sequence, h.SrcNodeID, h.DstNodeID, h.QoS, h.Priority, h.TotalFrameLength)
}

// putHeader lays out h at the fixed byte offsets into buf[:HeaderSize].
func putHeader(buf []byte, h Header) {
	buf[0] = h.Version
	buf[1] = byte(h.Flags)
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[4:8], h.TotalFrameLength)
	binary.BigEndian.PutUint32(buf[8:12], h.StreamID)
	binary.BigEndian.PutUint32(buf[12:16], h.Sequence)
	copy(buf[16:32], h.SrcNodeID[:])
	copy(buf[32:48], h.DstNodeID[:])
	buf[48] = h.Priority & 0x0F
	buf[49] = byte(h.QoS)
	buf[50] = byte(h.TensorDType)
	buf[51] = 0 // reserved
	binary.BigEndian.PutUint16(buf[52:54], h.TensorAlignment)
	binary.BigEndian.PutUint16(buf[54:56], h.OptionsLength)
	binary.BigEndian.PutUint64(buf[56:64], h.TimestampNS)
}

// getHeader parses a Header out of buf[:HeaderSize]. Caller has already
// checked len(buf) >= HeaderSize.
func getHeader(buf []byte) Header {
	var h Header
	h.Version = buf[0]
	h.Flags = Flags(buf[1])
	h.Type = FrameType(binary.BigEndian.Uint16(buf[2:4]))
	h.TotalFrameLength = binary.BigEndian.Uint32(buf[4:8])
	h.StreamID = binary.BigEndian.Uint32(buf[8:12])
	h.Sequence = binary.BigEndian.Uint32(buf[12:16])
	copy(h.SrcNodeID[:], buf[16:32])
	copy(h.DstNodeID[:], buf[32:48])
	h.Priority = buf[48] & 0x0F
	h.QoS = QoSClass(buf[49])
	h.TensorDType = TensorDType(buf[50])
	h.TensorAlignment = binary.BigEndian.Uint16(buf[52:54])
	h.OptionsLength = binary.BigEndian.Uint16(buf[54:56])
	h.TimestampNS = binary.BigEndian.Uint64(buf[56:64])
	return h
}
