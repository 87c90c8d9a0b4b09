// Package transport implements the L3 stream transport: the connection
// state machine, the four delivery-mode stream state machines, and the
// multiplexer that demuxes inbound frames and schedules outbound ones.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cortexmesh/corenet/pkg/frame"
)

// ControlType is the one-byte sub-message type carried inside a
// StreamControl frame's payload, per spec.md §6.
type ControlType uint8

const (
	CtrlConnInit      ControlType = 0x01
	CtrlConnAccept    ControlType = 0x02
	CtrlConnClose     ControlType = 0x03
	CtrlConnCloseAck  ControlType = 0x04
	CtrlStreamOpen    ControlType = 0x10
	CtrlStreamAck     ControlType = 0x11
	CtrlStreamClose   ControlType = 0x12
	CtrlStreamReset   ControlType = 0x13
	CtrlDataAck       ControlType = 0x20
	CtrlDataNack      ControlType = 0x21
	CtrlWindowUpdate  ControlType = 0x22
	CtrlPing          ControlType = 0x30
	CtrlPong          ControlType = 0x31
	CtrlCongestion    ControlType = 0x40
)

var ErrShortControlPayload = errors.New("transport: control payload too short")

// ConnInit/ConnAccept carry protocol negotiation parameters.
type ConnParams struct {
	ProtocolVersion uint8
	NodeID          frame.NodeID
	MaxStreams      uint16
	MaxData         uint32
}

func (p ConnParams) encode() []byte {
	buf := make([]byte, 1+16+2+4)
	buf[0] = p.ProtocolVersion
	copy(buf[1:17], p.NodeID[:])
	binary.BigEndian.PutUint16(buf[17:19], p.MaxStreams)
	binary.BigEndian.PutUint32(buf[19:23], p.MaxData)
	return buf
}

func decodeConnParams(buf []byte) (ConnParams, error) {
	if len(buf) < 23 {
		return ConnParams{}, fmt.Errorf("%w: conn params needs 23 bytes, have %d", ErrShortControlPayload, len(buf))
	}
	var p ConnParams
	p.ProtocolVersion = buf[0]
	copy(p.NodeID[:], buf[1:17])
	p.MaxStreams = binary.BigEndian.Uint16(buf[17:19])
	p.MaxData = binary.BigEndian.Uint32(buf[19:23])
	return p, nil
}

// StreamOpen carries the new stream's id and requested delivery mode.
type StreamOpenParams struct {
	StreamID uint32
	Mode     DeliveryMode
	Priority uint8
}

func (p StreamOpenParams) encode() []byte {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint32(buf[0:4], p.StreamID)
	buf[4] = byte(p.Mode)
	buf[5] = p.Priority
	return buf
}

func decodeStreamOpenParams(buf []byte) (StreamOpenParams, error) {
	if len(buf) < 6 {
		return StreamOpenParams{}, fmt.Errorf("%w: stream open needs 6 bytes, have %d", ErrShortControlPayload, len(buf))
	}
	return StreamOpenParams{
		StreamID: binary.BigEndian.Uint32(buf[0:4]),
		Mode:     DeliveryMode(buf[4]),
		Priority: buf[5],
	}, nil
}

// AckRange is one disjoint received range in a SACK-style DataAck payload.
type AckRange struct {
	Start uint32
	End   uint32
}

// DataAckParams carries a cumulative ack plus disjoint received ranges.
type DataAckParams struct {
	StreamID     uint32
	CumulativeAck uint32
	Ranges       []AckRange
}

func (p DataAckParams) encode() []byte {
	buf := make([]byte, 4+4+2+8*len(p.Ranges))
	binary.BigEndian.PutUint32(buf[0:4], p.StreamID)
	binary.BigEndian.PutUint32(buf[4:8], p.CumulativeAck)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(p.Ranges)))
	off := 10
	for _, r := range p.Ranges {
		binary.BigEndian.PutUint32(buf[off:off+4], r.Start)
		binary.BigEndian.PutUint32(buf[off+4:off+8], r.End)
		off += 8
	}
	return buf
}

func decodeDataAckParams(buf []byte) (DataAckParams, error) {
	if len(buf) < 10 {
		return DataAckParams{}, fmt.Errorf("%w: data ack needs 10 bytes, have %d", ErrShortControlPayload, len(buf))
	}
	p := DataAckParams{
		StreamID:      binary.BigEndian.Uint32(buf[0:4]),
		CumulativeAck: binary.BigEndian.Uint32(buf[4:8]),
	}
	n := int(binary.BigEndian.Uint16(buf[8:10]))
	off := 10
	for i := 0; i < n; i++ {
		if off+8 > len(buf) {
			return DataAckParams{}, fmt.Errorf("%w: data ack range truncated", ErrShortControlPayload)
		}
		p.Ranges = append(p.Ranges, AckRange{
			Start: binary.BigEndian.Uint32(buf[off : off+4]),
			End:   binary.BigEndian.Uint32(buf[off+4 : off+8]),
		})
		off += 8
	}
	return p, nil
}

// WindowUpdateParams advertises a stream's available receive window.
type WindowUpdateParams struct {
	StreamID    uint32
	WindowBytes uint32
}

func (p WindowUpdateParams) encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], p.StreamID)
	binary.BigEndian.PutUint32(buf[4:8], p.WindowBytes)
	return buf
}

func decodeWindowUpdateParams(buf []byte) (WindowUpdateParams, error) {
	if len(buf) < 8 {
		return WindowUpdateParams{}, fmt.Errorf("%w: window update needs 8 bytes, have %d", ErrShortControlPayload, len(buf))
	}
	return WindowUpdateParams{
		StreamID:    binary.BigEndian.Uint32(buf[0:4]),
		WindowBytes: binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// streamIDParams is the shared 4-byte payload shape of StreamAck,
// StreamClose and StreamReset.
func encodeStreamID(id uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return buf
}

func decodeStreamID(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("%w: stream id needs 4 bytes, have %d", ErrShortControlPayload, len(buf))
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ControlMessage pairs a ControlType with its encoded payload, carried as
// the payload of a StreamControl frame.
type ControlMessage struct {
	Type    ControlType
	Payload []byte
}

// EncodeControlFrame wraps m as the payload of a frame.Decoded-ready
// payload: type(1) followed by the type-specific payload.
func EncodeControlFrame(m ControlMessage) []byte {
	buf := make([]byte, 1+len(m.Payload))
	buf[0] = byte(m.Type)
	copy(buf[1:], m.Payload)
	return buf
}

// DecodeControlFrame splits a StreamControl frame's payload back into its
// ControlMessage.
func DecodeControlFrame(buf []byte) (ControlMessage, error) {
	if len(buf) < 1 {
		return ControlMessage{}, fmt.Errorf("%w: empty control frame", ErrShortControlPayload)
	}
	return ControlMessage{Type: ControlType(buf[0]), Payload: buf[1:]}, nil
}
