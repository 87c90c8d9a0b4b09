// Package gossip implements HyParView-style membership gossip: a bounded
// active view for direct message exchange and a bounded passive view used
// to repair active-view losses, per spec.md §4.8.
package gossip

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cortexmesh/corenet/pkg/frame"
)

// HeaderSize is the fixed size of a gossip message header: msg_type(1)
// ttl(1) sender_id(16) origin_id(16) payload_len(2) signature(64).
const HeaderSize = 1 + 1 + 16 + 16 + 2 + 64

// SignatureSize is the size of the Ed25519 signature field.
const SignatureSize = ed25519.SignatureSize // 64

// MsgType enumerates the HyParView wire message types.
type MsgType uint8

const (
	MsgJoin MsgType = iota + 1
	MsgForwardJoin
	MsgDisconnect
	MsgShuffle
	MsgShuffleReply
	MsgAdvertise
)

func (t MsgType) String() string {
	switch t {
	case MsgJoin:
		return "Join"
	case MsgForwardJoin:
		return "ForwardJoin"
	case MsgDisconnect:
		return "Disconnect"
	case MsgShuffle:
		return "Shuffle"
	case MsgShuffleReply:
		return "ShuffleReply"
	case MsgAdvertise:
		return "Advertise"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

var (
	ErrShortBuffer    = errors.New("gossip: buffer too short")
	ErrLengthMismatch = errors.New("gossip: payload_len does not match buffer")
	ErrUnsigned       = errors.New("gossip: message unsigned while authentication required")
	ErrBadSignature   = errors.New("gossip: signature verification failed")
)

// Message is a decoded HyParView wire message.
type Message struct {
	Type      MsgType
	TTL       uint8
	SenderID  frame.NodeID
	OriginID  frame.NodeID
	Signature [SignatureSize]byte
	Payload   []byte
}

// Encode serialises m to the wire format of spec.md §6. If signer is
// non-nil, the header prefix (everything up to the signature field) plus
// the payload is signed and the signature is written into the header;
// otherwise the signature field is left zeroed.
func Encode(m Message, signer ed25519.PrivateKey) []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	buf[0] = byte(m.Type)
	buf[1] = m.TTL
	copy(buf[2:18], m.SenderID[:])
	copy(buf[18:34], m.OriginID[:])
	binary.BigEndian.PutUint16(buf[34:36], uint16(len(m.Payload)))
	copy(buf[HeaderSize:], m.Payload)

	if signer != nil {
		sig := ed25519.Sign(signer, signable(buf))
		copy(buf[36:36+SignatureSize], sig)
	}
	return buf
}

// signable returns the byte range covered by the signature: the header
// prefix up to the signature field, followed by the payload.
func signable(buf []byte) []byte {
	out := make([]byte, 0, len(buf)-SignatureSize)
	out = append(out, buf[:36]...)
	out = append(out, buf[HeaderSize:]...)
	return out
}

// Decode parses buf into a Message. If requireSigned is true, a message
// whose signature field is all-zero is rejected; if verifier is non-nil
// the signature is additionally checked against it.
func Decode(buf []byte, requireSigned bool, verifier ed25519.PublicKey) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, fmt.Errorf("%w: need at least %d bytes, have %d", ErrShortBuffer, HeaderSize, len(buf))
	}
	m := Message{Type: MsgType(buf[0]), TTL: buf[1]}
	copy(m.SenderID[:], buf[2:18])
	copy(m.OriginID[:], buf[18:34])
	payloadLen := int(binary.BigEndian.Uint16(buf[34:36]))
	copy(m.Signature[:], buf[36:36+SignatureSize])

	if HeaderSize+payloadLen != len(buf) {
		return Message{}, fmt.Errorf("%w: header says %d, buffer has %d", ErrLengthMismatch, payloadLen, len(buf)-HeaderSize)
	}
	m.Payload = buf[HeaderSize:]

	signed := m.Signature != [SignatureSize]byte{}
	if requireSigned && !signed {
		return Message{}, ErrUnsigned
	}
	if signed && verifier != nil {
		if !ed25519.Verify(verifier, signable(buf), m.Signature[:]) {
			return Message{}, ErrBadSignature
		}
	}
	return m, nil
}

// EncodeNodeIDList encodes a slice of node ids as a flat byte payload, the
// format used for Shuffle/ShuffleReply payloads.
func EncodeNodeIDList(ids []frame.NodeID) []byte {
	out := make([]byte, len(ids)*16)
	for i, id := range ids {
		copy(out[i*16:i*16+16], id[:])
	}
	return out
}

// DecodeNodeIDList decodes a Shuffle/ShuffleReply payload into node ids.
func DecodeNodeIDList(payload []byte) ([]frame.NodeID, error) {
	if len(payload)%16 != 0 {
		return nil, fmt.Errorf("%w: node id list length %d not a multiple of 16", ErrShortBuffer, len(payload))
	}
	ids := make([]frame.NodeID, len(payload)/16)
	for i := range ids {
		copy(ids[i][:], payload[i*16:i*16+16])
	}
	return ids, nil
}
