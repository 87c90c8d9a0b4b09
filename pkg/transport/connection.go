package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cortexmesh/corenet/pkg/congestion"
	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/loss"
	"github.com/cortexmesh/corenet/pkg/rtt"
)

// ConnState enumerates the connection state machine of spec.md §4.10.
type ConnState uint8

const (
	StateClosed ConnState = iota
	StateInit
	StateEstablished
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateInit:
		return "Init"
	case StateEstablished:
		return "Established"
	case StateClosing:
		return "Closing"
	default:
		return fmt.Sprintf("ConnState(%d)", uint8(s))
	}
}

// Defaults per spec.md §4.10.
const (
	DefaultMaxStreams      = 1024
	MaxMaxStreams          = 65536
	DefaultMaxData         = 1 << 24
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultIdleTimeout      = 60 * time.Second
)

var (
	ErrUnexpectedFrame  = errors.New("transport: frame not expected in current state")
	ErrHandshakeTimeout = errors.New("transport: handshake timed out")
	ErrStreamLimit      = errors.New("transport: stream id limit exceeded")
)

// Side distinguishes which end of a connection this process is, which
// determines both handshake direction and stream-id parity (odd ids are
// client-initiated, even ids are server-initiated).
type Side uint8

const (
	SideClient Side = iota
	SideServer
)

// Connection implements the C10 state machine: handshake, idle timeout,
// and ownership of the stream map, congestion controller, loss detector
// and RTT estimator that back every stream it multiplexes.
type Connection struct {
	mu sync.Mutex

	local, peer frame.NodeID
	side        Side
	state       ConnState

	maxStreams uint16
	maxData    uint32
	nextStreamID uint32

	streams map[uint32]*Stream

	cong    congestion.Controller
	lossDet *loss.Detector
	rttEst  *rtt.Estimator

	// nextPacketNum and packetIndex implement RFC 9002's single
	// connection-wide packet-number space: every reliable chunk sent on
	// any stream gets the next packet number, which packetIndex maps back
	// to the (stream, per-stream sequence) pair for retransmission once
	// the loss detector declares that packet number lost.
	nextPacketNum uint64
	packetIndex   map[uint64]packetRef

	droppedFrames uint64

	lastActivity time.Time
	now          func() time.Time

	sendFn func(frame.FrameType, uint32, []byte) error
	log    logrus.FieldLogger
}

// Config configures a new Connection.
type Config struct {
	Local, Peer frame.NodeID
	Side        Side
	MaxStreams  uint16
	MaxData     uint32
	Congestion  congestion.Controller
	Now         func() time.Time
	// Send transmits one outbound frame payload of the given type for
	// stream id sid (0 for connection-level control frames).
	Send   func(ft frame.FrameType, sid uint32, payload []byte) error
	Logger logrus.FieldLogger
}

// NewConnection returns a Connection in Closed state.
func NewConnection(cfg Config) *Connection {
	maxStreams := cfg.MaxStreams
	if maxStreams == 0 {
		maxStreams = DefaultMaxStreams
	}
	maxData := cfg.MaxData
	if maxData == 0 {
		maxData = DefaultMaxData
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cong := cfg.Congestion
	if cong == nil {
		cong = congestion.NewCubic()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Connection{
		local:      cfg.Local,
		peer:       cfg.Peer,
		side:       cfg.Side,
		state:      StateClosed,
		maxStreams: maxStreams,
		maxData:    maxData,
		streams:    make(map[uint32]*Stream),
		cong:       cong,
		lossDet:    loss.New(now),
		rttEst:     rtt.New(),
		packetIndex: make(map[uint64]packetRef),
		now:        now,
		sendFn:     cfg.Send,
		log:        log,
		lastActivity: now(),
	}
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetSendFunc rewires the connection's outbound path, used to plug in a
// Multiplexer after both have been constructed (Connection and
// Multiplexer each need the other to exist first).
func (c *Connection) SetSendFunc(send func(frame.FrameType, uint32, []byte) error) {
	c.mu.Lock()
	c.sendFn = send
	c.mu.Unlock()
}

func (c *Connection) send(ft frame.FrameType, sid uint32, payload []byte) error {
	if c.sendFn == nil {
		return nil
	}
	return c.sendFn(ft, sid, payload)
}

// Connect transitions Closed -> Init and sends CONN_INIT.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return fmt.Errorf("transport: Connect called in state %s", c.state)
	}
	c.state = StateInit
	c.side = SideClient
	params := ConnParams{ProtocolVersion: frame.ProtocolVersion, NodeID: c.local, MaxStreams: c.maxStreams, MaxData: c.maxData}
	c.mu.Unlock()
	return c.send(frame.FrameTypeStreamControl, 0, EncodeControlFrame(ControlMessage{Type: CtrlConnInit, Payload: params.encode()}))
}

// Accept transitions Closed -> Init on the server side, awaiting CONN_INIT.
func (c *Connection) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return fmt.Errorf("transport: Accept called in state %s", c.state)
	}
	c.state = StateInit
	c.side = SideServer
	return nil
}

// HandleControl processes a decoded StreamControl message against the
// connection state machine, dispatching stream-scoped sub-messages to the
// relevant Stream.
func (c *Connection) HandleControl(m ControlMessage) error {
	c.mu.Lock()
	c.lastActivity = c.now()
	state := c.state
	c.mu.Unlock()

	switch m.Type {
	case CtrlConnInit:
		return c.onConnInit(m, state)
	case CtrlConnAccept:
		return c.onConnAccept(m, state)
	case CtrlConnClose:
		return c.onConnClose(state)
	case CtrlConnCloseAck:
		return c.onConnCloseAck(state)
	case CtrlStreamOpen, CtrlStreamAck, CtrlStreamClose, CtrlStreamReset,
		CtrlDataAck, CtrlDataNack, CtrlWindowUpdate:
		return c.dispatchToStream(m)
	case CtrlPing:
		return c.send(frame.FrameTypeStreamControl, 0, EncodeControlFrame(ControlMessage{Type: CtrlPong}))
	case CtrlPong, CtrlCongestion:
		return nil
	default:
		c.countDropped()
		return fmt.Errorf("transport: unknown control type 0x%02x", byte(m.Type))
	}
}

func (c *Connection) countDropped() {
	c.mu.Lock()
	c.droppedFrames++
	n := c.droppedFrames
	c.mu.Unlock()
	c.log.WithField("total", n).Warn("transport: dropped a frame that arrived in an unexpected state")
}

func (c *Connection) onConnInit(m ControlMessage, state ConnState) error {
	if state != StateInit {
		c.countDropped()
		return ErrUnexpectedFrame
	}
	params, err := decodeConnParams(m.Payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.peer = params.NodeID
	c.state = StateEstablished
	c.mu.Unlock()
	c.log.WithField("peer", params.NodeID).Debug("transport: accepted inbound connection")
	accept := ConnParams{ProtocolVersion: frame.ProtocolVersion, NodeID: c.local, MaxStreams: c.maxStreams, MaxData: c.maxData}
	return c.send(frame.FrameTypeStreamControl, 0, EncodeControlFrame(ControlMessage{Type: CtrlConnAccept, Payload: accept.encode()}))
}

func (c *Connection) onConnAccept(m ControlMessage, state ConnState) error {
	if state != StateInit {
		c.countDropped()
		return ErrUnexpectedFrame
	}
	params, err := decodeConnParams(m.Payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.peer = params.NodeID
	c.state = StateEstablished
	c.mu.Unlock()
	return nil
}

func (c *Connection) onConnClose(state ConnState) error {
	if state != StateEstablished {
		c.countDropped()
		return ErrUnexpectedFrame
	}
	c.mu.Lock()
	c.state = StateClosing
	c.mu.Unlock()
	return c.send(frame.FrameTypeStreamControl, 0, EncodeControlFrame(ControlMessage{Type: CtrlConnCloseAck}))
}

func (c *Connection) onConnCloseAck(state ConnState) error {
	if state != StateClosing {
		c.countDropped()
		return ErrUnexpectedFrame
	}
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return nil
}

// Close transitions Established -> Closing and sends CONN_CLOSE.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state != StateEstablished {
		c.mu.Unlock()
		return fmt.Errorf("transport: Close called in state %s", c.state)
	}
	c.state = StateClosing
	c.mu.Unlock()
	return c.send(frame.FrameTypeStreamControl, 0, EncodeControlFrame(ControlMessage{Type: CtrlConnClose}))
}

// CheckIdleTimeout closes the connection if idleTimeout has elapsed since
// the last observed activity. Intended to be polled from an event loop or
// timer-wheel callback.
func (c *Connection) CheckIdleTimeout(idleTimeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if c.now().Sub(c.lastActivity) > idleTimeout {
		c.state = StateClosed
	}
}

// nextOwnStreamID allocates the next stream id for this side, respecting
// the odd=client/even=server parity convention: clients get 1,3,5,...,
// servers get 2,4,6,... (0 is reserved for connection-level control).
func (c *Connection) nextOwnStreamID() (uint32, error) {
	if c.nextStreamID >= uint32(c.maxStreams) {
		return 0, ErrStreamLimit
	}
	var id uint32
	if c.side == SideClient {
		id = c.nextStreamID*2 + 1
	} else {
		id = (c.nextStreamID + 1) * 2
	}
	c.nextStreamID++
	return id, nil
}

// OpenStream allocates a new stream owned by this connection and sends
// STREAM_OPEN.
func (c *Connection) OpenStream(mode DeliveryMode, priority uint8) (*Stream, error) {
	c.mu.Lock()
	if c.state != StateEstablished {
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: OpenStream called in state %s", c.state)
	}
	id, err := c.nextOwnStreamID()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	s := newStream(id, mode, priority, c)
	c.streams[id] = s
	c.mu.Unlock()

	err = c.send(frame.FrameTypeStreamControl, id, EncodeControlFrame(ControlMessage{
		Type:    CtrlStreamOpen,
		Payload: StreamOpenParams{StreamID: id, Mode: mode, Priority: priority}.encode(),
	}))
	return s, err
}

func (c *Connection) dispatchToStream(m ControlMessage) error {
	var sid uint32
	var err error
	switch m.Type {
	case CtrlStreamOpen:
		params, perr := decodeStreamOpenParams(m.Payload)
		if perr != nil {
			return perr
		}
		c.mu.Lock()
		_, exists := c.streams[params.StreamID]
		if !exists {
			c.streams[params.StreamID] = newStream(params.StreamID, params.Mode, params.Priority, c)
		}
		c.mu.Unlock()
		return c.send(frame.FrameTypeStreamControl, params.StreamID, EncodeControlFrame(ControlMessage{
			Type: CtrlStreamAck, Payload: encodeStreamID(params.StreamID),
		}))
	case CtrlStreamAck, CtrlStreamClose, CtrlStreamReset:
		sid, err = decodeStreamID(m.Payload)
	case CtrlDataAck:
		p, perr := decodeDataAckParams(m.Payload)
		err = perr
		sid = p.StreamID
		if err == nil {
			if s := c.getStream(sid); s != nil {
				s.onDataAck(p)
			}
			return nil
		}
	case CtrlDataNack:
		p, perr := decodeDataAckParams(m.Payload)
		err = perr
		sid = p.StreamID
	case CtrlWindowUpdate:
		p, perr := decodeWindowUpdateParams(m.Payload)
		err = perr
		sid = p.StreamID
		if err == nil {
			if s := c.getStream(sid); s != nil {
				s.onWindowUpdate(p.WindowBytes)
			}
			return nil
		}
	}
	if err != nil {
		return err
	}
	s := c.getStream(sid)
	if s == nil {
		c.countDropped()
		return c.send(frame.FrameTypeStreamControl, sid, EncodeControlFrame(ControlMessage{
			Type: CtrlStreamReset, Payload: encodeStreamID(sid),
		}))
	}
	switch m.Type {
	case CtrlStreamAck:
		s.onAck()
	case CtrlStreamClose:
		s.onPeerClose()
	case CtrlStreamReset:
		s.onReset()
	}
	return nil
}

// packetRef identifies the stream and per-stream sequence number a
// connection-wide packet number was assigned to.
type packetRef struct {
	streamID uint32
	seq      uint32
}

// recordSent assigns the next connection-wide packet number to a chunk
// just handed to a stream's Send/Retransmit, registering it with the loss
// detector.
func (c *Connection) recordSent(streamID, seq uint32, size int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	pn := c.nextPacketNum
	c.nextPacketNum++
	c.packetIndex[pn] = packetRef{streamID: streamID, seq: seq}
	c.lossDet.OnPacketSent(pn, size)
	return pn
}

// recordAck feeds one acked packet's round-trip time into the RTT
// estimator and the resulting SACK into the loss detector, returning the
// stream/sequence pairs for any other packet numbers newly declared lost.
func (c *Connection) recordAck(pn uint64, sentAt time.Time) []packetRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rttEst.Sample(pn, c.now().Sub(sentAt))
	lostPNs := c.lossDet.OnAck(pn, c.rttEst.SRTT())
	delete(c.packetIndex, pn)
	lost := make([]packetRef, 0, len(lostPNs))
	for _, lpn := range lostPNs {
		if ref, ok := c.packetIndex[lpn]; ok {
			lost = append(lost, ref)
			delete(c.packetIndex, lpn)
		}
	}
	return lost
}

// markRetransmitted tells the RTT estimator to discard the sample for a
// retransmitted packet number, per Karn's algorithm.
func (c *Connection) markRetransmitted(pn uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rttEst.MarkRetransmitted(pn)
}

// StreamCount returns the number of streams this connection currently
// tracks, for metrics scraping.
func (c *Connection) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *Connection) getStream(id uint32) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[id]
}

// FindStream returns the stream with the given id, or nil if this
// connection has no such stream. Exported for callers outside the package
// (e.g. cmd/meshctl) that need to inspect a peer's view of a stream.
func (c *Connection) FindStream(id uint32) *Stream {
	return c.getStream(id)
}

// DispatchData routes a Data frame's payload to the stream identified by
// sid. Unknown ids produce STREAM_RESET and a dropped-frame count, per
// spec.md §4.12.
func (c *Connection) DispatchData(sid uint32, seq uint32, payload []byte) error {
	s := c.getStream(sid)
	if s == nil {
		c.countDropped()
		return c.send(frame.FrameTypeStreamControl, sid, EncodeControlFrame(ControlMessage{
			Type: CtrlStreamReset, Payload: encodeStreamID(sid),
		}))
	}
	s.onData(seq, payload)
	return nil
}

// DroppedFrames returns the count of frames dropped for arriving in an
// unexpected connection/stream state or carrying an unknown control type.
func (c *Connection) DroppedFrames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedFrames
}
