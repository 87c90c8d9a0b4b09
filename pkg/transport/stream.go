package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/cortexmesh/corenet/pkg/frame"
)

// rng is a package-level cryptographically seeded PRNG backing PR mode's
// delivery-probability gate, the same seeding pattern pkg/gossip uses for
// peer selection.
var rng = newCryptoSeededRand()

func newCryptoSeededRand() *mathrand.Rand {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("transport: failed to read OS entropy for PRNG seed: " + err.Error())
	}
	s1 := binary.LittleEndian.Uint64(seed[0:8])
	s2 := binary.LittleEndian.Uint64(seed[8:16])
	return mathrand.New(mathrand.NewPCG(s1, s2))
}

// DeliveryMode selects one of the four per-stream delivery semantics of
// spec.md §4.11.
type DeliveryMode uint8

const (
	ModeReliableOrdered   DeliveryMode = iota // RO
	ModeReliableUnordered                     // RU
	ModeBestEffort                            // BE
	ModeProbabilistic                         // PR
)

func (m DeliveryMode) String() string {
	switch m {
	case ModeReliableOrdered:
		return "RO"
	case ModeReliableUnordered:
		return "RU"
	case ModeBestEffort:
		return "BE"
	case ModeProbabilistic:
		return "PR"
	default:
		return fmt.Sprintf("DeliveryMode(%d)", uint8(m))
	}
}

// StreamState enumerates the stream state machine of spec.md §4.11.
type StreamState uint8

const (
	StreamIdle StreamState = iota
	StreamOpening
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
	StreamReset
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "Idle"
	case StreamOpening:
		return "Opening"
	case StreamOpen:
		return "Open"
	case StreamHalfClosedLocal:
		return "HalfClosed(local)"
	case StreamHalfClosedRemote:
		return "HalfClosed(remote)"
	case StreamClosed:
		return "Closed"
	case StreamReset:
		return "Reset"
	default:
		return fmt.Sprintf("StreamState(%d)", uint8(s))
	}
}

// DefaultMaxRetransmissions caps RO/RU retransmission attempts per chunk.
const DefaultMaxRetransmissions = 10

// DefaultFlowWindow is the initial per-stream flow-control window in bytes.
const DefaultFlowWindow = 1 << 20

// Stats mirrors the `stats()` counters spec.md §6 requires of Connection
// and Stream.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	FramesSent    uint64
	FramesReceived uint64
	Retransmits   uint64
	Dropped       uint64
}

type pendingChunk struct {
	seq      uint32
	payload  []byte
	attempts int
	acked    bool

	// pn is the connection-wide packet number this chunk was last sent
	// under, and sentAt the time of that send; both feed the connection's
	// loss detector and RTT estimator on ack.
	pn     uint64
	sentAt time.Time
}

// Stream is one multiplexed stream within a Connection, implementing
// whichever of the four delivery modes it was opened with.
type Stream struct {
	mu sync.Mutex

	id       uint32
	mode     DeliveryMode
	priority uint8
	state    StreamState
	conn     *Connection

	nextSendSeq uint32
	cumAck      uint32
	outstanding map[uint32]*pendingChunk

	recvBuf   map[uint32][]byte
	recvNext  uint32
	deliverable [][]byte

	// peerWindow is this side's estimate of the peer's available receive
	// window, decremented on Send and replaced outright (not decremented)
	// whenever a WINDOW_UPDATE arrives. localWindow is this side's own
	// receive window, decremented as data is buffered and credited back as
	// the application drains it via Recv, then advertised to the peer.
	peerWindow  uint32
	localWindow uint32

	stats Stats

	// PR-mode target delivery probability, set via SetDeliveryProbability.
	deliveryProb float64
}

func newStream(id uint32, mode DeliveryMode, priority uint8, conn *Connection) *Stream {
	return &Stream{
		id:          id,
		mode:        mode,
		priority:    priority,
		state:       StreamOpening,
		conn:        conn,
		outstanding: make(map[uint32]*pendingChunk),
		recvBuf:     make(map[uint32][]byte),
		peerWindow:  DefaultFlowWindow,
		localWindow: DefaultFlowWindow,
		deliveryProb: 1.0,
	}
}

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) Mode() DeliveryMode { return s.mode }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Send queues bytes for transmission. For RO/RU modes this assigns a
// sequence number and hands the chunk to the connection for framing; BE
// sends immediately with no bookkeeping; PR applies the configured
// delivery probability before sending.
func (s *Stream) Send(payload []byte) (int, error) {
	s.mu.Lock()
	if s.state != StreamOpen && s.state != StreamOpening {
		s.mu.Unlock()
		return 0, fmt.Errorf("transport: Send on stream in state %s", s.state)
	}
	if uint32(len(payload)) > s.peerWindow {
		s.mu.Unlock()
		return 0, fmt.Errorf("transport: stream %d send of %d bytes exceeds peer window of %d", s.id, len(payload), s.peerWindow)
	}
	if s.mode == ModeProbabilistic && !s.admitProbabilistic() {
		// Dropped before ever reaching the wire: that is the point of a
		// target delivery probability below 1.0, per spec.md §4.11.
		s.mu.Unlock()
		return len(payload), nil
	}
	seq := s.nextSendSeq
	s.nextSendSeq++
	reliable := s.mode == ModeReliableOrdered || s.mode == ModeReliableUnordered
	if reliable {
		s.outstanding[seq] = &pendingChunk{seq: seq, payload: payload, sentAt: s.conn.now()}
	}
	s.peerWindow -= uint32(len(payload))
	s.stats.BytesSent += uint64(len(payload))
	s.stats.FramesSent++
	s.mu.Unlock()

	if reliable {
		pn := s.conn.recordSent(s.id, seq, len(payload))
		s.mu.Lock()
		if chunk, ok := s.outstanding[seq]; ok {
			chunk.pn = pn
		}
		s.mu.Unlock()
	}

	return len(payload), s.conn.send(dataFrameType, s.id, encodeDataFrame(seq, payload))
}

// admitProbabilistic applies PR mode's target delivery probability as a
// sender-side coin flip.
func (s *Stream) admitProbabilistic() bool {
	if s.deliveryProb >= 1.0 {
		return true
	}
	if s.deliveryProb <= 0 {
		return false
	}
	return rng.Float64() < s.deliveryProb
}

// dataFrameType is the frame type used for all stream payload frames.
const dataFrameType = frame.FrameTypeData

// onData handles an inbound data chunk for this stream, applying each
// mode's delivery semantics, then, for the reliable modes, SACKs it back to
// the sender.
func (s *Stream) onData(seq uint32, payload []byte) {
	s.mu.Lock()

	s.stats.BytesReceived += uint64(len(payload))
	s.stats.FramesReceived++

	reliable := s.mode == ModeReliableOrdered || s.mode == ModeReliableUnordered
	duplicate := false

	switch s.mode {
	case ModeReliableOrdered:
		if seq < s.recvNext {
			duplicate = true
			break
		}
		s.recvBuf[seq] = payload
		for {
			chunk, ok := s.recvBuf[s.recvNext]
			if !ok {
				break
			}
			s.deliverable = append(s.deliverable, chunk)
			delete(s.recvBuf, s.recvNext)
			s.recvNext++
		}
	case ModeReliableUnordered:
		// Messages surface in arrival order, not send order.
		s.deliverable = append(s.deliverable, payload)
		if seq+1 > s.recvNext {
			s.recvNext = seq + 1
		}
	case ModeBestEffort, ModeProbabilistic:
		s.deliverable = append(s.deliverable, payload)
	}
	if !duplicate {
		if s.localWindow >= uint32(len(payload)) {
			s.localWindow -= uint32(len(payload))
		} else {
			s.localWindow = 0
		}
	}
	s.mu.Unlock()

	if reliable {
		s.sendDataAck()
	}
}

// sendDataAck reports this stream's current cumulative-ack point plus any
// disjoint out-of-order ranges buffered ahead of it, per spec.md §4.11's
// SACK-style acknowledgement.
func (s *Stream) sendDataAck() {
	s.mu.Lock()
	cum := s.recvNext
	ranges := bufferedRanges(s.recvBuf)
	s.mu.Unlock()
	_ = s.conn.send(frame.FrameTypeStreamControl, s.id, EncodeControlFrame(ControlMessage{
		Type:    CtrlDataAck,
		Payload: DataAckParams{StreamID: s.id, CumulativeAck: cum, Ranges: ranges}.encode(),
	}))
}

// bufferedRanges coalesces the out-of-order chunks held in buf into sorted,
// contiguous AckRanges.
func bufferedRanges(buf map[uint32][]byte) []AckRange {
	if len(buf) == 0 {
		return nil
	}
	seqs := make([]uint32, 0, len(buf))
	for seq := range buf {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	ranges := make([]AckRange, 0, len(seqs))
	start, prev := seqs[0], seqs[0]
	for _, seq := range seqs[1:] {
		if seq == prev+1 {
			prev = seq
			continue
		}
		ranges = append(ranges, AckRange{Start: start, End: prev})
		start, prev = seq, seq
	}
	return append(ranges, AckRange{Start: start, End: prev})
}

// Recv returns the next delivered message/chunk, if any, and whether one
// was available. Draining the buffer frees receive-window capacity, which
// is re-advertised to the peer via WINDOW_UPDATE.
func (s *Stream) Recv() ([]byte, bool) {
	s.mu.Lock()
	if len(s.deliverable) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	next := s.deliverable[0]
	s.deliverable = s.deliverable[1:]
	s.localWindow += uint32(len(next))
	s.mu.Unlock()

	s.sendWindowUpdate()
	return next, true
}

// sendWindowUpdate advertises this stream's current receive window to the
// peer.
func (s *Stream) sendWindowUpdate() {
	s.mu.Lock()
	w := s.localWindow
	s.mu.Unlock()
	_ = s.conn.send(frame.FrameTypeStreamControl, s.id, EncodeControlFrame(ControlMessage{
		Type:    CtrlWindowUpdate,
		Payload: WindowUpdateParams{StreamID: s.id, WindowBytes: w}.encode(),
	}))
}

func (s *Stream) onAck() {
	s.mu.Lock()
	if s.state == StreamOpening {
		s.state = StreamOpen
	}
	s.mu.Unlock()
}

func (s *Stream) onPeerClose() {
	s.mu.Lock()
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	}
	s.mu.Unlock()
}

func (s *Stream) onReset() {
	s.mu.Lock()
	s.state = StreamReset
	s.mu.Unlock()
}

// Close half-closes the local side of the stream and notifies the peer.
func (s *Stream) Close() error {
	s.mu.Lock()
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	default:
		s.mu.Unlock()
		return fmt.Errorf("transport: Close on stream in state %s", s.state)
	}
	s.mu.Unlock()
	return s.conn.send(frame.FrameTypeStreamControl, s.id, EncodeControlFrame(ControlMessage{
		Type: CtrlStreamClose, Payload: encodeStreamID(s.id),
	}))
}

// onDataAck applies a DATA_ACK SACK report: marks the cumulative range and
// any disjoint ranges acked, removing them from the retransmission set, and
// feeds each acked chunk's round-trip time into the connection's RTT
// estimator and loss detector. Any packets the loss detector now declares
// lost are retransmitted on their owning stream.
func (s *Stream) onDataAck(p DataAckParams) {
	s.mu.Lock()
	var acked []*pendingChunk
	for seq, chunk := range s.outstanding {
		if seq < p.CumulativeAck {
			acked = append(acked, chunk)
			delete(s.outstanding, seq)
		}
	}
	for _, r := range p.Ranges {
		for seq := r.Start; seq <= r.End; seq++ {
			if chunk, ok := s.outstanding[seq]; ok {
				acked = append(acked, chunk)
				delete(s.outstanding, seq)
			}
		}
	}
	conn := s.conn
	s.mu.Unlock()

	for _, chunk := range acked {
		for _, lost := range conn.recordAck(chunk.pn, chunk.sentAt) {
			if st := conn.getStream(lost.streamID); st != nil {
				st.Retransmit(lost.seq)
			}
		}
	}
}

func (s *Stream) onWindowUpdate(window uint32) {
	s.mu.Lock()
	s.peerWindow = window
	s.mu.Unlock()
}

// PendingRetransmits returns the sequence numbers of chunks still
// unacknowledged, in ascending order, for the multiplexer's retransmission
// driver to act on (e.g. after the loss detector declares them lost).
func (s *Stream) PendingRetransmits() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs := make([]uint32, 0, len(s.outstanding))
	for seq := range s.outstanding {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// Retransmit resends chunk seq if it is still outstanding and under the
// retransmission cap, returning false (and marking the stream errored via
// Reset) once the cap is exhausted.
func (s *Stream) Retransmit(seq uint32) (bool, error) {
	s.mu.Lock()
	chunk, ok := s.outstanding[seq]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	chunk.attempts++
	if chunk.attempts > DefaultMaxRetransmissions {
		s.state = StreamReset
		s.mu.Unlock()
		return false, fmt.Errorf("transport: stream %d exhausted retransmissions for seq %d", s.id, seq)
	}
	s.stats.Retransmits++
	payload := chunk.payload
	oldPN := chunk.pn
	s.mu.Unlock()

	s.conn.markRetransmitted(oldPN)
	pn := s.conn.recordSent(s.id, seq, len(payload))

	s.mu.Lock()
	if chunk, ok := s.outstanding[seq]; ok {
		chunk.pn = pn
		chunk.sentAt = s.conn.now()
	}
	s.mu.Unlock()

	return true, s.conn.send(dataFrameType, s.id, encodeDataFrame(seq, payload))
}

// SetDeliveryProbability configures PR-mode's per-frame target delivery
// probability.
func (s *Stream) SetDeliveryProbability(p float64) {
	s.mu.Lock()
	s.deliveryProb = p
	s.mu.Unlock()
}
