package transport

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/platform"
)

// Multiplexer owns the platform and frame codec boundary for one
// Connection: it decodes inbound frames and routes them by frame_type, and
// schedules outbound sends under priority plus deficit round-robin,
// gated by the connection's congestion controller, per spec.md §4.12.
type Multiplexer struct {
	mu   sync.Mutex
	conn *Connection
	plat platform.Platform

	localAddr, peerAddr frame.NodeID

	outbox map[uint32]*outQueue // by stream id
}

type outQueue struct {
	priority uint8
	deficit  int
	frames   [][]byte
}

// DeficitQuantum is the per-round credit a stream's queue earns under
// deficit round-robin scheduling.
const DeficitQuantum = 1500

// NewMultiplexer builds a Multiplexer over an already-constructed
// Connection and Platform. The Connection's Config.Send should be wired to
// call Enqueue so that control/data frames flow through the same
// congestion-gated scheduler as stream data.
func NewMultiplexer(conn *Connection, plat platform.Platform, local, peer frame.NodeID) *Multiplexer {
	return &Multiplexer{conn: conn, plat: plat, localAddr: local, peerAddr: peer, outbox: make(map[uint32]*outQueue)}
}

// Enqueue frames one outbound payload (already produced by Connection or a
// Stream) and places it on that stream's priority queue. sid 0 is the
// connection-level control queue, always served at the highest priority.
func (mx *Multiplexer) Enqueue(ft frame.FrameType, sid uint32, payload []byte, priority uint8) error {
	buf, err := mx.encode(ft, sid, payload)
	if err != nil {
		return err
	}
	if sid == 0 {
		priority = 15
	}
	mx.mu.Lock()
	q, ok := mx.outbox[sid]
	if !ok {
		q = &outQueue{priority: priority}
		mx.outbox[sid] = q
	}
	q.frames = append(q.frames, buf)
	mx.mu.Unlock()
	return nil
}

func (mx *Multiplexer) encode(ft frame.FrameType, sid uint32, payload []byte) ([]byte, error) {
	h := frame.Header{
		Type:      ft,
		StreamID:  sid,
		SrcNodeID: mx.localAddr,
		DstNodeID: mx.peerAddr,
	}
	buf := make([]byte, frame.EncodedLen(nil, payload))
	n, err := frame.Encode(buf, h, nil, payload)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// PumpOutbound drains queued frames in priority order (15 highest), using
// deficit round-robin within a priority class, sending each through the
// platform only while the connection's own congestion controller admits it.
func (mx *Multiplexer) PumpOutbound() (sent int, err error) {
	cong := mx.conn.cong

	mx.mu.Lock()
	sids := make([]uint32, 0, len(mx.outbox))
	for sid, q := range mx.outbox {
		if len(q.frames) > 0 {
			sids = append(sids, sid)
		}
	}
	sort.Slice(sids, func(i, j int) bool {
		return mx.outbox[sids[i]].priority > mx.outbox[sids[j]].priority
	})
	mx.mu.Unlock()

	for _, sid := range sids {
		mx.mu.Lock()
		q := mx.outbox[sid]
		q.deficit += DeficitQuantum
		for len(q.frames) > 0 && q.deficit > 0 {
			next := q.frames[0]
			if !cong.CanSend(len(next)) {
				mx.mu.Unlock()
				return sent, nil
			}
			q.frames = q.frames[1:]
			q.deficit -= len(next)
			mx.mu.Unlock()

			cong.OnPacketSent(len(next), time.Now())
			if err := mx.plat.Send(next); err != nil {
				return sent, err
			}
			sent++

			mx.mu.Lock()
		}
		mx.mu.Unlock()
	}
	return sent, nil
}

// PumpInbound reads one frame from the platform (if any) and dispatches it
// by frame type, per spec.md §4.12. Returns platform.ErrEmpty when there
// is nothing to read.
func (mx *Multiplexer) PumpInbound(buf []byte) error {
	n, err := mx.plat.Recv(buf)
	if err != nil {
		return err
	}
	d, err := frame.Decode(buf[:n])
	if err != nil {
		return err
	}
	switch d.Header.Type {
	case frame.FrameTypeStreamControl:
		m, err := DecodeControlFrame(d.Payload)
		if err != nil {
			return err
		}
		return mx.conn.HandleControl(m)
	case frame.FrameTypeData:
		seq, payload, ok := decodeDataFrame(d.Payload)
		if !ok {
			return fmt.Errorf("transport: short data frame payload")
		}
		return mx.conn.DispatchData(d.Header.StreamID, seq, payload)
	default:
		return nil
	}
}
