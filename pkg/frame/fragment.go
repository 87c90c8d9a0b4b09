package frame

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// DefaultFragmentTimeout is the default time an incomplete fragment group
// is kept before being evicted.
const DefaultFragmentTimeout = 2 * time.Second

// fragmentInfoValue encodes the FRAGMENT_INFO option payload: a 4-byte
// big-endian fragment offset followed by a 2-byte big-endian total
// fragment count.
func fragmentInfoValue(offset uint32, total uint16) []byte {
	v := make([]byte, 6)
	binary.BigEndian.PutUint32(v[0:4], offset)
	binary.BigEndian.PutUint16(v[4:6], total)
	return v
}

func parseFragmentInfo(v []byte) (offset uint32, total uint16, err error) {
	if len(v) != 6 {
		return 0, 0, fmt.Errorf("%w: fragment info length %d", ErrLengthMismatch, len(v))
	}
	return binary.BigEndian.Uint32(v[0:4]), binary.BigEndian.Uint16(v[4:6]), nil
}

// Fragment splits payload into frames of at most maxFrameBudget total
// bytes (header+options+payload+crc), sharing streamID and baseSeq,
// each tagged with a FRAGMENT_INFO option; every frame but the last carries
// FlagMoreFragments. The returned headers' Sequence fields increment from
// baseSeq. Fragment never mutates h.
func Fragment(h Header, baseSeq uint32, payload []byte, maxFrameBudget int) ([]Header, [][]Option, [][]byte, error) {
	overhead := HeaderSize + 2 + 6 /* FRAGMENT_INFO option: 2-byte TLV header + 6-byte value */ + CRCSize
	chunkSize := maxFrameBudget - overhead
	if chunkSize <= 0 {
		return nil, nil, nil, fmt.Errorf("frame: maxFrameBudget %d too small for fragmentation overhead %d", maxFrameBudget, overhead)
	}
	if len(payload) == 0 {
		return nil, nil, nil, fmt.Errorf("frame: cannot fragment empty payload")
	}

	total := (len(payload) + chunkSize - 1) / chunkSize
	headers := make([]Header, 0, total)
	optsList := make([][]Option, 0, total)
	payloads := make([][]byte, 0, total)

	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		ch := h
		ch.Sequence = baseSeq + uint32(i)
		if i < total-1 {
			ch.Flags |= FlagMoreFragments
		} else {
			ch.Flags &^= FlagMoreFragments
		}
		opt := Option{Type: OptFragmentInfo, Value: fragmentInfoValue(uint32(i), uint16(total))}
		headers = append(headers, ch)
		optsList = append(optsList, []Option{opt})
		payloads = append(payloads, payload[start:end])
	}
	return headers, optsList, payloads, nil
}

// groupKey identifies a fragment reassembly group.
type groupKey struct {
	src      NodeID
	streamID uint32
	baseSeq  uint32
}

type fragGroup struct {
	total    uint16
	pieces   map[uint16][]byte
	lastSeen time.Time
}

// Reassembler accumulates fragments keyed by (src_node_id, stream_id,
// base_seq) and evicts incomplete groups after timeout. It is safe for
// concurrent use: the multiplexer's inbound read path and a background
// eviction sweep may call it from different goroutines.
type Reassembler struct {
	mu      sync.Mutex
	timeout time.Duration
	groups  map[groupKey]*fragGroup
	now     func() time.Time
}

// NewReassembler constructs a Reassembler with the given fragment timeout.
// A zero timeout uses DefaultFragmentTimeout.
func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultFragmentTimeout
	}
	return &Reassembler{
		timeout: timeout,
		groups:  make(map[groupKey]*fragGroup),
		now:     time.Now,
	}
}

// Add feeds one decoded, fragmented frame into the reassembler. baseSeq is
// the sequence of fragment index 0 (d.Header.Sequence - fragmentOffset).
// It returns the reassembled payload and true once every fragment of the
// group has arrived; otherwise it returns false while the group awaits
// further fragments.
func (r *Reassembler) Add(d Decoded) ([]byte, bool, error) {
	opt, ok := FindOption(d.Options, OptFragmentInfo)
	if !ok {
		return nil, false, fmt.Errorf("frame: frame has no FRAGMENT_INFO option")
	}
	offset, total, err := parseFragmentInfo(opt.Value)
	if err != nil {
		return nil, false, err
	}
	baseSeq := d.Header.Sequence - offset

	key := groupKey{src: d.Header.SrcNodeID, streamID: d.Header.StreamID, baseSeq: baseSeq}

	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[key]
	if !ok {
		g = &fragGroup{total: total, pieces: make(map[uint16][]byte, total)}
		r.groups[key] = g
	}
	g.lastSeen = r.now()
	piece := make([]byte, len(d.Payload))
	copy(piece, d.Payload)
	g.pieces[uint16(offset)] = piece

	if uint16(len(g.pieces)) < g.total {
		return nil, false, nil
	}

	out := make([]byte, 0, sumLens(g.pieces))
	for i := uint16(0); i < g.total; i++ {
		out = append(out, g.pieces[i]...)
	}
	delete(r.groups, key)
	return out, true, nil
}

// Sweep evicts groups idle longer than the configured timeout, returning
// the number evicted. Callers drive this from a timer wheel tick.
func (r *Reassembler) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	evicted := 0
	for k, g := range r.groups {
		if now.Sub(g.lastSeen) > r.timeout {
			delete(r.groups, k)
			evicted++
		}
	}
	return evicted
}

func sumLens(m map[uint16][]byte) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}
