package platform

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cortexmesh/corenet/pkg/ring"
)

// lengthPrefixSize is the size of the length prefix each slot carries so a
// variable-length frame can be recovered from a fixed-size slot.
const lengthPrefixSize = 4

// Mock is an in-memory loopback platform backed by a ring buffer, used as
// the authoritative platform for tests (spec.md §4.4: "Mock is
// authoritative for tests"). Two Mocks can be cross-wired with NewMockPair
// to simulate a two-endpoint link without any real socket.
type Mock struct {
	out *ring.Ring // this side's outbound queue (its peer's inbound)
	in  *ring.Ring // this side's inbound queue

	mu     sync.Mutex
	closed bool
}

// NewMockPair builds two Mock platforms wired to each other: sending on a
// writes into the ring that b reads from, and vice versa.
func NewMockPair(numSlots, slotSize int) (a, b *Mock, err error) {
	ab, err := ring.New(numSlots, slotSize)
	if err != nil {
		return nil, nil, err
	}
	ba, err := ring.New(numSlots, slotSize)
	if err != nil {
		return nil, nil, err
	}
	a = &Mock{out: ab, in: ba}
	b = &Mock{out: ba, in: ab}
	return a, b, nil
}

func (m *Mock) Send(frameBytes []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fmt.Errorf("platform: mock closed")
	}
	if len(frameBytes) > m.out.SlotSize()-lengthPrefixSize {
		return fmt.Errorf("platform: frame of %d bytes exceeds slot capacity %d", len(frameBytes), m.out.SlotSize()-lengthPrefixSize)
	}
	slot, err := m.out.Reserve()
	if err != nil {
		return fmt.Errorf("platform: %w", err)
	}
	binary.LittleEndian.PutUint32(slot[:lengthPrefixSize], uint32(len(frameBytes)))
	copy(slot[lengthPrefixSize:], frameBytes)
	m.out.Commit()
	return nil
}

func (m *Mock) Recv(buf []byte) (int, error) {
	slot, err := m.in.Peek()
	if err != nil {
		return 0, ErrEmpty
	}
	n := int(binary.LittleEndian.Uint32(slot[:lengthPrefixSize]))
	copied := copy(buf, slot[lengthPrefixSize:lengthPrefixSize+n])
	m.in.Release()
	if copied < n {
		return copied, fmt.Errorf("platform: recv buffer of %d bytes too small for %d-byte frame", len(buf), n)
	}
	return copied, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
