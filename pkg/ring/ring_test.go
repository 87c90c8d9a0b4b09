package ring

import (
	"encoding/binary"
	"sync"
	"testing"
)

func TestRingWrapFIFO(t *testing.T) {
	r, err := New(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint32(0); i < 10; i++ {
		slot, err := r.Reserve()
		if err != nil {
			t.Fatalf("Reserve(%d): %v", i, err)
		}
		binary.LittleEndian.PutUint32(slot, i)
		r.Commit()

		got, err := r.Peek()
		if err != nil {
			t.Fatalf("Peek(%d): %v", i, err)
		}
		if v := binary.LittleEndian.Uint32(got); v != i {
			t.Fatalf("Peek(%d) = %d, want %d", i, v, i)
		}
		r.Release()
	}
	if r.head.v.Load() != 10 || r.tail.v.Load() != 10 {
		t.Fatalf("head=%d tail=%d, want both 10", r.head.v.Load(), r.tail.v.Load())
	}
}

func TestRingReserveFullPeekEmpty(t *testing.T) {
	r, err := New(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Peek(); err != ErrEmpty {
		t.Fatalf("Peek on empty ring = %v, want ErrEmpty", err)
	}
	for i := 0; i < r.Capacity(); i++ {
		if _, err := r.Reserve(); err != nil {
			t.Fatalf("Reserve(%d): %v", i, err)
		}
		r.Commit()
	}
	if _, err := r.Reserve(); err != ErrFull {
		t.Fatalf("Reserve on full ring = %v, want ErrFull", err)
	}
}

func TestRingInvalidCapacity(t *testing.T) {
	if _, err := New(3, 4); err == nil {
		t.Fatal("expected error for non-power-of-two numSlots")
	}
	if _, err := New(2, 0); err == nil {
		t.Fatal("expected error for zero slotSize")
	}
}

// TestRingConcurrentProducerConsumer exercises the genuine SPSC contract:
// one goroutine reserves/commits, another peeks/releases, racing against
// each other the way the platform and frame codec would.
func TestRingConcurrentProducerConsumer(t *testing.T) {
	r, err := New(1024, 8)
	if err != nil {
		t.Fatal(err)
	}
	const n = 200000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; i++ {
			var slot []byte
			for {
				slot, err = r.Reserve()
				if err == nil {
					break
				}
			}
			binary.LittleEndian.PutUint64(slot, i)
			r.Commit()
		}
	}()

	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; i++ {
			var slot []byte
			for {
				slot, err = r.Peek()
				if err == nil {
					break
				}
			}
			if v := binary.LittleEndian.Uint64(slot); v != i {
				t.Errorf("out-of-order delivery: got %d, want %d", v, i)
			}
			r.Release()
		}
	}()

	wg.Wait()
}

func TestRingOccupancyInvariant(t *testing.T) {
	r, err := New(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if _, err := r.Reserve(); err == nil {
			r.Commit()
		}
		if occ := r.Len(); occ < 0 || occ > r.Capacity() {
			t.Fatalf("occupancy %d out of [0,%d]", occ, r.Capacity())
		}
		if i%3 == 0 {
			if _, err := r.Peek(); err == nil {
				r.Release()
			}
		}
	}
}
