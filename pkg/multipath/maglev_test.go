package multipath

import (
	"fmt"
	"math"
	"testing"
)

func mkBackend(id byte, weight uint32) Backend {
	var b Backend
	b.ID[0] = id
	b.Weight = weight
	return b
}

func TestBuildFillsEverySlot(t *testing.T) {
	backends := []Backend{mkBackend(1, 1), mkBackend(2, 1), mkBackend(3, 1)}
	tbl, err := Build(backends, DefaultTableSize)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < tbl.size; i++ {
		if tbl.slots[i] < 0 {
			t.Fatalf("slot %d unfilled", i)
		}
	}
}

func TestWeightedDistributionApproximatesWeights(t *testing.T) {
	backends := []Backend{mkBackend(1, 3), mkBackend(2, 1), mkBackend(3, 1)}
	tbl, err := Build(backends, DefaultTableSize)
	if err != nil {
		t.Fatal(err)
	}
	counts := tbl.SlotCounts()
	wantA := float64(DefaultTableSize) * 3.0 / 5.0
	wantBC := float64(DefaultTableSize) * 1.0 / 5.0

	if math.Abs(float64(counts[0])-wantA) > 200 {
		t.Fatalf("backend A got %d slots, want ~%v", counts[0], wantA)
	}
	for i, want := range []float64{wantBC, wantBC} {
		if math.Abs(float64(counts[i+1])-want) > 200 {
			t.Fatalf("backend %d got %d slots, want ~%v", i+1, counts[i+1], want)
		}
	}
}

func TestLookupIsDeterministic(t *testing.T) {
	backends := []Backend{mkBackend(1, 1), mkBackend(2, 1)}
	tbl, err := Build(backends, 101)
	if err != nil {
		t.Fatal(err)
	}
	key := []byte("flow-42")
	first, err := tbl.Lookup(key)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := tbl.Lookup(key)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != first.ID {
			t.Fatalf("lookup not deterministic: got %v, want %v", got.ID, first.ID)
		}
	}
}

func TestRemovingBackendDisruptsBoundedFraction(t *testing.T) {
	backends := []Backend{mkBackend(1, 1), mkBackend(2, 1), mkBackend(3, 1)}
	before, err := Build(backends, DefaultTableSize)
	if err != nil {
		t.Fatal(err)
	}

	without := []Backend{mkBackend(1, 1), mkBackend(3, 1)}
	after, err := Build(without, DefaultTableSize)
	if err != nil {
		t.Fatal(err)
	}

	changed := 0
	for i := 0; i < DefaultTableSize; i++ {
		key := []byte(fmt.Sprintf("flow-%d", i))
		b1, _ := before.Lookup(key)
		b2, _ := after.Lookup(key)
		if b1.ID != b2.ID {
			changed++
		}
	}
	// Removing one of three backends should reassign roughly M/3 of the
	// slots, not a large majority of the table.
	if changed > DefaultTableSize*2/3 {
		t.Fatalf("too many slots changed on backend removal: %d/%d", changed, DefaultTableSize)
	}
}

func TestBuildRejectsNoBackends(t *testing.T) {
	if _, err := Build(nil, DefaultTableSize); err != ErrNoBackends {
		t.Fatalf("expected ErrNoBackends, got %v", err)
	}
}
