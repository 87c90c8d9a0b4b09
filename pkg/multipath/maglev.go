// Package multipath implements Maglev consistent hashing for weighted
// backend selection across multiple paths, per spec.md §4.9.
package multipath

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// DefaultTableSize is the prime lookup-table size M used unless overridden.
const DefaultTableSize = 5003

// Backend is one selectable destination with a relative weight.
type Backend struct {
	ID     [16]byte
	Weight uint32
}

var ErrNoBackends = errors.New("multipath: no backends")

// Table is a populated Maglev lookup table.
type Table struct {
	size     int
	slots    []int // index into backends, or -1 if unfilled (unreachable once populated)
	backends []Backend
}

// Build constructs a Maglev table of the given size (must be prime for the
// O(1/N) rebalance guarantee; callers are responsible for choosing one,
// e.g. DefaultTableSize) over backends.
func Build(backends []Backend, size int) (*Table, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if size <= 0 {
		size = DefaultTableSize
	}

	offset := make([]int, len(backends))
	skip := make([]int, len(backends))
	for i, b := range backends {
		offset[i] = int(hash1(b.ID) % uint64(size))
		skip[i] = int(hash2(b.ID)%uint64(size-1)) + 1
	}

	slots := make([]int, size)
	for i := range slots {
		slots[i] = -1
	}

	next := make([]int, len(backends))
	filled := 0
	permutation := func(i, n int) int {
		return (offset[i] + n*skip[i]) % size
	}

	for filled < size {
		progressed := false
		for i, b := range backends {
			claimed := uint32(0)
			for claimed < b.Weight && filled < size {
				slot := permutation(i, next[i])
				next[i]++
				if slots[slot] == -1 {
					slots[slot] = i
					filled++
					claimed++
					progressed = true
				}
			}
		}
		if !progressed {
			break
		}
	}

	return &Table{size: size, slots: slots, backends: append([]Backend(nil), backends...)}, nil
}

// Lookup returns the backend assigned to key's slot.
func (t *Table) Lookup(key []byte) (Backend, error) {
	idx := t.slots[hashKey(key)%uint64(t.size)]
	if idx < 0 {
		return Backend{}, fmt.Errorf("multipath: slot unfilled (table not fully populated)")
	}
	return t.backends[idx], nil
}

// SlotCounts returns, for observability/testing, how many slots each
// backend (by index into the table's backend list) was assigned.
func (t *Table) SlotCounts() []int {
	counts := make([]int, len(t.backends))
	for _, idx := range t.slots {
		if idx >= 0 {
			counts[idx]++
		}
	}
	return counts
}

// Size returns the table's slot count M.
func (t *Table) Size() int { return t.size }

func hash1(id [16]byte) uint64 {
	return xxhash.Sum64(append([]byte{0x01}, id[:]...))
}

func hash2(id [16]byte) uint64 {
	return xxhash.Sum64(append([]byte{0x02}, id[:]...))
}

func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}
