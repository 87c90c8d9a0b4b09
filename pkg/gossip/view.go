package gossip

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"

	"github.com/cortexmesh/corenet/pkg/frame"
)

// rng is a package-level cryptographically seeded PRNG. Peer selection
// uses it instead of a predictable default source to avoid targeted
// poisoning via predictable eviction/forwarding choices, per spec.md §4.8.
var rng = newCryptoSeededRand()

func newCryptoSeededRand() *mathrand.Rand {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failure on a supported platform indicates a broken
		// entropy source; there is no safe fallback for peer-selection
		// unpredictability, so the process is better off crashing than
		// silently degrading to a guessable PRNG.
		panic("gossip: failed to read OS entropy for PRNG seed: " + err.Error())
	}
	s1 := binary.LittleEndian.Uint64(seed[0:8])
	s2 := binary.LittleEndian.Uint64(seed[8:16])
	return mathrand.New(mathrand.NewPCG(s1, s2))
}

// view is a bounded, order-preserving set of node ids.
type view struct {
	cap   int
	order []frame.NodeID
}

func newView(capacity int) *view {
	return &view{cap: capacity}
}

func (v *view) contains(id frame.NodeID) bool {
	for _, x := range v.order {
		if x == id {
			return true
		}
	}
	return false
}

func (v *view) size() int { return len(v.order) }

func (v *view) full() bool { return len(v.order) >= v.cap }

// add appends id if not already present and space allows, returning false
// if the view was full.
func (v *view) add(id frame.NodeID) bool {
	if v.contains(id) {
		return true
	}
	if v.full() {
		return false
	}
	v.order = append(v.order, id)
	return true
}

func (v *view) remove(id frame.NodeID) bool {
	for i, x := range v.order {
		if x == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			return true
		}
	}
	return false
}

// randomExcept returns a uniformly random member of v, excluding any id in
// except, or the zero id with ok=false if no eligible member exists.
func (v *view) randomExcept(except ...frame.NodeID) (frame.NodeID, bool) {
	candidates := make([]frame.NodeID, 0, len(v.order))
	for _, x := range v.order {
		excluded := false
		for _, e := range except {
			if x == e {
				excluded = true
				break
			}
		}
		if !excluded {
			candidates = append(candidates, x)
		}
	}
	if len(candidates) == 0 {
		return frame.NodeID{}, false
	}
	return candidates[rng.IntN(len(candidates))], true
}

// evictRandom removes and returns a uniformly random member.
func (v *view) evictRandom() (frame.NodeID, bool) {
	if len(v.order) == 0 {
		return frame.NodeID{}, false
	}
	i := rng.IntN(len(v.order))
	id := v.order[i]
	v.order = append(v.order[:i], v.order[i+1:]...)
	return id, true
}

// sample returns up to n distinct random members.
func (v *view) sample(n int) []frame.NodeID {
	if n >= len(v.order) {
		out := make([]frame.NodeID, len(v.order))
		copy(out, v.order)
		return out
	}
	idx := rng.Perm(len(v.order))[:n]
	out := make([]frame.NodeID, n)
	for i, j := range idx {
		out[i] = v.order[j]
	}
	return out
}

// merge inserts ids into v, evicting random existing members (never the
// excluded id, typically the local node) to make room when full.
func (v *view) merge(ids []frame.NodeID, exclude frame.NodeID) {
	for _, id := range ids {
		if id == exclude || v.contains(id) {
			continue
		}
		if v.full() {
			if evicted, ok := v.evictRandom(); ok && evicted == exclude {
				// put it back; never evict the excluded id.
				v.order = append(v.order, evicted)
				continue
			}
		}
		if !v.full() {
			v.order = append(v.order, id)
		}
	}
}

func (v *view) snapshot() []frame.NodeID {
	out := make([]frame.NodeID, len(v.order))
	copy(out, v.order)
	return out
}
