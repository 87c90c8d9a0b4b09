// Package routing implements the concurrent routing table: a read-copy-update
// map from node id to capability/metrics entries, sized for ≥100K entries
// with wait-free reads. Writers serialise among themselves and publish a
// new immutable snapshot; readers load the current snapshot atomically and
// never block.
package routing

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/resolve"
	"github.com/cortexmesh/corenet/pkg/sad"
)

// Entry is a route table row: a node's advertised capability descriptor
// plus the metrics the local node has measured or been told about.
type Entry struct {
	NodeID        frame.NodeID
	Capabilities  sad.SAD
	LatencyUS     uint32
	LoadFactor    float64
	CostMilli     uint32
	TrustLevel    uint8
	RegionCode    uint16
	LastUpdated   time.Time
	TTL           time.Duration
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.LastUpdated) > e.TTL
}

// snapshot is the immutable table state readers traverse. A new snapshot
// is published, never mutated, on every write.
type snapshot struct {
	entries map[frame.NodeID]*Entry
}

// Table is the concurrent routing table described in spec.md §4.7.
type Table struct {
	cur    atomic.Pointer[snapshot]
	wmu    sync.Mutex // serialises writers; readers never take this lock
	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// DefaultTTL is applied to entries that do not specify one.
const DefaultTTL = 5 * time.Minute

// New returns an empty table. The background eviction sweep is started by
// StartEvictionLoop, not by New, so tests can drive eviction deterministically
// via Sweep.
func New() *Table {
	t := &Table{now: time.Now, stopCh: make(chan struct{})}
	t.cur.Store(&snapshot{entries: make(map[frame.NodeID]*Entry)})
	return t
}

// WithClock overrides the table's time source, for deterministic tests.
func (t *Table) WithClock(now func() time.Time) *Table {
	t.now = now
	return t
}

// Insert adds or replaces the entry for e.NodeID. A zero TTL is replaced
// with DefaultTTL.
func (t *Table) Insert(e Entry) {
	if e.TTL <= 0 {
		e.TTL = DefaultTTL
	}
	if e.LastUpdated.IsZero() {
		e.LastUpdated = t.now()
	}
	t.publish(func(next map[frame.NodeID]*Entry) {
		ec := e
		next[e.NodeID] = &ec
	})
}

// Remove deletes the entry for id, if present.
func (t *Table) Remove(id frame.NodeID) {
	t.publish(func(next map[frame.NodeID]*Entry) {
		delete(next, id)
	})
}

// UpdateMetrics patches an existing entry's measured latency and load
// factor, refreshing LastUpdated. A no-op if id is not present.
func (t *Table) UpdateMetrics(id frame.NodeID, latencyUS uint32, loadFactor float64) {
	t.publish(func(next map[frame.NodeID]*Entry) {
		e, ok := next[id]
		if !ok {
			return
		}
		ec := *e
		ec.LatencyUS = latencyUS
		ec.LoadFactor = loadFactor
		ec.LastUpdated = t.now()
		next[id] = &ec
	})
}

// publish serialises writers, copies the current snapshot's map, applies
// mutate, and atomically installs the result as the new current snapshot.
func (t *Table) publish(mutate func(next map[frame.NodeID]*Entry)) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	old := t.cur.Load()
	next := make(map[frame.NodeID]*Entry, len(old.entries)+1)
	for k, v := range old.entries {
		next[k] = v
	}
	mutate(next)
	t.cur.Store(&snapshot{entries: next})
}

// Get returns the entry for id from the snapshot observed at call time.
func (t *Table) Get(id frame.NodeID) (Entry, bool) {
	s := t.cur.Load()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports the number of entries in the currently published snapshot.
func (t *Table) Len() int {
	return len(t.cur.Load().entries)
}

// Resolve scores every live (non-expired) entry against query and returns
// up to maxResults ordered by descending score, per spec.md §4.6.
func (t *Table) Resolve(query sad.SAD, w resolve.Weights, maxResults int) []resolve.Scored {
	s := t.cur.Load()
	now := t.now()
	cands := make([]resolve.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		if e.expired(now) {
			continue
		}
		cands = append(cands, resolve.Candidate{
			SAD:       e.Capabilities,
			LatencyUS: e.LatencyUS,
			NodeID:    e.NodeID,
		})
	}
	return resolve.TopK(query, cands, w, maxResults)
}

// Sweep evicts entries expired as of the table's current clock, returning
// the node ids removed. Exposed directly so tests can drive eviction
// without waiting on StartEvictionLoop's timer.
func (t *Table) Sweep() []frame.NodeID {
	var evicted []frame.NodeID
	now := t.now()
	t.publish(func(next map[frame.NodeID]*Entry) {
		for id, e := range next {
			if e.expired(now) {
				delete(next, id)
				evicted = append(evicted, id)
			}
		}
	})
	return evicted
}

// StartEvictionLoop runs Sweep every interval until Stop is called.
func (t *Table) StartEvictionLoop(interval time.Duration) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Stop halts the eviction loop started by StartEvictionLoop, if any.
func (t *Table) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// exportEntry is the JSON shape of ExportJSON's per-entry output.
type exportEntry struct {
	NodeID      string  `json:"node_id"`
	LatencyUS   uint32  `json:"latency_us"`
	LoadFactor  float64 `json:"load_factor"`
	CostMilli   uint32  `json:"cost_milli"`
	TrustLevel  uint8   `json:"trust_level"`
	RegionCode  uint16  `json:"region_code"`
	LastUpdated int64   `json:"last_updated_unix_ms"`
	TTLSeconds  float64 `json:"ttl_seconds"`
}

// ExportJSON renders the current snapshot as JSON, sorted by node id for
// deterministic output, for observability tooling.
func (t *Table) ExportJSON() ([]byte, error) {
	s := t.cur.Load()
	out := make([]exportEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, exportEntry{
			NodeID:      e.NodeID.String(),
			LatencyUS:   e.LatencyUS,
			LoadFactor:  e.LoadFactor,
			CostMilli:   e.CostMilli,
			TrustLevel:  e.TrustLevel,
			RegionCode:  e.RegionCode,
			LastUpdated: e.LastUpdated.UnixMilli(),
			TTLSeconds:  e.TTL.Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return json.Marshal(out)
}
