package routing

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/resolve"
	"github.com/cortexmesh/corenet/pkg/sad"
)

func nodeID(b byte) frame.NodeID {
	var id frame.NodeID
	id[0] = b
	return id
}

func TestInsertGetRemove(t *testing.T) {
	tbl := New()
	id := nodeID(1)
	tbl.Insert(Entry{NodeID: id, LatencyUS: 100})
	got, ok := tbl.Get(id)
	if !ok || got.LatencyUS != 100 {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
	tbl.Remove(id)
	if _, ok := tbl.Get(id); ok {
		t.Fatal("expected entry removed")
	}
}

func TestUpdateMetrics(t *testing.T) {
	tbl := New()
	id := nodeID(1)
	tbl.Insert(Entry{NodeID: id, LatencyUS: 100})
	tbl.UpdateMetrics(id, 50, 0.75)
	got, _ := tbl.Get(id)
	if got.LatencyUS != 50 || got.LoadFactor != 0.75 {
		t.Fatalf("got %+v", got)
	}
}

func TestUpdateMetricsOnMissingIsNoop(t *testing.T) {
	tbl := New()
	tbl.UpdateMetrics(nodeID(9), 10, 0.1)
	if tbl.Len() != 0 {
		t.Fatalf("expected no entry created, len=%d", tbl.Len())
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	tbl := New().WithClock(func() time.Time { return now })
	tbl.Insert(Entry{NodeID: nodeID(1), TTL: time.Second})
	tbl.Insert(Entry{NodeID: nodeID(2), TTL: time.Hour})

	now = now.Add(2 * time.Second)
	evicted := tbl.Sweep()
	if len(evicted) != 1 || evicted[0] != nodeID(1) {
		t.Fatalf("expected node 1 evicted, got %v", evicted)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", tbl.Len())
	}
}

func TestResolveSkipsExpiredEntries(t *testing.T) {
	now := time.Unix(1000, 0)
	tbl := New().WithClock(func() time.Time { return now })
	tbl.Insert(Entry{NodeID: nodeID(1), TTL: time.Second, Capabilities: sad.SAD{}})
	now = now.Add(2 * time.Second)

	results := tbl.Resolve(sad.SAD{}, resolve.DefaultWeights, 10)
	if len(results) != 0 {
		t.Fatalf("expected expired entry excluded from resolve, got %d results", len(results))
	}
}

func TestResolveWildcardReturnsAllLiveEntries(t *testing.T) {
	tbl := New()
	for i := byte(1); i <= 5; i++ {
		tbl.Insert(Entry{NodeID: nodeID(i), LatencyUS: uint32(i)})
	}
	results := tbl.Resolve(sad.SAD{}, resolve.DefaultWeights, 3)
	if len(results) != 3 {
		t.Fatalf("expected top-3, got %d", len(results))
	}
	if results[0].Candidate.LatencyUS != 1 {
		t.Fatalf("expected lowest latency first, got %+v", results[0])
	}
}

func TestExportJSONDeterministicOrder(t *testing.T) {
	tbl := New()
	tbl.Insert(Entry{NodeID: nodeID(3)})
	tbl.Insert(Entry{NodeID: nodeID(1)})
	tbl.Insert(Entry{NodeID: nodeID(2)})
	buf, err := tbl.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) == 0 {
		t.Fatal("expected non-empty export")
	}
	out := string(buf)
	i1, i2, i3 := strings.Index(out, nodeID(1).String()), strings.Index(out, nodeID(2).String()), strings.Index(out, nodeID(3).String())
	if i1 < 0 || i2 < i1 || i3 < i2 {
		t.Fatalf("expected entries sorted by node id, got %s", out)
	}
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	tbl := New()
	for i := byte(0); i < 50; i++ {
		tbl.Insert(Entry{NodeID: nodeID(i)})
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					tbl.Resolve(sad.SAD{}, resolve.DefaultWeights, 10)
				}
			}
		}()
	}

	for w := byte(0); w < 200; w++ {
		tbl.Insert(Entry{NodeID: nodeID(w % 50), LatencyUS: uint32(w)})
	}
	close(stop)
	wg.Wait()
}

func TestStartStopEvictionLoop(t *testing.T) {
	now := time.Unix(2000, 0)
	var mu sync.Mutex
	tbl := New().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	tbl.Insert(Entry{NodeID: nodeID(1), TTL: time.Millisecond})
	tbl.StartEvictionLoop(5 * time.Millisecond)

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	tbl.Stop()

	if tbl.Len() != 0 {
		t.Fatalf("expected eviction loop to clear expired entry, len=%d", tbl.Len())
	}
}
