package gossip

import (
	"testing"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/sad"
)

// network is an in-memory Transport connecting every Node registered with
// it by node id, letting tests drive multi-node message exchange without a
// real socket.
type network struct {
	nodes map[frame.NodeID]*Node
}

func newNetwork() *network { return &network{nodes: make(map[frame.NodeID]*Node)} }

func (net *network) register(n *Node) { net.nodes[n.self] = n }

func (net *network) SendTo(peer frame.NodeID, msg []byte) error {
	target, ok := net.nodes[peer]
	if !ok {
		return nil
	}
	return target.Dispatch(msg)
}

func ids(b ...byte) frame.NodeID {
	var id frame.NodeID
	id[0] = b[0]
	return id
}

func TestHyParViewJoinScenario(t *testing.T) {
	N1, N2, N3, N4 := ids(1), ids(2), ids(3), ids(4)

	net := newNetwork()
	node1 := New(Config{Self: N1, Transport: net, ActiveViewSize: 5, ARWL: 6, PRWL: 3})
	node2 := New(Config{Self: N2, Transport: net, ActiveViewSize: 5, ARWL: 6, PRWL: 3})
	node3 := New(Config{Self: N3, Transport: net, ActiveViewSize: 5, ARWL: 6, PRWL: 3})
	node4 := New(Config{Self: N4, Transport: net, ActiveViewSize: 5, ARWL: 6, PRWL: 3})
	net.register(node1)
	net.register(node2)
	net.register(node3)
	net.register(node4)

	// Seed N1's active view with {N2, N3} directly (bypassing Join, which
	// is the behaviour under test for N4).
	node1.active.add(N2)
	node1.active.add(N3)

	if err := node4.Join(N1); err != nil {
		t.Fatal(err)
	}

	active1 := node1.ActiveView()
	found := false
	for _, id := range active1 {
		if id == N4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected N1 to add N4 to its active view, got %v", active1)
	}
}

func TestForwardJoinTTLDecrementsAndPromotes(t *testing.T) {
	N1, N2 := ids(1), ids(2)
	net := newNetwork()
	node1 := New(Config{Self: N1, Transport: net, ActiveViewSize: 1})
	node2 := New(Config{Self: N2, Transport: net, ActiveViewSize: 1})
	net.register(node1)
	net.register(node2)

	// node1's active view has only node2, which is "nearly empty" (size
	// <= 1), so a ForwardJoin should immediately promote the origin.
	node1.active.add(N2)

	origin := ids(9)
	if err := node1.handleForwardJoin(Message{Type: MsgForwardJoin, SenderID: N2, OriginID: origin, TTL: 3}); err != nil {
		t.Fatal(err)
	}
	view := node1.ActiveView()
	found := false
	for _, id := range view {
		if id == origin {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected origin promoted into nearly-empty active view, got %v", view)
	}
}

func TestDisconnectPromotesFromPassive(t *testing.T) {
	N1, N2, N3 := ids(1), ids(2), ids(3)
	node1 := New(Config{Self: N1, ActiveViewSize: 5, PassiveViewSize: 5})
	node1.active.add(N2)
	node1.passive.add(N3)

	if err := node1.handleDisconnect(Message{SenderID: N2}); err != nil {
		t.Fatal(err)
	}
	active := node1.ActiveView()
	if len(active) != 1 || active[0] != N3 {
		t.Fatalf("expected N3 promoted into active view, got %v", active)
	}
}

func TestShuffleMergesIntoPassiveView(t *testing.T) {
	N1, N2 := ids(1), ids(2)
	net := newNetwork()
	node1 := New(Config{Self: N1, Transport: net, PassiveViewSize: 10, ShuffleLen: 2})
	node2 := New(Config{Self: N2, Transport: net, PassiveViewSize: 10, ShuffleLen: 2})
	net.register(node1)
	net.register(node2)

	node2.passive.add(ids(9))
	node2.passive.add(ids(10))
	node1.active.add(N2)

	if err := node1.ShuffleOnce(); err != nil {
		t.Fatal(err)
	}

	p1 := node1.PassiveView()
	if len(p1) == 0 {
		t.Fatalf("expected node1 passive view to gain entries from shuffle reply, got %v", p1)
	}
}

func TestAdvertiseInvokesHandler(t *testing.T) {
	N1, N2 := ids(1), ids(2)
	net := newNetwork()

	var gotOrigin frame.NodeID
	var called bool
	node2 := New(Config{Self: N2, Transport: net, OnAdvertise: func(origin frame.NodeID, caps sad.SAD) {
		gotOrigin = origin
		called = true
	}})
	node1 := New(Config{Self: N1, Transport: net})
	net.register(node1)
	net.register(node2)
	node1.active.add(N2)

	capsBuf, err := sad.Encode(sad.SAD{Fields: []sad.Field{sad.Uint32Field(sad.FieldModelArch, 1)}})
	if err != nil {
		t.Fatal(err)
	}
	if err := node1.Advertise(capsBuf); err != nil {
		t.Fatal(err)
	}
	if !called || gotOrigin != N1 {
		t.Fatalf("expected OnAdvertise called with origin N1, called=%v origin=%v", called, gotOrigin)
	}
}
