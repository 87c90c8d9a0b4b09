package transport

import (
	"testing"
	"time"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/platform"
)

func TestMultiplexerRoundTripsControlFrame(t *testing.T) {
	a, b, err := platform.NewMockPair(16, 1500)
	if err != nil {
		t.Fatal(err)
	}

	nodeA, nodeB := frame.NodeID{1}, frame.NodeID{2}
	connA := NewConnection(Config{Local: nodeA, Peer: nodeB, Side: SideClient})
	connB := NewConnection(Config{Local: nodeB, Peer: nodeA, Side: SideServer})

	mxA := NewMultiplexer(connA, a, nodeA, nodeB)
	mxB := NewMultiplexer(connB, b, nodeB, nodeA)
	connA.SetSendFunc(BindSend(mxA, 15))
	connB.SetSendFunc(BindSend(mxB, 15))

	if err := connB.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := connA.Connect(); err != nil {
		t.Fatal(err)
	}

	if _, err := mxA.PumpOutbound(); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1500)
	if err := mxB.PumpInbound(buf); err != nil {
		t.Fatal(err)
	}
	if connB.State() != StateEstablished {
		t.Fatalf("server state = %s, want Established", connB.State())
	}

	if _, err := mxB.PumpOutbound(); err != nil {
		t.Fatal(err)
	}
	if err := mxA.PumpInbound(buf); err != nil {
		t.Fatal(err)
	}
	if connA.State() != StateEstablished {
		t.Fatalf("client state = %s, want Established", connA.State())
	}
}

func TestMultiplexerRoundTripsDataFrame(t *testing.T) {
	a, b, err := platform.NewMockPair(16, 1500)
	if err != nil {
		t.Fatal(err)
	}

	nodeA, nodeB := frame.NodeID{1}, frame.NodeID{2}
	connA := NewConnection(Config{Local: nodeA, Peer: nodeB, Side: SideClient})
	connB := NewConnection(Config{Local: nodeB, Peer: nodeA, Side: SideServer})
	mxA := NewMultiplexer(connA, a, nodeA, nodeB)
	mxB := NewMultiplexer(connB, b, nodeB, nodeA)
	connA.SetSendFunc(BindSend(mxA, 15))
	connB.SetSendFunc(BindSend(mxB, 15))

	connB.Accept()
	connA.Connect()
	buf := make([]byte, 1500)
	mxA.PumpOutbound()
	mxB.PumpInbound(buf)
	mxB.PumpOutbound()
	mxA.PumpInbound(buf)

	stream, err := connA.OpenStream(ModeReliableOrdered, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mxA.PumpOutbound(); err != nil {
		t.Fatal(err)
	}
	if err := mxB.PumpInbound(buf); err != nil {
		t.Fatal(err)
	}

	serverStream := connB.getStream(stream.ID())
	if serverStream == nil {
		t.Fatal("server did not learn about the opened stream")
	}
	if _, err := mxB.PumpOutbound(); err != nil {
		t.Fatal(err)
	}
	if err := mxA.PumpInbound(buf); err != nil {
		t.Fatal(err)
	}
	if stream.State() != StreamOpen {
		t.Fatalf("client stream state = %s, want Open", stream.State())
	}

	if _, err := stream.Send([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if _, err := mxA.PumpOutbound(); err != nil {
		t.Fatal(err)
	}
	if err := mxB.PumpInbound(buf); err != nil {
		t.Fatal(err)
	}
	got, ok := serverStream.Recv()
	if !ok || string(got) != "payload" {
		t.Fatalf("got %q, ok=%v, want payload", got, ok)
	}
}

// fakeGate lets tests control exactly when PumpOutbound is allowed to send,
// to exercise the priority/deficit-round-robin scheduler deterministically.
// It implements the full congestion.Controller interface so it can be
// injected via Config.Congestion, the only way a connection's own
// controller is consulted.
type fakeGate struct {
	allow int
	sent  []int
}

func (g *fakeGate) CanSend(bytes int) bool { return g.allow > 0 }
func (g *fakeGate) OnPacketSent(bytes int, now time.Time) {
	g.allow--
	g.sent = append(g.sent, bytes)
}
func (g *fakeGate) OnAck(bytesAcked int, measuredRTT time.Duration, now time.Time) {}
func (g *fakeGate) OnLoss(bytesLost int, now time.Time)                           {}
func (g *fakeGate) OnECNCE(now time.Time)                                        {}
func (g *fakeGate) CongestionWindow() int                                        { return 0 }
func (g *fakeGate) BytesInFlight() int                                           { return 0 }
func (g *fakeGate) PacingRate() (int64, bool)                                    { return 0, false }

func TestPumpOutboundStopsWhenCongestionGateRefuses(t *testing.T) {
	a, _, err := platform.NewMockPair(16, 1500)
	if err != nil {
		t.Fatal(err)
	}
	gate := &fakeGate{allow: 1}
	conn := NewConnection(Config{Congestion: gate})
	mx := NewMultiplexer(conn, a, frame.NodeID{1}, frame.NodeID{2})
	mx.Enqueue(frame.FrameTypeData, 1, []byte("one"), 5)
	mx.Enqueue(frame.FrameTypeData, 1, []byte("two"), 5)

	sent, err := mx.PumpOutbound()
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 (gate should have refused the second frame)", sent)
	}
}

func TestPumpOutboundServesHigherPriorityFirst(t *testing.T) {
	a, b, err := platform.NewMockPair(16, 1500)
	if err != nil {
		t.Fatal(err)
	}
	conn := NewConnection(Config{})
	mx := NewMultiplexer(conn, a, frame.NodeID{1}, frame.NodeID{2})
	mx.Enqueue(frame.FrameTypeData, 1, []byte("low"), 1)
	mx.Enqueue(frame.FrameTypeData, 2, []byte("high"), 9)

	if _, err := mx.PumpOutbound(); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1500)
	n, err := b.Recv(buf)
	if err != nil {
		t.Fatal(err)
	}
	d, err := frame.Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if d.Header.StreamID != 2 {
		t.Fatalf("first frame off the wire was for stream %d, want the higher-priority stream 2", d.Header.StreamID)
	}
}
