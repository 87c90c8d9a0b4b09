package transport

import (
	"testing"
)

func openTestStream(mode DeliveryMode) *Stream {
	conn := NewConnection(Config{})
	s := newStream(1, mode, 0, conn)
	s.state = StreamOpen
	return s
}

func TestReliableOrderedBuffersOutOfOrder(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	s.onData(1, []byte("b"))
	if _, ok := s.Recv(); ok {
		t.Fatal("expected no deliverable chunk before seq 0 arrives")
	}
	s.onData(0, []byte("a"))
	first, ok := s.Recv()
	if !ok || string(first) != "a" {
		t.Fatalf("got %q, ok=%v, want a", first, ok)
	}
	second, ok := s.Recv()
	if !ok || string(second) != "b" {
		t.Fatalf("got %q, ok=%v, want b", second, ok)
	}
}

func TestReliableOrderedDropsDuplicates(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	s.onData(0, []byte("a"))
	s.Recv()
	s.onData(0, []byte("dup"))
	if _, ok := s.Recv(); ok {
		t.Fatal("expected duplicate of delivered seq to be dropped")
	}
}

func TestReliableUnorderedDeliversInArrivalOrder(t *testing.T) {
	s := openTestStream(ModeReliableUnordered)
	s.onData(5, []byte("later"))
	s.onData(1, []byte("earlier"))
	first, _ := s.Recv()
	if string(first) != "later" {
		t.Fatalf("got %q, want arrival order (later first)", first)
	}
	second, _ := s.Recv()
	if string(second) != "earlier" {
		t.Fatalf("got %q, want earlier second", second)
	}
}

func TestBestEffortDeliversImmediatelyWithNoBookkeeping(t *testing.T) {
	s := openTestStream(ModeBestEffort)
	s.onData(0, []byte("x"))
	if _, ok := s.Recv(); !ok {
		t.Fatal("expected immediate delivery")
	}
	if len(s.outstanding) != 0 {
		t.Fatal("best-effort mode should not track outstanding chunks")
	}
}

func TestProbabilisticDeliversImmediately(t *testing.T) {
	s := openTestStream(ModeProbabilistic)
	s.SetDeliveryProbability(0.5)
	s.onData(0, []byte("x"))
	if _, ok := s.Recv(); !ok {
		t.Fatal("expected immediate delivery regardless of probability (gating happens on send)")
	}
}

func TestSendTracksOutstandingForReliableModes(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	if _, err := s.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if len(s.outstanding) != 1 {
		t.Fatalf("expected 1 outstanding chunk, got %d", len(s.outstanding))
	}
}

func TestSendDoesNotTrackOutstandingForBestEffort(t *testing.T) {
	s := openTestStream(ModeBestEffort)
	if _, err := s.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if len(s.outstanding) != 0 {
		t.Fatal("best-effort send should not be tracked for retransmission")
	}
}

func TestOnDataAckClearsCumulativeAndRanges(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	for seq := uint32(0); seq < 5; seq++ {
		s.outstanding[seq] = &pendingChunk{seq: seq, payload: []byte("x")}
	}
	s.onDataAck(DataAckParams{CumulativeAck: 2, Ranges: []AckRange{{Start: 4, End: 4}}})
	if _, ok := s.outstanding[0]; ok {
		t.Fatal("seq 0 should be cleared by cumulative ack")
	}
	if _, ok := s.outstanding[1]; ok {
		t.Fatal("seq 1 should be cleared by cumulative ack")
	}
	if _, ok := s.outstanding[2]; !ok {
		t.Fatal("seq 2 should remain outstanding (cumulative ack is exclusive)")
	}
	if _, ok := s.outstanding[4]; ok {
		t.Fatal("seq 4 should be cleared by the disjoint range")
	}
	if _, ok := s.outstanding[3]; !ok {
		t.Fatal("seq 3 should remain outstanding")
	}
}

func TestRetransmitCapExhaustionResetsStream(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	s.outstanding[0] = &pendingChunk{seq: 0, payload: []byte("x")}
	for i := 0; i < DefaultMaxRetransmissions; i++ {
		ok, err := s.Retransmit(0)
		if !ok || err != nil {
			t.Fatalf("attempt %d: ok=%v err=%v, want ok, nil", i, ok, err)
		}
	}
	ok, err := s.Retransmit(0)
	if ok || err == nil {
		t.Fatal("expected retransmission cap exhaustion to fail")
	}
	if s.State() != StreamReset {
		t.Fatalf("state = %s, want Reset", s.State())
	}
}

func TestRetransmitOfAckedSeqIsNoop(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	ok, err := s.Retransmit(42)
	if ok || err != nil {
		t.Fatalf("got ok=%v err=%v, want false, nil for unknown seq", ok, err)
	}
}

func TestCloseTransitionsHalfClosedLocal(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamHalfClosedLocal {
		t.Fatalf("state = %s, want HalfClosed(local)", s.State())
	}
}

func TestPeerCloseThenLocalCloseReachesClosed(t *testing.T) {
	s := openTestStream(ModeReliableOrdered)
	s.onPeerClose()
	if s.State() != StreamHalfClosedRemote {
		t.Fatalf("state = %s, want HalfClosed(remote)", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StreamClosed {
		t.Fatalf("state = %s, want Closed", s.State())
	}
}
