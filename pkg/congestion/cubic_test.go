package congestion

import (
	"testing"
	"time"
)

func TestCubicSlowStartGrowsOnAck(t *testing.T) {
	c := NewCubic()
	start := time.Unix(0, 0)
	before := c.CongestionWindow()
	c.OnPacketSent(1460, start)
	c.OnAck(1460, 20*time.Millisecond, start)
	if c.CongestionWindow() <= before {
		t.Fatalf("expected cwnd to grow in slow start, before=%d after=%d", before, c.CongestionWindow())
	}
}

func TestCubicLossReactionScenario(t *testing.T) {
	c := NewCubic()
	c.cwnd = 100 * 1024
	now := time.Unix(0, 0)

	c.OnLoss(1000, now)
	got := c.CongestionWindow()
	want := int(100 * 1024 * cubicBeta)
	if got != want {
		t.Fatalf("cwnd after loss = %d, want %d", got, want)
	}
}

func TestCubicGrowsMonotonicallyOverLossFreeRTTs(t *testing.T) {
	c := NewCubic()
	c.cwnd = 100 * 1024
	c.ssthresh = 50 * 1024 // force congestion-avoidance phase
	now := time.Unix(0, 0)

	prev := c.CongestionWindow()
	for i := 0; i < 10; i++ {
		now = now.Add(50 * time.Millisecond)
		c.reducedThisRTT = false
		c.OnAck(1460, 20*time.Millisecond, now)
		if c.CongestionWindow() < prev {
			t.Fatalf("cwnd decreased at RTT %d: %d -> %d", i, prev, c.CongestionWindow())
		}
		prev = c.CongestionWindow()
	}
}

func TestCubicOnlyOneReductionPerECNRTT(t *testing.T) {
	c := NewCubic()
	c.cwnd = 100 * 1024
	c.srtt = 50 * time.Millisecond
	now := time.Unix(0, 0)

	c.OnECNCE(now)
	afterFirst := c.CongestionWindow()
	c.OnECNCE(now.Add(10 * time.Millisecond))
	if c.CongestionWindow() != afterFirst {
		t.Fatalf("expected no second reduction within one RTT, got %d vs %d", c.CongestionWindow(), afterFirst)
	}
}

func TestCanSendRespectsWindow(t *testing.T) {
	c := NewCubic()
	c.cwnd = 1000
	now := time.Unix(0, 0)
	c.OnPacketSent(900, now)
	if c.CanSend(200) {
		t.Fatal("expected CanSend to refuse once window would be exceeded")
	}
	if !c.CanSend(50) {
		t.Fatal("expected CanSend to permit send within remaining window")
	}
}
