package rtt

import (
	"testing"
	"time"
)

func TestFirstSampleSeedsSRTT(t *testing.T) {
	e := New()
	e.Sample(1, 100*time.Millisecond)
	if e.SRTT() != 100*time.Millisecond {
		t.Fatalf("SRTT = %v, want 100ms", e.SRTT())
	}
	if e.RTTVAR() != 50*time.Millisecond {
		t.Fatalf("RTTVAR = %v, want 50ms", e.RTTVAR())
	}
}

func TestSubsequentSamplesSmoothTowardMeasured(t *testing.T) {
	e := New()
	e.Sample(1, 100*time.Millisecond)
	e.Sample(2, 200*time.Millisecond)
	if e.SRTT() <= 100*time.Millisecond || e.SRTT() >= 200*time.Millisecond {
		t.Fatalf("SRTT = %v, expected between 100ms and 200ms", e.SRTT())
	}
}

func TestKarnsAlgorithmDiscardsRetransmittedSample(t *testing.T) {
	e := New()
	e.Sample(1, 100*time.Millisecond)
	e.MarkRetransmitted(2)
	e.Sample(2, 10*time.Second)
	if e.SRTT() != 100*time.Millisecond {
		t.Fatalf("expected retransmitted sample discarded, SRTT = %v", e.SRTT())
	}
}

func TestRTOFloorsAtMinRTO(t *testing.T) {
	e := New()
	e.Sample(1, 0)
	if e.RTO() < MinRTO {
		t.Fatalf("RTO = %v, below floor %v", e.RTO(), MinRTO)
	}
}
