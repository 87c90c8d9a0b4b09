package congestion

import (
	"math"
	"time"
)

// CUBIC constants per RFC 8312 and spec.md §4.13.
const (
	cubicC    = 0.4
	cubicBeta = 0.7
)

// InitialWindow is the slow-start starting congestion window, in bytes.
const InitialWindow = 14600 // ~10 segments of 1460 bytes, the common default

// MinWindow is the floor the congestion window never drops below.
const MinWindow = 2 * 1460

// Cubic implements the default congestion controller: slow start followed
// by the CUBIC growth function, with multiplicative decrease on loss.
type Cubic struct {
	cwnd         float64
	ssthresh     float64
	bytesInFlight int
	wMax         float64
	k            float64
	epochStart   time.Time
	hasEpoch     bool
	lastReduction time.Time
	reducedThisRTT bool
	srtt         time.Duration
}

// NewCubic returns a Cubic controller starting in slow start.
func NewCubic() *Cubic {
	return &Cubic{cwnd: InitialWindow, ssthresh: math.MaxFloat64}
}

func (c *Cubic) OnPacketSent(bytes int, now time.Time) {
	c.bytesInFlight += bytes
}

func (c *Cubic) OnAck(bytesAcked int, measuredRTT time.Duration, now time.Time) {
	c.bytesInFlight -= bytesAcked
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
	c.srtt = measuredRTT
	c.reducedThisRTT = false

	if c.cwnd < c.ssthresh {
		// Slow start: grow by bytes acked, one segment's worth of
		// increase per ack, matching standard slow-start behaviour.
		c.cwnd += float64(bytesAcked)
		return
	}

	if !c.hasEpoch {
		c.epochStart = now
		c.hasEpoch = true
		if c.wMax == 0 {
			c.wMax = c.cwnd
		}
		c.k = math.Cbrt((c.wMax - c.cwnd) / cubicC)
	}

	t := now.Sub(c.epochStart).Seconds()
	target := cubicC*math.Pow(t-c.k, 3) + c.wMax
	if target > c.cwnd {
		c.cwnd = target
	}
	if c.cwnd < MinWindow {
		c.cwnd = MinWindow
	}
}

func (c *Cubic) OnLoss(bytesLost int, now time.Time) {
	c.bytesInFlight -= bytesLost
	if c.bytesInFlight < 0 {
		c.bytesInFlight = 0
	}
	c.reduceOnce(now)
}

func (c *Cubic) OnECNCE(now time.Time) {
	// ECN-CE is treated as a mild loss signal: at most one reduction
	// event per RTT, per spec.md §4.13.
	if c.srtt > 0 && !c.lastReduction.IsZero() && now.Sub(c.lastReduction) < c.srtt {
		return
	}
	c.reduceOnce(now)
}

func (c *Cubic) reduceOnce(now time.Time) {
	if c.reducedThisRTT {
		return
	}
	c.wMax = c.cwnd
	c.cwnd *= cubicBeta
	if c.cwnd < MinWindow {
		c.cwnd = MinWindow
	}
	c.ssthresh = c.cwnd
	c.hasEpoch = false
	c.reducedThisRTT = true
	c.lastReduction = now
}

func (c *Cubic) CongestionWindow() int { return int(c.cwnd) }

func (c *Cubic) BytesInFlight() int { return c.bytesInFlight }

func (c *Cubic) CanSend(bytes int) bool {
	return c.bytesInFlight+bytes <= int(c.cwnd)
}

func (c *Cubic) PacingRate() (int64, bool) { return 0, false }
