package congestion

import "time"

// BBR gain phases per spec.md §4.13's RFC 9438 sketch.
type bbrPhase int

const (
	phaseStartup bbrPhase = iota
	phaseDrain
	phaseProbeBW
)

const (
	btlBwWindow  = 10 // rounds
	rtPropWindow = 10 * time.Second
)

// BBR is an optional congestion controller estimating bottleneck bandwidth
// (BtlBw) and minimum RTT (RTprop), and sizing cwnd as 2*BtlBw*RTprop.
type BBR struct {
	bytesInFlight int
	cwnd          float64

	btlBw     []float64 // recent delivery-rate samples, bytes/sec
	rtProp    time.Duration
	hasRTProp bool
	rtPropAt  time.Time

	phase bbrPhase
	now   func() time.Time
}

// NewBBR returns a BBR controller seeded with an initial window equal to
// CUBIC's, since both start from the same slow-start-equivalent estimate
// before any bandwidth samples exist.
func NewBBR(now func() time.Time) *BBR {
	if now == nil {
		now = time.Now
	}
	return &BBR{cwnd: InitialWindow, now: now, phase: phaseStartup}
}

func (b *BBR) OnPacketSent(bytes int, now time.Time) {
	b.bytesInFlight += bytes
}

func (b *BBR) OnAck(bytesAcked int, measuredRTT time.Duration, now time.Time) {
	b.bytesInFlight -= bytesAcked
	if b.bytesInFlight < 0 {
		b.bytesInFlight = 0
	}

	if measuredRTT > 0 {
		rate := float64(bytesAcked) / measuredRTT.Seconds()
		b.btlBw = append(b.btlBw, rate)
		if len(b.btlBw) > btlBwWindow {
			b.btlBw = b.btlBw[len(b.btlBw)-btlBwWindow:]
		}

		if !b.hasRTProp || measuredRTT < b.rtProp || now.Sub(b.rtPropAt) > rtPropWindow {
			b.rtProp = measuredRTT
			b.hasRTProp = true
			b.rtPropAt = now
		}
	}

	btlBw := b.maxBtlBw()
	if btlBw > 0 && b.rtProp > 0 {
		target := 2 * btlBw * b.rtProp.Seconds()
		b.cwnd = target
		if b.cwnd < MinWindow {
			b.cwnd = MinWindow
		}
	}
}

func (b *BBR) maxBtlBw() float64 {
	var max float64
	for _, r := range b.btlBw {
		if r > max {
			max = r
		}
	}
	return max
}

func (b *BBR) OnLoss(bytesLost int, now time.Time) {
	b.bytesInFlight -= bytesLost
	if b.bytesInFlight < 0 {
		b.bytesInFlight = 0
	}
}

func (b *BBR) OnECNCE(now time.Time) {}

func (b *BBR) CongestionWindow() int { return int(b.cwnd) }

func (b *BBR) BytesInFlight() int { return b.bytesInFlight }

func (b *BBR) CanSend(bytes int) bool {
	return b.bytesInFlight+bytes <= int(b.cwnd)
}

func (b *BBR) PacingRate() (int64, bool) {
	btlBw := b.maxBtlBw()
	if btlBw == 0 {
		return 0, false
	}
	return int64(btlBw), true
}
