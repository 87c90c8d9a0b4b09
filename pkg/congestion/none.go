package congestion

import "time"

// None is a test/diagnostic controller with a fixed, unthrottled window:
// every send is permitted and bytesInFlight is tracked but never used to
// gate CanSend. Useful for isolating the multiplexer/stream layer from
// congestion-control behaviour in tests.
type None struct {
	window        int
	bytesInFlight int
}

// NewNone returns a None controller with the given fixed window.
func NewNone(window int) *None {
	if window <= 0 {
		window = 1 << 30
	}
	return &None{window: window}
}

func (n *None) OnPacketSent(bytes int, now time.Time) { n.bytesInFlight += bytes }

func (n *None) OnAck(bytesAcked int, measuredRTT time.Duration, now time.Time) {
	n.bytesInFlight -= bytesAcked
	if n.bytesInFlight < 0 {
		n.bytesInFlight = 0
	}
}

func (n *None) OnLoss(bytesLost int, now time.Time) {
	n.bytesInFlight -= bytesLost
	if n.bytesInFlight < 0 {
		n.bytesInFlight = 0
	}
}

func (n *None) OnECNCE(now time.Time) {}

func (n *None) CongestionWindow() int { return n.window }

func (n *None) BytesInFlight() int { return n.bytesInFlight }

func (n *None) CanSend(bytes int) bool { return true }

func (n *None) PacingRate() (int64, bool) { return 0, false }
