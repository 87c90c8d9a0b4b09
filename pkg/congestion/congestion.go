// Package congestion implements the pluggable congestion-control contract
// of spec.md §4.13: CUBIC (default), an optional BBR sketch, and a no-op
// controller for tests that want a fixed, unthrottled window.
package congestion

import "time"

// Controller is the congestion-control plugin contract. A connection owns
// exactly one; it is mutated only on the connection's event thread, never
// concurrently.
type Controller interface {
	OnPacketSent(bytes int, now time.Time)
	OnAck(bytesAcked int, measuredRTT time.Duration, now time.Time)
	OnLoss(bytesLost int, now time.Time)
	OnECNCE(now time.Time)
	CongestionWindow() int
	BytesInFlight() int
	CanSend(bytes int) bool
	PacingRate() (bytesPerSec int64, ok bool)
}
