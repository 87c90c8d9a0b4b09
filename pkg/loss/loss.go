// Package loss implements RFC 9002-style loss detection: a packet sent by
// sequence number is declared lost when either a packet-count threshold or
// a time threshold of later-acked packets is crossed, plus probe-timeout
// scheduling when no acknowledgements arrive at all.
package loss

import (
	"sort"
	"time"
)

// PacketThreshold is the number of higher-sequence acked packets that
// declares a packet lost (RFC 9002 §6.1.1).
const PacketThreshold = 3

// TimeThresholdNumerator/Denominator express the 9/8 multiplier RFC 9002
// applies to smoothed RTT for the time-threshold loss test.
const (
	TimeThresholdNumerator   = 9
	TimeThresholdDenominator = 8
)

// sent tracks one in-flight packet's bookkeeping.
type sent struct {
	seq     uint64
	sentAt  time.Time
	size    int
	acked   bool
}

// Detector tracks outstanding packets and declares losses per RFC 9002.
type Detector struct {
	outstanding map[uint64]*sent
	highestAcked uint64
	hasHighest  bool
	now         func() time.Time

	ptoCount int
}

// New returns an empty detector. now defaults to time.Now.
func New(now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{outstanding: make(map[uint64]*sent), now: now}
}

// OnPacketSent records a newly sent packet.
func (d *Detector) OnPacketSent(seq uint64, size int) {
	d.outstanding[seq] = &sent{seq: seq, sentAt: d.now(), size: size}
}

// OnAck records an acknowledgement for seq and returns the packets newly
// declared lost as a side effect, per the packet- and time-threshold tests
// of RFC 9002 §6.1, given the current smoothed RTT.
func (d *Detector) OnAck(seq uint64, srtt time.Duration) []uint64 {
	if p, ok := d.outstanding[seq]; ok {
		p.acked = true
		delete(d.outstanding, seq)
	}
	if !d.hasHighest || seq > d.highestAcked {
		d.highestAcked = seq
		d.hasHighest = true
	}
	d.ptoCount = 0
	return d.detectLosses(srtt)
}

// detectLosses scans outstanding packets sent before the highest acked
// sequence and declares any crossing the packet- or time-threshold lost,
// removing them from the outstanding set.
func (d *Detector) detectLosses(srtt time.Duration) []uint64 {
	if !d.hasHighest {
		return nil
	}
	timeThreshold := srtt * TimeThresholdNumerator / TimeThresholdDenominator
	now := d.now()

	var lost []uint64
	for seq, p := range d.outstanding {
		if seq >= d.highestAcked {
			continue
		}
		packetGap := d.highestAcked - seq
		byCount := packetGap >= PacketThreshold
		byTime := timeThreshold > 0 && now.Sub(p.sentAt) > timeThreshold
		if byCount || byTime {
			lost = append(lost, seq)
			delete(d.outstanding, seq)
		}
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i] < lost[j] })
	return lost
}

// PTO computes the probe timeout per RFC 9002 §6.2.1: srtt + max(4*rttvar,
// granularity) + maxAckDelay, doubled for every consecutive expiry.
func (d *Detector) PTO(srtt, rttvar, granularity, maxAckDelay time.Duration) time.Duration {
	base := srtt + maxDuration(4*rttvar, granularity) + maxAckDelay
	return base << d.ptoCount
}

// OnPTOExpired records a probe-timeout expiry, exponentially backing off
// subsequent PTO calculations until the next successful ack.
func (d *Detector) OnPTOExpired() {
	d.ptoCount++
}

// OutstandingCount returns the number of packets not yet acked or
// declared lost.
func (d *Detector) OutstandingCount() int { return len(d.outstanding) }

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
