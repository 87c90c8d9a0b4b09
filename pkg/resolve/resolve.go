// Package resolve scores candidate route entries against a SAD query:
// veto-style hard constraints disqualify a candidate outright, and the
// remaining soft constraints contribute a weighted composite score.
package resolve

import (
	"math/bits"

	"github.com/cortexmesh/corenet/pkg/sad"
)

// Disqualified is the sentinel score returned for a candidate that fails a
// hard constraint.
const Disqualified = -1.0

// Candidate is the subset of a route entry's capability SAD fields the
// resolver scores against, plus the measured metrics used for tie-breaks.
type Candidate struct {
	SAD         sad.SAD
	LatencyUS   uint32
	NodeID      [16]byte
}

// Weights holds the soft-constraint weighting. The zero value is invalid;
// use DefaultWeights.
type Weights struct {
	Capability     float64
	Latency        float64
	Cost           float64
	ContextWindow  float64
	Trust          float64
}

// DefaultWeights matches spec.md §4.6's default deployment weighting.
var DefaultWeights = Weights{
	Capability:    0.30,
	Latency:       0.25,
	Cost:          0.20,
	ContextWindow: 0.15,
	Trust:         0.10,
}

// Score computes the candidate's score against query under w, returning
// Disqualified if any hard constraint fails.
//
// MODEL_ARCH is treated as a hard constraint alongside CONTEXT_WINDOW,
// TRUST_LEVEL and REGION_EXCLUDE: spec.md's Open Question on this point is
// resolved in DESIGN.md in favor of the stricter reference-scorer
// behaviour (a resolved caller should not be handed an incompatible
// architecture even if its soft score would otherwise be competitive).
func Score(query sad.SAD, cand Candidate, w Weights) float64 {
	if query.IsWildcard() {
		return 1.0
	}

	if qArch, ok := query.GetUint32(sad.FieldModelArch); ok {
		cArch, _ := cand.SAD.GetUint32(sad.FieldModelArch)
		if cArch != qArch {
			return Disqualified
		}
	}
	if qCtx, ok := query.GetUint32(sad.FieldContextWindow); ok {
		cCtx, _ := cand.SAD.GetUint32(sad.FieldContextWindow)
		if cCtx < qCtx {
			return Disqualified
		}
	}
	if qTrust, ok := query.GetUint8(sad.FieldMinTrustLevel); ok {
		cTrust, _ := cand.SAD.GetUint8(sad.FieldMinTrustLevel)
		if cTrust < qTrust {
			return Disqualified
		}
	}
	if excluded, ok := query.GetUint16List(sad.FieldRegionExclude); ok {
		cRegions, _ := cand.SAD.GetUint16List(sad.FieldRegionPrefer)
		if regionIn(cRegions, excluded) {
			return Disqualified
		}
	}

	var total float64
	var weightSum float64

	if qCaps, ok := query.GetUint32(sad.FieldCapability); ok && qCaps != 0 {
		cCaps, _ := cand.SAD.GetUint32(sad.FieldCapability)
		s := float64(bits.OnesCount32(cCaps&qCaps)) / float64(bits.OnesCount32(qCaps))
		total += w.Capability * s
		weightSum += w.Capability
	}
	if qLatency, ok := query.GetUint32(sad.FieldMaxLatencyMS); ok && qLatency > 0 {
		s := 1.0 - float64(cand.LatencyUS)/1000.0/float64(qLatency)
		if s < 0 {
			s = 0
		}
		total += w.Latency * s
		weightSum += w.Latency
	}
	if qCost, ok := query.GetUint32(sad.FieldMaxCostMilli); ok && qCost > 0 {
		cCost, _ := cand.SAD.GetUint32(sad.FieldMaxCostMilli)
		s := 1.0 - float64(cCost)/float64(qCost)
		if s < 0 {
			s = 0
		}
		total += w.Cost * s
		weightSum += w.Cost
	}
	if _, ok := query.GetUint32(sad.FieldContextWindow); ok {
		total += w.ContextWindow * 1.0
		weightSum += w.ContextWindow
	}
	if _, ok := query.GetUint8(sad.FieldMinTrustLevel); ok {
		total += w.Trust * 1.0
		weightSum += w.Trust
	}

	score := total
	if weightSum == 0 {
		score = 1.0
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}

	if preferred, ok := query.GetUint16List(sad.FieldRegionPrefer); ok {
		cRegions, _ := cand.SAD.GetUint16List(sad.FieldRegionPrefer)
		if !regionIn(cRegions, preferred) {
			score *= 0.5
		}
	}

	return score
}

func regionIn(candRegions, set []uint16) bool {
	for _, cr := range candRegions {
		for _, s := range set {
			if cr == s {
				return true
			}
		}
	}
	return false
}

// Scored pairs a candidate with its computed score, for Top-K output.
type Scored struct {
	Candidate Candidate
	Score     float64
}

// TopK scores every candidate against query and returns up to k entries
// ordered by descending score, ties broken by lower latency then by
// node-id byte order, matching spec.md §4.6.
func TopK(query sad.SAD, candidates []Candidate, w Weights, k int) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		s := Score(query, c, w)
		if s < 0 {
			continue
		}
		scored = append(scored, Scored{Candidate: c, Score: s})
	}
	sortScored(scored)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func sortScored(scored []Scored) {
	// Insertion sort over every non-disqualified candidate; TopK truncates
	// to k only after sorting.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && less(scored[j], scored[j-1]); j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}

func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Candidate.LatencyUS != b.Candidate.LatencyUS {
		return a.Candidate.LatencyUS < b.Candidate.LatencyUS
	}
	for i := range a.Candidate.NodeID {
		if a.Candidate.NodeID[i] != b.Candidate.NodeID[i] {
			return a.Candidate.NodeID[i] < b.Candidate.NodeID[i]
		}
	}
	return false
}
