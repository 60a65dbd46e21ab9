package engine

import (
	"math"

	"academic-risk/internal/common"
	"academic-risk/internal/features"
)

// MinConfidence is the floor applied to every estimate.
const MinConfidence = 0.1

// EnsembleConfidence derives confidence from the spread of per-tree
// estimates on the 100-point scale: 1 - popstd/100, clamped to [0, 1].
func EnsembleConfidence(estimates []float64) float64 {
	if len(estimates) == 0 {
		return MinConfidence
	}

	var m float64
	for _, v := range estimates {
		m += v
	}
	m /= float64(len(estimates))

	var variance float64
	for _, v := range estimates {
		variance += (v - m) * (v - m)
	}
	std := math.Sqrt(variance / float64(len(estimates)))

	return floor(math.Max(0, math.Min(1, 1-std/100)))
}

// HeuristicConfidence applies compounding penalties to a semester estimate.
// raw must be the caller's input before defaults were filled, since a missing
// previous_sgpa is itself penalised.
func HeuristicConfidence(score float64, raw features.FeatureSet) float64 {
	c := 1.0
	if score < 4.0 || score > 9.5 {
		c *= 0.8
	}
	if raw.Get(common.FeatureActiveBacklogCount, common.DefaultActiveBacklogs) > 3 {
		c *= 0.7
	}
	if raw[common.FeatureAttendanceAverage] < 70 {
		c *= 0.8
	}
	if !raw.Has(common.FeaturePreviousSGPA) {
		c *= 0.9
	}
	return floor(c)
}

// RuleSubjectConfidence rates a rule-based subject score by input quality:
// 0.7 + attendance/100*0.2 + internals/20*0.1, capped at 0.95.
func RuleSubjectConfidence(fs features.FeatureSet) float64 {
	c := 0.7 +
		fs[common.FeatureAttendancePercentage]/100*0.2 +
		fs[common.FeatureBestOfTwoInternals]/20*0.1
	return floor(math.Min(0.95, c))
}

func floor(c float64) float64 {
	if math.IsNaN(c) || c < MinConfidence {
		return MinConfidence
	}
	return c
}
