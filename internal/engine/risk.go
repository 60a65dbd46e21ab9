package engine

import (
	"academic-risk/internal/common"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"
)

// Level is a risk tier.
type Level string

const (
	LevelSafe           Level = "SAFE"
	LevelNeedsAttention Level = "NEEDS_ATTENTION"
	LevelAtRisk         Level = "AT_RISK"
)

// Levels lists tiers from best to worst.
var Levels = []Level{LevelSafe, LevelNeedsAttention, LevelAtRisk}

// ClassifySubject tiers a 100-point score. Both the score and attendance must
// clear a tier's bar.
func ClassifySubject(score, attendance float64) Level {
	switch {
	case score >= 70 && attendance >= 80:
		return LevelSafe
	case score >= 50 && attendance >= 70:
		return LevelNeedsAttention
	default:
		return LevelAtRisk
	}
}

// ClassifySemester tiers a 10-point SGPA. Any single failing indicator is
// enough to drop a tier.
func ClassifySemester(score, backlogs, attendance float64) Level {
	switch {
	case score < 6.0 || backlogs > 2 || attendance < 70:
		return LevelAtRisk
	case score < 7.5 || backlogs > 0 || attendance < 80:
		return LevelNeedsAttention
	default:
		return LevelSafe
	}
}

// Classify picks the scale for kind and reads the indicators from fs.
func Classify(kind ml.Kind, score float64, fs features.FeatureSet) Level {
	if kind == ml.KindSemester {
		return ClassifySemester(score,
			fs.Get(common.FeatureActiveBacklogCount, common.DefaultActiveBacklogs),
			fs[common.FeatureAttendanceAverage])
	}
	return ClassifySubject(score, fs[common.FeatureAttendancePercentage])
}
