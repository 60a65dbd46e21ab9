package engine

import (
	"testing"

	"academic-risk/internal/common"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"

	"github.com/stretchr/testify/assert"
)

func TestClassifySubject(t *testing.T) {
	tests := []struct {
		name       string
		score, att float64
		want       Level
	}{
		{"safe at both bars", 70, 80, LevelSafe},
		{"high score low attendance", 95, 79.9, LevelNeedsAttention},
		{"attention at both bars", 50, 70, LevelNeedsAttention},
		{"score just below attention", 49.99, 95, LevelAtRisk},
		{"attendance just below attention", 80, 69.9, LevelAtRisk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySubject(tt.score, tt.att))
		})
	}
}

func TestClassifySemester(t *testing.T) {
	tests := []struct {
		name                 string
		score, backlogs, att float64
		want                 Level
	}{
		{"clean record", 8, 0, 85, LevelSafe},
		{"boundary safe", 7.5, 0, 80, LevelSafe},
		{"one backlog", 9, 1, 95, LevelNeedsAttention},
		{"score below 7.5", 7.49, 0, 95, LevelNeedsAttention},
		{"attendance below 80", 9, 0, 79, LevelNeedsAttention},
		{"three backlogs", 9.5, 3, 95, LevelAtRisk},
		{"score below 6", 5.99, 0, 95, LevelAtRisk},
		{"attendance below 70", 9, 0, 69, LevelAtRisk},
		{"boundary attention", 6.0, 2, 70, LevelNeedsAttention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySemester(tt.score, tt.backlogs, tt.att))
		})
	}
}

func TestClassify_ReadsKindFields(t *testing.T) {
	fs := features.FeatureSet{common.FeatureAttendanceAverage: 85}
	assert.Equal(t, LevelSafe, Classify(ml.KindSemester, 8, fs), "absent backlog treated as zero")

	subject := features.FeatureSet{common.FeatureAttendancePercentage: 60}
	assert.Equal(t, LevelAtRisk, Classify(ml.KindSubject, 90, subject))
}

func TestEnsembleConfidence(t *testing.T) {
	assert.Equal(t, 1.0, EnsembleConfidence([]float64{70, 70, 70}))
	assert.InDelta(t, 0.9, EnsembleConfidence([]float64{60, 80}), 1e-12)
	assert.Equal(t, MinConfidence, EnsembleConfidence([]float64{0, 200}), "std 100 floors")
	assert.Equal(t, MinConfidence, EnsembleConfidence(nil))
}

func TestHeuristicConfidence(t *testing.T) {
	full := features.FeatureSet{
		common.FeatureMeanSubjectPrediction: 70,
		common.FeatureActiveBacklogCount:    0,
		common.FeaturePreviousSGPA:          7,
		common.FeatureAttendanceAverage:     85,
	}
	assert.Equal(t, 1.0, HeuristicConfidence(7, full))

	noPrev := full.Clone()
	delete(noPrev, common.FeaturePreviousSGPA)
	assert.InDelta(t, 0.9, HeuristicConfidence(7, noPrev), 1e-12)

	worst := features.FeatureSet{
		common.FeatureMeanSubjectPrediction: 20,
		common.FeatureActiveBacklogCount:    5,
		common.FeatureAttendanceAverage:     50,
	}
	assert.InDelta(t, 0.8*0.7*0.8*0.9, HeuristicConfidence(3, worst), 1e-12)
	assert.InDelta(t, 0.8, HeuristicConfidence(9.8, full), 1e-12)
}

func TestRuleSubjectConfidence(t *testing.T) {
	capped := features.FeatureSet{
		common.FeatureAttendancePercentage: 85,
		common.FeatureBestOfTwoInternals:   20,
	}
	assert.Equal(t, 0.95, RuleSubjectConfidence(capped))

	low := features.FeatureSet{
		common.FeatureAttendancePercentage: 50,
		common.FeatureBestOfTwoInternals:   10,
	}
	assert.InDelta(t, 0.85, RuleSubjectConfidence(low), 1e-12)
}

func TestAnalyze(t *testing.T) {
	res := PredictionResult{Score: 6.3, RiskLevel: LevelNeedsAttention, Kind: ml.KindSemester}
	fs := features.FeatureSet{
		common.FeatureMeanSubjectPrediction: 70,
		common.FeatureActiveBacklogCount:    1,
		common.FeatureAttendanceAverage:     72,
	}

	a := Analyze(res, fs)
	assert.Equal(t, LevelNeedsAttention, a.RiskLevel)

	names := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		names = append(names, f.Factor)
	}
	assert.Equal(t, []string{"moderate_sgpa", "backlogs", "attendance"}, names)
	assert.Len(t, a.Recommendations, 3)

	clean := Analyze(PredictionResult{Score: 95, RiskLevel: LevelSafe, Kind: ml.KindSubject}, features.FeatureSet{
		common.FeatureAttendancePercentage: 95,
		common.FeatureBestOfTwoInternals:   22,
		common.FeatureAssignmentMarks:      18,
		common.FeatureBehaviorScore:        9,
	})
	assert.Empty(t, clean.Factors)
	assert.Equal(t, []string{"Keep up the current performance"}, clean.Recommendations)
}
