package ml

import (
	"testing"

	"academic-risk/internal/common"
	"academic-risk/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectRuleScore(t *testing.T) {
	tests := []struct {
		name string
		fs   features.FeatureSet
		want float64
	}{
		{
			name: "strong student clamps at 100",
			fs: features.FeatureSet{
				common.FeatureAttendancePercentage: 85,
				common.FeatureBestOfTwoInternals:   20,
				common.FeatureAssignmentMarks:      16,
				common.FeatureBehaviorScore:        9,
			},
			want: 100,
		},
		{
			name: "weak student",
			fs: features.FeatureSet{
				common.FeatureAttendancePercentage: 40,
				common.FeatureBestOfTwoInternals:   5,
				common.FeatureAssignmentMarks:      4,
				common.FeatureBehaviorScore:        3,
			},
			want: 43.5,
		},
		{
			name: "all zero",
			fs: features.FeatureSet{
				common.FeatureAttendancePercentage: 0,
				common.FeatureBestOfTwoInternals:   0,
				common.FeatureAssignmentMarks:      0,
				common.FeatureBehaviorScore:        0,
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectRuleScore(tt.fs))
		})
	}
}

func TestSemesterRuleScore(t *testing.T) {
	tests := []struct {
		name string
		fs   features.FeatureSet
		want float64
	}{
		{
			name: "blended with previous sgpa",
			fs: features.FeatureSet{
				common.FeatureMeanSubjectPrediction: 70,
				common.FeatureActiveBacklogCount:    1,
				common.FeatureAttendanceAverage:     72,
				common.FeaturePreviousSGPA:          7.0,
			},
			want: 6.3,
		},
		{
			name: "absent previous sgpa blends with the default",
			fs: features.FeatureSet{
				common.FeatureMeanSubjectPrediction: 70,
				common.FeatureActiveBacklogCount:    1,
				common.FeatureAttendanceAverage:     72,
			},
			want: 6.3,
		},
		{
			name: "attendance bonus",
			fs: features.FeatureSet{
				common.FeatureMeanSubjectPrediction: 85,
				common.FeatureAttendanceAverage:     95,
				common.FeaturePreviousSGPA:          8.7,
			},
			want: 8.7,
		},
		{
			name: "clamped at zero",
			fs: features.FeatureSet{
				common.FeatureMeanSubjectPrediction: 10,
				common.FeatureActiveBacklogCount:    8,
				common.FeatureAttendanceAverage:     40,
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SemesterRuleScore(tt.fs))
		})
	}
}

func TestRulePredictor_Stats(t *testing.T) {
	p := NewRulePredictor()
	fs := features.FeatureSet{
		common.FeatureMeanSubjectPrediction: 70,
		common.FeatureAttendanceAverage:     72,
	}

	score, err := p.Score(KindSemester, fs)
	require.NoError(t, err)
	assert.Equal(t, 6.65, score)

	_, err = p.Score(Kind("yearly"), fs)
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, int64(1), p.Stats()[KindSemester])
	p.Reset()
	assert.Empty(t, p.Stats())
	assert.Equal(t, common.RulesModelVersion, p.Version())
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 2.35, RoundScore(2.345))
	assert.Equal(t, 6.3, RoundScore(0.7*6.0+0.3*7.0))
	assert.Equal(t, 0.667, RoundConfidence(2.0/3.0))
}
