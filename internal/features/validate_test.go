package features

import (
	"errors"
	"math"
	"testing"

	"academic-risk/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subjectInput() FeatureSet {
	return FeatureSet{
		common.FeatureAttendancePercentage: 85,
		common.FeatureBestOfTwoInternals:   20,
		common.FeatureAssignmentMarks:      16,
		common.FeatureBehaviorScore:        9,
	}
}

func TestValidate_SubjectComplete(t *testing.T) {
	in := subjectInput()
	in["unrelated"] = 1

	out, err := Validate(in, SubjectSchema)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.NotContains(t, out, "unrelated")
	assert.Equal(t, 85.0, out[common.FeatureAttendancePercentage])
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	in := FeatureSet{common.FeatureBehaviorScore: 7}

	_, err := Validate(in, SubjectSchema)
	require.Error(t, err)

	var mfe *MissingFeatureError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, "subject", mfe.Schema)
	assert.Equal(t, []string{
		common.FeatureAttendancePercentage,
		common.FeatureBestOfTwoInternals,
		common.FeatureAssignmentMarks,
	}, mfe.Missing)
	assert.Contains(t, err.Error(), common.FeatureAssignmentMarks)
}

func TestValidate_SemesterDefaults(t *testing.T) {
	in := FeatureSet{
		common.FeatureMeanSubjectPrediction: 70,
		common.FeatureAttendanceAverage:     72,
	}

	out, err := Validate(in, SemesterSchema)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out[common.FeaturePreviousSGPA])
	assert.Equal(t, 0.0, out[common.FeatureActiveBacklogCount])
	assert.False(t, in.Has(common.FeaturePreviousSGPA), "input must not be mutated")
}

func TestValidate_SemesterMissingRequired(t *testing.T) {
	in := FeatureSet{common.FeaturePreviousSGPA: 8}

	_, err := Validate(in, SemesterSchema)
	var mfe *MissingFeatureError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, []string{common.FeatureMeanSubjectPrediction, common.FeatureAttendanceAverage}, mfe.Missing)
}

func TestValidate_NoClamping(t *testing.T) {
	in := subjectInput()
	in[common.FeatureAttendancePercentage] = 140

	out, err := Validate(in, SubjectSchema)
	require.NoError(t, err)
	assert.Equal(t, 140.0, out[common.FeatureAttendancePercentage])
}

func TestCheckRanges(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantBad bool
	}{
		{"lower bound inclusive", 0, false},
		{"upper bound inclusive", 100, false},
		{"below", -0.01, true},
		{"above", 100.01, true},
		{"nan", math.NaN(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := subjectInput()
			in[common.FeatureAttendancePercentage] = tt.value
			err := CheckRanges(in, SubjectSchema)
			if tt.wantBad {
				var re *RangeError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, []string{common.FeatureAttendancePercentage}, re.Fields)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchema_Vector(t *testing.T) {
	vec := SubjectSchema.Vector(subjectInput())
	assert.Equal(t, []float64{85, 20, 16, 9}, vec)
}

func TestFeatureSet_KeyIsOrderIndependent(t *testing.T) {
	a := FeatureSet{"b": 2, "a": 1}
	b := FeatureSet{"a": 1, "b": 2}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "a=1;b=2", a.Key())
}
