package engine

import (
	"academic-risk/internal/common"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"
)

// Severity grades a risk factor.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskFactor is one input that pulled a prediction towards a worse tier.
type RiskFactor struct {
	Factor   string   `json:"factor"`
	Severity Severity `json:"severity"`
	Value    float64  `json:"value"`
	Message  string   `json:"message"`
}

// RiskAnalysis explains a prediction's tier.
type RiskAnalysis struct {
	RiskLevel       Level        `json:"risk_level"`
	Score           float64      `json:"score"`
	Factors         []RiskFactor `json:"risk_factors"`
	Recommendations []string     `json:"recommendations"`
}

// Analyze lists the factors behind res using the thresholds of the risk
// classifier for res.Kind.
func Analyze(res PredictionResult, fs features.FeatureSet) RiskAnalysis {
	a := RiskAnalysis{RiskLevel: res.RiskLevel, Score: res.Score}

	if res.Kind == ml.KindSemester {
		att := fs[common.FeatureAttendanceAverage]
		backlogs := fs.Get(common.FeatureActiveBacklogCount, common.DefaultActiveBacklogs)

		switch {
		case res.Score < 6.0:
			a.add(RiskFactor{"low_sgpa", SeverityHigh, res.Score, "Predicted SGPA is below 6.0"},
				"Schedule academic counselling for the semester")
		case res.Score < 7.5:
			a.add(RiskFactor{"moderate_sgpa", SeverityMedium, res.Score, "Predicted SGPA is below 7.5"},
				"Review subject-wise performance with a mentor")
		}
		switch {
		case backlogs > 2:
			a.add(RiskFactor{"backlogs", SeverityHigh, backlogs, "More than two active backlogs"},
				"Prioritise clearing active backlogs")
		case backlogs > 0:
			a.add(RiskFactor{"backlogs", SeverityMedium, backlogs, "Active backlogs pending"},
				"Plan backlog exams alongside current coursework")
		}
		a.attendance(att)
		return a.finish()
	}

	att := fs[common.FeatureAttendancePercentage]
	switch {
	case res.Score < 50:
		a.add(RiskFactor{"low_predicted_marks", SeverityHigh, res.Score, "Predicted marks are below 50"},
			"Arrange remedial sessions for this subject")
	case res.Score < 70:
		a.add(RiskFactor{"moderate_predicted_marks", SeverityMedium, res.Score, "Predicted marks are below 70"},
			"Encourage additional practice on weak topics")
	}
	if v := fs[common.FeatureBestOfTwoInternals]; v < 10 {
		a.add(RiskFactor{"low_internals", SeverityMedium, v, "Internal assessment marks are below 10 of 25"},
			"Focus on upcoming internal assessments")
	}
	if v := fs[common.FeatureAssignmentMarks]; v < 10 {
		a.add(RiskFactor{"low_assignments", SeverityLow, v, "Assignment marks are below 10 of 20"},
			"Submit pending assignments on time")
	}
	if v := fs[common.FeatureBehaviorScore]; v < 5 {
		a.add(RiskFactor{"behavior", SeverityLow, v, "Behaviour score is below 5 of 10"},
			"Discuss classroom engagement with the student")
	}
	a.attendance(att)
	return a.finish()
}

func (a *RiskAnalysis) attendance(att float64) {
	switch {
	case att < 70:
		a.add(RiskFactor{"low_attendance", SeverityHigh, att, "Attendance is below 70%"},
			"Improve attendance immediately")
	case att < 80:
		a.add(RiskFactor{"attendance", SeverityMedium, att, "Attendance is below 80%"},
			"Maintain attendance above 80%")
	}
}

func (a *RiskAnalysis) add(f RiskFactor, recommendation string) {
	a.Factors = append(a.Factors, f)
	a.Recommendations = append(a.Recommendations, recommendation)
}

func (a RiskAnalysis) finish() RiskAnalysis {
	if a.Factors == nil {
		a.Factors = []RiskFactor{}
	}
	if len(a.Recommendations) == 0 {
		a.Recommendations = []string{"Keep up the current performance"}
	}
	return a
}
