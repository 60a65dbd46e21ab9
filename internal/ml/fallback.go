package ml

import (
	"math"
	"sync"

	"academic-risk/internal/common"
	"academic-risk/internal/features"

	"github.com/shopspring/decimal"
)

// RulePredictor scores feature sets with fixed formulas when no trained
// model is available. It is deterministic and keeps per-kind usage counts.
type RulePredictor struct {
	mu   sync.RWMutex
	uses map[Kind]int64
}

// NewRulePredictor creates a rule-based predictor.
func NewRulePredictor() *RulePredictor {
	return &RulePredictor{
		uses: make(map[Kind]int64),
	}
}

// Version tags results produced by the rules.
func (p *RulePredictor) Version() string { return common.RulesModelVersion }

// Score dispatches to the rule for kind. fs must contain the required fields
// of the kind's schema; absent optional fields take their schema defaults.
func (p *RulePredictor) Score(kind Kind, fs features.FeatureSet) (float64, error) {
	var score float64
	switch kind {
	case KindSubject:
		score = SubjectRuleScore(fs)
	case KindSemester:
		score = SemesterRuleScore(fs)
	default:
		return 0, &InvalidPredictionKindError{Kind: string(kind)}
	}

	p.mu.Lock()
	p.uses[kind]++
	p.mu.Unlock()
	return score, nil
}

// Stats returns how often each kind has been served by rules.
func (p *RulePredictor) Stats() map[Kind]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[Kind]int64, len(p.uses))
	for k, v := range p.uses {
		out[k] = v
	}
	return out
}

// Reset clears usage counters.
func (p *RulePredictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uses = make(map[Kind]int64)
}

// SubjectRuleScore weights the assessment components onto a 100-point scale:
// 0.4*attendance + 2*internals + 2.5*assignments + 2.5*behavior, clamped to
// [0, 100] and rounded to 2 dp.
func SubjectRuleScore(fs features.FeatureSet) float64 {
	score := 0.4*fs[common.FeatureAttendancePercentage] +
		2*fs[common.FeatureBestOfTwoInternals] +
		2.5*fs[common.FeatureAssignmentMarks] +
		2.5*fs[common.FeatureBehaviorScore]
	return RoundScore(clamp(score, 0, 100))
}

// SemesterRuleScore derives SGPA from the mean subject prediction, penalised
// by backlogs and low attendance, blended 70/30 with previous_sgpa (7.0 when
// absent). Result is clamped to [0, 10] and rounded to 2 dp.
func SemesterRuleScore(fs features.FeatureSet) float64 {
	base := fs[common.FeatureMeanSubjectPrediction] / 100 * 10
	base -= 0.5 * fs.Get(common.FeatureActiveBacklogCount, common.DefaultActiveBacklogs)

	att := fs[common.FeatureAttendanceAverage]
	switch {
	case att < 75:
		base -= 0.5
	case att > 90:
		base += 0.2
	}

	base = 0.7*base + 0.3*fs.Get(common.FeaturePreviousSGPA, common.DefaultPreviousSGPA)
	return RoundScore(clamp(base, 0, 10))
}

// RoundScore rounds half away from zero to 2 decimal places.
func RoundScore(v float64) float64 {
	return roundPlaces(v, 2)
}

// RoundConfidence rounds half away from zero to 3 decimal places.
func RoundConfidence(v float64) float64 {
	return roundPlaces(v, 3)
}

func roundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
