// Package dataset produces training tables for the score models: seeded
// synthetic cohorts for cold starts and CSV files for offline training.
package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"academic-risk/internal/common"
	"academic-risk/internal/ml"
)

// GenerateSubject builds n labelled subject rows. The same seed always yields
// the same table.
func GenerateSubject(n int, seed int64) *ml.Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &ml.Dataset{Columns: append(ml.KindSubject.Schema().Names(), common.TargetFinalMarks)}

	for i := 0; i < n; i++ {
		att := uniform(rng, 45, 100)
		// engaged students tend to score higher on every component
		engagement := (att - 45) / 55
		internals := clamp(engagement*18+rng.NormFloat64()*4+5, 0, 25)
		assign := clamp(engagement*12+rng.NormFloat64()*3+6, 0, 20)
		behavior := clamp(engagement*5+rng.NormFloat64()*1.5+4, 0, 10)

		marks := 0.35*att + 1.6*internals + 1.2*assign + 1.5*behavior + rng.NormFloat64()*4
		ds.Rows = append(ds.Rows, []float64{
			round1(att), round1(internals), round1(assign), round1(behavior),
			round1(clamp(marks, 0, 100)),
		})
	}
	return ds
}

// GenerateSemester builds n labelled semester rows.
func GenerateSemester(n int, seed int64) *ml.Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &ml.Dataset{Columns: append(ml.KindSemester.Schema().Names(), common.TargetSGPA)}

	for i := 0; i < n; i++ {
		att := uniform(rng, 50, 100)
		meanPred := clamp(30+(att-50)*0.9+rng.NormFloat64()*10, 0, 100)
		backlogs := 0.0
		if meanPred < 60 {
			backlogs = float64(rng.Intn(5))
		} else if rng.Float64() < 0.15 {
			backlogs = 1
		}
		prev := clamp(meanPred/10+rng.NormFloat64()*0.8, 0, 10)

		sgpa := meanPred/10*0.7 + prev*0.3 - 0.4*backlogs + (att-75)*0.02 + rng.NormFloat64()*0.3
		ds.Rows = append(ds.Rows, []float64{
			round1(meanPred), backlogs, round2(prev), round1(att),
			round2(clamp(sgpa, 0, 10)),
		})
	}
	return ds
}

// Synthetic returns a dataset source that generates n rows per kind.
func Synthetic(n int, seed int64) func(ml.Kind) (*ml.Dataset, error) {
	return func(kind ml.Kind) (*ml.Dataset, error) {
		if n <= 0 {
			return nil, &ml.InsufficientDataError{Reason: fmt.Sprintf("cannot generate %d rows", n)}
		}
		switch kind {
		case ml.KindSubject:
			return GenerateSubject(n, seed), nil
		case ml.KindSemester:
			return GenerateSemester(n, seed), nil
		}
		return nil, &ml.InvalidPredictionKindError{Kind: string(kind)}
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
