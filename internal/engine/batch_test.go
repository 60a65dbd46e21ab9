package engine

import (
	"context"
	"testing"
	"time"

	"academic-risk/internal/common"
	"academic-risk/internal/features"
	"academic-risk/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	metrics := newMockMetrics()
	e := rulesEngine(WithMetrics(metrics))

	items := []BatchItem{
		{EntityID: "A", Features: subjectFeatures()},
		{EntityID: "B", Features: features.FeatureSet{common.FeatureBehaviorScore: 3}},
		{EntityID: "C", Features: semesterFeatures(), Kind: ml.KindSemester},
		{EntityID: "D", Features: subjectFeatures(), Kind: ml.Kind("yearly")},
	}

	results := e.RunBatch(context.Background(), items, ml.KindSubject)
	require.Len(t, results, len(items))

	for i, r := range results {
		assert.Equal(t, items[i].EntityID, r.EntityID)
		if r.Success {
			assert.NotNil(t, r.Prediction)
			assert.Empty(t, r.Error)
		} else {
			assert.Nil(t, r.Prediction)
			assert.NotEmpty(t, r.Error)
		}
	}

	assert.True(t, results[0].Success)
	assert.Equal(t, LevelSafe, results[0].Prediction.RiskLevel)

	assert.False(t, results[1].Success)
	var mfe *features.MissingFeatureError
	assert.ErrorAs(t, results[1].Err, &mfe)

	assert.True(t, results[2].Success)
	assert.Equal(t, 6.3, results[2].Prediction.Score)

	assert.False(t, results[3].Success)
	assert.ErrorIs(t, results[3].Err, ml.ErrInvalidKind)

	assert.Equal(t, []int{4}, metrics.batchSizes)
}

func TestRunBatch_RecoversPanics(t *testing.T) {
	e := rulesEngine(WithObserver(ObserverFunc(func(o Observation) {
		if o.EntityID == "boom" {
			panic("observer exploded")
		}
	})))

	results := e.RunBatch(context.Background(), []BatchItem{
		{EntityID: "ok-1", Features: subjectFeatures()},
		{EntityID: "boom", Features: subjectFeatures()},
		{EntityID: "ok-2", Features: subjectFeatures()},
	}, ml.KindSubject)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Err, ErrItemPanicked)
	assert.True(t, results[2].Success)
}

func TestRunBatch_RangeCheckedItemFailsAlone(t *testing.T) {
	e := New(Config{Strategy: StrategyRules, RangeCheck: true})
	bad := subjectFeatures()
	bad[common.FeatureAttendancePercentage] = 140

	results := e.RunBatch(context.Background(), []BatchItem{
		{EntityID: "good", Features: subjectFeatures()},
		{EntityID: "bad", Features: bad},
	}, ml.KindSubject)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	var re *features.RangeError
	assert.ErrorAs(t, results[1].Err, &re)
}

func TestRunBatch_Empty(t *testing.T) {
	results := rulesEngine().RunBatch(context.Background(), nil, ml.KindSubject)
	assert.Empty(t, results)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := rulesEngine().RunBatch(ctx, []BatchItem{
		{EntityID: "A", Features: subjectFeatures()},
		{EntityID: "B", Features: subjectFeatures()},
	}, ml.KindSubject)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestDispatcher(t *testing.T) {
	pool := NewPool(2, 4)
	defer pool.Stop()
	d := NewDispatcher(rulesEngine(), pool)

	res, err := d.Predict(context.Background(), ml.KindSemester, "S1", semesterFeatures())
	require.NoError(t, err)
	assert.Equal(t, 6.3, res.Score)

	batch, err := d.RunBatch(context.Background(), []BatchItem{
		{EntityID: "A", Features: subjectFeatures()},
	}, ml.KindSubject)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.True(t, batch[0].Success)

	tr, err := d.Retrain(context.Background(), ml.KindSubject, nil)
	assert.ErrorIs(t, err, ml.ErrInsufficientData)
	assert.Empty(t, tr.Version)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Stop()

	err := pool.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_WaitHonoursContext(t *testing.T) {
	pool := NewPool(1, 0)
	defer pool.Stop()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := submitAndWait(ctx, pool, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	pool := NewPool(1, 1)
	defer pool.Stop()

	require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))

	v, err := submitAndWait(context.Background(), pool, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRunBatch_ItemsMatchSinglePredictions(t *testing.T) {
	engines := map[string]*Engine{
		"rules": rulesEngine(),
		"model": trainedEngine(t),
	}
	items := []BatchItem{
		{EntityID: "A", Features: subjectFeatures()},
		{EntityID: "B", Features: features.FeatureSet{
			common.FeatureAttendancePercentage: 0,
			common.FeatureBestOfTwoInternals:   3,
			common.FeatureAssignmentMarks:      2,
			common.FeatureBehaviorScore:        1,
		}},
		{EntityID: "C", Features: semesterFeatures(), Kind: ml.KindSemester},
		{EntityID: "D", Features: features.FeatureSet{
			common.FeatureMeanSubjectPrediction: 45,
			common.FeatureAttendanceAverage:     60,
		}, Kind: ml.KindSemester},
		{EntityID: "E", Features: features.FeatureSet{common.FeatureBehaviorScore: 3}},
	}

	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			results := e.RunBatch(context.Background(), items, ml.KindSubject)
			require.Len(t, results, len(items))

			for i, item := range items {
				kind := ml.KindSubject
				if item.Kind != "" {
					kind = item.Kind
				}
				single, err := e.Predict(context.Background(), kind, item.EntityID, item.Features)
				if err != nil {
					assert.False(t, results[i].Success, item.EntityID)
					continue
				}
				require.True(t, results[i].Success, item.EntityID)
				assert.Equal(t, single, *results[i].Prediction, item.EntityID)
			}
			assert.False(t, results[4].Success)
		})
	}
}
