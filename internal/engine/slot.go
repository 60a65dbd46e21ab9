package engine

import (
	"sync/atomic"
	"time"

	"academic-risk/internal/ml"
)

// Availability is either Ready with a model or Unavailable with a reason.
type Availability struct {
	model  ml.ScoreModel
	reason string
	since  time.Time
}

// Ready wraps a usable model.
func Ready(m ml.ScoreModel) *Availability {
	return &Availability{model: m, since: time.Now()}
}

// Unavailable records why no model can be served.
func Unavailable(reason string) *Availability {
	return &Availability{reason: reason, since: time.Now()}
}

// Model returns the model and true when ready.
func (a *Availability) Model() (ml.ScoreModel, bool) {
	if a == nil || a.model == nil {
		return nil, false
	}
	return a.model, true
}

// Reason is empty when ready.
func (a *Availability) Reason() string {
	if a == nil {
		return "not loaded"
	}
	return a.reason
}

// Since is when this state was entered.
func (a *Availability) Since() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.since
}

// modelSlot holds the current model for one kind. Readers never observe a
// partially replaced model: the whole Availability value is swapped.
type modelSlot struct {
	kind  ml.Kind
	state atomic.Pointer[Availability]
}

func newModelSlot(kind ml.Kind) *modelSlot {
	s := &modelSlot{kind: kind}
	s.state.Store(Unavailable("not loaded"))
	return s
}

func (s *modelSlot) load() *Availability { return s.state.Load() }

func (s *modelSlot) set(a *Availability) { s.state.Store(a) }

// compareAndSet stores next only if the slot still holds prev.
func (s *modelSlot) compareAndSet(prev, next *Availability) bool {
	return s.state.CompareAndSwap(prev, next)
}
