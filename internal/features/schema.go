// Package features describes the feature sets accepted by the prediction
// engine. It owns the subject-level and semester-level schemas, the presence
// and defaulting rules applied before inference, and the encoding of a
// validated set into the ordered vector a model expects.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"academic-risk/internal/common"
)

// FeatureSet maps a feature name to its numeric value.
type FeatureSet map[string]float64

// Clone returns an independent copy of the set.
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// Has reports whether name was supplied.
func (fs FeatureSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Get returns the value for name, or def when it was not supplied.
func (fs FeatureSet) Get(name string, def float64) float64 {
	if v, ok := fs[name]; ok {
		return v
	}
	return def
}

// Key renders the set deterministically (sorted names) for cache keys and logs.
func (fs FeatureSet) Key() string {
	names := make([]string, 0, len(fs))
	for k := range fs {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s=%v", k, fs[k])
	}
	return b.String()
}

// Field declares one schema entry.
type Field struct {
	Name     string
	Optional bool
	Default  float64 // used only when Optional
	Min      float64
	Max      float64
}

// Schema is an ordered list of fields; the order is the model's input order.
type Schema struct {
	Name   string
	Fields []Field
}

// SubjectSchema is the per-subject feature set (100-point scale outcome).
var SubjectSchema = Schema{
	Name: "subject",
	Fields: []Field{
		{Name: common.FeatureAttendancePercentage, Min: 0, Max: 100},
		{Name: common.FeatureBestOfTwoInternals, Min: 0, Max: 25},
		{Name: common.FeatureAssignmentMarks, Min: 0, Max: 20},
		{Name: common.FeatureBehaviorScore, Min: 0, Max: 10},
	},
}

// SemesterSchema is the per-semester feature set (10-point SGPA outcome).
var SemesterSchema = Schema{
	Name: "semester",
	Fields: []Field{
		{Name: common.FeatureMeanSubjectPrediction, Min: 0, Max: 100},
		{Name: common.FeatureActiveBacklogCount, Optional: true, Default: common.DefaultActiveBacklogs, Min: 0, Max: math.MaxFloat64},
		{Name: common.FeaturePreviousSGPA, Optional: true, Default: common.DefaultPreviousSGPA, Min: 0, Max: 10},
		{Name: common.FeatureAttendanceAverage, Min: 0, Max: 100},
	},
}

// Names returns the field names in model input order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Vector encodes fs in schema order. fs must already be validated.
func (s Schema) Vector(fs FeatureSet) []float64 {
	vec := make([]float64, len(s.Fields))
	for i, f := range s.Fields {
		vec[i] = fs[f.Name]
	}
	return vec
}

// OutOfRange lists the supplied fields whose value falls outside the declared
// inclusive range, or is NaN/Inf. Absent fields are not reported.
func (s Schema) OutOfRange(fs FeatureSet) []string {
	var bad []string
	for _, f := range s.Fields {
		v, ok := fs[f.Name]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < f.Min || v > f.Max {
			bad = append(bad, f.Name)
		}
	}
	return bad
}
