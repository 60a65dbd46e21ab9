package features

import (
	"fmt"
	"strings"
)

// MissingFeatureError lists every required feature absent from the input.
type MissingFeatureError struct {
	Schema  string
	Missing []string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing required %s features: [%s]", e.Schema, strings.Join(e.Missing, ", "))
}

// RangeError lists supplied features outside their declared range.
type RangeError struct {
	Schema string
	Fields []string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s features out of range: [%s]", e.Schema, strings.Join(e.Fields, ", "))
}

// Validate checks fs against s. Required fields must be present; optional
// fields that are absent receive their default. Values are never clamped.
// The returned set is a copy containing only schema fields.
func Validate(fs FeatureSet, s Schema) (FeatureSet, error) {
	out := make(FeatureSet, len(s.Fields))
	var missing []string

	for _, f := range s.Fields {
		v, ok := fs[f.Name]
		switch {
		case ok:
			out[f.Name] = v
		case f.Optional:
			out[f.Name] = f.Default
		default:
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingFeatureError{Schema: s.Name, Missing: missing}
	}
	return out, nil
}

// CheckRanges returns a *RangeError when any supplied value is out of range.
func CheckRanges(fs FeatureSet, s Schema) error {
	if bad := s.OutOfRange(fs); len(bad) > 0 {
		return &RangeError{Schema: s.Name, Fields: bad}
	}
	return nil
}
