package ml

import (
	"strings"

	"academic-risk/internal/common"
	"academic-risk/internal/features"
)

// Kind selects the prediction target.
type Kind string

const (
	KindSubject  Kind = "subject"
	KindSemester Kind = "semester"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindSubject, KindSemester}

// ParseKind accepts a kind name or the model name bound to it.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindSubject), common.SubjectModelName:
		return KindSubject, nil
	case string(KindSemester), common.SGPAModelName, "sgpa":
		return KindSemester, nil
	}
	return "", &InvalidPredictionKindError{Kind: s}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindSubject || k == KindSemester
}

// ModelName is the storage and API name of the model serving k.
func (k Kind) ModelName() string {
	if k == KindSemester {
		return common.SGPAModelName
	}
	return common.SubjectModelName
}

// Schema is the feature schema for k.
func (k Kind) Schema() features.Schema {
	if k == KindSemester {
		return features.SemesterSchema
	}
	return features.SubjectSchema
}

// Target is the label column used when training k.
func (k Kind) Target() string {
	if k == KindSemester {
		return common.TargetSGPA
	}
	return common.TargetFinalMarks
}
