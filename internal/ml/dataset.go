package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// Dataset is a labelled numeric table. Every row has len(Columns) values.
type Dataset struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row keyed by column name; missing columns are stored as 0.
func (d *Dataset) Append(values map[string]float64) {
	row := make([]float64, len(d.Columns))
	for i, c := range d.Columns {
		row[i] = values[c]
	}
	d.Rows = append(d.Rows, row)
}

// Matrix extracts the feature matrix in the given order and the target vector.
func (d *Dataset) Matrix(featureNames []string, target string) ([][]float64, []float64, error) {
	if d.Len() == 0 {
		return nil, nil, &InsufficientDataError{Reason: "dataset is empty"}
	}

	cols := make([]int, len(featureNames))
	for i, name := range featureNames {
		idx := d.ColumnIndex(name)
		if idx < 0 {
			return nil, nil, &InsufficientDataError{Reason: fmt.Sprintf("missing feature column %q", name)}
		}
		cols[i] = idx
	}
	ti := d.ColumnIndex(target)
	if ti < 0 {
		return nil, nil, &InsufficientDataError{Reason: fmt.Sprintf("missing target column %q", target)}
	}

	X := make([][]float64, len(d.Rows))
	y := make([]float64, len(d.Rows))
	for r, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return nil, nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(d.Columns))
		}
		x := make([]float64, len(cols))
		for i, c := range cols {
			x[i] = row[c]
		}
		X[r] = x
		y[r] = row[ti]
	}
	return X, y, nil
}

// split partitions row indices into train and test sets. The permutation is
// driven by seed, so a given (n, ratio, seed) always yields the same split.
// The test share is rounded up, leaving at least one training row.
func split(n int, testRatio float64, seed int64) (train, test []int, err error) {
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		return nil, nil, &InsufficientDataError{Reason: fmt.Sprintf("%d rows cannot be split with test ratio %.2f", n, testRatio)}
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func gather(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
