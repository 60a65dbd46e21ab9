package ml

import "math"

// RMSE is the root mean squared error of pred against actual.
func RMSE(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var s float64
	for i := range actual {
		d := actual[i] - pred[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(actual)))
}

// R2 is the coefficient of determination. A constant target yields 0.
func R2(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var m float64
	for _, v := range actual {
		m += v
	}
	m /= float64(len(actual))

	var ssRes, ssTot float64
	for i, v := range actual {
		ssRes += (v - pred[i]) * (v - pred[i])
		ssTot += (v - m) * (v - m)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
