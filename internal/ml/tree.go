package ml

import "sort"

// treeNode is one node of a flattened regression tree. Leaves have Feature -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// RegressionTree is a CART tree fit on squared error.
type RegressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth       int // 0 means unlimited
	minSamplesLeaf int
}

type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64
}

// fitTree grows a tree on the rows of X selected by idx. Impurity decrease
// per feature is added to importance.
func fitTree(X [][]float64, y []float64, idx []int, p treeParams, importance []float64) *RegressionTree {
	if p.minSamplesLeaf < 1 {
		p.minSamplesLeaf = 1
	}
	t := &RegressionTree{}
	t.grow(X, y, idx, 0, p, importance)
	return t
}

func (t *RegressionTree) grow(X [][]float64, y []float64, idx []int, depth int, p treeParams, importance []float64) int {
	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: mean(y, idx)})

	if (p.maxDepth > 0 && depth >= p.maxDepth) || len(idx) < 2*p.minSamplesLeaf {
		return node
	}

	best, ok := bestSplit(X, y, idx, p.minSamplesLeaf)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	if importance != nil {
		importance[best.feature] += best.gain
	}

	l := t.grow(X, y, left, depth+1, p, importance)
	r := t.grow(X, y, right, depth+1, p, importance)

	t.Nodes[node].Feature = best.feature
	t.Nodes[node].Threshold = best.threshold
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

// bestSplit scans every feature for the threshold with the largest reduction
// in summed squared error.
func bestSplit(X [][]float64, y []float64, idx []int, minLeaf int) (splitCandidate, bool) {
	n := len(idx)
	var sum, sumSq float64
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	parentSSE := sumSq - sum*sum/float64(n)
	if parentSSE <= 1e-12 {
		return splitCandidate{}, false
	}

	best := splitCandidate{gain: 1e-12}
	found := false
	sorted := make([]int, n)

	for f := range X[idx[0]] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		var lSum, lSq float64
		for k := 1; k < n; k++ {
			v := y[sorted[k-1]]
			lSum += v
			lSq += v * v

			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := X[sorted[k-1]][f], X[sorted[k]][f]
			if lo == hi {
				continue
			}

			rSum, rSq := sum-lSum, sumSq-lSq
			lSSE := lSq - lSum*lSum/float64(k)
			rSSE := rSq - rSum*rSum/float64(n-k)
			gain := parentSSE - lSSE - rSSE
			if gain > best.gain {
				best = splitCandidate{feature: f, threshold: (lo + hi) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// Predict walks the tree for a single (already scaled) sample.
func (t *RegressionTree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := 0
	for t.Nodes[n].Feature >= 0 {
		nd := t.Nodes[n]
		if x[nd.Feature] <= nd.Threshold {
			n = nd.Left
		} else {
			n = nd.Right
		}
	}
	return t.Nodes[n].Value
}

func mean(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		if len(v) > 0 {
			for i := range out {
				out[i] = 1 / float64(len(v))
			}
		}
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}
