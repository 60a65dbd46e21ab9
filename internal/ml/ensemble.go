package ml

import "math/rand"

// RandomForest averages bootstrap-trained regression trees.
type RandomForest struct {
	Trees []*RegressionTree `json:"trees"`
}

// fitForest trains nTrees trees on bootstrap resamples drawn from a seeded
// source. It returns the forest and its per-feature importance, averaged over
// trees after normalising each tree's contribution.
func fitForest(X [][]float64, y []float64, nTrees, maxDepth int, seed int64) (*RandomForest, []float64) {
	rng := rand.New(rand.NewSource(seed))
	d := len(X[0])
	n := len(X)

	forest := &RandomForest{Trees: make([]*RegressionTree, 0, nTrees)}
	total := make([]float64, d)
	params := treeParams{maxDepth: maxDepth, minSamplesLeaf: 1}

	for t := 0; t < nTrees; t++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		imp := make([]float64, d)
		forest.Trees = append(forest.Trees, fitTree(X, y, idx, params, imp))

		var sum float64
		for _, v := range imp {
			sum += v
		}
		if sum > 0 {
			for j, v := range imp {
				total[j] += v / sum
			}
		}
	}
	return forest, normalize(total)
}

// Predict is the mean over trees.
func (f *RandomForest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var s float64
	for _, t := range f.Trees {
		s += t.Predict(x)
	}
	return s / float64(len(f.Trees))
}

// Estimates returns each tree's prediction for x.
func (f *RandomForest) Estimates(x []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for i, t := range f.Trees {
		out[i] = t.Predict(x)
	}
	return out
}

// GradientBoosting is a squared-loss boosted tree ensemble.
type GradientBoosting struct {
	Init         float64           `json:"init"`
	LearningRate float64           `json:"learning_rate"`
	Trees        []*RegressionTree `json:"trees"`
}

// fitBoosting fits stages shallow trees to successive residuals.
func fitBoosting(X [][]float64, y []float64, stages, maxDepth int, learningRate float64) (*GradientBoosting, []float64) {
	n := len(X)
	d := len(X[0])
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	gb := &GradientBoosting{Init: mean(y, idx), LearningRate: learningRate}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = gb.Init
	}

	importance := make([]float64, d)
	residual := make([]float64, n)
	params := treeParams{maxDepth: maxDepth, minSamplesLeaf: 1}

	for s := 0; s < stages; s++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(X, residual, idx, params, importance)
		if len(tree.Nodes) == 1 {
			// residuals are constant; further stages add nothing
			break
		}
		gb.Trees = append(gb.Trees, tree)
		for i := range pred {
			pred[i] += learningRate * tree.Predict(X[i])
		}
	}
	return gb, normalize(importance)
}

// Predict evaluates the boosted sum for x.
func (g *GradientBoosting) Predict(x []float64) float64 {
	out := g.Init
	for _, t := range g.Trees {
		out += g.LearningRate * t.Predict(x)
	}
	return out
}
