package churn

import (
	"math"
	"sort"
)

// treeNode is one node of a shallow regression tree. Leaves carry the fitted
// residual value; internal nodes route on feature < threshold.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] < n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// boostedModel is a logistic gradient-boosted ensemble of shallow trees.
type boostedModel struct {
	base       float64 // initial log-odds
	rate       float64
	trees      []*treeNode
	importance []float64 // split gain accumulated per feature
}

// trainBoosted fits rounds of depth-limited regression trees to the logistic
// residuals. Fitting is fully deterministic: splits scan features in order
// and ties keep the earliest candidate.
func trainBoosted(x [][]float64, y []float64, rounds, maxDepth int, rate float64) *boostedModel {
	m := &boostedModel{rate: rate, importance: make([]float64, len(featureNames))}

	var positive float64
	for _, v := range y {
		positive += v
	}
	prior := positive / float64(len(y))
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)
	m.base = math.Log(prior / (1 - prior))

	score := make([]float64, len(y))
	for i := range score {
		score[i] = m.base
	}

	residual := make([]float64, len(y))
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}

	for r := 0; r < rounds; r++ {
		for i := range y {
			residual[i] = y[i] - sigmoid(score[i])
		}
		tree := fitTree(x, residual, idx, maxDepth, m.importance)
		m.trees = append(m.trees, tree)
		for i := range score {
			score[i] += rate * tree.predict(x[i])
		}
	}
	return m
}

// predict returns the churn probability for one feature vector.
func (m *boostedModel) predict(x []float64) float64 {
	score := m.base
	for _, t := range m.trees {
		score += m.rate * t.predict(x)
	}
	return sigmoid(score)
}

// normalizedImportance returns each feature's share of total split gain.
func (m *boostedModel) normalizedImportance() map[string]float64 {
	var total float64
	for _, g := range m.importance {
		total += g
	}
	out := make(map[string]float64, len(featureNames))
	for i, name := range featureNames {
		if total > 0 {
			out[name] = m.importance[i] / total
		} else {
			out[name] = 0
		}
	}
	return out
}

// fitTree grows one regression tree over the rows in idx, splitting greedily
// on squared-error reduction. Gains are accumulated into importance.
func fitTree(x [][]float64, target []float64, idx []int, depth int, importance []float64) *treeNode {
	mean := meanOf(target, idx)
	if depth == 0 || len(idx) < 2 {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, gain := bestSplit(x, target, idx)
	if gain <= 0 {
		return &treeNode{leaf: true, value: mean}
	}
	importance[feature] += gain

	var left, right []int
	for _, i := range idx {
		if x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      fitTree(x, target, left, depth-1, importance),
		right:     fitTree(x, target, right, depth-1, importance),
	}
}

// bestSplit scans every feature and every boundary between distinct sorted
// values, returning the split with the largest squared-error reduction.
func bestSplit(x [][]float64, target []float64, idx []int) (feature int, threshold, gain float64) {
	n := float64(len(idx))
	var total float64
	for _, i := range idx {
		total += target[i]
	}

	order := make([]int, len(idx))
	for f := 0; f < len(x[idx[0]]); f++ {
		copy(order, idx)
		sortByFeature(x, order, f)

		var leftSum float64
		for pos := 1; pos < len(order); pos++ {
			leftSum += target[order[pos-1]]
			prev, cur := x[order[pos-1]][f], x[order[pos]][f]
			if prev == cur {
				continue
			}
			// Gain of splitting here, derived from the variance decomposition:
			// SSE drop = nL*nR/n * (meanL - meanR)^2 simplifies to the form below.
			nl := float64(pos)
			nr := n - nl
			rightSum := total - leftSum
			g := leftSum*leftSum/nl + rightSum*rightSum/nr - total*total/n
			if g > gain {
				feature, threshold, gain = f, (prev+cur)/2, g
			}
		}
	}
	return feature, threshold, gain
}

func sortByFeature(x [][]float64, order []int, f int) {
	sort.SliceStable(order, func(a, b int) bool {
		return x[order[a]][f] < x[order[b]][f]
	})
}

func meanOf(target []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += target[i]
	}
	return sum / float64(len(idx))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
