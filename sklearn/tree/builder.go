package tree

import (
	"math"
	"math/rand/v2"
	"sort"
)

// builder grows a tree depth first. It owns column copies of X so the
// split search can sort row indices by feature value cheaply.
type builder struct {
	dt          *DecisionTreeClassifier
	columns     [][]float64
	y           []int
	w           []float64
	nClasses    int
	maxFeatures int
	rng         *rand.Rand

	nodes       []Node
	importances []float64
	depth       int
	leaves      int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *builder) build(rows []int, depth int) int {
	counts, total := b.classWeights(rows)
	impurity := b.impurity(counts, total)

	value := make([]float64, b.nClasses)
	for k, c := range counts {
		value[k] = c / total
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:          -1,
		Left:             -1,
		Right:            -1,
		Value:            value,
		Impurity:         impurity,
		NSamples:         len(rows),
		WeightedNSamples: total,
	})

	if b.isLeaf(rows, depth, impurity) {
		return b.leaf(depth)
	}
	best, ok := b.bestSplit(rows, counts, total, impurity)
	if !ok {
		return b.leaf(depth)
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := b.columns[best.feature]
	for _, i := range rows {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[best.feature] += best.gain * total

	leftID := b.build(left, depth+1)
	rightID := b.build(right, depth+1)
	node := &b.nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = leftID
	node.Right = rightID
	return id
}

func (b *builder) leaf(depth int) int {
	b.leaves++
	if depth > b.depth {
		b.depth = depth
	}
	return len(b.nodes) - 1
}

func (b *builder) isLeaf(rows []int, depth int, impurity float64) bool {
	dt := b.dt
	switch {
	case dt.maxDepth >= 0 && depth >= dt.maxDepth:
		return true
	case len(rows) < dt.minSamplesSplit:
		return true
	case len(rows) < 2*dt.minSamplesLeaf:
		return true
	case impurity <= impurityTolerance:
		return true
	}
	return false
}

func (b *builder) classWeights(rows []int) ([]float64, float64) {
	counts := make([]float64, b.nClasses)
	total := 0.0
	for _, i := range rows {
		counts[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return counts, total
}

func (b *builder) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	if b.dt.criterion == CriterionEntropy {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

// bestSplit evaluates at least maxFeatures randomly ordered features and
// keeps going past that budget only while no valid split has been found.
// The gain is the weighted impurity decrease relative to the node weight.
func (b *builder) bestSplit(rows []int, counts []float64, total, impurity float64) (split, bool) {
	nFeatures := len(b.columns)
	features := make([]int, nFeatures)
	for f := range features {
		features[f] = f
	}
	if b.maxFeatures < nFeatures {
		b.rng.Shuffle(nFeatures, func(i, j int) {
			features[i], features[j] = features[j], features[i]
		})
	}

	minLeaf := b.dt.minSamplesLeaf
	sorted := make([]int, len(rows))
	leftCounts := make([]float64, b.nClasses)
	rightCounts := make([]float64, b.nClasses)

	best := split{gain: math.Inf(-1)}
	found := false
	for visited, f := range features {
		if visited >= b.maxFeatures && found {
			break
		}
		col := b.columns[f]
		copy(sorted, rows)
		sort.SliceStable(sorted, func(a, c int) bool {
			return col[sorted[a]] < col[sorted[c]]
		})
		if col[sorted[0]] == col[sorted[len(sorted)-1]] {
			continue
		}

		for k := range leftCounts {
			leftCounts[k] = 0
		}
		leftWeight := 0.0
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			leftCounts[b.y[i]] += b.w[i]
			leftWeight += b.w[i]

			lo, hi := col[i], col[sorted[pos+1]]
			if lo == hi {
				continue
			}
			nLeft := pos + 1
			if nLeft < minLeaf || len(sorted)-nLeft < minLeaf {
				continue
			}
			rightWeight := total - leftWeight
			if leftWeight <= 0 || rightWeight <= 0 {
				continue
			}
			for k := range rightCounts {
				rightCounts[k] = counts[k] - leftCounts[k]
			}
			child := (leftWeight*b.impurity(leftCounts, leftWeight) +
				rightWeight*b.impurity(rightCounts, rightWeight)) / total
			gain := impurity - child
			if gain > best.gain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	if found && best.gain < 0 {
		best.gain = 0
	}
	return best, found
}
