package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const treeClassName = "DecisionTree"

// DecisionTree is a small CART classifier. Nodes are stored flat, children
// referenced by index; leaves keep the class distribution of their samples.
type DecisionTree struct {
	maxDepth int
	classes  int
	nodes    []TreeNode
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	IsLeaf     bool      `json:"is_leaf"`
	Dist       []float64 `json:"dist,omitempty"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DecisionTree{maxDepth: maxDepth}
}

func (dt *DecisionTree) Fit(features [][]float64, targets [][]float64) (TrainingSummary, error) {
	if err := checkDataset(features, targets); err != nil {
		return TrainingSummary{}, err
	}
	dt.classes = len(targets[0])
	labels := make([]int, len(targets))
	for i, t := range targets {
		labels[i] = argmax(t)
	}
	dt.nodes = dt.build(features, labels, 0)

	correct := 0
	var loss float64
	for i, f := range features {
		probs, err := dt.Predict(f)
		if err != nil {
			return TrainingSummary{}, err
		}
		if argmax(probs) == labels[i] {
			correct++
		}
		loss -= math.Log(math.Max(probs[labels[i]], lossEpsilon))
	}
	return TrainingSummary{
		ModelType:  ModelTypeDecisionTree,
		Epochs:     1,
		Loss:       loss / float64(len(features)),
		Accuracy:   float64(correct) / float64(len(features)),
		DataPoints: len(features),
	}, nil
}

func (dt *DecisionTree) Predict(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	idx := 0
	// Children always follow their parent, so a walk visits at most every node once.
	for range dt.nodes {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return append([]float64(nil), node.Dist...), nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, fmt.Errorf("%w: feature index %d out of range", ErrShapeMismatch, node.FeatureIdx)
		}
		next := node.RightChild
		if features[node.FeatureIdx] <= node.Threshold {
			next = node.LeftChild
		}
		if next <= idx || next >= len(dt.nodes) {
			return nil, fmt.Errorf("%w: node %d points to %d", ErrShapeMismatch, idx, next)
		}
		idx = next
	}
	return nil, fmt.Errorf("%w: tree walk did not reach a leaf", ErrShapeMismatch)
}

func (dt *DecisionTree) Artifacts() (*Artifacts, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	topology, err := json.Marshal(Topology{ClassName: treeClassName, Nodes: dt.nodes, Classes: dt.classes})
	if err != nil {
		return nil, err
	}
	return &Artifacts{ModelTopology: topology, WeightSpecs: []WeightSpec{}}, nil
}

func loadDecisionTree(t Topology) (*DecisionTree, error) {
	if len(t.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	if t.Classes <= 0 {
		return nil, fmt.Errorf("%w: tree has %d classes", ErrShapeMismatch, t.Classes)
	}
	for i, node := range t.Nodes {
		if node.IsLeaf {
			if len(node.Dist) != t.Classes {
				return nil, fmt.Errorf("%w: leaf %d has %d probabilities, want %d", ErrShapeMismatch, i, len(node.Dist), t.Classes)
			}
			continue
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(t.Nodes) {
				return nil, fmt.Errorf("%w: node %d has child %d", ErrShapeMismatch, i, child)
			}
		}
	}
	return &DecisionTree{classes: t.Classes, nodes: t.Nodes}, nil
}

func (dt *DecisionTree) build(features [][]float64, labels []int, depth int) []TreeNode {
	leaf := []TreeNode{{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Dist: dt.distribution(labels)}}
	if depth >= dt.maxDepth || isPure(labels) {
		return leaf
	}

	feature, threshold, ok := bestSplit(features, labels)
	if !ok {
		return leaf
	}

	var leftX, rightX [][]float64
	var leftY, rightY []int
	for i, row := range features {
		if row[feature] <= threshold {
			leftX, leftY = append(leftX, row), append(leftY, labels[i])
		} else {
			rightX, rightY = append(rightX, row), append(rightY, labels[i])
		}
	}

	left := dt.build(leftX, leftY, depth+1)
	right := dt.build(rightX, rightY, depth+1)

	nodes := make([]TreeNode, 0, 1+len(left)+len(right))
	nodes = append(nodes, TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(left),
	})
	nodes = append(nodes, offset(left, 1)...)
	nodes = append(nodes, offset(right, 1+len(left))...)
	return nodes
}

// offset shifts child indexes of a subtree placed at position base.
func offset(nodes []TreeNode, base int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += base
			nodes[i].RightChild += base
		}
	}
	return nodes
}

func (dt *DecisionTree) distribution(labels []int) []float64 {
	dist := make([]float64, dt.classes)
	for _, l := range labels {
		dist[l]++
	}
	for i := range dist {
		dist[i] /= float64(len(labels))
	}
	return dist
}

// bestSplit tries midpoints between consecutive distinct values of every
// feature and keeps the lowest weighted Gini impurity.
func bestSplit(features [][]float64, labels []int) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := math.MaxFloat64
	for f := 0; f < len(features[0]); f++ {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][f]
		}
		sort.Float64s(values)
		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			threshold := (values[i] + values[i-1]) / 2
			var left, right []int
			for j, row := range features {
				if row[f] <= threshold {
					left = append(left, labels[j])
				} else {
					right = append(right, labels[j])
				}
			}
			impurity := weightedGini(left, right)
			if impurity < bestImpurity {
				bestFeature, bestThreshold, bestImpurity = f, threshold, impurity
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func weightedGini(left, right []int) float64 {
	total := float64(len(left) + len(right))
	return float64(len(left))/total*gini(left) + float64(len(right))/total*gini(right)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(len(labels))
		impurity -= p * p
	}
	return impurity
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels[1:] {
		if l != labels[0] {
			return false
		}
	}
	return true
}
