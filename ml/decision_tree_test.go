package ml

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	targets := [][]float64{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}, {0, 0, 1}}

	model := NewDecisionTree(2)
	summary, err := model.Fit(features, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Accuracy != 1 {
		t.Fatalf("expected perfect training accuracy, got %f", summary.Accuracy)
	}
	probs, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if argmax(probs) != 0 || probs[0] != 1 {
		t.Fatalf("expected class 0 with certainty, got %v", probs)
	}
	probs, _ = model.Predict([]float64{0.95, 0.95})
	if argmax(probs) != 2 {
		t.Fatalf("expected class 2, got %v", probs)
	}
}

func TestDecisionTreeOnEncodedPeople(t *testing.T) {
	features, targets := trainingSet(t)
	model := NewDecisionTree(3)
	if _, err := model.Fit(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, f := range features {
		probs, err := model.Predict(f)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if argmax(probs) != i {
			t.Fatalf("record %d predicted as %d", i, argmax(probs))
		}
	}

	artifacts, err := model.Artifacts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := LoadClassifier(artifacts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs, err := loaded.Predict(features[2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if argmax(probs) != 2 {
		t.Fatalf("loaded tree predicted %v", probs)
	}
}

func TestDecisionTreeUntrained(t *testing.T) {
	if _, err := NewDecisionTree(0).Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}

func TestLoadDecisionTreeRejectsMalformedNodes(t *testing.T) {
	leaf := TreeNode{IsLeaf: true, Dist: []float64{1, 0, 0}}
	tests := []struct {
		name    string
		classes int
		nodes   []TreeNode
	}{
		{"self loop", 3, []TreeNode{{LeftChild: 1, RightChild: 1}, {LeftChild: 1, RightChild: 1}}},
		{"back edge", 3, []TreeNode{{LeftChild: 1, RightChild: 2}, {LeftChild: 0, RightChild: 2}, leaf}},
		{"child out of range", 3, []TreeNode{{LeftChild: 1, RightChild: 5}, leaf}},
		{"empty leaf", 3, []TreeNode{{IsLeaf: true}}},
		{"short leaf", 3, []TreeNode{{IsLeaf: true, Dist: []float64{1}}}},
		{"no classes", 0, []TreeNode{leaf}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topology, err := json.Marshal(Topology{ClassName: treeClassName, Nodes: tt.nodes, Classes: tt.classes})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := LoadClassifier(&Artifacts{ModelTopology: topology}); !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestDecisionTreePredictStopsOnCycle(t *testing.T) {
	tree := &DecisionTree{classes: 3, nodes: []TreeNode{
		{LeftChild: 1, RightChild: 1},
		{LeftChild: 1, RightChild: 1},
	}}
	if _, err := tree.Predict([]float64{0}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}
