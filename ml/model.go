package ml

import "errors"

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrUnsupportedModel = errors.New("unsupported model type")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrEmptyDataset     = errors.New("features or labels empty")
)

const (
	ModelTypeDense        = "dense"
	ModelTypeDecisionTree = "decision_tree"
)

// Classifier is trained on feature vectors with one-hot targets and returns
// a probability per class.
type Classifier interface {
	Fit(features [][]float64, targets [][]float64) (TrainingSummary, error)
	Predict(features []float64) ([]float64, error)
	Artifacts() (*Artifacts, error)
}

// EpochLog is reported after each training epoch.
type EpochLog struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

type TrainingSummary struct {
	ModelType  string  `json:"model_type"`
	Epochs     int     `json:"epochs"`
	Loss       float64 `json:"loss"`
	Accuracy   float64 `json:"accuracy"`
	DataPoints int     `json:"data_points"`
}

// NewClassifier builds an untrained classifier for inputs of the given width.
func NewClassifier(modelType string, inputs int, opts DenseOptions) (Classifier, error) {
	switch modelType {
	case "", ModelTypeDense:
		return NewDenseClassifier(inputs, len(Tiers), opts), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(opts.MaxDepth), nil
	default:
		return nil, ErrUnsupportedModel
	}
}

func checkDataset(features [][]float64, targets [][]float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return ErrEmptyDataset
	}
	if len(features) != len(targets) {
		return ErrShapeMismatch
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return ErrShapeMismatch
		}
	}
	classes := len(targets[0])
	for _, row := range targets {
		if len(row) != classes {
			return ErrShapeMismatch
		}
	}
	return nil
}
