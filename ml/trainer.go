package ml

import "fmt"

// TrainRequest is one training run over raw records. Labels, when given,
// name a tier per record; otherwise the records are taken to be the three
// reference people in tier order.
type TrainRequest struct {
	Records   []Record
	Labels    []string
	ModelType string
	Options   DenseOptions
}

// Train encodes the records, fits a classifier and returns its artifacts
// together with the numeric bounds seen during training.
func Train(enc *Encoder, req TrainRequest) (*Artifacts, TrainingSummary, error) {
	if len(req.Records) == 0 {
		return nil, TrainingSummary{}, ErrEmptyDataset
	}

	var (
		targets [][]float64
		err     error
	)
	if len(req.Labels) > 0 {
		if len(req.Labels) != len(req.Records) {
			return nil, TrainingSummary{}, fmt.Errorf("%w: %d labels for %d records", ErrShapeMismatch, len(req.Labels), len(req.Records))
		}
		targets, err = OneHotTargets(req.Labels)
	} else {
		targets, err = DefaultTierTargets(len(req.Records))
	}
	if err != nil {
		return nil, TrainingSummary{}, err
	}

	model, err := NewClassifier(req.ModelType, enc.Width(), req.Options)
	if err != nil {
		return nil, TrainingSummary{}, err
	}
	summary, err := model.Fit(Matrix(enc.Encode(req.Records)), targets)
	if err != nil {
		return nil, summary, err
	}
	artifacts, err := model.Artifacts()
	if err != nil {
		return nil, summary, err
	}
	bounds := enc.Fit(req.Records)
	artifacts.TrainingBounds = &bounds
	return artifacts, summary, nil
}

// Predict ranks the tiers for one record. When bounds is nil the record is
// normalized on its own, which always yields 0 for the numeric feature.
func Predict(enc *Encoder, model Classifier, record Record, bounds *Bounds) ([]Ranked, error) {
	var vectors []FeatureVector
	if bounds != nil {
		vectors = enc.EncodeWithBounds([]Record{record}, *bounds)
	} else {
		vectors = enc.Encode([]Record{record})
	}
	probs, err := model.Predict(vectors[0])
	if err != nil {
		return nil, err
	}
	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: model returned no probabilities", ErrShapeMismatch)
	}
	return Rank(probs), nil
}
