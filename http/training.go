package http

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mlplayground/db"
	"mlplayground/ml"
	"mlplayground/pipeline"
)

// Pessoa is the wire form of a person record.
type Pessoa struct {
	Nome        string  `json:"nome"`
	Idade       float64 `json:"idade"`
	Cor         string  `json:"cor"`
	Localizacao string  `json:"localizacao"`
}

func (p Pessoa) record() ml.Record {
	return ml.Record{ID: p.Nome, Numeric: p.Idade, CategoryA: p.Cor, CategoryB: p.Localizacao}
}

type trainRequest struct {
	Pessoas   []Pessoa `json:"pessoas" validate:"required,min=1,dive"`
	Rotulos   []string `json:"rotulos" validate:"omitempty,dive,oneof=premium medium basic"`
	ModelType string   `json:"model_type" validate:"omitempty,oneof=dense decision_tree"`
}

type predictRequest struct {
	Pessoa Pessoa        `json:"pessoa"`
	Model  *ml.Artifacts `json:"model" validate:"required"`
}

// rejectedError carries the issues that made a batch unusable.
type rejectedError struct {
	issues []pipeline.QualityIssue
}

func (e *rejectedError) Error() string {
	if len(e.issues) == 1 {
		return "record rejected: " + e.issues[0].Message
	}
	return "records rejected by validation"
}

func (e *rejectedError) Unwrap() error { return errBadRequest }

func (a *API) clean(pessoas []Pessoa) ([]ml.Record, []pipeline.QualityIssue) {
	records := make([]ml.Record, len(pessoas))
	for i, p := range pessoas {
		records[i] = p.record()
	}
	cleaned, issues := a.Cleaner.Clean(records)
	if a.Metrics != nil {
		a.Metrics.RecordsRejected.Add(float64(len(records) - len(cleaned)))
	}
	return cleaned, issues
}

// cleanAll fails when any record is rejected; training labels and the single
// predict record are positional, so a partial batch is meaningless.
func (a *API) cleanAll(pessoas []Pessoa) ([]ml.Record, error) {
	records, issues := a.clean(pessoas)
	if rejected := pipeline.Rejections(issues); len(rejected) > 0 {
		return nil, &rejectedError{issues: rejected}
	}
	return records, nil
}

func (a *API) writeFailure(w http.ResponseWriter, err error) {
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"issues": rejected.issues,
		})
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

func (a *API) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFailure(w, err)
		return
	}

	records, err := a.cleanAll(req.Pessoas)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	modelType := req.ModelType
	if modelType == "" {
		modelType = a.modelType
	}
	start := time.Now()
	artifacts, summary, err := ml.Train(a.Encoder, ml.TrainRequest{
		Records:   records,
		Labels:    req.Rotulos,
		ModelType: modelType,
		Options:   a.opts,
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	elapsed := time.Since(start)
	a.Tracker.Record(summary, elapsed)
	a.Logger.Info("model trained",
		zap.String("model_type", summary.ModelType),
		zap.Int("epochs", summary.Epochs),
		zap.Float64("loss", summary.Loss),
		zap.Float64("accuracy", summary.Accuracy),
		zap.Int("data_points", summary.DataPoints),
		zap.Duration("elapsed", elapsed))
	if a.Metrics != nil {
		a.Metrics.ObserveTraining(summary.ModelType, summary.Accuracy)
	}
	a.persistRun(summary)

	respondJSON(w, http.StatusOK, artifacts)
}

func (a *API) persistRun(summary ml.TrainingSummary) {
	err := db.SaveTrainingRun(db.TrainingLog{
		ModelName:  summary.ModelType,
		Loss:       summary.Loss,
		Accuracy:   summary.Accuracy,
		DataPoints: summary.DataPoints,
	})
	switch {
	case errors.Is(err, db.ErrNotInitialized):
		a.Logger.Debug("training run not persisted, no database")
	case err != nil:
		a.Logger.Warn("save training run failed", zap.Error(err))
	}
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFailure(w, err)
		return
	}

	records, err := a.cleanAll([]Pessoa{req.Pessoa})
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	model, err := a.Models.Load(req.Model)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var bounds *ml.Bounds
	if a.reuseBounds.Load() {
		bounds = req.Model.TrainingBounds
	}
	ranked, err := ml.Predict(a.Encoder, model, records[0], bounds)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	top := ranked[0]
	if a.Metrics != nil {
		a.Metrics.Predictions.WithLabelValues(top.Label).Inc()
	}
	err = db.SavePrediction(db.Prediction{Subject: records[0].ID, Label: top.Label, Confidence: top.Probability})
	if err != nil && !errors.Is(err, db.ErrNotInitialized) {
		a.Logger.Warn("save prediction failed", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, ml.FormatRanking(ranked))
}
