package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestNotInitialized(t *testing.T) {
	Close()
	if err := SaveTrainingRun(TrainingLog{ModelName: "dense"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := LoadPredictions(1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestTrainingLogRoundTrip(t *testing.T) {
	openTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []TrainingLog{
		{ModelName: "dense", Loss: 0.4, Accuracy: 0.9, DataPoints: 3, TrainedAt: base},
		{ModelName: "decision_tree", Loss: 0, Accuracy: 1, DataPoints: 3, TrainedAt: base.Add(time.Minute)},
	}
	for _, run := range runs {
		if err := SaveTrainingRun(run); err != nil {
			t.Fatalf("SaveTrainingRun: %v", err)
		}
	}
	if err := SaveTrainingRun(TrainingLog{}); err == nil {
		t.Fatal("expected error for missing model name")
	}

	logs, err := LoadTrainingLog()
	if err != nil {
		t.Fatalf("LoadTrainingLog: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(logs))
	}
	if logs[0].ModelName != "decision_tree" || logs[1].Accuracy != 0.9 {
		t.Fatalf("unexpected order or content: %+v", logs)
	}
	if !logs[1].TrainedAt.Equal(base) {
		t.Fatalf("timestamp mismatch: %v", logs[1].TrainedAt)
	}
}

func TestPredictionsLimit(t *testing.T) {
	openTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, label := range []string{"premium", "medium", "basic"} {
		p := Prediction{Subject: "Erick", Label: label, Confidence: 0.5, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := SavePrediction(p); err != nil {
			t.Fatalf("SavePrediction: %v", err)
		}
	}
	if err := SavePrediction(Prediction{Subject: "x"}); err == nil {
		t.Fatal("expected error for missing label")
	}

	latest, err := LoadPredictions(2)
	if err != nil {
		t.Fatalf("LoadPredictions: %v", err)
	}
	if len(latest) != 2 || latest[0].Label != "basic" || latest[1].Label != "medium" {
		t.Fatalf("unexpected predictions: %+v", latest)
	}

	all, err := LoadPredictions(0)
	if err != nil {
		t.Fatalf("LoadPredictions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected all 3 predictions, got %d", len(all))
	}
}
