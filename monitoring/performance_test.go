package monitoring

import (
	"math"
	"testing"
	"time"

	"mlplayground/ml"
)

func TestTrainingTrackerStats(t *testing.T) {
	tt := NewTrainingTracker(2)
	if stats := tt.Stats(); stats.TotalRuns != 0 || stats.Best != nil {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	tt.Record(ml.TrainingSummary{ModelType: ml.ModelTypeDense, Loss: 0.5, Accuracy: 0.9, DataPoints: 3}, time.Second)
	if stats := tt.Stats(); stats.StdDevAccuracy != 0 || stats.MeanAccuracy != 0.9 {
		t.Fatalf("single run stats: %+v", stats)
	}

	tt.Record(ml.TrainingSummary{ModelType: ml.ModelTypeDense, Loss: 0.2, Accuracy: 0.5, DataPoints: 3}, 3*time.Second)
	tt.Record(ml.TrainingSummary{ModelType: ml.ModelTypeDecisionTree, Loss: 0, Accuracy: 0.7, DataPoints: 3}, time.Second)

	stats := tt.Stats()
	if stats.TotalRuns != 3 || stats.WindowRuns != 2 {
		t.Fatalf("expected 3 total and 2 retained, got %+v", stats)
	}
	if math.Abs(stats.MeanAccuracy-0.6) > 1e-9 || stats.MeanDuration != 2*time.Second {
		t.Fatalf("unexpected means: %+v", stats)
	}
	if stats.Best.Accuracy != 0.9 {
		t.Fatalf("best should survive eviction, got %+v", stats.Best)
	}
	if stats.Last.ModelType != ml.ModelTypeDecisionTree || stats.ByModelType[ml.ModelTypeDense] != 1 {
		t.Fatalf("unexpected window: %+v", stats)
	}
}

func TestTrainingTrackerHistory(t *testing.T) {
	tt := NewTrainingTracker(0)
	for i := 1; i <= 3; i++ {
		tt.Record(ml.TrainingSummary{ModelType: ml.ModelTypeDense, DataPoints: i}, 0)
	}

	recent := tt.History(2)
	if len(recent) != 2 || recent[0].DataPoints != 3 || recent[1].DataPoints != 2 {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	if all := tt.History(0); len(all) != 3 {
		t.Fatalf("expected all runs, got %d", len(all))
	}

	tt.Clear()
	if stats := tt.Stats(); stats.TotalRuns != 0 || len(tt.History(0)) != 0 {
		t.Fatalf("expected cleared tracker, got %+v", stats)
	}
}
