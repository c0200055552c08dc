package monitoring

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"mlplayground/ml"
)

const defaultRunHistory = 200

// TrainingTracker keeps the most recent training runs in memory and
// aggregates them. The database holds the durable log.
type TrainingTracker struct {
	mu       sync.RWMutex
	runs     []RunRecord
	capacity int
	total    int
	best     *RunRecord
}

type RunRecord struct {
	ModelType  string        `json:"model_type"`
	Loss       float64       `json:"loss"`
	Accuracy   float64       `json:"accuracy"`
	DataPoints int           `json:"data_points"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

type TrainingStats struct {
	TotalRuns      int            `json:"total_runs"`
	WindowRuns     int            `json:"window_runs"`
	MeanAccuracy   float64        `json:"mean_accuracy"`
	StdDevAccuracy float64        `json:"stddev_accuracy"`
	MeanLoss       float64        `json:"mean_loss"`
	MeanDuration   time.Duration  `json:"mean_duration"`
	ByModelType    map[string]int `json:"by_model_type"`
	Best           *RunRecord     `json:"best,omitempty"`
	Last           *RunRecord     `json:"last,omitempty"`
}

// NewTrainingTracker keeps up to capacity runs; a non-positive capacity uses
// the default.
func NewTrainingTracker(capacity int) *TrainingTracker {
	if capacity <= 0 {
		capacity = defaultRunHistory
	}
	return &TrainingTracker{
		capacity: capacity,
		runs:     make([]RunRecord, 0, capacity),
	}
}

func (tt *TrainingTracker) Record(summary ml.TrainingSummary, elapsed time.Duration) {
	run := RunRecord{
		ModelType:  summary.ModelType,
		Loss:       summary.Loss,
		Accuracy:   summary.Accuracy,
		DataPoints: summary.DataPoints,
		Duration:   elapsed,
		Timestamp:  time.Now().UTC(),
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()

	if len(tt.runs) == tt.capacity {
		copy(tt.runs, tt.runs[1:])
		tt.runs = tt.runs[:len(tt.runs)-1]
	}
	tt.runs = append(tt.runs, run)
	tt.total++

	// Ties go to the lower loss.
	if tt.best == nil || run.Accuracy > tt.best.Accuracy ||
		(run.Accuracy == tt.best.Accuracy && run.Loss < tt.best.Loss) {
		best := run
		tt.best = &best
	}
}

// Stats aggregates the retained window. Best covers every run recorded.
func (tt *TrainingTracker) Stats() TrainingStats {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	stats := TrainingStats{
		TotalRuns:   tt.total,
		WindowRuns:  len(tt.runs),
		ByModelType: make(map[string]int),
	}
	if len(tt.runs) == 0 {
		return stats
	}

	accuracy := make([]float64, len(tt.runs))
	loss := make([]float64, len(tt.runs))
	var elapsed time.Duration
	for i, run := range tt.runs {
		accuracy[i] = run.Accuracy
		loss[i] = run.Loss
		elapsed += run.Duration
		stats.ByModelType[run.ModelType]++
	}
	stats.MeanAccuracy, stats.StdDevAccuracy = stat.MeanStdDev(accuracy, nil)
	if len(tt.runs) == 1 {
		stats.StdDevAccuracy = 0
	}
	stats.MeanLoss = stat.Mean(loss, nil)
	stats.MeanDuration = elapsed / time.Duration(len(tt.runs))

	best := *tt.best
	last := tt.runs[len(tt.runs)-1]
	stats.Best = &best
	stats.Last = &last
	return stats
}

// History returns up to limit runs, newest first. limit <= 0 returns all.
func (tt *TrainingTracker) History(limit int) []RunRecord {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	n := len(tt.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunRecord, n)
	for i := 0; i < n; i++ {
		out[i] = tt.runs[len(tt.runs)-1-i]
	}
	return out
}

func (tt *TrainingTracker) Clear() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	tt.runs = tt.runs[:0]
	tt.total = 0
	tt.best = nil
}
