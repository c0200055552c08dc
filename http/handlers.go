package http

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"mlplayground/config"
	"mlplayground/db"
	"mlplayground/ml"
	"mlplayground/monitoring"
	"mlplayground/pipeline"
	"mlplayground/recommend"
)

const defaultModelCacheSize = 32

// Deps are the collaborators the handlers share. Metrics and Worker may be
// nil; the routes that need a nil collaborator answer 503.
type Deps struct {
	Encoder *ml.Encoder
	Cleaner *pipeline.RecordCleaner
	Worker  *recommend.Worker
	Models  *ModelCache
	Tracker *monitoring.TrainingTracker
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// API serves the JSON routes.
type API struct {
	Deps
	opts      ml.DenseOptions
	modelType string

	reuseBounds atomic.Bool
}

func NewAPI(cfg config.ML, deps Deps) *API {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Encoder == nil {
		deps.Encoder = ml.DefaultEncoder()
	}
	if deps.Cleaner == nil {
		deps.Cleaner = pipeline.NewRecordCleaner(deps.Encoder, deps.Logger)
	}
	if deps.Tracker == nil {
		deps.Tracker = monitoring.NewTrainingTracker(0)
	}
	if deps.Models == nil {
		size := cfg.ModelCacheSize
		if size <= 0 {
			size = defaultModelCacheSize
		}
		// Only fails for a non-positive size.
		deps.Models, _ = NewModelCache(size, deps.Metrics)
	}
	a := &API{
		Deps:      deps,
		modelType: cfg.ModelType,
		opts: ml.DenseOptions{
			HiddenUnits:  cfg.HiddenUnits,
			Epochs:       cfg.Epochs,
			LearningRate: cfg.LearningRate,
			Seed:         cfg.Seed,
			MaxDepth:     cfg.MaxDepth,
		},
	}
	a.reuseBounds.Store(cfg.ReuseTrainingBounds)
	return a
}

// SetReuseTrainingBounds switches predict between normalizing a record on its
// own and normalizing it with the bounds saved at training time.
func (a *API) SetReuseTrainingBounds(on bool) {
	a.reuseBounds.Store(on)
}

func (a *API) Register(mux *http.ServeMux, wrap Middleware) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, wrap(h))
	}
	handle("GET /api/health", a.handleHealth)
	handle("POST /api/modulo_01/exemplo_00/train_model", a.handleTrainModel)
	handle("POST /api/modulo_01/exemplo_00/predict", a.handlePredict)
	handle("POST /api/encode", a.handleEncode)
	handle("GET /api/training/log", a.handleTrainingLog)
	handle("GET /api/training/stats", a.handleTrainingStats)
	handle("GET /api/predictions", a.handlePredictions)
	handle("GET /api/pipeline/stats", a.handlePipelineStats)
	handle("POST /api/recommend/train", a.handleRecommendTrain)
	handle("POST /api/recommend/run", a.handleRecommendRun)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type encodeRequest struct {
	Pessoas []Pessoa `json:"pessoas" validate:"dive"`
}

// handleEncode exposes the batch encoder for debugging. Records go through
// the cleaner first so the output matches what training would see.
func (a *API) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	records, issues := a.clean(req.Pessoas)
	vectors := a.Encoder.Encode(records)
	respondJSON(w, http.StatusOK, map[string]any{
		"features": vectors,
		"bounds":   a.Encoder.Fit(records),
		"issues":   issues,
	})
}

func (a *API) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	logs, err := db.LoadTrainingLog()
	if errors.Is(err, db.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		a.Logger.Error("load training log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (a *API) handleTrainingStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"stats":  a.Tracker.Stats(),
		"recent": a.Tracker.History(10),
	})
}

func (a *API) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 0 {
			writeError(w, http.StatusBadRequest, badRequest("limit must be a non-negative integer"))
			return
		}
		limit = l
	}

	predictions, err := db.LoadPredictions(limit)
	if errors.Is(err, db.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		a.Logger.Error("load predictions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, predictions)
}

func (a *API) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"stats":  a.Cleaner.GetStats(),
		"issues": a.Cleaner.GetIssues(20),
	})
}
