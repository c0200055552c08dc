package http

import (
	"errors"
	"net/http"

	"mlplayground/recommend"
)

type recommendTrainRequest struct {
	Users    []recommend.User    `json:"users" validate:"required"`
	Products []recommend.Product `json:"products" validate:"required"`
}

type recommendRunRequest struct {
	User recommend.User `json:"user"`
}

var errNoWorker = errors.New("recommendation worker not running")

// handleRecommendTrain queues a scripted training run; progress is streamed
// over the websocket.
func (a *API) handleRecommendTrain(w http.ResponseWriter, r *http.Request) {
	if a.Worker == nil {
		writeError(w, http.StatusServiceUnavailable, errNoWorker)
		return
	}
	var req recommendTrainRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFailure(w, err)
		return
	}

	if err := a.Worker.Train(r.Context(), req.Users, req.Products); err != nil {
		a.writeWorkerError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":   "training",
		"users":    len(req.Users),
		"products": len(req.Products),
	})
}

func (a *API) handleRecommendRun(w http.ResponseWriter, r *http.Request) {
	if a.Worker == nil {
		writeError(w, http.StatusServiceUnavailable, errNoWorker)
		return
	}
	var req recommendRunRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFailure(w, err)
		return
	}

	products, err := a.Worker.Recommend(r.Context(), req.User)
	if err != nil {
		a.writeWorkerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recommend.Recommendation{User: req.User, Recommendations: products})
}

func (a *API) writeWorkerError(w http.ResponseWriter, err error) {
	if errors.Is(err, recommend.ErrWorkerStopped) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	a.writeFailure(w, err)
}
