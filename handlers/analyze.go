package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wingscope/backend/models"
	"github.com/wingscope/backend/session"
	"github.com/wingscope/backend/workers"
)

// AnalyzeHandler submits records to the detection pipeline and reports
// batch progress.
type AnalyzeHandler struct {
	Store    *session.Store
	Analyzer *workers.Analyzer
}

func NewAnalyzeHandler(store *session.Store, analyzer *workers.Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{Store: store, Analyzer: analyzer}
}

// StartAnalysis queues a batch of records for landmark detection. An
// absent or empty ids list selects every new record plus previous
// failures.
func (h *AnalyzeHandler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	ids := req.IDs
	if len(ids) == 0 {
		ids = h.Store.IDsByStatus(models.StatusNew, models.StatusError)
	}

	batch := h.Analyzer.StartBatch(ids)
	writeJSON(w, http.StatusAccepted, batch.Status())
}

func (h *AnalyzeHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	status, ok := h.Analyzer.BatchStatus(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Batch not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}
