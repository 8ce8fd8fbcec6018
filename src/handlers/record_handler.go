package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/security/validation"
	"github.com/username/spendsync/src/sync"
)

// RecordHandler exposes the sync engine's record operations. All reads
// and writes hit the local store; reconciliation happens behind them.
type RecordHandler struct {
	engine *sync.Engine
}

func NewRecordHandler(engine *sync.Engine) *RecordHandler {
	return &RecordHandler{engine: engine}
}

func (h *RecordHandler) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.FetchRecords()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list records", "error", err)
		sendJSONError(w, "Failed to list records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *RecordHandler) AddRecordHandler(w http.ResponseWriter, r *http.Request) {
	var input sync.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.engine.AddRecord(input)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to add record", "error", err)
		sendJSONError(w, "Failed to add record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *RecordHandler) UpdateRecordHandler(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")
	var input sync.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.engine.UpdateRecord(r.Context(), localID, input)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to update record", "localID", localID, "error", err)
		sendJSONError(w, "Failed to update record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *RecordHandler) DeleteRecordHandler(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")
	if err := h.engine.DeleteRecord(localID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete record", "localID", localID, "error", err)
		sendJSONError(w, "Failed to delete record", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) DeleteAllRecordsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteAllRecords(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete all records", "error", err)
		sendJSONError(w, "Failed to delete all records", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) TriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.TriggerSync()
	w.WriteHeader(http.StatusAccepted)
}
