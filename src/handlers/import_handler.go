package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/username/spendsync/src/config"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/models"
	"github.com/username/spendsync/src/security/validation"
	"github.com/username/spendsync/src/sync"
)

// ImportHandler feeds the durable CSV import queue.
type ImportHandler struct {
	engine *sync.Engine
}

func NewImportHandler(engine *sync.Engine) *ImportHandler {
	return &ImportHandler{engine: engine}
}

func (h *ImportHandler) QueueImportHandler(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxImportSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err)
		sendJSONError(w, "Failed to parse upload, or file too large", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		sendJSONError(w, "Failed to retrieve file. Ensure the 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, config.Cfg.MaxImportSizeBytes+1))
	if err != nil {
		ctxLogger.Error("Failed to read uploaded file", "error", err)
		sendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	job, err := h.engine.QueueImport(r.Context(), fileHeader.Filename, payload, config.Cfg.MaxImportSizeBytes)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			ctxLogger.Warn("Import payload rejected", "filename", fileHeader.Filename, "error", err)
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Failed to queue import", "filename", fileHeader.Filename, "error", err)
		sendJSONError(w, "Failed to queue import", http.StatusInternalServerError)
		return
	}

	// Queued is the contract; the upload itself is at-least-once and may
	// complete on a later drain.
	writeJSON(w, http.StatusAccepted, job)
}

func (h *ImportHandler) ListImportsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.engine.PendingImports()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list pending imports", "error", err)
		sendJSONError(w, "Failed to list pending imports", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.PendingImport{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
