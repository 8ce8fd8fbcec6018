package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/spendsync/src/logger"
	"github.com/username/spendsync/src/services"
)

// AnalyticsHandler serves backend aggregations to the UI.
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

func (h *AnalyticsHandler) MonthlyTotalsHandler(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1970 || year > 9999 {
		sendJSONError(w, "Invalid year", http.StatusBadRequest)
		return
	}

	totals, err := h.analytics.MonthlyTotals(r.Context(), year)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to fetch monthly totals", "year", year, "error", err)
		sendJSONError(w, "Failed to fetch monthly totals", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
