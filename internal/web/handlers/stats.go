package handlers

import (
	"log"
	"net/http"

	"github.com/centrominero/labvision/internal/recognizer"
)

// StatsHandler handles the storage statistics endpoint.
type StatsHandler struct {
	service *recognizer.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *recognizer.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

// Get reports the training-data breakdown and the loaded template count.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		log.Printf("stats failed: %v", err)
		respondError(w, http.StatusInternalServerError, "stats collection failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
