package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbot/internal/book"
	"github.com/alanyoungcy/arbot/internal/domain"
)

// BookHandler ingests order-book updates from venue feed collaborators and
// serves aggregated snapshots.
type BookHandler struct {
	agg    *book.Aggregator
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(agg *book.Aggregator, logger *slog.Logger) *BookHandler {
	return &BookHandler{agg: agg, logger: logHandler(logger, "book")}
}

// IngestBook accepts a single order-book update and applies it to the
// aggregator. Invalid books get a 400, out-of-order updates a 409.
// POST /api/books
func (h *BookHandler) IngestBook(w http.ResponseWriter, r *http.Request) {
	var ob domain.OrderBook
	if err := json.NewDecoder(r.Body).Decode(&ob); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.agg.Update(ob); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidBook):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrStaleBook):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("book ingest failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "ingest failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"venue":      ob.Venue,
		"instrument": ob.Instrument,
	})
}

// GetSnapshot returns the current per-venue books for an instrument,
// excluding venues whose latest book has gone stale.
// GET /api/books/{instrument}
func (h *BookHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "instrument is required")
		return
	}

	snapshot := h.agg.Snapshot(instrument)
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": instrument,
		"venues":     snapshot,
	})
}
