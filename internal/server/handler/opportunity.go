package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbot/internal/detect"
	"github.com/alanyoungcy/arbot/internal/domain"
)

// OpportunityHandler serves live and historical arbitrage opportunities.
type OpportunityHandler struct {
	detector *detect.Detector
	store    domain.OpportunityStore // optional history
	cache    domain.OpportunityCache // optional live lookup
	logger   *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. store and cache may
// be nil; the corresponding endpoints then degrade gracefully.
func NewOpportunityHandler(d *detect.Detector, store domain.OpportunityStore, cache domain.OpportunityCache, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		detector: d,
		store:    store,
		cache:    cache,
		logger:   logHandler(logger, "opportunity"),
	}
}

// Scan runs an on-demand detection pass over the current books for an
// instrument and returns the ranked opportunities.
// GET /api/opportunities/scan/{instrument}
func (h *OpportunityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	instrument := r.PathValue("instrument")
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "instrument is required")
		return
	}

	opps := h.detector.Scan(instrument)
	writeJSON(w, http.StatusOK, map[string]any{
		"instrument":    instrument,
		"opportunities": opps,
	})
}

// ListRecent returns recently detected opportunities from the history store.
// GET /api/opportunities
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity history is not configured")
		return
	}

	limit := queryLimit(r, 50, 500)
	opps, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("opportunity list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// Get fetches a single live opportunity by ID from the cache. Expired
// entries are indistinguishable from missing ones.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity cache is not configured")
		return
	}

	id := r.PathValue("id")
	opp, err := h.cache.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found or expired")
			return
		}
		h.logger.Error("opportunity get failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}
