package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbot/internal/ledger"
)

// PerformanceHandler serves aggregated trading performance metrics from the
// ledger.
type PerformanceHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewPerformanceHandler creates a PerformanceHandler.
func NewPerformanceHandler(l *ledger.Ledger, logger *slog.Logger) *PerformanceHandler {
	return &PerformanceHandler{ledger: l, logger: logHandler(logger, "performance")}
}

// GetMetrics returns performance metrics, optionally filtered by strategy
// key and lookback window in days.
// GET /api/performance/metrics?strategy=...&lookback_days=...
func (h *PerformanceHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	strategy := r.URL.Query().Get("strategy")
	lookback := queryInt(r, "lookback_days", 0)

	metrics := h.ledger.Metrics(strategy, lookback)
	writeJSON(w, http.StatusOK, metrics)
}

// GetComparison returns per-strategy metrics side by side.
// GET /api/performance/comparison
func (h *PerformanceHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.StrategyComparison())
}

// GetDailyPnL returns the zero-filled daily profit rollup for the requested
// number of days (default 30).
// GET /api/performance/daily?days=...
func (h *PerformanceHandler) GetDailyPnL(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days <= 0 {
		days = 30
	}
	writeJSON(w, http.StatusOK, h.ledger.DailyPnL(days))
}

// GetReport returns the full performance report: overall metrics, strategy
// comparison and the daily PnL series.
// GET /api/performance/report?strategy=...
func (h *PerformanceHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	strategy := r.URL.Query().Get("strategy")
	writeJSON(w, http.StatusOK, h.ledger.GenerateReport(strategy))
}
