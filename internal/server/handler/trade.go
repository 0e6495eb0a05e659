package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/ledger"
)

// TradeHandler ingests resolved trade outcomes from the execution
// collaborator and serves recent trade history.
type TradeHandler struct {
	ledger *ledger.Ledger
	store  domain.TradeStore // optional, for history beyond the in-memory window
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. store may be nil, in which case
// history queries are served from the ledger's in-memory window.
func NewTradeHandler(l *ledger.Ledger, store domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{ledger: l, store: store, logger: logHandler(logger, "trade")}
}

// RecordTrade appends a resolved trade outcome to the ledger.
// POST /api/trades
func (h *TradeHandler) RecordTrade(w http.ResponseWriter, r *http.Request) {
	var trade domain.TradeRecord
	if err := json.NewDecoder(r.Body).Decode(&trade); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if trade.StrategyKey == "" {
		writeError(w, http.StatusBadRequest, "strategy_key is required")
		return
	}

	if err := h.ledger.Record(r.Context(), trade); err != nil {
		h.logger.Error("trade record failed",
			slog.String("strategy_key", trade.StrategyKey),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "record failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// ListRecent returns the most recent trades, newest first.
// GET /api/trades
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)

	if h.store != nil {
		trades, err := h.store.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.Error("trade list failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
		return
	}

	trades := h.ledger.Trades()
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
