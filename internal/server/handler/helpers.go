// Package handler contains the HTTP handlers for the arbitrage core API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// writeJSON encodes v and sends it with the given status. A value that
// cannot be marshalled degrades to a generic 500 so the client always gets
// a JSON body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt extracts an integer query parameter, returning def when it is
// missing or unparseable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return def
}

// queryLimit extracts a limit query parameter, clamped to (0, max].
func queryLimit(r *http.Request, def, max int) int {
	limit := queryInt(r, "limit", def)
	if limit <= 0 {
		limit = def
	}
	return min(limit, max)
}

// logHandler tags a logger with the handler name for per-endpoint context.
func logHandler(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("handler", name))
}
