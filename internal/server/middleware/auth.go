package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards API routes with a shared static key. Clients may present it
// either as "Authorization: Bearer <key>" or in the X-API-Key header. An
// empty key disables the check entirely, which is the default for local
// paper-trading setups.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, found := requestKey(r)
			switch {
			case !found:
				deny(w, "authentication required")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				deny(w, "bad credentials")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func requestKey(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest), true
		}
	}
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k, true
	}
	return "", false
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
