package auth

import (
	"encoding/json"
	"net/http"

	"github.com/wisbric/wopr/pkg/types"
)

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTier returns middleware that rejects requests whose identity's
// tier is lower than min in the diag < remediate < breakglass hierarchy
// (cumulative — RequireTier(TierRemediate) also admits breakglass).
func RequireTier(min types.Tier) func(http.Handler) http.Handler {
	minLevel := min.Level()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondForbidden(w, "authentication required")
				return
			}
			if id.Tier.Level() < minLevel {
				respondForbidden(w, "insufficient tier")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
