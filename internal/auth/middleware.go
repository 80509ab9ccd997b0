package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const (
	headerUID      = "X-Authentik-UID"
	headerUsername = "X-Authentik-Username"
	headerEmail    = "X-Authentik-Email"
	headerGroups   = "X-Authentik-Groups"
)

// Middleware trusts the edge authenticator's forwarded headers and stores
// the resulting Identity in the request context. Absence of the UID header
// is a hard 401; the caller's groups are parsed but an unrecognized group
// set simply yields a zero-value Tier, left for downstream RequireTier
// checks to reject with 403.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := r.Header.Get(headerUID)
			if uid == "" {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "missing forwarded identity headers")
				return
			}

			groups := splitGroups(r.Header.Get(headerGroups))
			tier, _ := tierForGroups(groups)

			identity := &Identity{
				UID:      uid,
				Username: r.Header.Get(headerUsername),
				Email:    r.Header.Get(headerEmail),
				Groups:   groups,
				Tier:     tier,
			}

			logger.Debug("authenticated via forwarded headers",
				"uid", identity.UID,
				"username", identity.Username,
				"tier", identity.Tier,
			)

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// splitGroups parses the comma-separated X-Authentik-Groups header value.
func splitGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	groups := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			groups = append(groups, p)
		}
	}
	return groups
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
