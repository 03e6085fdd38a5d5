package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/storekit/identity/internal/auth"
	"github.com/storekit/identity/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token into an identity when one is
// presented. It never rejects: a missing or broken token leaves the
// request unauthenticated and the policy layer decides downstream.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.codec == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get(authHeader))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := auth.IdentityFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.codec.Verify(token)
		if err != nil {
			outcome := "malformed"
			if errors.Is(err, auth.ErrTokenExpired) {
				outcome = "expired"
			}
			obs.ObserveTokenVerification(outcome)
			obs.LogRequest(map[string]any{
				"ts":         time.Now().UTC().Format(time.RFC3339Nano),
				"level":      "warn",
				"msg":        "token_rejected",
				"request_id": RequestIDFromContext(r.Context()),
				"reason":     outcome,
			})
			next.ServeHTTP(w, r)
			return
		}
		obs.ObserveTokenVerification("valid")

		id := auth.Identity{
			Principal:   claims.Subject,
			Authorities: claims.Authorities(),
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// RequireAuthority gates a handler on the authenticated identity
// holding at least one of the listed authorities.
func RequireAuthority(authorities ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="identity"`)
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if !id.HasAnyAuthority(authorities...) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "insufficient authority")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}
