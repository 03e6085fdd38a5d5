package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/storekit/identity/internal/auth"
	"github.com/storekit/identity/internal/obs"
)

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authentication and RBAC services.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	rbac       *auth.RBACService
	codec      *auth.Codec
	readyProbe ReadyProbe
	version    string
}

func New(authSvc *auth.Service, rbacSvc *auth.RBACService, codec *auth.Codec, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		rbac:       rbacSvc,
		codec:      codec,
		readyProbe: rp,
		version:    version,
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)

	// authenticated user surface
	user := RequireAuthority("ROLE_USER", "ROLE_ADMIN")
	a.mux.Handle("/v1/users/profile", user(http.HandlerFunc(a.handleProfile)))

	// admin surface
	admin := RequireAuthority("ROLE_ADMIN")
	a.mux.Handle("/v1/roles", admin(http.HandlerFunc(a.handleRoles)))
	a.mux.Handle("/v1/roles/", admin(http.HandlerFunc(a.handleRoleResource)))
	a.mux.Handle("/v1/permissions", admin(http.HandlerFunc(a.handlePermissions)))
	a.mux.Handle("/v1/users/", admin(http.HandlerFunc(a.handleUserResource)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	inner := a.withAuth(a.mux)
	inner = MaxBodyBytes(inner, 1<<20)
	inner = CORS(inner)
	inner = SecurityHeaders(inner)
	inner = LoggingJSON(inner)
	inner = RequestID(inner)
	return obs.Instrument(inner)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "identity-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
