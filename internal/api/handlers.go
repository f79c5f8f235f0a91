// Package api exposes the agent's command surface and diagnostics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/agent"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/auth"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

const healthTimeout = 5 * time.Second

// Commander is the part of the agent the control API drives.
type Commander interface {
	ForceEmit(ctx context.Context) agent.Result
	Repair(ctx context.Context) agent.Result
	Status() agent.Status
	Health(ctx context.Context) error
}

// Handler coordinates HTTP requests with the agent.
type Handler struct {
	agent  Commander
	logger *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(cmd Commander, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L().Named("api")
	}
	return &Handler{agent: cmd, logger: logger}
}

// NewRouter returns the full control router: routes behind bearer auth plus
// the unauthenticated /healthz and /metrics.
func NewRouter(h *Handler, authCfg auth.Config) http.Handler {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	r := chi.NewRouter()
	r.Use(auth.NewMiddleware(authCfg, skipper).Wrap)
	r.Use(h.logRequests)
	h.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/force", h.force)
		r.Post("/repair", h.repair)
		r.Get("/status", h.status)
		r.Get("/health", h.health)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
}

// healthz reports liveness of the control server itself.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) force(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeControl) {
		return
	}
	h.writeResult(w, "force", h.agent.ForceEmit(r.Context()))
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeControl) {
		return
	}
	h.writeResult(w, "repair", h.agent.Repair(r.Context()))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead, auth.ScopeControl) {
		return
	}
	writeJSON(w, http.StatusOK, h.agent.Status())
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead, auth.ScopeControl) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.agent.Health(ctx); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, agent.ErrHealthUnsupported) {
			status = http.StatusNotImplemented
		}
		writeJSON(w, status, HealthResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

func (h *Handler) writeResult(w http.ResponseWriter, command string, res agent.Result) {
	status := http.StatusOK
	if !res.OK {
		status = resultStatus(res.Err())
		h.logger.Info("command failed", zap.String("command", command), zap.String("error", res.Error))
	}
	writeJSON(w, status, res)
}

// resultStatus maps a failed cycle to a response code: 409 when nothing could
// be attempted, 502 when delivery itself failed.
func resultStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrDisabled),
		errors.Is(err, domain.ErrConfigMissing),
		errors.Is(err, domain.ErrSignalUnavailable):
		return http.StatusConflict
	case errors.Is(err, agent.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return false
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("control request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
