// Package management exposes the admin API: quota inspection and reset,
// config inspection, and config reload. It listens on its own port and
// every endpoint requires an admin JWT.
package management

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"imgguard/internal/config"
	"imgguard/internal/ratelimit"
)

// API provides runtime management endpoints
type API struct {
	config *config.Management
	logger *slog.Logger
	server *http.Server
	mux    *http.ServeMux
	mu     sync.RWMutex

	// References to managed components
	limiter    *ratelimit.Limiter
	configView func() *config.Config
	reloadFn   func() error

	startTime time.Time
}

// NewAPI creates a new management API
func NewAPI(cfg *config.Management, logger *slog.Logger) *API {
	if cfg == nil {
		cfg = &config.Management{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9090,
		}
	}

	api := &API{
		config:    cfg,
		logger:    logger.With("component", "management-api"),
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}

	api.setupRoutes()

	return api
}

// SetLimiter sets the rate limiter reference
func (api *API) SetLimiter(limiter *ratelimit.Limiter) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.limiter = limiter
}

// SetConfigView sets the function returning the currently active config
func (api *API) SetConfigView(view func() *config.Config) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.configView = view
}

// SetReloadFunc sets the function triggered by POST /management/config/reload
func (api *API) SetReloadFunc(fn func() error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.reloadFn = fn
}

// setupRoutes configures all management endpoints
func (api *API) setupRoutes() {
	const basePath = "/management"

	api.mux.HandleFunc(basePath+"/health", api.handleHealth)
	api.mux.HandleFunc(basePath+"/info", api.handleInfo)

	api.mux.HandleFunc(basePath+"/quota", api.handleQuota)
	api.mux.HandleFunc(basePath+"/quota/reset", api.handleQuotaReset)

	api.mux.HandleFunc(basePath+"/config", api.handleConfig)
	api.mux.HandleFunc(basePath+"/config/reload", api.handleConfigReload)
}

// Start starts the management API server
func (api *API) Start(ctx context.Context) error {
	if !api.config.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", api.config.Host, api.config.Port)
	api.server = &http.Server{
		Addr:    addr,
		Handler: api.authMiddleware(api.mux),
	}

	go func() {
		api.logger.Info("Starting management API", "address", addr)
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			api.logger.Error("Management API error", "error", err)
		}
	}()

	return nil
}

// Stop stops the management API server
func (api *API) Stop(ctx context.Context) error {
	if api.server == nil {
		return nil
	}

	api.logger.Info("Stopping management API")
	return api.server.Shutdown(ctx)
}

// Handler returns the authenticated handler, for tests and embedding.
func (api *API) Handler() http.Handler {
	return api.authMiddleware(api.mux)
}

// authMiddleware requires a valid HMAC-signed admin JWT on every request
func (api *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			api.writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(api.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			api.writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if !hasAdminScope(claims) {
			api.writeError(w, http.StatusForbidden, "Admin scope required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hasAdminScope checks for "admin" in the space-separated scope claim
func hasAdminScope(claims jwt.MapClaims) bool {
	scope, _ := claims["scope"].(string)
	for _, s := range strings.Fields(scope) {
		if s == "admin" {
			return true
		}
	}
	return false
}

// Response types
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

type InfoResponse struct {
	Version   string    `json:"version"`
	StartTime time.Time `json:"startTime"`
	Uptime    string    `json:"uptime"`
	GoVersion string    `json:"goVersion"`
}

type QuotaResponse struct {
	Identifier    string `json:"identifier"`
	Authenticated bool   `json:"authenticated"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	Reset         int64  `json:"reset"`
}

// ConfigResponse is the sanitized view of the running config. Secrets
// and credentials never appear here.
type ConfigResponse struct {
	RateLimit    config.RateLimit  `json:"rateLimit"`
	ImageProxy   config.ImageProxy `json:"imageProxy"`
	StorageType  string            `json:"storageType"`
	FrontendPort int               `json:"frontendPort"`
}

// Handler implementations
func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(api.startTime).String(),
	})
}

func (api *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.writeJSON(w, http.StatusOK, InfoResponse{
		Version:   "1.0.0",
		StartTime: api.startTime,
		Uptime:    time.Since(api.startTime).String(),
		GoVersion: runtime.Version(),
	})
}

func (api *API) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.mu.RLock()
	limiter := api.limiter
	api.mu.RUnlock()
	if limiter == nil {
		api.writeError(w, http.StatusServiceUnavailable, "Rate limiter not available")
		return
	}

	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		api.writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	authenticated, _ := strconv.ParseBool(r.URL.Query().Get("authenticated"))

	decision, err := limiter.Status(r.Context(), identifier, authenticated)
	if err != nil {
		api.logger.Error("Quota status failed", "identifier", identifier, "error", err)
		api.writeError(w, http.StatusServiceUnavailable, "Quota store unavailable")
		return
	}

	api.writeJSON(w, http.StatusOK, QuotaResponse{
		Identifier:    identifier,
		Authenticated: authenticated,
		Limit:         decision.Limit,
		Remaining:     decision.Remaining,
		Reset:         decision.Reset.Unix(),
	})
}

func (api *API) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.mu.RLock()
	limiter := api.limiter
	api.mu.RUnlock()
	if limiter == nil {
		api.writeError(w, http.StatusServiceUnavailable, "Rate limiter not available")
		return
	}

	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		api.writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	if err := limiter.Reset(r.Context(), identifier); err != nil {
		api.logger.Error("Quota reset failed", "identifier", identifier, "error", err)
		api.writeError(w, http.StatusServiceUnavailable, "Quota store unavailable")
		return
	}

	api.logger.Info("Quota reset", "identifier", identifier)
	api.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "reset",
		"identifier": identifier,
	})
}

func (api *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.mu.RLock()
	view := api.configView
	api.mu.RUnlock()
	if view == nil {
		api.writeError(w, http.StatusServiceUnavailable, "Config not available")
		return
	}

	cfg := view()
	api.writeJSON(w, http.StatusOK, ConfigResponse{
		RateLimit:    cfg.Guard.RateLimit,
		ImageProxy:   cfg.Guard.ImageProxy,
		StorageType:  cfg.Guard.Storage.Type,
		FrontendPort: cfg.Guard.Frontend.HTTP.Port,
	})
}

func (api *API) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.mu.RLock()
	reload := api.reloadFn
	api.mu.RUnlock()
	if reload == nil {
		api.writeError(w, http.StatusNotImplemented, "Reload not configured")
		return
	}

	if err := reload(); err != nil {
		api.logger.Error("Config reload failed", "error", err)
		api.writeError(w, http.StatusUnprocessableEntity, "Reload failed: "+err.Error())
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// Helper methods
func (api *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error("Failed to encode response", "error", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
