package api

import (
	"fetchguard/internal/orchestrator"
	"fetchguard/internal/ratecontrol"
	"fetchguard/internal/session"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// Handler exposes the orchestrator's cache and session state for operators.
type Handler struct {
	Orch    *orchestrator.Orchestrator
	sweeper *ratecontrol.Throttler

	// RefreshThreshold is reported as expiring_soon on /session.
	RefreshThreshold time.Duration
}

type sessionResponse struct {
	Status       string `json:"status"`
	LoggedIn     bool   `json:"logged_in"`
	UserID       string `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`
	Role         string `json:"role,omitempty"`
	ExpiringSoon bool   `json:"expiring_soon"`
}

func NewHandler(o *orchestrator.Orchestrator, refreshThreshold time.Duration) *Handler {
	return &Handler{
		Orch:             o,
		sweeper:          ratecontrol.NewThrottler(time.Second),
		RefreshThreshold: refreshThreshold,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/cache/stats", h.handleStats)
	mux.HandleFunc("/cache/invalidate", h.handleInvalidate)
	mux.HandleFunc("/cache/cleanup", h.handleCleanup)
	mux.HandleFunc("/session", h.handleSession)
	return mux
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := writeJSON(w, http.StatusOK, h.Orch.Cache().Stats()); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		http.Error(w, "missing pattern", http.StatusBadRequest)
		return
	}
	n := h.Orch.Invalidate(pattern)
	log.WithFields(log.Fields{"pattern": pattern, "removed": n}).Info("cache invalidated by operator")
	if err := writeJSON(w, http.StatusOK, map[string]any{"removed": n}); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// handleCleanup sweeps expired entries at most once per second.
func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var n int
	if !h.sweeper.Throttle(func() { n = h.Orch.Cache().CleanupExpired() }) {
		http.Error(w, "cleanup ran recently", http.StatusTooManyRequests)
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"removed": n}); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// handleSession reports liveness of the held session. The token is never returned.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := sessionResponse{Status: session.LoggedOut.String()}
	if g := h.Orch.Session(); g != nil {
		st := g.CheckAndExpire()
		resp.Status = st.String()
		resp.LoggedIn = st == session.Valid
		if id, ok := g.User(); ok && resp.LoggedIn {
			resp.UserID = id.UserID
			resp.Username = id.Username
			resp.Role = id.Role
			resp.ExpiringSoon = h.RefreshThreshold > 0 && g.IsTokenExpiringSoon(h.RefreshThreshold)
		}
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
