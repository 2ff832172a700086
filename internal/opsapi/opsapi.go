// Package opsapi is the small HTTP surface operators use alongside the six
// domain sockets: health/metrics for monitoring, admin endpoints gated by
// internal/opsauth, and a debug websocket tap. It never touches the
// controller/pilot/inference/bird-risk wire protocol.
package opsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/airfield-guard/internal/opsauth"
)

// State is a snapshot of the live system for GET /admin/state. Fields are
// filled in by the Supervisor-level function passed as Config.StateFunc;
// opsapi itself holds no domain state.
type State struct {
	ConnectedControllers int            `json:"connected_controllers"`
	ConnectedPilots       int            `json:"connected_pilots"`
	CameraADemand         bool           `json:"camera_a_demand"`
	CameraBDemand         bool           `json:"camera_b_demand"`
	AreaNames             map[int]string `json:"area_names"`
}

// Server wires the ops HTTP surface. Reload and StateFunc are supplied by
// the caller (internal/lifecycle) since opsapi has no reference to the
// supervisor's internals by design.
type Server struct {
	router    chi.Router
	auth      *opsauth.Manager
	blacklist *opsauth.Blacklist
	limiter   *opsauth.LoginLimiter

	operatorPasswordHash string
	reload               func() error
	stateFunc            func() State
	debugTap             *DebugTap
}

// Config bundles the callbacks and credentials a Server needs. Reload is
// invoked for POST /admin/reload (re-reads the area table/calibration file
// without a process restart). StateFunc backs GET /admin/state.
type Config struct {
	Auth                 *opsauth.Manager
	Blacklist             *opsauth.Blacklist
	Limiter               *opsauth.LoginLimiter
	OperatorPasswordHash  string
	Reload                func() error
	StateFunc             func() State
}

func New(cfg Config) *Server {
	s := &Server{
		auth:                 cfg.Auth,
		blacklist:            cfg.Blacklist,
		limiter:              cfg.Limiter,
		operatorPasswordHash: cfg.OperatorPasswordHash,
		reload:               cfg.Reload,
		stateFunc:            cfg.StateFunc,
		debugTap:             NewDebugTap(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Tap returns the debug websocket tap so the caller can feed it every
// fan-out broadcast (see internal/fanout.Hub.SetMirror-style wiring).
func (s *Server) Tap() *DebugTap { return s.debugTap }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/admin/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/admin/reload", s.handleReload)
		r.Get("/admin/state", s.handleState)
	})

	r.Get("/ws/debug", s.debugTap.ServeWS)

	return r
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Allow(r.Context(), r.RemoteAddr); err != nil {
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ok, err := opsauth.CheckPassword(req.Password, s.operatorPasswordHash)
	if err != nil || !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, _, err := s.auth.IssueSessionToken()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := s.auth.Validate(tokenString)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		revoked, err := s.blacklist.IsRevoked(r.Context(), claims.ID)
		if err != nil || revoked {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.stateFunc())
}
