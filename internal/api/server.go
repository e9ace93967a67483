// Package api provides the HTTP API agents play through.
// Market, land and leaderboard reads are public. Everything an agent does
// requires its API key as a bearer token. Admin endpoints require the
// admin key.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talgya/tycoon/internal/agents"
	"github.com/talgya/tycoon/internal/config"
	"github.com/talgya/tycoon/internal/engine"
	"github.com/talgya/tycoon/internal/game"
	"github.com/talgya/tycoon/internal/persistence"
)

// Server serves the game over HTTP.
type Server struct {
	Svc     *game.Service
	Eng     *engine.Engine
	DB      *persistence.DB
	Cfg     config.ServerConfig
	Metrics http.Handler // Served at /metrics when set.
	Stream  *Hub

	httpServer *http.Server
}

// NewServer wires the HTTP layer to the game service.
func NewServer(svc *game.Service, eng *engine.Engine, cfg config.ServerConfig) *Server {
	return &Server{
		Svc:    svc,
		Eng:    eng,
		DB:     svc.DB,
		Cfg:    cfg,
		Stream: NewHub(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.Cfg.CORSOrigins))

	limiter := NewRateLimiter(s.Cfg.RatePerSec, s.Cfg.RateBurst)

	r.Get("/health", s.handleHealth)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stream", s.Stream.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)

			r.Get("/status", s.handleStatus)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)

			r.Get("/market/prices", s.handlePrices)
			r.Get("/market/prices/{item}", s.handlePrice)
			r.Get("/market/status", s.handleMarketStatus)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/land", s.handleParcels)
			r.Get("/land/{id}", s.handleParcel)
			r.Get("/auctions", s.handleAuctions)

			r.Group(func(r chi.Router) {
				r.Use(s.agentOnly)

				r.Get("/me", s.handleMe)
				r.Get("/events", s.handleEvents)

				r.Post("/land/{id}/purchase", s.handlePurchaseParcel)
				r.Post("/land/{id}/auction", s.handleListParcel)
				r.Post("/auctions/{id}/bid", s.handleBid)

				r.Get("/facilities", s.handleFacilities)
				r.Post("/facilities", s.handleBuild)
				r.Post("/facilities/{id}/upgrade", s.handleUpgrade)
				r.Post("/facilities/{id}/hire", s.handleHire)
				r.Post("/facilities/{id}/fire", s.handleFire)

				r.Post("/market/purchase", s.handlePurchase)
				r.Post("/market/consume", s.handleConsume)

				r.Get("/loans", s.handleLoans)
				r.Post("/loans", s.handleApplyLoan)
				r.Post("/loans/{id}/repay", s.handleRepay)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/status", s.handleAdminStatus)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/tick", s.handleTick)
		})
	})
	return r
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.Cfg.AdminKey != "")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and closes live streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Stream.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// adminOnly requires the admin key. With no key configured the admin
// endpoints are disabled.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Cfg.AdminKey == "" {
			writeError(w, http.StatusForbidden, "forbidden", "admin endpoints disabled (no TYCOON_ADMIN_KEY set)")
			return
		}
		if bearerToken(r) != s.Cfg.AdminKey {
			writeError(w, http.StatusUnauthorized, string(game.CodeUnauthorized), "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

// agentOnly resolves the bearer API key to an agent.
func (s *Server) agentOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := s.Svc.Login(r.Context(), bearerToken(r))
		if err != nil {
			s.fail(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, a)))
	})
}

func agentFrom(r *http.Request) *agents.Agent {
	a, _ := r.Context().Value(ctxKey{}).(*agents.Agent)
	return a
}

// envelope wraps every API response: a success flag plus either the
// payload or an error.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, data any) {
	writeStatus(w, http.StatusOK, data)
}

func writeStatus(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(body)
}

// fail maps a service error onto a response. Internal errors hide their
// cause unless debug is on.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := game.CodeOf(err)
	msg := err.Error()
	var ge *game.Error
	if errors.As(err, &ge) {
		msg = ge.Message
	}
	if code == game.CodeInternal {
		slog.Error("request failed", "error", err)
		if !s.Cfg.Debug {
			msg = "internal error"
		} else {
			msg = err.Error()
		}
	}
	writeError(w, code.HTTPStatus(), string(code), msg)
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, string(game.CodeValidation), "invalid json: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Eng.Status()
	writeJSON(w, map[string]any{
		"name":        "Agent Tycoon",
		"day":         st.Day,
		"date":        engine.SimDate(st.Day, s.Svc.Game.SeasonDays),
		"season":      s.Svc.Sim.Season(),
		"state":       st.State,
		"paused":      st.Paused,
		"day_length":  st.Interval.String(),
		"last_tick":   st.LastTickAt,
		"leaderboard": s.Svc.Sim.Leaders.ComputedAt(),
	})
}
