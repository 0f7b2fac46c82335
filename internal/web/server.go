package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wdchenxyz/agent-rina/internal/bridge"
	"github.com/wdchenxyz/agent-rina/internal/config"
	"github.com/wdchenxyz/agent-rina/internal/storage"
)

// WebState holds web server shared state.
type WebState struct {
	Config    *config.Config
	DB        *storage.Database
	Turns     *bridge.TurnRunner
	Assembler *bridge.Assembler
	Retry     *bridge.Retry

	// One inflight run per thread.
	inflight   map[string]bool
	inflightMu sync.Mutex
}

// StartWebServer creates and starts the web server. It blocks until ctx is
// cancelled or the listener fails.
func StartWebServer(ctx context.Context, cfg *config.Config, db *storage.Database, turns *bridge.TurnRunner, assembler *bridge.Assembler, retry *bridge.Retry) error {
	state := &WebState{
		Config:    cfg,
		DB:        db,
		Turns:     turns,
		Assembler: assembler,
		Retry:     retry,
		inflight:  make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonOK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/status", state.handleAuthStatus)
		r.Post("/password", state.handleSetPassword)
		r.Post("/login", state.handleLogin)
		r.Post("/logout", state.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(state.requireAuth)
		r.Post("/api/chat", state.handleChat)
	})

	addr := fmt.Sprintf("%s:%d", cfg.WebHost, cfg.WebPort)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("[web] server starting on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requireAuth admits requests carrying a valid session cookie or, when
// configured, the static bearer token.
func (s *WebState) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.WebAuthToken != nil && *s.Config.WebAuthToken != "" {
			auth := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token == *s.Config.WebAuthToken {
				next.ServeHTTP(w, r)
				return
			}
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err == nil {
			valid, verr := s.DB.ValidateAuthSession(cookie.Value)
			if verr == nil && valid {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Bootstrap: until a password is set, localhost requests pass.
		_, hasPassword, _ := s.DB.GetAuthPasswordHash()
		if !hasPassword && isLoopbackRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		jsonError(w, "unauthorized", http.StatusUnauthorized)
	})
}

func isLoopbackRequest(r *http.Request) bool {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.Trim(host, "[]")
	return host == "127.0.0.1" || host == "::1"
}

func (s *WebState) acquireInflight(threadID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight[threadID] {
		return false
	}
	s.inflight[threadID] = true
	return true
}

func (s *WebState) releaseInflight(threadID string) {
	s.inflightMu.Lock()
	delete(s.inflight, threadID)
	s.inflightMu.Unlock()
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
