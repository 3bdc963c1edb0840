// Package server wires the stores, services, and handlers into one HTTP
// surface.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/mizan/internal/backup"
	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/email"
	"github.com/dukerupert/mizan/internal/evaluation"
	"github.com/dukerupert/mizan/internal/handler"
	"github.com/dukerupert/mizan/internal/identity"
	"github.com/dukerupert/mizan/internal/middleware"
	"github.com/dukerupert/mizan/internal/mutate"
	ws "github.com/dukerupert/mizan/internal/websocket"
)

type Server struct {
	store       *docstore.Store
	identity    *identity.Service
	hub         *ws.Hub
	authH       *handler.AuthHandler
	familyH     *handler.FamilyHandler
	itemH       *handler.ItemHandler
	userH       *handler.UserHandler
	settingsH   *handler.SettingsHandler
	evalH       *handler.EvaluationHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	backupMgr   *backup.Manager
	logger      *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, backupCfg backup.Config, logger *slog.Logger) *Server {
	store := docstore.New(db, logger.With("component", "docstore"))
	idsvc := identity.NewService(db, logger.With("component", "identity"))
	mutator := mutate.NewService(store, idsvc, logger.With("component", "mutate"))
	writer := evaluation.NewWriter(store, logger.With("component", "evaluation"))
	backupMgr := backup.NewManager(backupCfg, db, logger.With("component", "backup"))

	return &Server{
		store:       store,
		identity:    idsvc,
		hub:         ws.NewHub(logger.With("component", "websocket")),
		authH:       handler.NewAuthHandler(idsvc, mutator, emailClient, logger.With("component", "auth")),
		familyH:     handler.NewFamilyHandler(store, mutator, logger.With("component", "family")),
		itemH:       handler.NewItemHandler(store, mutator, logger.With("component", "item")),
		userH:       handler.NewUserHandler(store, mutator, logger.With("component", "user")),
		settingsH:   handler.NewSettingsHandler(store, mutator, logger.With("component", "settings")),
		evalH:       handler.NewEvaluationHandler(store, writer, logger.With("component", "evaluation")),
		backupH:     handler.NewBackupHandler(backupMgr, logger.With("component", "backup")),
		rateLimiter: middleware.NewRateLimiter(),
		backupMgr:   backupMgr,
		logger:      logger,
	}
}

// Identity returns the identity service for cleanup tasks.
func (s *Server) Identity() *identity.Service {
	return s.identity
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager for lifecycle control.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupMgr
}

// Store returns the document store so it can be closed on shutdown.
func (s *Server) Store() *docstore.Store {
	return s.store
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes: credentials and the family list, which enrollment
	// needs before sign-in.
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimited(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/signup", s.rateLimited(s.authH.SignUp))
	outerMux.HandleFunc("POST /api/auth/reset/request", s.rateLimited(s.authH.RequestReset))
	outerMux.HandleFunc("POST /api/auth/reset/confirm", s.rateLimited(s.authH.ResetPassword))
	outerMux.HandleFunc("GET /api/families", s.familyH.List)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Authenticated routes.
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.identity, s.store)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	// Read surface shared by every signed-in viewer. The snapshot and the
	// websocket stream scope themselves by role.
	mux.HandleFunc("GET /api/snapshot", s.evalH.Snapshot)
	mux.HandleFunc("GET /api/items", s.itemH.List)
	mux.HandleFunc("GET /api/settings/period", s.settingsH.GetPeriod)
	mux.HandleFunc("GET /api/settings/controls", s.settingsH.GetControls)
	mux.HandleFunc("POST /api/evaluations", s.evalH.Save)
	mux.HandleFunc("GET /api/scores/{uid}", s.evalH.Score)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.store, s.logger.With("component", "websocket")))

	// Admin surface.
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}
	mux.Handle("POST /api/families", admin(s.familyH.Create))
	mux.Handle("PUT /api/families/{id}", admin(s.familyH.Update))
	mux.Handle("DELETE /api/families/{id}", admin(s.familyH.Delete))

	mux.Handle("POST /api/items", admin(s.itemH.Create))
	mux.Handle("PUT /api/items/{id}", admin(s.itemH.Update))
	mux.Handle("DELETE /api/items/{id}", admin(s.itemH.Delete))

	mux.Handle("GET /api/users", admin(s.userH.List))
	mux.Handle("POST /api/users", admin(s.userH.Create))
	mux.Handle("PUT /api/users/{id}", admin(s.userH.Update))
	mux.Handle("DELETE /api/users/{id}", admin(s.userH.Delete))

	mux.Handle("PUT /api/settings/period", admin(s.settingsH.SetPeriod))
	mux.Handle("PUT /api/settings/controls", admin(s.settingsH.SetControls))
	mux.Handle("GET /api/reports/family/{id}", admin(s.evalH.FamilyReport))

	mux.Handle("GET /api/backup/status", admin(s.backupH.Status))
	mux.Handle("POST /api/backup/run", admin(s.backupH.RunNow))
}
