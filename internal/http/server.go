// Package http serves the JSON REST API.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"kakeibo/internal/ai"
	"kakeibo/internal/auth"
	"kakeibo/internal/cache"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

type Server struct {
	http.Server
	storage     storage.Repository
	ledger      *services.LedgerService
	auth        *auth.Service
	suggester   *ai.Suggester
	rateLimiter *rateLimiter

	// Per-user summary caches, keyed "<userID>:..." and invalidated by
	// prefix on any mutation by that user.
	summaryCache   *cache.LRUCache[MonthSummary]
	breakdownCache *cache.LRUCache[[]CategorySlice]
	seriesCache    *cache.LRUCache[[]MonthPoint]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// Options carries the optional collaborators. Nil fields disable the
// corresponding endpoint or behavior.
type Options struct {
	Suggester *ai.Suggester
}

func NewServer(addr string, st storage.Repository, ledger *services.LedgerService, authSvc *auth.Service, opts Options) *Server {
	router := mux.NewRouter()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		storage:        st,
		ledger:         ledger,
		auth:           authSvc,
		suggester:      opts.Suggester,
		rateLimiter:    newRateLimiter(),
		summaryCache:   cache.NewLRUCache[MonthSummary](200, 5*time.Minute),
		breakdownCache: cache.NewLRUCache[[]CategorySlice](200, 5*time.Minute),
		seriesCache:    cache.NewLRUCache[[]MonthPoint](100, 5*time.Minute),
		cacheManager:   cache.NewManager(),
	}

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.breakdownCache)
	s.cacheManager.Register(s.seriesCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	router.Use(s.withRequestLogging)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.withAuth)

	authed.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	authed.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	authed.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	authed.HandleFunc("/categories/{id:[0-9]+}", s.handleUpdateCategory).Methods(http.MethodPut)
	authed.HandleFunc("/categories/{id:[0-9]+}", s.handleDeleteCategory).Methods(http.MethodDelete)

	authed.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	authed.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	authed.HandleFunc("/transactions/import", s.handleImportTransactions).Methods(http.MethodPost)
	authed.HandleFunc("/transactions/{id:[0-9]+}", s.handleGetTransaction).Methods(http.MethodGet)
	authed.HandleFunc("/transactions/{id:[0-9]+}", s.handleUpdateTransaction).Methods(http.MethodPut)
	authed.HandleFunc("/transactions/{id:[0-9]+}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	authed.HandleFunc("/recurring", s.handleListRecurring).Methods(http.MethodGet)
	authed.HandleFunc("/recurring", s.handleCreateRecurring).Methods(http.MethodPost)
	authed.HandleFunc("/recurring/{id:[0-9]+}", s.handleDeleteRecurring).Methods(http.MethodDelete)

	authed.HandleFunc("/summary/month", s.handleMonthSummary).Methods(http.MethodGet)
	authed.HandleFunc("/summary/categories", s.handleCategoryBreakdown).Methods(http.MethodGet)
	authed.HandleFunc("/summary/series", s.handleMonthlySeries).Methods(http.MethodGet)

	authed.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	authed.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)

	authed.HandleFunc("/suggest-category", s.handleSuggestCategory).Methods(http.MethodPost)

	return s
}

// invalidateUserCaches drops every cached summary for the user. Called
// after any mutation so reads never serve stale aggregates.
func (s *Server) invalidateUserCaches(userID int64) {
	prefix := userCachePrefix(userID)
	s.summaryCache.DeletePrefix(prefix)
	s.breakdownCache.DeletePrefix(prefix)
	s.seriesCache.DeletePrefix(prefix)
}

// Shutdown stops the cleanup goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready means the database answers.
	if _, err := s.storage.GetUserByID(r.Context(), 0); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "database not ready", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
