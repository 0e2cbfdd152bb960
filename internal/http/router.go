package http

import (
	"context"
	"net/http"
	"time"

	"tieredcache/internal/logger"
	"tieredcache/internal/ratelimit"

	"github.com/gorilla/mux"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	handler *Handler
	logger  logger.Service
	server  *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	addr string,
	handler *Handler,
	logger logger.Service,
	rateLimiter ratelimit.Service,
	readTimeout, writeTimeout time.Duration,
) *Server {
	srv := &Server{
		handler: handler,
		logger:  logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(handler, logger, rateLimiter),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
	return srv
}

// NewRouter registers middleware and routes.
// Middleware order matters: logging -> rate limiting -> cors -> recovery.
func NewRouter(handler *Handler, logger logger.Service, rateLimiter ratelimit.Service) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()

	router.Use(loggingMiddleware(logger))
	router.Use(rateLimitingMiddleware(rateLimiter, logger))
	router.Use(corsMiddleware())
	router.Use(recoveryMiddleware(logger))

	router.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/cache").Subrouter()
	api.HandleFunc("", handler.ListEntries).Methods(http.MethodGet)
	api.HandleFunc("", handler.ClearEntries).Methods(http.MethodDelete)
	api.HandleFunc("/purge", handler.PurgeExpired).Methods(http.MethodPost)
	api.HandleFunc("/{key}", handler.GetEntry).Methods(http.MethodGet)
	api.HandleFunc("/{key}", handler.PutEntry).Methods(http.MethodPut)
	api.HandleFunc("/{key}", handler.DeleteEntry).Methods(http.MethodDelete)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.LogInfo(context.Background(), logger.OpServerStart, "Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.LogInfo(ctx, logger.OpServerShutdown, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
