package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/runner"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Service string
	Runner  *runner.Runner
	Metrics *runner.Metrics
	Logger  *logger.Logger

	// Ready reports whether the runner can serve requests. Nil means always.
	Ready func() error
}

// NewRouter builds the HTTP router of serve mode.
func NewRouter(opts RouterOptions) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(opts.Logger))
	router.Use(recoveryMiddleware(opts.Logger))

	router.HandleFunc("/health", healthHandler(opts.Service)).Methods("GET")
	router.HandleFunc("/ready", readyHandler(opts.Service, opts.Ready)).Methods("GET")
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	NewHandler(opts.Runner).RegisterRoutes(apiRouter)

	return router
}

// Middleware

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
					)
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers

func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q}`, service)
	}
}

func readyHandler(service string, ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if ready != nil {
			if err := ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"not_ready","service":%q,"error":%q}`, service, err.Error())
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready","service":%q}`, service)
	}
}
