package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"tienditabot/internal/metrics"
)

type ServerConfig struct {
	Addr        string
	WebhookPath string
	SandboxPath string
	// MetricsPath is served only when Collector is set.
	MetricsPath string
	// MediaFiles maps /media/{key} to files on disk.
	MediaFiles map[string]string

	WhatsApp  *WhatsApp
	Sandbox   http.Handler
	Collector *metrics.Collector
	Logger    *slog.Logger
}

// Server is the bot's single HTTP listener.
type Server struct {
	cfg     ServerConfig
	handler http.Handler
	logger  *slog.Logger
	server  *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}

	mux := http.NewServeMux()
	if cfg.WhatsApp != nil {
		cfg.WhatsApp.Register(mux, cfg.WebhookPath)
	}
	if cfg.Sandbox != nil && cfg.SandboxPath != "" {
		mux.Handle("POST "+cfg.SandboxPath, cfg.Sandbox)
	}
	mux.HandleFunc("GET /media/{key}", s.handleMedia)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Collector != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Collector.Handler())
	}

	s.handler = recoverMiddleware(logRequests(mux, s.logger), s.logger)
	return s
}

// Handler returns the full handler chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Replies to WhatsApp happen before the webhook is acknowledged.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server starting",
		"addr", s.cfg.Addr, "webhook", s.cfg.WebhookPath, "sandbox", s.cfg.SandboxPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMedia serves the images referenced by template headers.
func (s *Server) handleMedia(rw http.ResponseWriter, r *http.Request) {
	path, ok := s.cfg.MediaFiles[r.PathValue("key")]
	if !ok || path == "" {
		http.Error(rw, "Imagen no encontrada", http.StatusNotFound)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.logger.Warn("media file unavailable", "key", r.PathValue("key"), "path", path, "err", err)
		http.Error(rw, "Imagen no encontrada", http.StatusNotFound)
		return
	}
	rw.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(rw, r, path)
}

// --- Middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

// recoverMiddleware turns a panic in any handler into a plain 500.
func recoverMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", v)
				http.Error(rw, "Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
