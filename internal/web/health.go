package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chatbridge/internal/metrics"
)

// Status is the snapshot reported by the health endpoint.
type Status struct {
	BotReady   bool  `json:"bot_ready"`
	GuildCount int   `json:"guild_count"`
	LatencyMS  int64 `json:"latency_ms"`
}

// StatusFunc is polled per health request so the report is always live.
type StatusFunc func() Status

// Server exposes the liveness and metrics endpoints.
type Server struct {
	host   string
	port   int
	status StatusFunc
	logger *slog.Logger
	server *http.Server
}

type ServerConfig struct {
	Host   string
	Port   int
	Status StatusFunc
	Logger *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Server{
		host:   cfg.Host,
		port:   cfg.Port,
		status: cfg.Status,
		logger: cfg.Logger,
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", metrics.Collector.Handler())

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("health server started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	st := s.status()

	rw.Header().Set("Content-Type", "application/json")
	if !st.BotReady {
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(rw).Encode(st)
}
