// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/observability"
	"github.com/markb/chatlite/internal/relay"
	"golang.org/x/crypto/acme/autocert"
)

// Server wires the relay service into an HTTP surface: the WebSocket
// endpoint plus health and stats.
type Server struct {
	router *chi.Mux
	relay  *relay.Service
	tel    *observability.Telemetry
	start  time.Time

	// HTTP servers for graceful shutdown
	httpServer   *http.Server
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

func New(relayService *relay.Service, tel *observability.Telemetry) *Server {
	s := &Server{
		router: chi.NewRouter(),
		relay:  relayService,
		tel:    tel,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based clients
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	if s.tel != nil {
		s.router.Use(observability.HTTPMiddleware(s.tel, "chatlite"))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/logs", s.handleLogs)
	s.router.Get("/realtime/v1/websocket", s.relay.HandleWebSocket)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// statsResponse is the wire shape for GET /stats.
type statsResponse struct {
	UptimeSeconds int64          `json:"uptime_seconds"`
	Relay         relay.HubStats `json:"relay"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
		Relay:         s.relay.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleLogs serves the in-memory log tail for quick inspection.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			n = v
		}
	}
	lines := log.RecentLines(n)
	if lines == nil {
		lines = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"lines": lines})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS serves HTTPS with Let's Encrypt certificates for the
// given domain, with an HTTP listener on httpAddr answering ACME
// challenges and redirecting everything else to HTTPS.
func (s *Server) ListenAndServeTLS(cfg HTTPSConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.autocertMgr = cfg.Manager()

	s.httpRedirect = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.autocertMgr.HTTPHandler(redirectTo(cfg.Domain)),
	}
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Component("server").Error("http redirect listener failed", "error", err.Error())
		}
	}()

	s.httpsServer = &http.Server{
		Addr:      ":443",
		Handler:   s.router,
		TLSConfig: tlsConfig(s.autocertMgr),
	}
	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the HTTP server(s) and then the relay,
// closing every live WebSocket connection.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS server: %w", err))
		}
	}
	if s.httpRedirect != nil {
		if err := s.httpRedirect.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP redirect server: %w", err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}

	s.relay.Shutdown()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
