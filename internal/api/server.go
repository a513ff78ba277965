// Package api exposes the healing engine over HTTP and WebSocket.
// Simple, efficient implementation focused on essential functionality.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/healing"
	"github.com/takeshi-yoshida/Naoru/internal/learning"
	"github.com/takeshi-yoshida/Naoru/internal/monitoring"
)

// Config defines API server configuration.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	ListenAddr   string        `yaml:"listen_addr"`
	AllowOrigins []string      `yaml:"allow_origins"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Second
	}
}

// Response is the API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// Server provides the HTTP API and the event stream.
type Server struct {
	logger       *zap.Logger
	config       Config
	router       *mux.Router
	server       *http.Server
	orchestrator *healing.Orchestrator
	learner      *learning.System
	metrics      *monitoring.Metrics
	cache        *bigcache.BigCache
	upgrader     websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	// Recommendation responses are cached per query context; the key set
	// lets invalidation clear every variant.
	recKeysMu sync.Mutex
	recKeys   map[string]struct{}
}

// NewServer creates a new API server.
func NewServer(logger *zap.Logger, config Config, orchestrator *healing.Orchestrator, learner *learning.System, metrics *monitoring.Metrics) (*Server, error) {
	config.ApplyDefaults()

	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(config.CacheTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	s := &Server{
		logger:       logger,
		config:       config,
		router:       mux.NewRouter(),
		orchestrator: orchestrator,
		learner:      learner,
		metrics:      metrics,
		cache:        cache,
		clients:      make(map[*websocket.Conn]bool),
		recKeys:      make(map[string]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(config.AllowOrigins) == 0 {
					return false
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return false
				}
				for _, allowed := range config.AllowOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/failures", s.handleFailure).Methods("POST")
	v1.HandleFunc("/experiences", s.handleRecordExperience).Methods("POST")
	v1.HandleFunc("/recommendations", s.handleRecommendations).Methods("GET")
	v1.HandleFunc("/report", s.handleReport).Methods("GET")
	v1.HandleFunc("/health", s.handleHealth).Methods("GET")
	v1.HandleFunc("/events", s.handleEvents).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Start begins serving API requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", zap.String("listen_addr", s.config.ListenAddr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the server and closes the event stream connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	s.cache.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// failureRequest is the POST /failures body.
type failureRequest struct {
	FailureType        string             `json:"failure_type"`
	Severity           float64            `json:"severity"`
	AffectedComponents []string           `json:"affected_components"`
	Metrics            map[string]float64 `json:"metrics"`
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	var req failureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FailureType == "" {
		s.writeError(w, http.StatusBadRequest, "failure_type is required")
		return
	}
	failureType := healing.ParseFailureType(req.FailureType)
	if req.Severity < 0 || req.Severity > 1 {
		s.writeError(w, http.StatusBadRequest, "severity must be in [0, 1]")
		return
	}

	event := healing.NewFailureEvent(failureType, req.Severity, req.AffectedComponents, req.Metrics)
	summary := s.orchestrator.HandleFailure(r.Context(), event)

	s.invalidateCaches()
	s.broadcastEvent("failure_handled", summary)
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRecordExperience(w http.ResponseWriter, r *http.Request) {
	if s.learner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "learning system disabled")
		return
	}

	var exp learning.Experience
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if exp.ExperienceType == "" || exp.ActionTaken == "" {
		s.writeError(w, http.StatusBadRequest, "experience_type and action_taken are required")
		return
	}

	result := s.learner.RecordExperience(r.Context(), &exp)
	s.invalidateCaches()
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.learner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "learning system disabled")
		return
	}

	recCtx := make(map[string]interface{})
	params := url.Values{}
	for _, name := range []string{"experience_type", "failure_type"} {
		if v := r.URL.Query().Get(name); v != "" {
			recCtx[name] = v
			params.Set(name, v)
		}
	}
	key := "recommendations"
	if len(params) > 0 {
		key += "?" + params.Encode()
	}

	if cached, err := s.cache.Get(key); err == nil {
		s.writeCached(w, cached)
		return
	}

	recs := s.learner.Recommendations(recCtx)
	s.recKeysMu.Lock()
	s.recKeys[key] = struct{}{}
	s.recKeysMu.Unlock()
	s.writeAndCache(w, key, recs)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if cached, err := s.cache.Get("report"); err == nil {
		s.writeCached(w, cached)
		return
	}

	report := map[string]interface{}{
		"healing": s.orchestrator.GenerateHealthReport(),
	}
	if s.learner != nil {
		report["learning"] = s.learner.GenerateReport()
	}
	s.writeAndCache(w, "report", report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": s.orchestrator.GenerateHealthReport().Status,
	})
}

// handleEvents upgrades to WebSocket and streams handling summaries.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	s.logger.Debug("Event stream client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Reader loop only drains control frames; the stream is one-way.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// eventMessage is one event stream frame.
type eventMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func (s *Server) broadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(eventMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) invalidateCaches() {
	s.cache.Delete("report")

	s.recKeysMu.Lock()
	for key := range s.recKeys {
		s.cache.Delete(key)
	}
	s.recKeys = make(map[string]struct{})
	s.recKeysMu.Unlock()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: status < http.StatusBadRequest,
		Data:    data,
		Time:    time.Now(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   message,
		Time:    time.Now(),
	})
}

// writeAndCache serializes the envelope once so cache hits replay the
// exact bytes.
func (s *Server) writeAndCache(w http.ResponseWriter, key string, data interface{}) {
	payload, err := json.Marshal(Response{
		Success: true,
		Data:    data,
		Time:    time.Now(),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	s.cache.Set(key, payload)
	s.writeCached(w, payload)
}

func (s *Server) writeCached(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
