// Package monitoring exports Prometheus metrics for the healing engine.
package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config defines the metrics endpoint settings.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`
	Namespace   string `yaml:"namespace"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9090"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.Namespace == "" {
		c.Namespace = "naoru"
	}
}

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	FailuresHandled     *prometheus.CounterVec
	HealingSuccesses    *prometheus.CounterVec
	HealingFailures     *prometheus.CounterVec
	Rewards             prometheus.Histogram
	HealingDuration     *prometheus.HistogramVec
	Epsilon             prometheus.Gauge
	ExperiencesRecorded prometheus.Counter
	PatternsDetected    *prometheus.CounterVec
}

// NewMetrics registers the engine collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "naoru"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FailuresHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_handled_total",
			Help:      "Failures processed by the healing pipeline",
		}, []string{"failure_type"}),
		HealingSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "healing_successes_total",
			Help:      "Successful healing actions",
		}, []string{"action"}),
		HealingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "healing_failures_total",
			Help:      "Failed healing actions",
		}, []string{"action"}),
		Rewards: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Shaped reward per handled failure",
			Buckets:   prometheus.LinearBuckets(-2, 0.5, 9),
		}),
		HealingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "healing_duration_seconds",
			Help:      "Measured duration of healing actions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"action"}),
		Epsilon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exploration_rate",
			Help:      "Current epsilon of the Q-learning policy",
		}),
		ExperiencesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experiences_recorded_total",
			Help:      "Learning experiences recorded",
		}),
		PatternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_detected_total",
			Help:      "Failure patterns mined from the rolling history",
		}, []string{"pattern_type"}),
	}

	registry.MustRegister(
		m.FailuresHandled,
		m.HealingSuccesses,
		m.HealingFailures,
		m.Rewards,
		m.HealingDuration,
		m.Epsilon,
		m.ExperiencesRecorded,
		m.PatternsDetected,
	)
	return m
}

// Handler returns the scrape handler for the engine registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Server serves the metrics endpoint on its own listener.
type Server struct {
	logger *zap.Logger
	config Config
	server *http.Server
}

// NewServer creates a metrics server for the given collectors.
func NewServer(logger *zap.Logger, config Config, metrics *Metrics) *Server {
	config.ApplyDefaults()

	mux := http.NewServeMux()
	mux.Handle(config.MetricsPath, metrics.Handler())

	return &Server{
		logger: logger,
		config: config,
		server: &http.Server{
			Addr:         config.ListenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving scrapes in the background.
func (s *Server) Start() {
	s.logger.Info("Starting metrics server",
		zap.String("listen_addr", s.config.ListenAddr),
		zap.String("path", s.config.MetricsPath),
	)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// Shutdown stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
