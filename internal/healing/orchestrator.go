package healing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/learning"
	"github.com/takeshi-yoshida/Naoru/internal/monitoring"
	"github.com/takeshi-yoshida/Naoru/internal/rl"
)

// Config controls the orchestrator's timing and retraining behavior.
type Config struct {
	ResponseTimeout    time.Duration `yaml:"response_timeout"`
	RetrainingInterval time.Duration `yaml:"retraining_interval"`
	MinRetrainAttempts int           `yaml:"min_retrain_attempts"`
	HistoryLimit       int           `yaml:"history_limit"`

	RL         rl.Config     `yaml:"rl"`
	Patterns   PatternConfig `yaml:"patterns"`
	Thresholds Thresholds    `yaml:"thresholds"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 300 * time.Second
	}
	if c.RetrainingInterval <= 0 {
		c.RetrainingInterval = time.Hour
	}
	if c.MinRetrainAttempts <= 0 {
		c.MinRetrainAttempts = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 1000
	}
	c.RL.ApplyDefaults()
	c.Patterns.ApplyDefaults()
	c.Thresholds.ApplyDefaults()
}

// healingRecord is one completed pipeline run kept for reporting.
type healingRecord struct {
	Event     *FailureEvent
	Response  *HealingResponse
	Result    *HealingResult
	Patterns  []Pattern
	Timestamp time.Time
}

// Orchestrator owns the agent, catalog, executor, pattern detector and
// learning system, and runs the failure -> response -> result -> learning
// pipeline. HandleFailure is the single synchronous entry point; the
// retraining loop runs on its own timer.
type Orchestrator struct {
	logger   *zap.Logger
	config   Config
	agent    *rl.Agent
	catalog  *Catalog
	gen      *ResponseGenerator
	executor Executor
	detector *PatternDetector
	learner  *learning.System
	metrics  *monitoring.Metrics

	mu              sync.RWMutex
	failuresHandled int
	history         []*healingRecord

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the healing pipeline. metrics may be nil.
func NewOrchestrator(logger *zap.Logger, config Config, executor Executor, learner *learning.System, metrics *monitoring.Metrics) *Orchestrator {
	config.ApplyDefaults()

	agent := rl.NewAgent(NumStates, NumActions, config.RL)
	catalog := NewCatalog()

	return &Orchestrator{
		logger:   logger,
		config:   config,
		agent:    agent,
		catalog:  catalog,
		gen:      NewResponseGenerator(agent, catalog, config.Thresholds),
		executor: executor,
		detector: NewPatternDetector(config.Patterns),
		learner:  learner,
		metrics:  metrics,
	}
}

// Agent exposes the policy, mainly for tests and persistence.
func (o *Orchestrator) Agent() *rl.Agent { return o.agent }

// Catalog exposes the strategy catalog.
func (o *Orchestrator) Catalog() *Catalog { return o.catalog }

// Start launches the background retraining and learning maintenance loops.
func (o *Orchestrator) Start() {
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.retrainLoop(runCtx)
	}()

	if o.learner != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.learner.Run(runCtx)
		}()
	}

	o.logger.Info("Self-healing orchestrator started")
}

// Stop cancels the background loops and waits for them within the grace
// period.
func (o *Orchestrator) Stop(grace time.Duration) {
	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		o.logger.Warn("Timeout waiting for background loops to stop")
	}

	o.logger.Info("Self-healing orchestrator stopped")
}

// HandleFailure runs the full pipeline for one failure event and always
// returns a summary: executor errors and timeouts surface as a failed
// healing attempt, never as a propagated error. Concurrent calls are
// independent pipeline runs.
func (o *Orchestrator) HandleFailure(ctx context.Context, event *FailureEvent) *HandlingSummary {
	o.logger.Info("Handling failure",
		zap.String("event_id", event.EventID),
		zap.String("failure_type", event.FailureType.String()),
		zap.Float64("severity", event.Severity),
	)

	patterns := o.detector.Observe(event)

	o.mu.RLock()
	handledSoFar := o.failuresHandled
	o.mu.RUnlock()

	response := o.gen.Generate(event, handledSoFar)
	result := dispatch(ctx, o.logger, o.executor, response, event, o.config.ResponseTimeout)

	// Q-update. next_state equals the originating state: no post-healing
	// re-observation is modeled, making this a contextual bandit.
	state := EncodeState(event.FailureType, event.Severity)
	reward := CalculateReward(result, event.Severity)
	o.agent.Update(state, int(response.Action), reward, state)

	o.catalog.RecordOutcome(event.FailureType, response.Action, result.Success, result.ActualDuration, response.ResourceCost)

	o.recordHistory(event, response, result, patterns)
	o.forwardExperience(ctx, event, response, result, patterns)
	o.observeMetrics(event, response, result, patterns, reward)

	o.logger.Info("Failure handled",
		zap.String("action", response.Action.String()),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.ActualDuration),
		zap.Int("patterns", len(patterns)),
	)

	return &HandlingSummary{
		FailureHandled:     true,
		Action:             response.Action,
		Success:            result.Success,
		Duration:           result.ActualDuration,
		PatternsDetected:   patterns,
		ImprovementMetrics: result.ImprovementMetrics,
		SideEffects:        result.SideEffects,
	}
}

func (o *Orchestrator) recordHistory(event *FailureEvent, response *HealingResponse, result *HealingResult, patterns []Pattern) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.failuresHandled++
	o.history = append(o.history, &healingRecord{
		Event:     event,
		Response:  response,
		Result:    result,
		Patterns:  patterns,
		Timestamp: time.Now(),
	})
	if len(o.history) > o.config.HistoryLimit {
		o.history = o.history[len(o.history)-o.config.HistoryLimit:]
	}
}

func (o *Orchestrator) forwardExperience(ctx context.Context, event *FailureEvent, response *HealingResponse, result *HealingResult, patterns []Pattern) {
	if o.learner == nil {
		return
	}

	improvement := 0.0
	metricsAfter := make(map[string]float64, len(event.Metrics))
	for k, v := range event.Metrics {
		metricsAfter[k] = v
	}
	for k, delta := range result.ImprovementMetrics {
		improvement += delta
		if before, ok := metricsAfter[k]; ok {
			metricsAfter[k] = before * (1 - delta)
		}
	}

	descriptors := make([]learning.PatternDescriptor, 0, len(patterns))
	for _, p := range patterns {
		detail := p.Component
		if p.Type == "recurring_failure" {
			detail = p.FailureType.String()
		}
		descriptors = append(descriptors, learning.PatternDescriptor{
			Type:      p.Type,
			Detail:    detail,
			Frequency: p.Frequency,
		})
	}

	exp := &learning.Experience{
		ExperienceID:   learning.NewExperienceID(),
		ExperienceType: "failure",
		Timestamp:      time.Now(),
		Context: map[string]interface{}{
			"failure_type": event.FailureType.String(),
			"severity":     event.Severity,
			"components":   event.AffectedComponents,
		},
		ActionTaken: response.Action.String(),
		Outcome: map[string]interface{}{
			"success":     result.Success,
			"improvement": improvement,
		},
		MetricsBefore:   event.Metrics,
		MetricsAfter:    metricsAfter,
		LearnedPatterns: descriptors,
		ConfidenceScore: response.SuccessProbability,
	}

	o.learner.RecordExperience(ctx, exp)
	if o.metrics != nil {
		o.metrics.ExperiencesRecorded.Inc()
	}
}

func (o *Orchestrator) observeMetrics(event *FailureEvent, response *HealingResponse, result *HealingResult, patterns []Pattern, reward float64) {
	if o.metrics == nil {
		return
	}
	o.metrics.FailuresHandled.WithLabelValues(event.FailureType.String()).Inc()
	action := response.Action.String()
	if result.Success {
		o.metrics.HealingSuccesses.WithLabelValues(action).Inc()
	} else {
		o.metrics.HealingFailures.WithLabelValues(action).Inc()
	}
	o.metrics.Rewards.Observe(reward)
	o.metrics.HealingDuration.WithLabelValues(action).Observe(result.ActualDuration.Seconds())
	o.metrics.Epsilon.Set(o.agent.Epsilon())
	for _, p := range patterns {
		o.metrics.PatternsDetected.WithLabelValues(p.Type).Inc()
	}
}

// retrainLoop periodically rebuilds shortlists from historical performance
// and decays exploration.
func (o *Orchestrator) retrainLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.RetrainingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RetrainStrategies()
		}
	}
}

// RetrainStrategies recomputes catalog shortlists and decays epsilon. Also
// surfaces any pending learning adaptation signals in the log; applying
// them remains an operator decision.
func (o *Orchestrator) RetrainStrategies() {
	updated := o.catalog.RetrainShortlists(o.config.MinRetrainAttempts)
	for ft, actions := range updated {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = a.String()
		}
		o.logger.Info("Updated healing strategy",
			zap.String("failure_type", ft.String()),
			zap.Strings("shortlist", names),
		)
	}

	o.agent.DecayEpsilon(o.config.RL.EpsilonDecay)
	if o.metrics != nil {
		o.metrics.Epsilon.Set(o.agent.Epsilon())
	}

	if o.learner != nil {
		for _, event := range o.learner.AdaptationEvents() {
			for _, signal := range event.Signals {
				o.logger.Info("Pending adaptation signal",
					zap.String("type", signal.Type),
					zap.String("priority", signal.Priority),
				)
			}
		}
	}
}

// HealthReport summarizes healing performance and learning progress.
type HealthReport struct {
	Timestamp            time.Time                 `json:"timestamp"`
	TotalFailuresHandled int                       `json:"total_failures_handled"`
	RecentFailures       int                       `json:"recent_failures"`
	TotalHealingAttempts int                       `json:"total_healing_attempts"`
	OverallSuccessRate   float64                   `json:"overall_success_rate"`
	StrategyPerformance  map[string]StrategyReport `json:"strategy_performance"`
	QTableCellsVisited   int                       `json:"q_table_cells_visited"`
	QTableSize           int                       `json:"q_table_size"`
	ExplorationRate      float64                   `json:"exploration_rate"`
	ExperiencesCollected int                       `json:"experiences_collected"`
	Status               string                    `json:"system_status"`
}

// GenerateHealthReport builds the current health report.
func (o *Orchestrator) GenerateHealthReport() *HealthReport {
	o.mu.RLock()
	total := o.failuresHandled
	attempts := len(o.history)
	successes := 0
	recent := 0
	cutoff := time.Now().Add(-time.Hour)
	for _, record := range o.history {
		if record.Result.Success {
			successes++
		}
		if record.Timestamp.After(cutoff) {
			recent++
		}
	}
	o.mu.RUnlock()

	successRate := 0.0
	if attempts > 0 {
		successRate = float64(successes) / float64(attempts)
	}

	status := "CRITICAL"
	switch {
	case successRate > 0.8:
		status = "HEALTHY"
	case successRate > 0.5:
		status = "DEGRADED"
	}

	experiences := 0
	if o.learner != nil {
		experiences = o.learner.ExperienceCount()
	}

	return &HealthReport{
		Timestamp:            time.Now(),
		TotalFailuresHandled: total,
		RecentFailures:       recent,
		TotalHealingAttempts: attempts,
		OverallSuccessRate:   successRate,
		StrategyPerformance:  o.catalog.StrategyPerformance(),
		QTableCellsVisited:   o.agent.VisitedCells(),
		QTableSize:           o.agent.TableSize(),
		ExplorationRate:      o.agent.Epsilon(),
		ExperiencesCollected: experiences,
		Status:               status,
	}
}

// EngineSnapshot is the versioned serialized state of the whole engine.
type EngineSnapshot struct {
	Version         int                      `json:"version"`
	SavedAt         time.Time                `json:"saved_at"`
	FailuresHandled int                      `json:"failures_handled"`
	Agent           rl.Snapshot              `json:"agent"`
	Catalog         CatalogSnapshot          `json:"catalog"`
	Learning        *learning.SystemSnapshot `json:"learning,omitempty"`
}

// EngineSnapshotVersion is the current engine snapshot schema version.
const EngineSnapshotVersion = 1

// Snapshot captures agent, catalog and learning state.
func (o *Orchestrator) Snapshot() *EngineSnapshot {
	o.mu.RLock()
	handled := o.failuresHandled
	o.mu.RUnlock()

	snap := &EngineSnapshot{
		Version:         EngineSnapshotVersion,
		SavedAt:         time.Now(),
		FailuresHandled: handled,
		Agent:           o.agent.Snapshot(),
		Catalog:         o.catalog.Snapshot(),
	}
	if o.learner != nil {
		ls := o.learner.Snapshot()
		snap.Learning = &ls
	}
	return snap
}

// Restore replaces engine state from a snapshot. Restoring reproduces the
// pre-snapshot action-selection policy exactly.
func (o *Orchestrator) Restore(snap *EngineSnapshot) error {
	if snap.Version != EngineSnapshotVersion {
		return fmt.Errorf("unsupported engine snapshot version %d", snap.Version)
	}
	if err := o.agent.Restore(snap.Agent); err != nil {
		return fmt.Errorf("failed to restore agent: %w", err)
	}
	if err := o.catalog.Restore(snap.Catalog); err != nil {
		return fmt.Errorf("failed to restore catalog: %w", err)
	}
	if snap.Learning != nil && o.learner != nil {
		if err := o.learner.Restore(*snap.Learning); err != nil {
			return fmt.Errorf("failed to restore learning state: %w", err)
		}
	}

	o.mu.Lock()
	o.failuresHandled = snap.FailuresHandled
	o.mu.Unlock()
	return nil
}
