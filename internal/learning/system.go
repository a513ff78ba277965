package learning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the durable persistence surface for the learning subsystem.
// Writes are fire-and-forget from the caller's perspective: a failed write
// is logged and in-memory state stays authoritative.
type Store interface {
	SaveExperience(ctx context.Context, exp *Experience) error
	SaveKnowledge(ctx context.Context, entry *KnowledgeEntry) error
	SaveAdaptationEvent(ctx context.Context, event *AdaptationEvent) error
	PurgeExperiencesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls the continuous learning system.
type Config struct {
	MaxExperiences       int           `yaml:"max_experiences"`
	ExperienceTTL        time.Duration `yaml:"experience_ttl"`
	PatternDecayRate     float64       `yaml:"pattern_decay_rate"`
	ConfidenceThreshold  float64       `yaml:"confidence_threshold"`
	SuccessRateThreshold float64       `yaml:"success_rate_threshold"`
	MaintenanceInterval  time.Duration `yaml:"maintenance_interval"`
	AdaptationInterval   time.Duration `yaml:"adaptation_interval"`
}

// ApplyDefaults fills unset fields with the standard retention and
// threshold parameters.
func (c *Config) ApplyDefaults() {
	if c.MaxExperiences <= 0 {
		c.MaxExperiences = 10000
	}
	if c.ExperienceTTL <= 0 {
		c.ExperienceTTL = 90 * 24 * time.Hour
	}
	if c.PatternDecayRate <= 0 {
		c.PatternDecayRate = 0.1
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.SuccessRateThreshold <= 0 {
		c.SuccessRateThreshold = 0.6
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Minute
	}
	if c.AdaptationInterval <= 0 {
		c.AdaptationInterval = 30 * time.Minute
	}
}

// AdaptationSignal is one system-wide adjustment suggestion derived from
// learning metrics. Informational: nothing is auto-applied.
type AdaptationSignal struct {
	Type           string   `json:"type"`
	Recommendation string   `json:"recommendation"`
	Priority       string   `json:"priority"`
	AvgConfidence  float64  `json:"avg_confidence,omitempty"`
	Patterns       []string `json:"patterns,omitempty"`
}

// AdaptationEvent records one adaptation pass.
type AdaptationEvent struct {
	Timestamp        time.Time          `json:"timestamp"`
	Signals          []AdaptationSignal `json:"signals"`
	TotalExperiences int                `json:"total_experiences"`
	KnowledgeSize    int                `json:"knowledge_base_size"`
	AvgConfidence    float64            `json:"avg_confidence"`
}

// RecordResult reports what each strategy learned from one experience.
type RecordResult struct {
	Recorded     bool                   `json:"recorded"`
	ExperienceID string                 `json:"experience_id"`
	PerStrategy  map[string]LearnResult `json:"learning_results"`
}

// Report summarizes learning progress.
type Report struct {
	Timestamp             time.Time `json:"timestamp"`
	TotalExperiences      int       `json:"total_experiences"`
	LearningEffectiveness float64   `json:"learning_effectiveness"`
	TotalPatterns         int       `json:"total_patterns"`
	HighConfidencePattern int       `json:"high_confidence_patterns"`
	AvgPatternConfidence  float64   `json:"avg_pattern_confidence"`
	KnowledgeEntries      int       `json:"knowledge_entries"`
	HighConfidenceEntries int       `json:"high_confidence_knowledge"`
	AvgSuccessRate        float64   `json:"avg_success_rate"`
	RecentAdaptations     int       `json:"recent_adaptations"`
	Status                string    `json:"system_status"`
}

// System orchestrates the closed set of learning strategies and the
// knowledge base over an append-mostly bounded history.
type System struct {
	logger *zap.Logger
	config Config
	store  Store

	patternStrategy *PatternBased
	metaStrategy    *Meta
	strategies      []Strategy

	knowledge *KnowledgeBase

	mu               sync.RWMutex
	history          []*Experience // bounded ring, oldest evicted
	adaptationEvents []*AdaptationEvent
}

// NewSystem wires the strategies and knowledge base. store may be nil, in
// which case learning is purely in-memory.
func NewSystem(logger *zap.Logger, config Config, store Store) *System {
	config.ApplyDefaults()

	pattern := NewPatternBased()
	meta := NewMeta()

	return &System{
		logger:          logger,
		config:          config,
		store:           store,
		patternStrategy: pattern,
		metaStrategy:    meta,
		strategies:      []Strategy{pattern, meta},
		knowledge:       NewKnowledgeBase(),
	}
}

// RecordExperience appends the experience to the bounded history, upserts
// it into the durable store, runs every strategy's Learn and folds the
// result into the knowledge base.
func (s *System) RecordExperience(ctx context.Context, exp *Experience) *RecordResult {
	if exp.ExperienceID == "" {
		exp.ExperienceID = NewExperienceID()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.history = append(s.history, exp)
	if len(s.history) > s.config.MaxExperiences {
		s.history = s.history[len(s.history)-s.config.MaxExperiences:]
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveExperience(ctx, exp); err != nil {
			s.logger.Warn("Failed to persist experience",
				zap.String("experience_id", exp.ExperienceID),
				zap.Error(err),
			)
		}
	}

	results := make(map[string]LearnResult, len(s.strategies))
	for _, strategy := range s.strategies {
		results[strategy.Name()] = strategy.Learn(exp)
	}

	entry := s.knowledge.Update(exp, results)
	if s.store != nil {
		if err := s.store.SaveKnowledge(ctx, entry); err != nil {
			s.logger.Warn("Failed to persist knowledge entry",
				zap.String("knowledge_id", entry.KnowledgeID),
				zap.Error(err),
			)
		}
	}

	return &RecordResult{
		Recorded:     true,
		ExperienceID: exp.ExperienceID,
		PerStrategy:  results,
	}
}

// Recommendations merges strategy and knowledge base recommendations,
// ranked by confidence x success_rate, at most ten.
func (s *System) Recommendations(ctx map[string]interface{}) []Recommendation {
	var all []Recommendation
	for _, strategy := range s.strategies {
		all = append(all, strategy.Recommend(ctx)...)
	}
	all = append(all, s.knowledge.Recommendations(
		s.config.ConfidenceThreshold,
		s.config.SuccessRateThreshold,
	)...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].rankScore() > all[j].rankScore()
	})
	if len(all) > 10 {
		all = all[:10]
	}
	return all
}

// Run drives periodic maintenance until the context is cancelled: pattern
// confidence decay, TTL purge of stored experiences, and adaptation passes
// on their own slower cadence.
func (s *System) Run(ctx context.Context) {
	maintenance := time.NewTicker(s.config.MaintenanceInterval)
	defer maintenance.Stop()

	lastAdaptation := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-maintenance.C:
			s.patternStrategy.Decay(s.config.PatternDecayRate)
			s.purgeOldExperiences(ctx)

			if time.Since(lastAdaptation) >= s.config.AdaptationInterval {
				s.Adapt(ctx)
				lastAdaptation = time.Now()
			}
		}
	}
}

func (s *System) purgeOldExperiences(ctx context.Context) {
	if s.store == nil {
		return
	}
	cutoff := time.Now().Add(-s.config.ExperienceTTL)
	deleted, err := s.store.PurgeExperiencesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("Failed to purge old experiences", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Purged old experiences", zap.Int64("count", deleted))
	}
}

// Adapt computes system-wide adaptation signals from recent learning
// metrics and records them as an event. Signals are informational; applying
// them is left to the caller.
func (s *System) Adapt(ctx context.Context) *AdaptationEvent {
	var signals []AdaptationSignal

	avgConfidence := s.recentAvgConfidence(100)
	if avgConfidence > 0 && avgConfidence < 0.5 {
		signals = append(signals, AdaptationSignal{
			Type:           "exploration_increase",
			Recommendation: "increase exploration rate in learning algorithms",
			Priority:       "high",
			AvgConfidence:  avgConfidence,
		})
	}

	if low := s.patternStrategy.LowPerformers(10, 0.4); len(low) > 0 {
		signals = append(signals, AdaptationSignal{
			Type:           "pattern_strategy_adjustment",
			Recommendation: "review and adjust strategies for low-performing patterns",
			Priority:       "medium",
			Patterns:       low,
		})
	}

	s.mu.Lock()
	event := &AdaptationEvent{
		Timestamp:        time.Now(),
		Signals:          signals,
		TotalExperiences: len(s.history),
		KnowledgeSize:    s.knowledge.Size(),
		AvgConfidence:    avgConfidence,
	}
	s.adaptationEvents = append(s.adaptationEvents, event)
	if len(s.adaptationEvents) > 100 {
		s.adaptationEvents = s.adaptationEvents[len(s.adaptationEvents)-100:]
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveAdaptationEvent(ctx, event); err != nil {
			s.logger.Warn("Failed to persist adaptation event", zap.Error(err))
		}
	}

	s.logger.Info("Adaptation pass completed",
		zap.Int("signals", len(signals)),
		zap.Float64("avg_confidence", avgConfidence),
	)
	return event
}

func (s *System) recentAvgConfidence(n int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return 0
	}
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, exp := range s.history[start:] {
		sum += exp.ConfidenceScore
	}
	return sum / float64(len(s.history)-start)
}

// AdaptationEvents returns a snapshot of the recorded adaptation events.
func (s *System) AdaptationEvents() []*AdaptationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*AdaptationEvent(nil), s.adaptationEvents...)
}

// ExperienceCount returns the in-memory history occupancy.
func (s *System) ExperienceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// GenerateReport summarizes learning progress over the last 100
// experiences.
func (s *System) GenerateReport() *Report {
	s.mu.RLock()
	recent := s.history
	if len(recent) > 100 {
		recent = recent[len(recent)-100:]
	}
	effectiveness := 0.0
	if len(recent) > 0 {
		successes := 0
		for _, exp := range recent {
			if ok, has := exp.SuccessOutcome(); has && ok {
				successes++
			}
		}
		effectiveness = float64(successes) / float64(len(recent))
	}
	total := len(s.history)
	adaptations := len(s.adaptationEvents)
	s.mu.RUnlock()

	patterns, highConf, avgConf := s.patternStrategy.Stats()
	entries, highConfEntries, avgRate := s.knowledge.Stats()

	status := "STRUGGLING"
	switch {
	case effectiveness > 0.7:
		status = "LEARNING"
	case effectiveness > 0.4:
		status = "ADAPTING"
	}

	return &Report{
		Timestamp:             time.Now(),
		TotalExperiences:      total,
		LearningEffectiveness: effectiveness,
		TotalPatterns:         patterns,
		HighConfidencePattern: highConf,
		AvgPatternConfidence:  avgConf,
		KnowledgeEntries:      entries,
		HighConfidenceEntries: highConfEntries,
		AvgSuccessRate:        avgRate,
		RecentAdaptations:     adaptations,
		Status:                status,
	}
}

// SystemSnapshot is the versioned serialized learning state: strategy
// tables and knowledge exactly, history and events most-recent-N.
type SystemSnapshot struct {
	Version          int                               `json:"version"`
	PatternStrategy  map[string]patternSnapshot        `json:"pattern_strategy"`
	MetaStrategy     metaSnapshot                      `json:"meta_strategy"`
	Knowledge        map[string]knowledgeEntrySnapshot `json:"knowledge"`
	RecentHistory    []*Experience                     `json:"recent_history"`
	AdaptationEvents []*AdaptationEvent                `json:"adaptation_events"`
}

// SystemSnapshotVersion is the current learning snapshot schema version.
const SystemSnapshotVersion = 1

// Snapshot captures the learning state.
func (s *System) Snapshot() SystemSnapshot {
	s.mu.RLock()
	history := s.history
	if len(history) > 1000 {
		history = history[len(history)-1000:]
	}
	recentHistory := append([]*Experience(nil), history...)
	events := append([]*AdaptationEvent(nil), s.adaptationEvents...)
	s.mu.RUnlock()

	return SystemSnapshot{
		Version:          SystemSnapshotVersion,
		PatternStrategy:  s.patternStrategy.Snapshot(),
		MetaStrategy:     s.metaStrategy.Snapshot(),
		Knowledge:        s.knowledge.Snapshot(),
		RecentHistory:    recentHistory,
		AdaptationEvents: events,
	}
}

// Restore replaces the learning state from a snapshot.
func (s *System) Restore(snap SystemSnapshot) error {
	if snap.Version != SystemSnapshotVersion {
		return fmt.Errorf("unsupported learning snapshot version %d", snap.Version)
	}

	s.patternStrategy.Restore(snap.PatternStrategy)
	s.metaStrategy.Restore(snap.MetaStrategy)
	s.knowledge.Restore(snap.Knowledge)

	s.mu.Lock()
	s.history = append([]*Experience(nil), snap.RecentHistory...)
	s.adaptationEvents = append([]*AdaptationEvent(nil), snap.AdaptationEvents...)
	s.mu.Unlock()
	return nil
}
