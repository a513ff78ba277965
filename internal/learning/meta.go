package learning

import (
	"sync"
	"time"
)

// metaMinAttempts is the attempt count a tagged strategy needs before it can
// be recommended.
const metaMinAttempts = 5

// metaConfidenceScale caps recommendation confidence at attempts/20.
const metaConfidenceScale = 20.0

// MetaPattern records how well learning worked for one experience.
type MetaPattern struct {
	ExperienceType    string    `json:"experience_type"`
	ContextSize       int       `json:"context_complexity"`
	OutcomeConfidence float64   `json:"outcome_quality"`
	Strategy          string    `json:"strategy_used"`
	Timestamp         time.Time `json:"timestamp"`
}

// Meta learns which tagged learning strategy performs best per experience
// type: learning about learning.
type Meta struct {
	mu           sync.RWMutex
	performance  map[string]*successCounter
	metaPatterns map[string][]MetaPattern
}

// NewMeta creates an empty meta-learning strategy.
func NewMeta() *Meta {
	return &Meta{
		performance:  make(map[string]*successCounter),
		metaPatterns: make(map[string][]MetaPattern),
	}
}

// Name implements Strategy.
func (m *Meta) Name() string { return "meta_learning" }

// Learn implements Strategy: attributes the outcome to the experience's
// "learning_strategy" context tag and logs a meta-pattern descriptor.
func (m *Meta) Learn(exp *Experience) LearnResult {
	tag, ok := contextString(exp.Context, "learning_strategy")
	if !ok {
		tag = "unknown"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, present := m.performance[tag]
	if !present {
		counter = &successCounter{}
		m.performance[tag] = counter
	}
	success, _ := exp.SuccessOutcome()
	counter.record(success)

	m.metaPatterns[exp.ExperienceType] = append(m.metaPatterns[exp.ExperienceType], MetaPattern{
		ExperienceType:    exp.ExperienceType,
		ContextSize:       len(exp.Context),
		OutcomeConfidence: exp.ConfidenceScore,
		Strategy:          tag,
		Timestamp:         exp.Timestamp,
	})

	return LearnResult{}
}

// Recommend implements Strategy: among tags with more than metaMinAttempts
// attempts, suggest the one with the highest success rate.
func (m *Meta) Recommend(ctx map[string]interface{}) []Recommendation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bestTag := ""
	bestRate := 0.0
	for tag, counter := range m.performance {
		if counter.Attempts <= metaMinAttempts {
			continue
		}
		if rate, ok := counter.rate(); ok && rate > bestRate {
			bestRate = rate
			bestTag = tag
		}
	}
	if bestTag == "" {
		return nil
	}

	confidence := float64(m.performance[bestTag].Attempts) / metaConfidenceScale
	if confidence > 1.0 {
		confidence = 1.0
	}

	return []Recommendation{{
		Type:              "learning_strategy",
		SourceStrategy:    m.Name(),
		SuggestedStrategy: bestTag,
		SuccessRate:       bestRate,
		Confidence:        confidence,
	}}
}

// metaSnapshot serializes the meta strategy's tables.
type metaSnapshot struct {
	Performance  map[string]successCounter `json:"performance"`
	MetaPatterns map[string][]MetaPattern  `json:"meta_patterns"`
}

// Snapshot captures the strategy's tables exactly.
func (m *Meta) Snapshot() metaSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := metaSnapshot{
		Performance:  make(map[string]successCounter, len(m.performance)),
		MetaPatterns: make(map[string][]MetaPattern, len(m.metaPatterns)),
	}
	for tag, counter := range m.performance {
		snap.Performance[tag] = *counter
	}
	for et, patterns := range m.metaPatterns {
		snap.MetaPatterns[et] = append([]MetaPattern(nil), patterns...)
	}
	return snap
}

// Restore replaces the strategy's tables from a snapshot.
func (m *Meta) Restore(snap metaSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.performance = make(map[string]*successCounter, len(snap.Performance))
	for tag, counter := range snap.Performance {
		c := counter
		m.performance[tag] = &c
	}
	m.metaPatterns = make(map[string][]MetaPattern, len(snap.MetaPatterns))
	for et, patterns := range snap.MetaPatterns {
		m.metaPatterns[et] = append([]MetaPattern(nil), patterns...)
	}
}
