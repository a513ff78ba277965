package learning

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// confidencePerOccurrence saturates pattern confidence after 10 matching
// experiences.
const confidencePerOccurrence = 0.1

// PatternBased groups experiences by a deterministic pattern key and tracks
// per-key frequency, confidence and success rates. Confidence grows with
// evidence at learn time and decays multiplicatively on the maintenance
// timer.
type PatternBased struct {
	mu          sync.RWMutex
	experiences map[string][]*Experience
	confidence  map[string]float64
	rates       map[string]*successCounter
}

// NewPatternBased creates an empty pattern-based strategy.
func NewPatternBased() *PatternBased {
	return &PatternBased{
		experiences: make(map[string][]*Experience),
		confidence:  make(map[string]float64),
		rates:       make(map[string]*successCounter),
	}
}

// Name implements Strategy.
func (p *PatternBased) Name() string { return "pattern_based" }

// PatternKey derives the deterministic fingerprint for an experience:
// experience_type + action, refined by failure_type and a coarse severity
// bucket when present in the context.
func PatternKey(exp *Experience) string {
	key := exp.ExperienceType + "_" + exp.ActionTaken

	if ft, ok := contextString(exp.Context, "failure_type"); ok {
		key += "_" + ft
	}
	if severity, ok := contextFloat(exp.Context, "severity"); ok {
		key += "_" + severityBucket(severity)
	}
	return key
}

func severityBucket(severity float64) string {
	switch {
	case severity > 0.7:
		return "high"
	case severity > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// Learn implements Strategy. Recency weighting is a fixed 1.0 here; decay
// happens on the maintenance timer instead.
func (p *PatternBased) Learn(exp *Experience) LearnResult {
	key := PatternKey(exp)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.experiences[key] = append(p.experiences[key], exp)

	if success, ok := exp.SuccessOutcome(); ok {
		counter, present := p.rates[key]
		if !present {
			counter = &successCounter{}
			p.rates[key] = counter
		}
		counter.record(success)
	}

	frequency := len(p.experiences[key])
	confidence := float64(frequency) * confidencePerOccurrence
	if confidence > 1.0 {
		confidence = 1.0
	}
	p.confidence[key] = confidence

	return LearnResult{
		PatternKey: key,
		Frequency:  frequency,
		Confidence: confidence,
	}
}

// Recommend implements Strategy: patterns textually matching the query's
// failure_type or experience_type are ranked by success_rate x confidence,
// top five returned. The recommended action is the most frequent among that
// pattern's successful experiences.
func (p *PatternBased) Recommend(ctx map[string]interface{}) []Recommendation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var recs []Recommendation
	for key, exps := range p.experiences {
		if !p.relevant(key, ctx) {
			continue
		}
		counter, ok := p.rates[key]
		if !ok || counter.Attempts == 0 {
			continue
		}
		rate, _ := counter.rate()

		action, support := mostFrequentSuccessfulAction(exps)
		if support == 0 {
			continue
		}

		recs = append(recs, Recommendation{
			SourceStrategy: p.Name(),
			Action:         action,
			SuccessRate:    rate,
			Confidence:     p.confidence[key],
			PatternKey:     key,
			Support:        support,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].rankScore() > recs[j].rankScore()
	})
	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

func (p *PatternBased) relevant(key string, ctx map[string]interface{}) bool {
	if ft, ok := contextString(ctx, "failure_type"); ok && strings.Contains(key, ft) {
		return true
	}
	if et, ok := contextString(ctx, "experience_type"); ok && strings.Contains(key, et) {
		return true
	}
	return false
}

func mostFrequentSuccessfulAction(exps []*Experience) (string, int) {
	counts := make(map[string]int)
	total := 0
	for _, e := range exps {
		if success, ok := e.SuccessOutcome(); ok && success {
			counts[e.ActionTaken]++
			total++
		}
	}
	best := ""
	bestCount := 0
	for action, count := range counts {
		if count > bestCount || (count == bestCount && action < best) {
			best = action
			bestCount = count
		}
	}
	return best, total
}

// Decay multiplies every pattern confidence by (1 - rate). Confidence never
// goes negative.
func (p *PatternBased) Decay(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.confidence {
		p.confidence[key] *= 1 - rate
	}
}

// LowPerformers returns pattern keys with at least minAttempts attempts and
// a success rate below maxRate, for adaptation signaling.
func (p *PatternBased) LowPerformers(minAttempts int, maxRate float64) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var keys []string
	for key, counter := range p.rates {
		if counter.Attempts < minAttempts {
			continue
		}
		if rate, ok := counter.rate(); ok && rate < maxRate {
			keys = append(keys, fmt.Sprintf("%s (%.2f)", key, rate))
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes the strategy's internal tables for reporting.
func (p *PatternBased) Stats() (total, highConfidence int, avgConfidence float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total = len(p.experiences)
	sum := 0.0
	for _, conf := range p.confidence {
		sum += conf
		if conf > 0.7 {
			highConfidence++
		}
	}
	if len(p.confidence) > 0 {
		avgConfidence = sum / float64(len(p.confidence))
	}
	return total, highConfidence, avgConfidence
}

// patternSnapshot serializes one pattern key's state.
type patternSnapshot struct {
	Confidence  float64        `json:"confidence"`
	Counter     successCounter `json:"counter"`
	Experiences []*Experience  `json:"experiences"`
}

// Snapshot captures the strategy's tables exactly.
func (p *PatternBased) Snapshot() map[string]patternSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]patternSnapshot, len(p.experiences))
	for key, exps := range p.experiences {
		snap := patternSnapshot{
			Confidence:  p.confidence[key],
			Experiences: append([]*Experience(nil), exps...),
		}
		if counter, ok := p.rates[key]; ok {
			snap.Counter = *counter
		}
		out[key] = snap
	}
	return out
}

// Restore replaces the strategy's tables from a snapshot.
func (p *PatternBased) Restore(snap map[string]patternSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.experiences = make(map[string][]*Experience, len(snap))
	p.confidence = make(map[string]float64, len(snap))
	p.rates = make(map[string]*successCounter, len(snap))
	for key, s := range snap {
		p.experiences[key] = append([]*Experience(nil), s.Experiences...)
		p.confidence[key] = s.Confidence
		counter := s.Counter
		p.rates[key] = &counter
	}
}
