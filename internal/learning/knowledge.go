package learning

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// knowledgeWindow bounds how many recent experiences feed each entry's
// rolling confidence and success rate.
const knowledgeWindow = 20

// KnowledgeEntry aggregates recent experiences sharing an
// (experience_type, action) pair.
type KnowledgeEntry struct {
	KnowledgeID   string              `json:"knowledge_id"`
	ExperienceIDs []string            `json:"experience_ids"`
	Patterns      []PatternDescriptor `json:"patterns"`
	Confidence    float64             `json:"confidence"`
	SuccessRate   float64             `json:"success_rate"`
	LastUpdated   time.Time           `json:"last_updated"`

	// Parallel windows backing the rolling aggregates.
	confidences []float64
	successes   []bool
}

// KnowledgeBase holds one confidence-scored entry per
// (experience_type, action) pair.
type KnowledgeBase struct {
	mu      sync.RWMutex
	entries map[string]*KnowledgeEntry
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{entries: make(map[string]*KnowledgeEntry)}
}

// KnowledgeID returns the stable key for an (experience_type, action) pair.
func KnowledgeID(experienceType, action string) string {
	h := fnv.New64a()
	h.Write([]byte(experienceType + "_" + action))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Update folds one experience and its learn results into the matching entry
// and returns the updated entry.
func (kb *KnowledgeBase) Update(exp *Experience, results map[string]LearnResult) *KnowledgeEntry {
	id := KnowledgeID(exp.ExperienceType, exp.ActionTaken)

	kb.mu.Lock()
	defer kb.mu.Unlock()

	entry, ok := kb.entries[id]
	if !ok {
		entry = &KnowledgeEntry{KnowledgeID: id}
		kb.entries[id] = entry
	}

	entry.ExperienceIDs = appendBoundedString(entry.ExperienceIDs, exp.ExperienceID, knowledgeWindow)
	entry.confidences = appendBoundedFloat(entry.confidences, exp.ConfidenceScore, knowledgeWindow)
	success, hasOutcome := exp.SuccessOutcome()
	if hasOutcome {
		entry.successes = appendBoundedBool(entry.successes, success, knowledgeWindow)
	}
	entry.LastUpdated = time.Now()

	for strategyName, result := range results {
		if result.PatternKey == "" {
			continue
		}
		entry.Patterns = append(entry.Patterns, PatternDescriptor{
			Type:       strategyName,
			Detail:     result.PatternKey,
			Frequency:  result.Frequency,
			Confidence: result.Confidence,
		})
	}
	if len(entry.Patterns) > knowledgeWindow {
		entry.Patterns = entry.Patterns[len(entry.Patterns)-knowledgeWindow:]
	}

	entry.Confidence = mean(entry.confidences)
	if len(entry.successes) > 0 {
		n := 0
		for _, s := range entry.successes {
			if s {
				n++
			}
		}
		entry.SuccessRate = float64(n) / float64(len(entry.successes))
	}

	return entry.clone()
}

// Recommendations surfaces entries meeting both the confidence and success
// rate thresholds, each carrying its most recent pattern.
func (kb *KnowledgeBase) Recommendations(confidenceThreshold, successRateThreshold float64) []Recommendation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var recs []Recommendation
	for id, entry := range kb.entries {
		if entry.SuccessRate < successRateThreshold || entry.Confidence < confidenceThreshold {
			continue
		}
		if len(entry.Patterns) == 0 {
			continue
		}
		latest := entry.Patterns[len(entry.Patterns)-1]
		recs = append(recs, Recommendation{
			Type:        "knowledge_base",
			KnowledgeID: id,
			Confidence:  entry.Confidence,
			SuccessRate: entry.SuccessRate,
			Pattern:     &latest,
			Support:     len(entry.ExperienceIDs),
		})
	}
	return recs
}

// Size returns the number of knowledge entries.
func (kb *KnowledgeBase) Size() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.entries)
}

// Stats summarizes the knowledge base for reporting.
func (kb *KnowledgeBase) Stats() (total, highConfidence int, avgSuccessRate float64) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	total = len(kb.entries)
	sum := 0.0
	for _, entry := range kb.entries {
		sum += entry.SuccessRate
		if entry.Confidence > 0.7 {
			highConfidence++
		}
	}
	if total > 0 {
		avgSuccessRate = sum / float64(total)
	}
	return total, highConfidence, avgSuccessRate
}

// knowledgeEntrySnapshot is the serialized form of one entry.
type knowledgeEntrySnapshot struct {
	Entry       KnowledgeEntry `json:"entry"`
	Confidences []float64      `json:"confidences"`
	Successes   []bool         `json:"successes"`
}

// Snapshot captures every entry, including the rolling windows.
func (kb *KnowledgeBase) Snapshot() map[string]knowledgeEntrySnapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make(map[string]knowledgeEntrySnapshot, len(kb.entries))
	for id, entry := range kb.entries {
		out[id] = knowledgeEntrySnapshot{
			Entry:       *entry.clone(),
			Confidences: append([]float64(nil), entry.confidences...),
			Successes:   append([]bool(nil), entry.successes...),
		}
	}
	return out
}

// Restore replaces the knowledge base contents from a snapshot.
func (kb *KnowledgeBase) Restore(snap map[string]knowledgeEntrySnapshot) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.entries = make(map[string]*KnowledgeEntry, len(snap))
	for id, s := range snap {
		entry := s.Entry
		entry.confidences = append([]float64(nil), s.Confidences...)
		entry.successes = append([]bool(nil), s.Successes...)
		kb.entries[id] = &entry
	}
}

func (e *KnowledgeEntry) clone() *KnowledgeEntry {
	c := *e
	c.ExperienceIDs = append([]string(nil), e.ExperienceIDs...)
	c.Patterns = append([]PatternDescriptor(nil), e.Patterns...)
	c.confidences = nil
	c.successes = nil
	return &c
}

func appendBoundedString(s []string, v string, limit int) []string {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func appendBoundedFloat(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func appendBoundedBool(s []bool, v bool, limit int) []bool {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
