// Package learning implements the continuous learning subsystem: durable
// experiences, pattern and meta learning strategies, a confidence-scored
// knowledge base and periodic adaptation.
package learning

import (
	"time"

	"github.com/google/uuid"
)

// Experience is one durable (context, action, outcome) record. Immutable
// once created; appended to a bounded in-memory history and upserted into
// the durable store by experience ID.
type Experience struct {
	ExperienceID    string                 `json:"experience_id"`
	ExperienceType  string                 `json:"experience_type"`
	Timestamp       time.Time              `json:"timestamp"`
	Context         map[string]interface{} `json:"context"`
	ActionTaken     string                 `json:"action_taken"`
	Outcome         map[string]interface{} `json:"outcome"`
	MetricsBefore   map[string]float64     `json:"metrics_before"`
	MetricsAfter    map[string]float64     `json:"metrics_after"`
	LearnedPatterns []PatternDescriptor    `json:"learned_patterns"`
	ConfidenceScore float64                `json:"confidence_score"`
}

// PatternDescriptor is a compact reference to a mined or learned pattern.
type PatternDescriptor struct {
	Type       string  `json:"type"`
	Detail     string  `json:"detail,omitempty"`
	Frequency  int     `json:"frequency,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewExperienceID returns a fresh unique experience identifier.
func NewExperienceID() string {
	return "exp_" + uuid.NewString()
}

// SuccessOutcome reports the outcome's boolean "success" key. The second
// return is false when the key is absent or not a bool; such experiences do
// not participate in success-rate statistics.
func (e *Experience) SuccessOutcome() (success, ok bool) {
	v, present := e.Outcome["success"]
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// contextString fetches a string-valued context key.
func contextString(ctx map[string]interface{}, key string) (string, bool) {
	v, ok := ctx[key]
	if !ok {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// contextFloat fetches a numeric context key.
func contextFloat(ctx map[string]interface{}, key string) (float64, bool) {
	switch v := ctx[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
