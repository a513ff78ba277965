package learning

// Strategy is one learning approach over recorded experiences. The set of
// strategies is closed: implementations are registered explicitly by the
// System, never discovered dynamically.
type Strategy interface {
	Name() string

	// Learn ingests a single experience and returns what was learned.
	Learn(exp *Experience) LearnResult

	// Recommend derives recommendations for a query context.
	Recommend(ctx map[string]interface{}) []Recommendation
}

// LearnResult summarizes the effect of one Learn call.
type LearnResult struct {
	PatternKey string  `json:"pattern_key,omitempty"`
	Frequency  int     `json:"pattern_frequency,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Recommendation is a ranked suggestion produced by a strategy or the
// knowledge base. Ranking is by Confidence x SuccessRate descending.
type Recommendation struct {
	Type              string             `json:"recommendation_type,omitempty"`
	SourceStrategy    string             `json:"source_strategy,omitempty"`
	Action            string             `json:"action,omitempty"`
	SuccessRate       float64            `json:"success_rate"`
	Confidence        float64            `json:"confidence"`
	PatternKey        string             `json:"pattern_key,omitempty"`
	SuggestedStrategy string             `json:"suggested_strategy,omitempty"`
	KnowledgeID       string             `json:"knowledge_id,omitempty"`
	Pattern           *PatternDescriptor `json:"pattern_info,omitempty"`
	Support           int                `json:"supporting_experiences,omitempty"`
}

func (r Recommendation) rankScore() float64 {
	return r.Confidence * r.SuccessRate
}

// successCounter tracks attempts and successes for one key.
type successCounter struct {
	Successes int `json:"successes"`
	Attempts  int `json:"attempts"`
}

func (c *successCounter) record(success bool) {
	c.Attempts++
	if success {
		c.Successes++
	}
}

func (c *successCounter) rate() (float64, bool) {
	if c.Attempts == 0 {
		return 0, false
	}
	return float64(c.Successes) / float64(c.Attempts), true
}
