package healing

import (
	"time"

	"github.com/google/uuid"
)

// coldStartThreshold is the number of handled failures below which the
// agent's raw suggestion is always trusted, letting early exploration seed
// the success counters.
const coldStartThreshold = 10

// minAttemptsForBlend is the attempt count above which the empirical success
// rate is blended into the base probability estimate.
const minAttemptsForBlend = 5

// durationEstimates is the fixed per-action duration lookup.
var durationEstimates = map[HealingAction]time.Duration{
	ActionRestartService:    30 * time.Second,
	ActionScaleUp:           120 * time.Second,
	ActionScaleDown:         60 * time.Second,
	ActionClearCache:        10 * time.Second,
	ActionRestartComponent:  45 * time.Second,
	ActionFailover:          180 * time.Second,
	ActionThrottleRequests:  5 * time.Second,
	ActionAllocateResources: 90 * time.Second,
	ActionNoAction:          1 * time.Second,
}

// actionDefaults returns the default parameter set for an action. A fresh
// map is built per call so responses never share parameter storage.
func actionDefaults(action HealingAction) map[string]interface{} {
	switch action {
	case ActionRestartService:
		return map[string]interface{}{"timeout": 30, "graceful": true, "max_attempts": 3}
	case ActionScaleUp:
		return map[string]interface{}{"scale_factor": 1.5, "max_instances": 10, "cooldown": 300}
	case ActionScaleDown:
		return map[string]interface{}{"scale_factor": 0.7, "min_instances": 1, "cooldown": 300}
	case ActionClearCache:
		return map[string]interface{}{"cache_types": []string{"memory", "disk"}, "preserve_critical": true}
	case ActionFailover:
		return map[string]interface{}{"target_region": "backup", "health_check_timeout": 60}
	case ActionThrottleRequests:
		return map[string]interface{}{"throttle_rate": 0.5, "duration": 300, "prioritize_critical": true}
	default:
		return map[string]interface{}{}
	}
}

// Thresholds holds the severity cut points used for priority and base
// success probability.
type Thresholds struct {
	CriticalSeverity float64 `yaml:"critical_severity"`
	HighSeverity     float64 `yaml:"high_severity"`
	MediumSeverity   float64 `yaml:"medium_severity"`
}

// ApplyDefaults fills unset thresholds with the standard cut points.
func (t *Thresholds) ApplyDefaults() {
	if t.CriticalSeverity <= 0 {
		t.CriticalSeverity = 0.8
	}
	if t.HighSeverity <= 0 {
		t.HighSeverity = 0.6
	}
	if t.MediumSeverity <= 0 {
		t.MediumSeverity = 0.4
	}
}

// ActionChooser yields an action index for an encoded state. Satisfied by
// the RL agent.
type ActionChooser interface {
	ChooseAction(state int) int
}

// ResponseGenerator turns failure events into fully parameterized healing
// responses by combining the agent's suggestion with the catalog shortlist
// and historical success rates.
type ResponseGenerator struct {
	chooser    ActionChooser
	catalog    *Catalog
	thresholds Thresholds
}

// NewResponseGenerator wires a generator to its policy and catalog.
func NewResponseGenerator(chooser ActionChooser, catalog *Catalog, thresholds Thresholds) *ResponseGenerator {
	thresholds.ApplyDefaults()
	return &ResponseGenerator{
		chooser:    chooser,
		catalog:    catalog,
		thresholds: thresholds,
	}
}

// Generate produces a healing response for the event. failuresHandled is
// the orchestrator's lifetime failure count, used for the cold-start rule.
// Unknown failure types fall back to NO_ACTION; there are no failure modes.
func (g *ResponseGenerator) Generate(event *FailureEvent, failuresHandled int) *HealingResponse {
	state := EncodeState(event.FailureType, event.Severity)
	suggested := DecodeAction(g.chooser.ChooseAction(state))

	shortlist := g.catalog.Shortlist(event.FailureType)

	chosen := suggested
	if !containsAction(shortlist, suggested) && failuresHandled >= coldStartThreshold {
		// Outside the shortlist after warm-up: fall back to the
		// shortlisted action with the best historical record. Zero
		// attempts count as rate 0 for this comparison.
		chosen = shortlist[0]
		bestRate := 0.0
		for _, action := range shortlist {
			rate, ok := g.catalog.SuccessRate(event.FailureType, action)
			if ok && rate > bestRate {
				bestRate = rate
				chosen = action
			}
		}
	}

	params := actionDefaults(chosen)
	switch chosen {
	case ActionScaleUp:
		factor := params["scale_factor"].(float64)
		factor *= 1 + event.Severity
		if factor > 3.0 {
			factor = 3.0
		}
		params["scale_factor"] = factor
	case ActionThrottleRequests:
		rate := params["throttle_rate"].(float64)
		rate *= 1 - event.Severity*0.5
		if rate < 0.1 {
			rate = 0.1
		}
		params["throttle_rate"] = rate
	}

	priority, successProb := g.classify(event.Severity)

	if g.catalog.Attempts(event.FailureType, chosen) >= minAttemptsForBlend {
		if empirical, ok := g.catalog.SuccessRate(event.FailureType, chosen); ok {
			successProb = (successProb + empirical) / 2
		}
	}

	estimated, ok := durationEstimates[chosen]
	if !ok {
		estimated = 60 * time.Second
	}

	return &HealingResponse{
		ResponseID:         "response_" + uuid.NewString(),
		Action:             chosen,
		Parameters:         params,
		Priority:           priority,
		EstimatedDuration:  estimated,
		SuccessProbability: successProb,
		ResourceCost:       event.Severity * 0.5,
	}
}

func (g *ResponseGenerator) classify(severity float64) (Priority, float64) {
	switch {
	case severity >= g.thresholds.CriticalSeverity:
		return PriorityCritical, 0.9
	case severity >= g.thresholds.HighSeverity:
		return PriorityHigh, 0.8
	case severity >= g.thresholds.MediumSeverity:
		return PriorityMedium, 0.7
	default:
		return PriorityLow, 0.6
	}
}

func containsAction(actions []HealingAction, target HealingAction) bool {
	for _, a := range actions {
		if a == target {
			return true
		}
	}
	return false
}
