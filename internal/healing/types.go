package healing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureType identifies a class of operational failure. The ordering is
// significant: the state codec derives state indices from it.
type FailureType int

const (
	FailureCPUOverload FailureType = iota
	FailureMemoryLeak
	FailureDiskFull
	FailureNetworkTimeout
	FailureServiceCrash
	FailureDatabaseError
	FailureAPIRateLimit
	FailureUnknown

	numFailureTypes
)

var failureTypeNames = [...]string{
	"cpu_overload",
	"memory_leak",
	"disk_full",
	"network_timeout",
	"service_crash",
	"database_error",
	"api_rate_limit",
	"unknown",
}

// String returns the canonical name of the failure type.
func (f FailureType) String() string {
	if f < 0 || int(f) >= len(failureTypeNames) {
		return "unknown"
	}
	return failureTypeNames[f]
}

// ParseFailureType resolves a canonical name back to its FailureType.
// Unrecognized names map to FailureUnknown.
func ParseFailureType(name string) FailureType {
	for i, n := range failureTypeNames {
		if n == name {
			return FailureType(i)
		}
	}
	return FailureUnknown
}

// HealingAction identifies a remedial action. The ordering is significant:
// it is the agent's action index.
type HealingAction int

const (
	ActionRestartService HealingAction = iota
	ActionScaleUp
	ActionScaleDown
	ActionClearCache
	ActionRestartComponent
	ActionFailover
	ActionThrottleRequests
	ActionAllocateResources
	ActionNoAction

	numHealingActions
)

var healingActionNames = [...]string{
	"restart_service",
	"scale_up",
	"scale_down",
	"clear_cache",
	"restart_component",
	"failover",
	"throttle_requests",
	"allocate_resources",
	"no_action",
}

// String returns the canonical name of the healing action.
func (a HealingAction) String() string {
	if a < 0 || int(a) >= len(healingActionNames) {
		return "no_action"
	}
	return healingActionNames[a]
}

// ParseHealingAction resolves a canonical name back to its HealingAction.
// Unrecognized names map to ActionNoAction.
func ParseHealingAction(name string) HealingAction {
	for i, n := range healingActionNames {
		if n == name {
			return HealingAction(i)
		}
	}
	return ActionNoAction
}

// Priority orders healing responses; lower values are more urgent.
type Priority int

const (
	PriorityCritical Priority = iota + 1
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// FailureEvent describes a detected failure. It is created once by the
// detection layer and read-only afterwards.
type FailureEvent struct {
	EventID            string             `json:"event_id"`
	FailureType        FailureType        `json:"failure_type"`
	Severity           float64            `json:"severity"`
	AffectedComponents []string           `json:"affected_components"`
	Metrics            map[string]float64 `json:"metrics"`
	Timestamp          time.Time          `json:"timestamp"`
}

// NewFailureEvent builds a FailureEvent with a fresh ID and timestamp.
func NewFailureEvent(ft FailureType, severity float64, components []string, metrics map[string]float64) *FailureEvent {
	return &FailureEvent{
		EventID:            "failure_" + uuid.NewString(),
		FailureType:        ft,
		Severity:           severity,
		AffectedComponents: components,
		Metrics:            metrics,
		Timestamp:          time.Now(),
	}
}

// HealingResponse is a fully parameterized remedial action. Never mutated
// after creation.
type HealingResponse struct {
	ResponseID         string                 `json:"response_id"`
	Action             HealingAction          `json:"action"`
	Parameters         map[string]interface{} `json:"parameters"`
	Priority           Priority               `json:"priority"`
	EstimatedDuration  time.Duration          `json:"estimated_duration"`
	SuccessProbability float64                `json:"success_probability"`
	ResourceCost       float64                `json:"resource_cost"`
}

// HealingResult records the outcome of exactly one dispatched response.
type HealingResult struct {
	ResponseID         string             `json:"response_id"`
	Success            bool               `json:"success"`
	ActualDuration     time.Duration      `json:"actual_duration"`
	ImprovementMetrics map[string]float64 `json:"improvement_metrics"`
	SideEffects        []string           `json:"side_effects"`
	Timestamp          time.Time          `json:"timestamp"`
}

// Pattern is a mined regularity in the failure history.
type Pattern struct {
	Type            string        `json:"type"`
	FailureType     FailureType   `json:"failure_type,omitempty"`
	Component       string        `json:"component,omitempty"`
	AverageInterval time.Duration `json:"average_interval,omitempty"`
	Frequency       int           `json:"frequency"`
	FailureTypes    []FailureType `json:"failure_types,omitempty"`
}

// HandlingSummary is the structured result of one HandleFailure pipeline run.
type HandlingSummary struct {
	FailureHandled     bool               `json:"failure_handled"`
	Action             HealingAction      `json:"healing_action"`
	Success            bool               `json:"success"`
	Duration           time.Duration      `json:"duration"`
	PatternsDetected   []Pattern          `json:"patterns_detected"`
	ImprovementMetrics map[string]float64 `json:"improvement_metrics"`
	SideEffects        []string           `json:"side_effects"`
}
