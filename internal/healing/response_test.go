package healing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedChooser always suggests the same action index.
type fixedChooser struct {
	action HealingAction
}

func (f fixedChooser) ChooseAction(state int) int { return int(f.action) }

func newTestEvent(ft FailureType, severity float64) *FailureEvent {
	return NewFailureEvent(ft, severity, []string{"web-server"}, map[string]float64{"cpu_usage": 95})
}

func TestGenerate_ColdStartTrustsTheAgent(t *testing.T) {
	// scale_down is not in the CPU shortlist, but during cold start the
	// raw suggestion is used anyway.
	gen := NewResponseGenerator(fixedChooser{ActionScaleDown}, NewCatalog(), Thresholds{})

	for handled := 0; handled < 10; handled++ {
		resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.5), handled)
		assert.Equal(t, ActionScaleDown, resp.Action, "handled=%d", handled)
	}
}

func TestGenerate_FallsBackToShortlistAfterWarmup(t *testing.T) {
	catalog := NewCatalog()
	// throttle_requests has the best record among the CPU shortlist.
	catalog.RecordOutcome(FailureCPUOverload, ActionThrottleRequests, true, time.Second, 0.1)
	catalog.RecordOutcome(FailureCPUOverload, ActionScaleUp, false, time.Second, 0.1)

	gen := NewResponseGenerator(fixedChooser{ActionScaleDown}, catalog, Thresholds{})

	resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.5), 10)
	assert.Equal(t, ActionThrottleRequests, resp.Action)
}

func TestGenerate_FallbackWithoutHistoryUsesShortlistHead(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionScaleDown}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.5), 50)
	assert.Equal(t, ActionScaleUp, resp.Action)
}

func TestGenerate_ShortlistedSuggestionIsKept(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionThrottleRequests}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.5), 100)
	assert.Equal(t, ActionThrottleRequests, resp.Action)
}

func TestGenerate_ScaleFactorGrowsWithSeverityAndCaps(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionScaleUp}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.5), 0)
	assert.InDelta(t, 2.25, resp.Parameters["scale_factor"].(float64), 1e-9)

	resp = gen.Generate(newTestEvent(FailureCPUOverload, 1.0), 0)
	assert.InDelta(t, 3.0, resp.Parameters["scale_factor"].(float64), 1e-9)
}

func TestGenerate_ThrottleRateShrinksWithSeverityAndFloors(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionThrottleRequests}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureAPIRateLimit, 0.5), 0)
	assert.InDelta(t, 0.375, resp.Parameters["throttle_rate"].(float64), 1e-9)

	resp = gen.Generate(newTestEvent(FailureAPIRateLimit, 1.0), 0)
	assert.InDelta(t, 0.25, resp.Parameters["throttle_rate"].(float64), 1e-9)
}

func TestGenerate_PriorityAndProbabilityBands(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionNoAction}, NewCatalog(), Thresholds{})

	tests := []struct {
		severity float64
		priority Priority
		prob     float64
	}{
		{0.9, PriorityCritical, 0.9},
		{0.8, PriorityCritical, 0.9},
		{0.7, PriorityHigh, 0.8},
		{0.5, PriorityMedium, 0.7},
		{0.1, PriorityLow, 0.6},
	}
	for _, tt := range tests {
		resp := gen.Generate(newTestEvent(FailureUnknown, tt.severity), 0)
		assert.Equal(t, tt.priority, resp.Priority, "severity %.1f", tt.severity)
		assert.InDelta(t, tt.prob, resp.SuccessProbability, 1e-9, "severity %.1f", tt.severity)
	}
}

func TestGenerate_BlendsEmpiricalRateAtFiveAttempts(t *testing.T) {
	catalog := NewCatalog()
	for i := 0; i < 4; i++ {
		catalog.RecordOutcome(FailureCPUOverload, ActionScaleUp, true, time.Second, 0.1)
	}
	gen := NewResponseGenerator(fixedChooser{ActionScaleUp}, catalog, Thresholds{})

	// Four attempts: base estimate only.
	resp := gen.Generate(newTestEvent(FailureCPUOverload, 0.9), 0)
	assert.InDelta(t, 0.9, resp.SuccessProbability, 1e-9)

	// Fifth attempt crosses the blend threshold: (0.9 + 1.0) / 2.
	catalog.RecordOutcome(FailureCPUOverload, ActionScaleUp, true, time.Second, 0.1)
	resp = gen.Generate(newTestEvent(FailureCPUOverload, 0.9), 0)
	assert.InDelta(t, 0.95, resp.SuccessProbability, 1e-9)
}

func TestGenerate_ResponseShape(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionRestartService}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureServiceCrash, 0.6), 0)
	require.NotEmpty(t, resp.ResponseID)
	assert.Equal(t, 30*time.Second, resp.EstimatedDuration)
	assert.InDelta(t, 0.3, resp.ResourceCost, 1e-9)
	assert.Equal(t, true, resp.Parameters["graceful"])

	// Parameter maps are never shared between responses.
	resp.Parameters["graceful"] = false
	next := gen.Generate(newTestEvent(FailureServiceCrash, 0.6), 0)
	assert.Equal(t, true, next.Parameters["graceful"])
}

func TestGenerate_UnknownTypeAfterWarmupIsNoAction(t *testing.T) {
	gen := NewResponseGenerator(fixedChooser{ActionFailover}, NewCatalog(), Thresholds{})

	resp := gen.Generate(newTestEvent(FailureUnknown, 0.5), 20)
	assert.Equal(t, ActionNoAction, resp.Action)
	assert.Equal(t, time.Second, resp.EstimatedDuration)
}
