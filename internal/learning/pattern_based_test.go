package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failureExperience(action string, severity float64, success bool) *Experience {
	return &Experience{
		ExperienceID:   NewExperienceID(),
		ExperienceType: "failure",
		Timestamp:      time.Now(),
		Context: map[string]interface{}{
			"failure_type": "cpu_overload",
			"severity":     severity,
		},
		ActionTaken:     action,
		Outcome:         map[string]interface{}{"success": success},
		ConfidenceScore: 0.8,
	}
}

func TestPatternKey(t *testing.T) {
	exp := failureExperience("scale_up", 0.9, true)
	assert.Equal(t, "failure_scale_up_cpu_overload_high", PatternKey(exp))

	exp = failureExperience("scale_up", 0.5, true)
	assert.Equal(t, "failure_scale_up_cpu_overload_medium", PatternKey(exp))

	exp = failureExperience("scale_up", 0.4, true)
	assert.Equal(t, "failure_scale_up_cpu_overload_low", PatternKey(exp))

	// Missing context keys shorten the key instead of failing.
	exp.Context = map[string]interface{}{}
	assert.Equal(t, "failure_scale_up", PatternKey(exp))
}

func TestPatternBased_ConfidenceGrowsWithEvidence(t *testing.T) {
	strategy := NewPatternBased()

	var result LearnResult
	for i := 0; i < 5; i++ {
		result = strategy.Learn(failureExperience("scale_up", 0.9, true))
	}
	assert.Equal(t, 5, result.Frequency)
	assert.InDelta(t, 0.5, result.Confidence, 1e-12)

	// Confidence saturates at 1.0.
	for i := 0; i < 20; i++ {
		result = strategy.Learn(failureExperience("scale_up", 0.9, true))
	}
	assert.InDelta(t, 1.0, result.Confidence, 1e-12)
}

func TestPatternBased_RecommendsProvenAction(t *testing.T) {
	strategy := NewPatternBased()
	for i := 0; i < 5; i++ {
		strategy.Learn(failureExperience("scale_up", 0.9, true))
	}

	recs := strategy.Recommend(map[string]interface{}{"failure_type": "cpu_overload"})
	require.NotEmpty(t, recs)
	assert.Equal(t, "scale_up", recs[0].Action)
	assert.Equal(t, 1.0, recs[0].SuccessRate)
	assert.InDelta(t, 0.5, recs[0].Confidence, 1e-12)
	assert.Equal(t, 5, recs[0].Support)
}

func TestPatternBased_IrrelevantContextYieldsNothing(t *testing.T) {
	strategy := NewPatternBased()
	for i := 0; i < 5; i++ {
		strategy.Learn(failureExperience("scale_up", 0.9, true))
	}

	assert.Empty(t, strategy.Recommend(map[string]interface{}{"failure_type": "disk_full"}))
	assert.Empty(t, strategy.Recommend(nil))
}

func TestPatternBased_RecommendCapsAtFive(t *testing.T) {
	strategy := NewPatternBased()
	actions := []string{"scale_up", "restart_service", "clear_cache", "throttle_requests", "failover", "scale_down", "no_action"}
	for _, action := range actions {
		for _, sev := range []float64{0.2, 0.5, 0.9} {
			strategy.Learn(failureExperience(action, sev, true))
		}
	}

	recs := strategy.Recommend(map[string]interface{}{"failure_type": "cpu_overload"})
	assert.Len(t, recs, 5)
}

func TestPatternBased_Decay(t *testing.T) {
	strategy := NewPatternBased()
	result := strategy.Learn(failureExperience("scale_up", 0.9, true))
	key := result.PatternKey

	strategy.Decay(0.1)
	strategy.Decay(0.1)

	recs := strategy.Recommend(map[string]interface{}{"failure_type": "cpu_overload"})
	require.NotEmpty(t, recs)
	assert.InDelta(t, 0.1*0.9*0.9, recs[0].Confidence, 1e-12)
	assert.Equal(t, key, recs[0].PatternKey)
}

func TestPatternBased_LowPerformers(t *testing.T) {
	strategy := NewPatternBased()
	for i := 0; i < 12; i++ {
		strategy.Learn(failureExperience("failover", 0.9, i%4 == 0))
	}
	for i := 0; i < 12; i++ {
		strategy.Learn(failureExperience("scale_up", 0.9, true))
	}

	low := strategy.LowPerformers(10, 0.4)
	require.Len(t, low, 1)
	assert.Contains(t, low[0], "failover")

	assert.Empty(t, strategy.LowPerformers(20, 0.4), "attempt floor filters everything")
}

func TestPatternBased_SnapshotRoundTrip(t *testing.T) {
	strategy := NewPatternBased()
	for i := 0; i < 7; i++ {
		strategy.Learn(failureExperience("clear_cache", 0.3, i%2 == 0))
	}

	snap := strategy.Snapshot()
	restored := NewPatternBased()
	restored.Restore(snap)

	want := strategy.Recommend(map[string]interface{}{"failure_type": "cpu_overload"})
	got := restored.Recommend(map[string]interface{}{"failure_type": "cpu_overload"})
	assert.Equal(t, want, got)

	total, _, avg := restored.Stats()
	wantTotal, _, wantAvg := strategy.Stats()
	assert.Equal(t, wantTotal, total)
	assert.InDelta(t, wantAvg, avg, 1e-12)
}

func TestPatternBased_StatsCountsHighConfidence(t *testing.T) {
	strategy := NewPatternBased()
	for i := 0; i < 8; i++ {
		strategy.Learn(failureExperience("scale_up", 0.9, true))
	}
	strategy.Learn(failureExperience("restart_service", 0.9, true))

	total, high, avg := strategy.Stats()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, high)
	assert.InDelta(t, (0.8+0.1)/2, avg, 1e-12)
}
