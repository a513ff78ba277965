package healing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/takeshi-yoshida/Naoru/internal/learning"
)

func newTestOrchestrator(t *testing.T, executor Executor) (*Orchestrator, *learning.System) {
	logger := zaptest.NewLogger(t)
	learner := learning.NewSystem(logger, learning.Config{}, nil)
	orch := NewOrchestrator(logger, Config{ResponseTimeout: 5 * time.Second}, executor, learner, nil)
	return orch, learner
}

func successfulExecutor(t *testing.T) *SimulatedExecutor {
	executor := NewSimulatedExecutor(zaptest.NewLogger(t))
	executor.Accelerate = 0
	executor.ForceSuccessProbability = 1.0
	executor.Seed(7)
	return executor
}

func TestOrchestrator_HandleFailurePipeline(t *testing.T) {
	orch, learner := newTestOrchestrator(t, successfulExecutor(t))
	orch.Agent().Seed(11)

	ctx := context.Background()
	const n = 15
	for i := 0; i < n; i++ {
		event := NewFailureEvent(FailureCPUOverload, 0.9, []string{"web-server"}, map[string]float64{"cpu_usage": 97})
		summary := orch.HandleFailure(ctx, event)

		require.True(t, summary.FailureHandled)
		assert.True(t, summary.Success)
	}

	// Every outcome was counted somewhere in the catalog.
	attempts := 0
	for _, perf := range orch.Catalog().StrategyPerformance() {
		attempts += perf.Attempts
	}
	assert.Equal(t, n, attempts)

	// Every pipeline run produced one learning experience.
	assert.Equal(t, n, learner.ExperienceCount())

	report := orch.GenerateHealthReport()
	assert.Equal(t, n, report.TotalFailuresHandled)
	assert.Equal(t, n, report.TotalHealingAttempts)
	assert.Equal(t, 1.0, report.OverallSuccessRate)
	assert.Equal(t, "HEALTHY", report.Status)
	assert.Greater(t, report.QTableCellsVisited, 0)
}

func TestOrchestrator_LearnsFromSuccess(t *testing.T) {
	orch, _ := newTestOrchestrator(t, successfulExecutor(t))
	orch.Agent().SetEpsilon(0)

	ctx := context.Background()
	event := NewFailureEvent(FailureMemoryLeak, 0.5, []string{"api"}, nil)
	summary := orch.HandleFailure(ctx, event)

	// The greedy action for a fresh table is index 0; its value must have
	// moved up after a rewarded success.
	state := EncodeState(FailureMemoryLeak, 0.5)
	assert.Greater(t, orch.Agent().QValue(state, int(summary.Action)), 0.0)
}

func TestOrchestrator_ExecutorFailureDoesNotPropagate(t *testing.T) {
	orch, _ := newTestOrchestrator(t, errorExecutor{})

	summary := orch.HandleFailure(context.Background(), NewFailureEvent(FailureServiceCrash, 0.7, nil, nil))
	require.NotNil(t, summary)
	assert.True(t, summary.FailureHandled)
	assert.False(t, summary.Success)

	report := orch.GenerateHealthReport()
	assert.Equal(t, "CRITICAL", report.Status)
}

func TestOrchestrator_DetectsRecurringFailures(t *testing.T) {
	orch, _ := newTestOrchestrator(t, successfulExecutor(t))

	ctx := context.Background()
	var summary *HandlingSummary
	for i := 0; i < 3; i++ {
		summary = orch.HandleFailure(ctx, NewFailureEvent(FailureDatabaseError, 0.6, []string{"database"}, nil))
	}

	require.NotEmpty(t, summary.PatternsDetected)
	types := make([]string, 0, len(summary.PatternsDetected))
	for _, p := range summary.PatternsDetected {
		types = append(types, p.Type)
	}
	assert.Contains(t, types, "recurring_failure")
	assert.Contains(t, types, "component_hotspot")
}

func TestOrchestrator_RetrainDecaysExploration(t *testing.T) {
	orch, _ := newTestOrchestrator(t, successfulExecutor(t))

	before := orch.Agent().Epsilon()
	orch.RetrainStrategies()
	assert.Less(t, orch.Agent().Epsilon(), before)
}

func TestOrchestrator_SnapshotRestoreReproducesPolicy(t *testing.T) {
	orch, _ := newTestOrchestrator(t, successfulExecutor(t))
	orch.Agent().Seed(3)

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		ft := FailureType(i % NumFailureTypes())
		orch.HandleFailure(ctx, NewFailureEvent(ft, float64(i%10)/10, []string{"svc"}, nil))
	}

	snap := orch.Snapshot()
	assert.Equal(t, EngineSnapshotVersion, snap.Version)
	assert.Equal(t, 30, snap.FailuresHandled)

	restored, _ := newTestOrchestrator(t, successfulExecutor(t))
	require.NoError(t, restored.Restore(snap))

	orch.Agent().SetEpsilon(0)
	restored.Agent().SetEpsilon(0)
	for state := 0; state < NumStates; state++ {
		assert.Equal(t, orch.Agent().ChooseAction(state), restored.Agent().ChooseAction(state), "state %d", state)
	}

	assert.Equal(t, 30, restored.GenerateHealthReport().TotalFailuresHandled)

	snap.Version = 99
	assert.Error(t, restored.Restore(snap))
}

func TestOrchestrator_StartStop(t *testing.T) {
	orch, _ := newTestOrchestrator(t, successfulExecutor(t))

	orch.Start()
	orch.HandleFailure(context.Background(), NewFailureEvent(FailureCPUOverload, 0.3, nil, nil))
	orch.Stop(time.Second)
}
