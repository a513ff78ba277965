package healing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// errorExecutor always fails outright.
type errorExecutor struct{}

func (errorExecutor) Execute(ctx context.Context, response *HealingResponse, event *FailureEvent) (*HealingResult, error) {
	return nil, errors.New("backend unavailable")
}

// nilExecutor breaks the contract by returning neither result nor error.
type nilExecutor struct{}

func (nilExecutor) Execute(ctx context.Context, response *HealingResponse, event *FailureEvent) (*HealingResult, error) {
	return nil, nil
}

// stallingExecutor never finishes within any test timeout.
type stallingExecutor struct{}

func (stallingExecutor) Execute(ctx context.Context, response *HealingResponse, event *FailureEvent) (*HealingResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testResponse(action HealingAction) *HealingResponse {
	return &HealingResponse{
		ResponseID:         "response_test",
		Action:             action,
		Parameters:         map[string]interface{}{},
		Priority:           PriorityMedium,
		EstimatedDuration:  time.Second,
		SuccessProbability: 1.0,
	}
}

func TestDispatch_ExecutorErrorBecomesFailedResult(t *testing.T) {
	logger := zaptest.NewLogger(t)

	result := dispatch(context.Background(), logger, errorExecutor{},
		testResponse(ActionRestartService), newTestEvent(FailureServiceCrash, 0.5), time.Second)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "response_test", result.ResponseID)
	assert.Empty(t, result.ImprovementMetrics)
	assert.GreaterOrEqual(t, result.ActualDuration, time.Duration(0))
}

func TestDispatch_NilResultBecomesFailedResult(t *testing.T) {
	logger := zaptest.NewLogger(t)

	result := dispatch(context.Background(), logger, nilExecutor{},
		testResponse(ActionClearCache), newTestEvent(FailureDiskFull, 0.5), time.Second)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "response_test", result.ResponseID)
	assert.Empty(t, result.ImprovementMetrics)
	assert.GreaterOrEqual(t, result.ActualDuration, time.Duration(0))
}

func TestDispatch_TimeoutBecomesFailedResult(t *testing.T) {
	logger := zaptest.NewLogger(t)

	started := time.Now()
	result := dispatch(context.Background(), logger, stallingExecutor{},
		testResponse(ActionFailover), newTestEvent(FailureNetworkTimeout, 0.5), 50*time.Millisecond)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Less(t, time.Since(started), 5*time.Second, "dispatch must not wait past the timeout")
}

func TestSimulatedExecutor_ForcedSuccess(t *testing.T) {
	executor := NewSimulatedExecutor(zaptest.NewLogger(t))
	executor.Accelerate = 0
	executor.ForceSuccessProbability = 1.0
	executor.Seed(1)

	result, err := executor.Execute(context.Background(),
		testResponse(ActionClearCache), newTestEvent(FailureCPUOverload, 0.8))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.ImprovementMetrics, "cpu_usage")
	assert.GreaterOrEqual(t, result.ImprovementMetrics["cpu_usage"], 0.2)
	assert.LessOrEqual(t, result.ImprovementMetrics["cpu_usage"], 0.5)
}

func TestSimulatedExecutor_ForcedFailureHasNoImprovements(t *testing.T) {
	executor := NewSimulatedExecutor(zaptest.NewLogger(t))
	executor.Accelerate = 0
	executor.ForceSuccessProbability = 0
	executor.Seed(1)

	result, err := executor.Execute(context.Background(),
		testResponse(ActionClearCache), newTestEvent(FailureMemoryLeak, 0.8))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.ImprovementMetrics)
}

func TestSimulatedExecutor_Deterministic(t *testing.T) {
	run := func() *HealingResult {
		executor := NewSimulatedExecutor(zaptest.NewLogger(t))
		executor.Accelerate = 0
		executor.Seed(42)
		result, err := executor.Execute(context.Background(),
			testResponse(ActionRestartService), newTestEvent(FailureServiceCrash, 0.5))
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()
	assert.Equal(t, first.Success, second.Success)
	assert.Equal(t, first.SideEffects, second.SideEffects)
}
