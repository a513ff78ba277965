package healing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Executor carries out a healing action against the environment. Bindings
// must produce exactly one HealingResult per dispatched response, with a
// non-negative duration, improvement metrics named consistently with the
// event's metrics, and side effects populated for known adverse
// interactions.
type Executor interface {
	Execute(ctx context.Context, response *HealingResponse, event *FailureEvent) (*HealingResult, error)
}

// dispatch runs the executor bounded by the response timeout. An executor
// error or an elapsed timeout is converted into a failed result; the caller
// stops waiting but does not preempt the in-flight action.
func dispatch(ctx context.Context, logger *zap.Logger, exec Executor, response *HealingResponse, event *FailureEvent, timeout time.Duration) *HealingResult {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *HealingResult
		err    error
	}
	done := make(chan outcome, 1)
	started := time.Now()

	go func() {
		result, err := exec.Execute(execCtx, response, event)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.Warn("Healing action failed",
				zap.String("response_id", response.ResponseID),
				zap.String("action", response.Action.String()),
				zap.Error(out.err),
			)
			return failedResult(response.ResponseID, time.Since(started))
		}
		if out.result == nil {
			logger.Warn("Healing action returned no result",
				zap.String("response_id", response.ResponseID),
				zap.String("action", response.Action.String()),
			)
			return failedResult(response.ResponseID, time.Since(started))
		}
		return out.result
	case <-execCtx.Done():
		logger.Warn("Healing action timed out",
			zap.String("response_id", response.ResponseID),
			zap.String("action", response.Action.String()),
			zap.Duration("timeout", timeout),
		)
		return failedResult(response.ResponseID, time.Since(started))
	}
}

func failedResult(responseID string, elapsed time.Duration) *HealingResult {
	if elapsed < 0 {
		elapsed = 0
	}
	return &HealingResult{
		ResponseID:         responseID,
		Success:            false,
		ActualDuration:     elapsed,
		ImprovementMetrics: map[string]float64{},
		SideEffects:        nil,
		Timestamp:          time.Now(),
	}
}

// SimulatedExecutor is the default binding: it sleeps a fraction of the
// estimated duration and samples success from the response's probability.
// Useful for exercising the learning loop without real infrastructure.
type SimulatedExecutor struct {
	logger *zap.Logger

	// Accelerate divides simulated sleep times; 0 means no sleeping at
	// all, which tests rely on.
	Accelerate int

	// ForceSuccessProbability overrides the response probability when
	// non-negative. Set to 1.0 to make every simulated action succeed.
	ForceSuccessProbability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedExecutor creates a simulated executor with its own RNG.
func NewSimulatedExecutor(logger *zap.Logger) *SimulatedExecutor {
	return &SimulatedExecutor{
		logger:                  logger,
		Accelerate:              10,
		ForceSuccessProbability: -1,
		rng:                     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed fixes the simulation RNG for reproducible runs.
func (e *SimulatedExecutor) Seed(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

// Execute simulates the healing action.
func (e *SimulatedExecutor) Execute(ctx context.Context, response *HealingResponse, event *FailureEvent) (*HealingResult, error) {
	started := time.Now()

	if e.Accelerate > 0 {
		sleep := response.EstimatedDuration / time.Duration(e.Accelerate)
		if sleep > 5*time.Second {
			sleep = 5 * time.Second
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return failedResult(response.ResponseID, time.Since(started)), nil
		}
	}

	e.mu.Lock()
	prob := response.SuccessProbability
	if e.ForceSuccessProbability >= 0 {
		prob = e.ForceSuccessProbability
	}
	success := e.rng.Float64() < prob
	improvement := map[string]float64{}
	if success {
		switch event.FailureType {
		case FailureCPUOverload:
			improvement["cpu_usage"] = 0.2 + e.rng.Float64()*0.3
		case FailureMemoryLeak:
			improvement["memory_usage"] = 0.1 + e.rng.Float64()*0.3
		case FailureNetworkTimeout:
			improvement["response_time"] = 0.3 + e.rng.Float64()*0.3
		}
	}

	var sideEffects []string
	switch response.Action {
	case ActionRestartService:
		if e.rng.Float64() < 0.1 {
			sideEffects = append(sideEffects, "brief_service_interruption")
		}
	case ActionScaleUp:
		if e.rng.Float64() < 0.05 {
			sideEffects = append(sideEffects, "increased_resource_cost")
		}
	}
	e.mu.Unlock()

	result := &HealingResult{
		ResponseID:         response.ResponseID,
		Success:            success,
		ActualDuration:     time.Since(started),
		ImprovementMetrics: improvement,
		SideEffects:        sideEffects,
		Timestamp:          time.Now(),
	}

	e.logger.Debug("Simulated healing action",
		zap.String("action", response.Action.String()),
		zap.Bool("success", success),
		zap.Duration("duration", result.ActualDuration),
	)

	return result, nil
}
