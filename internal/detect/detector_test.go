package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/takeshi-yoshida/Naoru/internal/healing"
)

type captureHandler struct {
	events []*healing.FailureEvent
}

func (h *captureHandler) HandleFailure(ctx context.Context, event *healing.FailureEvent) *healing.HandlingSummary {
	h.events = append(h.events, event)
	return &healing.HandlingSummary{FailureHandled: true}
}

func TestDetector_FireForwardsEvent(t *testing.T) {
	handler := &captureHandler{}
	detector := NewDetector(zaptest.NewLogger(t), Config{}, handler)

	detector.fire(context.Background(), healing.FailureCPUOverload, 95, 85,
		[]string{"host"}, map[string]float64{"cpu_percent": 95})

	require.Len(t, handler.events, 1)
	event := handler.events[0]
	assert.Equal(t, healing.FailureCPUOverload, event.FailureType)
	assert.Equal(t, []string{"host"}, event.AffectedComponents)
	// (95-85)/(100-85)
	assert.InDelta(t, 2.0/3.0, event.Severity, 1e-9)
}

func TestDetector_SeverityBounds(t *testing.T) {
	handler := &captureHandler{}
	detector := NewDetector(zaptest.NewLogger(t), Config{}, handler)

	// Barely past the threshold still carries a minimum severity.
	detector.fire(context.Background(), healing.FailureMemoryLeak, 90.1, 90, nil, nil)
	require.Len(t, handler.events, 1)
	assert.InDelta(t, 0.1, handler.events[0].Severity, 1e-9)

	// Pegged readings clamp to full severity.
	detector.fire(context.Background(), healing.FailureDiskFull, 100, 90, nil, nil)
	require.Len(t, handler.events, 2)
	assert.InDelta(t, 1.0, handler.events[1].Severity, 1e-9)
}

func TestDetector_CooldownSuppressesRepeats(t *testing.T) {
	handler := &captureHandler{}
	detector := NewDetector(zaptest.NewLogger(t), Config{CooldownPerSignal: time.Hour}, handler)

	ctx := context.Background()
	detector.fire(ctx, healing.FailureCPUOverload, 95, 85, nil, nil)
	detector.fire(ctx, healing.FailureCPUOverload, 99, 85, nil, nil)
	assert.Len(t, handler.events, 1, "second breach within the cooldown is dropped")

	// Other signals have independent cooldowns.
	detector.fire(ctx, healing.FailureMemoryLeak, 95, 90, nil, nil)
	assert.Len(t, handler.events, 2)
}

func TestDetectorConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 85.0, cfg.CPUThreshold)
	assert.Equal(t, 90.0, cfg.MemoryThreshold)
	assert.Equal(t, "/", cfg.DiskPath)
}
