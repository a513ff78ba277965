package healing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReward(t *testing.T) {
	tests := []struct {
		name     string
		result   *HealingResult
		severity float64
		want     float64
	}{
		{
			name:     "instant success on severe failure",
			result:   &HealingResult{Success: true},
			severity: 1.0,
			want:     1.5,
		},
		{
			name:     "failure keeps severity bonus",
			result:   &HealingResult{Success: false},
			severity: 1.0,
			want:     -0.5,
		},
		{
			name:     "time penalty scales with duration",
			result:   &HealingResult{Success: true, ActualDuration: 60 * time.Second},
			severity: 0,
			want:     0.8,
		},
		{
			name:     "time penalty is capped",
			result:   &HealingResult{Success: true, ActualDuration: time.Hour},
			severity: 0,
			want:     0.5,
		},
		{
			name: "improvements add a tenth each",
			result: &HealingResult{
				Success:            true,
				ImprovementMetrics: map[string]float64{"cpu_usage": 0.5, "memory_usage": 0.5},
			},
			severity: 0,
			want:     1.1,
		},
		{
			name: "side effects subtract a tenth each",
			result: &HealingResult{
				Success:     true,
				SideEffects: []string{"brief_service_interruption", "increased_resource_cost"},
			},
			severity: 0,
			want:     0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateReward(tt.result, tt.severity), 1e-9)
		})
	}
}

func TestCalculateRewardClamped(t *testing.T) {
	many := make([]string, 50)
	low := CalculateReward(&HealingResult{Success: false, SideEffects: many}, 0)
	assert.Equal(t, -2.0, low)

	big := map[string]float64{}
	for i := 0; i < 50; i++ {
		big[string(rune('a'+i))] = 1.0
	}
	high := CalculateReward(&HealingResult{Success: true, ImprovementMetrics: big}, 1.0)
	assert.Equal(t, 2.0, high)
}
