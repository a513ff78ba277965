package healing

// Reward shaping for the Q-update. A single scalar combines outcome,
// severity, latency, measured improvement and side effects, clamped to
// [-2, 2]. Attempting to fix severe issues earns the severity bonus
// regardless of outcome.

const (
	rewardFloor = -2.0
	rewardCeil  = 2.0
)

// CalculateReward derives the learning signal for one healing result.
func CalculateReward(result *HealingResult, failureSeverity float64) float64 {
	base := -1.0
	if result.Success {
		base = 1.0
	}

	severityBonus := failureSeverity * 0.5

	timePenalty := result.ActualDuration.Seconds() / 300.0
	if timePenalty > 0.5 {
		timePenalty = 0.5
	}

	improvementBonus := 0.0
	for _, v := range result.ImprovementMetrics {
		improvementBonus += v
	}
	improvementBonus *= 0.1

	sideEffectPenalty := float64(len(result.SideEffects)) * 0.1

	reward := base + severityBonus - timePenalty + improvementBonus - sideEffectPenalty
	if reward < rewardFloor {
		return rewardFloor
	}
	if reward > rewardCeil {
		return rewardCeil
	}
	return reward
}
