package healing

// The state codec keeps the agent's state space finite: one state per
// (failure type, severity bucket) pair, five buckets of width 0.2.

const severityBuckets = 5

// NumStates is the size of the agent's state space.
const NumStates = int(numFailureTypes) * severityBuckets

// NumActions is the size of the agent's action space.
const NumActions = int(numHealingActions)

// NumFailureTypes returns the number of failure type classes.
func NumFailureTypes() int { return int(numFailureTypes) }

// clamp01 bounds severity to [0, 1] before bucketing.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EncodeState maps a failure type and severity to a state index in
// [0, NumStates). Severity 1.0 folds into the top bucket.
func EncodeState(ft FailureType, severity float64) int {
	bucket := int(clamp01(severity) * severityBuckets)
	if bucket > severityBuckets-1 {
		bucket = severityBuckets - 1
	}
	return int(ft)*severityBuckets + bucket
}

// DecodeAction maps an action index back to its HealingAction. The index
// must be in [0, NumActions); the agent is only called via this codec.
func DecodeAction(idx int) HealingAction {
	return HealingAction(idx)
}
