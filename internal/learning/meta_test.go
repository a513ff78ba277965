package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taggedExperience(tag string, success bool) *Experience {
	return &Experience{
		ExperienceID:   NewExperienceID(),
		ExperienceType: "optimization",
		Timestamp:      time.Now(),
		Context: map[string]interface{}{
			"learning_strategy": tag,
		},
		ActionTaken:     "tune",
		Outcome:         map[string]interface{}{"success": success},
		ConfidenceScore: 0.6,
	}
}

func TestMeta_NoRecommendationBelowAttemptFloor(t *testing.T) {
	meta := NewMeta()
	for i := 0; i < 5; i++ {
		meta.Learn(taggedExperience("pattern_based", true))
	}
	// Exactly five attempts is not enough; the floor is strict.
	assert.Empty(t, meta.Recommend(nil))
}

func TestMeta_RecommendsBestStrategy(t *testing.T) {
	meta := NewMeta()
	for i := 0; i < 10; i++ {
		meta.Learn(taggedExperience("pattern_based", i%2 == 0))
	}
	for i := 0; i < 10; i++ {
		meta.Learn(taggedExperience("gradient", i != 0))
	}

	recs := meta.Recommend(nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "learning_strategy", recs[0].Type)
	assert.Equal(t, "gradient", recs[0].SuggestedStrategy)
	assert.InDelta(t, 0.9, recs[0].SuccessRate, 1e-12)
	assert.InDelta(t, 0.5, recs[0].Confidence, 1e-12)
}

func TestMeta_UntaggedExperiencesGoToUnknown(t *testing.T) {
	meta := NewMeta()
	for i := 0; i < 10; i++ {
		exp := taggedExperience("", true)
		delete(exp.Context, "learning_strategy")
		meta.Learn(exp)
	}

	recs := meta.Recommend(nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "unknown", recs[0].SuggestedStrategy)
}

func TestMeta_SnapshotRoundTrip(t *testing.T) {
	meta := NewMeta()
	for i := 0; i < 12; i++ {
		meta.Learn(taggedExperience("pattern_based", i%3 != 0))
	}

	snap := meta.Snapshot()
	restored := NewMeta()
	restored.Restore(snap)

	assert.Equal(t, meta.Recommend(nil), restored.Recommend(nil))
}
