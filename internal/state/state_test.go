package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/takeshi-yoshida/Naoru/internal/healing"
	"github.com/takeshi-yoshida/Naoru/internal/rl"
)

func newTestPersister(t *testing.T) *Persister {
	path := filepath.Join(t.TempDir(), "state.json.zst")
	p, err := NewPersister(zaptest.NewLogger(t), Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func trainedSnapshot(t *testing.T) *healing.EngineSnapshot {
	logger := zaptest.NewLogger(t)
	executor := healing.NewSimulatedExecutor(logger)
	executor.Accelerate = 0
	executor.ForceSuccessProbability = 1.0

	orch := healing.NewOrchestrator(logger, healing.Config{}, executor, nil, nil)
	for i := 0; i < 10; i++ {
		orch.HandleFailure(context.Background(), healing.NewFailureEvent(healing.FailureCPUOverload, 0.8, []string{"web"}, nil))
	}
	return orch.Snapshot()
}

func TestPersister_SaveLoadRoundTrip(t *testing.T) {
	p := newTestPersister(t)
	snap := trainedSnapshot(t)

	require.NoError(t, p.Save(snap))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snap.Version, loaded.Version)
	assert.Equal(t, snap.FailuresHandled, loaded.FailuresHandled)
	assert.Equal(t, snap.Agent.QTable, loaded.Agent.QTable)
	assert.Equal(t, snap.Agent.Epsilon, loaded.Agent.Epsilon)
	assert.Equal(t, snap.Catalog.Stats, loaded.Catalog.Stats)
}

func TestPersister_MissingFileIsNotAnError(t *testing.T) {
	p := newTestPersister(t)

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPersister_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	p, err := NewPersister(zaptest.NewLogger(t), Config{Path: path})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load()
	assert.Error(t, err)
}

func TestPersister_RejectsUnknownVersion(t *testing.T) {
	p := newTestPersister(t)

	snap := trainedSnapshot(t)
	snap.Version = 99
	require.NoError(t, p.Save(snap))

	_, err := p.Load()
	assert.Error(t, err)
}

func TestPersister_SaveReplacesAtomically(t *testing.T) {
	p := newTestPersister(t)

	first := trainedSnapshot(t)
	require.NoError(t, p.Save(first))

	second := trainedSnapshot(t)
	second.FailuresHandled = 999
	require.NoError(t, p.Save(second))

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, 999, loaded.FailuresHandled)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(p.config.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRestoredSnapshotDrivesAgent(t *testing.T) {
	p := newTestPersister(t)
	snap := trainedSnapshot(t)
	require.NoError(t, p.Save(snap))

	loaded, err := p.Load()
	require.NoError(t, err)

	agent := rl.NewAgent(healing.NumStates, healing.NumActions, rl.Config{})
	require.NoError(t, agent.Restore(loaded.Agent))
	assert.Greater(t, agent.VisitedCells(), 0)
}
