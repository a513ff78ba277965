// Package rl implements the tabular Q-learning policy that drives healing
// action selection.
package rl

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Config holds the agent's learning parameters.
type Config struct {
	LearningRate   float64 `yaml:"learning_rate"`
	DiscountFactor float64 `yaml:"discount_factor"`
	Epsilon        float64 `yaml:"epsilon"`
	EpsilonDecay   float64 `yaml:"epsilon_decay"`
	MinEpsilon     float64 `yaml:"min_epsilon"`
}

// ApplyDefaults fills unset fields with the standard parameters.
func (c *Config) ApplyDefaults() {
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.DiscountFactor <= 0 {
		c.DiscountFactor = 0.9
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 0.2
	}
	if c.EpsilonDecay <= 0 {
		c.EpsilonDecay = 0.995
	}
	if c.MinEpsilon <= 0 {
		c.MinEpsilon = 0.01
	}
}

// Agent is a tabular Q-learning agent. The Q-table and visit counts are
// owned exclusively by the agent and guarded by a single mutex; callers
// interact only through ChooseAction, Update and DecayEpsilon.
type Agent struct {
	mu sync.Mutex

	nStates  int
	nActions int

	qTable *mat.Dense
	visits *mat.Dense

	learningRate   float64
	discountFactor float64
	epsilon        float64
	minEpsilon     float64

	rng *rand.Rand
}

// NewAgent creates an agent over an nStates x nActions value table.
func NewAgent(nStates, nActions int, cfg Config) *Agent {
	cfg.ApplyDefaults()
	return &Agent{
		nStates:        nStates,
		nActions:       nActions,
		qTable:         mat.NewDense(nStates, nActions, nil),
		visits:         mat.NewDense(nStates, nActions, nil),
		learningRate:   cfg.LearningRate,
		discountFactor: cfg.DiscountFactor,
		epsilon:        cfg.Epsilon,
		minEpsilon:     cfg.MinEpsilon,
		rng:            rand.New(rand.NewSource(rand.Int63())),
	}
}

// Seed fixes the exploration RNG. Intended for tests and deterministic replay.
func (a *Agent) Seed(seed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng = rand.New(rand.NewSource(seed))
}

// ChooseAction returns an action index for the given state using an
// epsilon-greedy policy. Exploitation ties break toward the lowest index.
func (a *Agent) ChooseAction(state int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() < a.epsilon {
		return a.rng.Intn(a.nActions)
	}
	return a.argmaxLocked(state)
}

func (a *Agent) argmaxLocked(state int) int {
	best := 0
	bestVal := a.qTable.At(state, 0)
	for j := 1; j < a.nActions; j++ {
		if v := a.qTable.At(state, j); v > bestVal {
			best = j
			bestVal = v
		}
	}
	return best
}

// Update applies the TD(0) rule for one observed transition and increments
// the visit count for (state, action).
func (a *Agent) Update(state, action int, reward float64, nextState int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bestNext := a.qTable.At(nextState, a.argmaxLocked(nextState))
	target := reward + a.discountFactor*bestNext
	current := a.qTable.At(state, action)
	a.qTable.Set(state, action, current+a.learningRate*(target-current))
	a.visits.Set(state, action, a.visits.At(state, action)+1)
}

// DecayEpsilon multiplies the exploration rate by the decay factor, never
// dropping below the configured floor.
func (a *Agent) DecayEpsilon(rate float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.epsilon *= rate
	if a.epsilon < a.minEpsilon {
		a.epsilon = a.minEpsilon
	}
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// SetEpsilon overrides the exploration rate directly. The min-epsilon floor
// only applies to decay; an explicit zero disables exploration entirely.
func (a *Agent) SetEpsilon(eps float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epsilon = eps
}

// QValue returns the current value estimate for (state, action).
func (a *Agent) QValue(state, action int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.qTable.At(state, action)
}

// VisitedCells counts (state, action) pairs with at least one update.
func (a *Agent) VisitedCells() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for i := 0; i < a.nStates; i++ {
		for j := 0; j < a.nActions; j++ {
			if a.visits.At(i, j) > 0 {
				count++
			}
		}
	}
	return count
}

// TableSize returns the total number of Q-table entries.
func (a *Agent) TableSize() int {
	return a.nStates * a.nActions
}

// Snapshot is the versioned serialized form of the agent's learned state.
type Snapshot struct {
	Version  int       `json:"version"`
	NStates  int       `json:"n_states"`
	NActions int       `json:"n_actions"`
	QTable   []float64 `json:"q_table"`
	Visits   []float64 `json:"visits"`
	Epsilon  float64   `json:"epsilon"`
}

// SnapshotVersion is the current agent snapshot schema version.
const SnapshotVersion = 1

// Snapshot captures the Q-table, visit counts and exploration rate exactly.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := make([]float64, a.nStates*a.nActions)
	v := make([]float64, a.nStates*a.nActions)
	copy(q, a.qTable.RawMatrix().Data)
	copy(v, a.visits.RawMatrix().Data)

	return Snapshot{
		Version:  SnapshotVersion,
		NStates:  a.nStates,
		NActions: a.nActions,
		QTable:   q,
		Visits:   v,
		Epsilon:  a.epsilon,
	}
}

// Restore replaces the agent's learned state from a snapshot. The snapshot
// is validated rather than trusted: shape and version must match.
func (a *Agent) Restore(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported agent snapshot version %d", s.Version)
	}
	if s.NStates != a.nStates || s.NActions != a.nActions {
		return fmt.Errorf("snapshot shape %dx%d does not match agent %dx%d",
			s.NStates, s.NActions, a.nStates, a.nActions)
	}
	if len(s.QTable) != a.nStates*a.nActions || len(s.Visits) != a.nStates*a.nActions {
		return fmt.Errorf("snapshot table length mismatch")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.qTable = mat.NewDense(a.nStates, a.nActions, append([]float64(nil), s.QTable...))
	a.visits = mat.NewDense(a.nStates, a.nActions, append([]float64(nil), s.Visits...))
	a.epsilon = s.Epsilon
	return nil
}
