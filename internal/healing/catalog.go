package healing

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

const maxPerformanceSamples = 100

// strategyStats tracks the running outcome counters for one
// (failure type, action) pair.
type strategyStats struct {
	Successes int `json:"successes"`
	Attempts  int `json:"attempts"`
}

// strategyKey identifies a (failure type, action) pair in the catalog.
type strategyKey struct {
	FailureType FailureType
	Action      HealingAction
}

func (k strategyKey) String() string {
	return k.FailureType.String() + "_" + k.Action.String()
}

// Catalog maps each failure type to a ranked shortlist of candidate actions
// and tracks historical performance per (failure type, action) pair. The
// static defaults adapt over time via RetrainShortlists.
type Catalog struct {
	mu sync.RWMutex

	shortlists    map[FailureType][]HealingAction
	stats         map[strategyKey]*strategyStats
	responseTimes map[HealingAction][]float64 // seconds, bounded
	resourceCosts map[HealingAction][]float64 // bounded
}

// NewCatalog creates a catalog seeded with the default shortlists.
func NewCatalog() *Catalog {
	return &Catalog{
		shortlists:    defaultShortlists(),
		stats:         make(map[strategyKey]*strategyStats),
		responseTimes: make(map[HealingAction][]float64),
		resourceCosts: make(map[HealingAction][]float64),
	}
}

func defaultShortlists() map[FailureType][]HealingAction {
	return map[FailureType][]HealingAction{
		FailureCPUOverload:    {ActionScaleUp, ActionThrottleRequests, ActionRestartService},
		FailureMemoryLeak:     {ActionRestartService, ActionClearCache, ActionScaleUp},
		FailureDiskFull:       {ActionClearCache, ActionAllocateResources, ActionScaleUp},
		FailureNetworkTimeout: {ActionRestartComponent, ActionFailover, ActionThrottleRequests},
		FailureServiceCrash:   {ActionRestartService, ActionFailover, ActionScaleUp},
		FailureDatabaseError:  {ActionRestartComponent, ActionFailover, ActionClearCache},
		FailureAPIRateLimit:   {ActionThrottleRequests, ActionScaleUp, ActionNoAction},
	}
}

// Shortlist returns the candidate actions for a failure type. Unseen types
// fall back to a NO_ACTION-only list.
func (c *Catalog) Shortlist(ft FailureType) []HealingAction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	actions, ok := c.shortlists[ft]
	if !ok || len(actions) == 0 {
		return []HealingAction{ActionNoAction}
	}
	out := make([]HealingAction, len(actions))
	copy(out, actions)
	return out
}

// RecordOutcome updates counters and performance samples for one completed
// healing result.
func (c *Catalog) RecordOutcome(ft FailureType, action HealingAction, success bool, duration time.Duration, resourceCost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strategyKey{FailureType: ft, Action: action}
	s, ok := c.stats[key]
	if !ok {
		s = &strategyStats{}
		c.stats[key] = s
	}
	s.Attempts++
	if success {
		s.Successes++
	}

	c.responseTimes[action] = appendBounded(c.responseTimes[action], duration.Seconds())
	c.resourceCosts[action] = appendBounded(c.resourceCosts[action], resourceCost)
}

func appendBounded(samples []float64, v float64) []float64 {
	samples = append(samples, v)
	if len(samples) > maxPerformanceSamples {
		samples = samples[len(samples)-maxPerformanceSamples:]
	}
	return samples
}

// SuccessRate returns successes/attempts for the pair and whether any
// attempts were recorded. Pairs with zero attempts have no rate.
func (c *Catalog) SuccessRate(ft FailureType, action HealingAction) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[strategyKey{FailureType: ft, Action: action}]
	if !ok || s.Attempts == 0 {
		return 0, false
	}
	return float64(s.Successes) / float64(s.Attempts), true
}

// Attempts returns the attempt count for the pair.
func (c *Catalog) Attempts(ft FailureType, action HealingAction) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[strategyKey{FailureType: ft, Action: action}]
	if !ok {
		return 0
	}
	return s.Attempts
}

// RetrainShortlists recomputes each failure type's shortlist from historical
// performance: score = 0.8*success_rate + 0.2*(1/(1+avg_response_time/60)),
// considering only actions with at least minAttempts attempts, keeping the
// top three. Failure types without enough data keep their current shortlist.
func (c *Catalog) RetrainShortlists(minAttempts int) map[FailureType][]HealingAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := make(map[FailureType][]HealingAction)

	for ft := FailureType(0); ft < numFailureTypes; ft++ {
		type scored struct {
			action HealingAction
			score  float64
		}
		var candidates []scored

		for action := HealingAction(0); action < numHealingActions; action++ {
			s, ok := c.stats[strategyKey{FailureType: ft, Action: action}]
			if !ok || s.Attempts < minAttempts {
				continue
			}
			successRate := float64(s.Successes) / float64(s.Attempts)

			avgResponseTime := 60.0
			if samples := c.responseTimes[action]; len(samples) > 0 {
				avgResponseTime = stat.Mean(samples, nil)
			}

			score := successRate*0.8 + (1/(1+avgResponseTime/60))*0.2
			candidates = append(candidates, scored{action: action, score: score})
		}

		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		if len(candidates) > 3 {
			candidates = candidates[:3]
		}

		shortlist := make([]HealingAction, len(candidates))
		for i, cand := range candidates {
			shortlist[i] = cand.action
		}

		if !equalActions(c.shortlists[ft], shortlist) {
			c.shortlists[ft] = shortlist
			updated[ft] = shortlist
		}
	}

	return updated
}

func equalActions(a, b []HealingAction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StrategyPerformance reports success rate and attempts per strategy key.
func (c *Catalog) StrategyPerformance() map[string]StrategyReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]StrategyReport, len(c.stats))
	for key, s := range c.stats {
		if s.Attempts == 0 {
			continue
		}
		out[key.String()] = StrategyReport{
			SuccessRate: float64(s.Successes) / float64(s.Attempts),
			Attempts:    s.Attempts,
		}
	}
	return out
}

// StrategyReport summarizes one strategy's historical performance.
type StrategyReport struct {
	SuccessRate float64 `json:"success_rate"`
	Attempts    int     `json:"attempts"`
}

// CatalogSnapshot is the versioned serialized form of the catalog.
type CatalogSnapshot struct {
	Version       int                        `json:"version"`
	Shortlists    map[string][]string        `json:"shortlists"`
	Stats         map[string]strategyStats   `json:"stats"`
	ResponseTimes map[string][]float64       `json:"response_times"`
	ResourceCosts map[string][]float64       `json:"resource_costs"`
}

// CatalogSnapshotVersion is the current catalog snapshot schema version.
const CatalogSnapshotVersion = 1

// Snapshot captures shortlists, counters and performance samples exactly.
func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := CatalogSnapshot{
		Version:       CatalogSnapshotVersion,
		Shortlists:    make(map[string][]string, len(c.shortlists)),
		Stats:         make(map[string]strategyStats, len(c.stats)),
		ResponseTimes: make(map[string][]float64, len(c.responseTimes)),
		ResourceCosts: make(map[string][]float64, len(c.resourceCosts)),
	}
	for ft, actions := range c.shortlists {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = a.String()
		}
		snap.Shortlists[ft.String()] = names
	}
	for key, s := range c.stats {
		snap.Stats[key.String()] = *s
	}
	for action, samples := range c.responseTimes {
		snap.ResponseTimes[action.String()] = append([]float64(nil), samples...)
	}
	for action, samples := range c.resourceCosts {
		snap.ResourceCosts[action.String()] = append([]float64(nil), samples...)
	}
	return snap
}

// Restore replaces the catalog contents from a snapshot.
func (c *Catalog) Restore(snap CatalogSnapshot) error {
	if snap.Version != CatalogSnapshotVersion {
		return fmt.Errorf("unsupported catalog snapshot version %d", snap.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.shortlists = defaultShortlists()
	for name, actionNames := range snap.Shortlists {
		ft := ParseFailureType(name)
		actions := make([]HealingAction, len(actionNames))
		for i, an := range actionNames {
			actions[i] = ParseHealingAction(an)
		}
		c.shortlists[ft] = actions
	}

	c.stats = make(map[strategyKey]*strategyStats, len(snap.Stats))
	for keyName, s := range snap.Stats {
		key, err := parseStrategyKey(keyName)
		if err != nil {
			return err
		}
		stats := s
		c.stats[key] = &stats
	}

	c.responseTimes = make(map[HealingAction][]float64, len(snap.ResponseTimes))
	for name, samples := range snap.ResponseTimes {
		c.responseTimes[ParseHealingAction(name)] = append([]float64(nil), samples...)
	}
	c.resourceCosts = make(map[HealingAction][]float64, len(snap.ResourceCosts))
	for name, samples := range snap.ResourceCosts {
		c.resourceCosts[ParseHealingAction(name)] = append([]float64(nil), samples...)
	}
	return nil
}

func parseStrategyKey(s string) (strategyKey, error) {
	for ft := FailureType(0); ft < numFailureTypes; ft++ {
		prefix := ft.String() + "_"
		if len(s) > len(prefix) && s[:len(prefix)] == prefix {
			return strategyKey{
				FailureType: ft,
				Action:      ParseHealingAction(s[len(prefix):]),
			}, nil
		}
	}
	return strategyKey{}, fmt.Errorf("malformed strategy key %q", s)
}
