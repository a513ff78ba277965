package healing

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PatternConfig controls the pattern mining window and thresholds.
type PatternConfig struct {
	Window       int `yaml:"window"`
	MinFrequency int `yaml:"min_frequency"`
}

// ApplyDefaults fills unset fields with the standard mining parameters.
func (c *PatternConfig) ApplyDefaults() {
	if c.Window <= 0 {
		c.Window = 100
	}
	if c.MinFrequency <= 0 {
		c.MinFrequency = 3
	}
}

// recurringInterval is the mean inter-arrival bound under which repeated
// failures of one type count as a recurring pattern.
const recurringInterval = time.Hour

// PatternDetector mines the rolling failure history for recurring failures
// and component hotspots. Detection iterates a snapshot of the window, so
// concurrent appends from other pipeline runs are safe.
type PatternDetector struct {
	mu      sync.RWMutex
	config  PatternConfig
	history []*FailureEvent
}

// NewPatternDetector creates a detector with a bounded history window.
func NewPatternDetector(config PatternConfig) *PatternDetector {
	config.ApplyDefaults()
	return &PatternDetector{
		config:  config,
		history: make([]*FailureEvent, 0, config.Window),
	}
}

// Observe appends the event and mines the current window for patterns.
func (d *PatternDetector) Observe(event *FailureEvent) []Pattern {
	d.mu.Lock()
	d.history = append(d.history, event)
	if len(d.history) > d.config.Window {
		d.history = d.history[len(d.history)-d.config.Window:]
	}
	window := make([]*FailureEvent, len(d.history))
	copy(window, d.history)
	d.mu.Unlock()

	var patterns []Pattern

	if p, ok := d.recurringFailure(window, event.FailureType); ok {
		patterns = append(patterns, p)
	}
	patterns = append(patterns, d.componentHotspots(window)...)

	return patterns
}

func (d *PatternDetector) recurringFailure(window []*FailureEvent, ft FailureType) (Pattern, bool) {
	var times []time.Time
	for _, e := range window {
		if e.FailureType == ft {
			times = append(times, e.Timestamp)
		}
	}
	if len(times) < d.config.MinFrequency {
		return Pattern{}, false
	}

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}
	if len(intervals) == 0 {
		return Pattern{}, false
	}

	mean := stat.Mean(intervals, nil)
	if mean >= recurringInterval.Seconds() {
		return Pattern{}, false
	}

	return Pattern{
		Type:            "recurring_failure",
		FailureType:     ft,
		AverageInterval: time.Duration(mean * float64(time.Second)),
		Frequency:       len(times),
	}, true
}

func (d *PatternDetector) componentHotspots(window []*FailureEvent) []Pattern {
	counts := make(map[string]int)
	types := make(map[string]map[FailureType]struct{})
	for _, e := range window {
		for _, component := range e.AffectedComponents {
			counts[component]++
			if types[component] == nil {
				types[component] = make(map[FailureType]struct{})
			}
			types[component][e.FailureType] = struct{}{}
		}
	}

	var patterns []Pattern
	for component, count := range counts {
		if count < d.config.MinFrequency {
			continue
		}
		var fts []FailureType
		for ft := range types[component] {
			fts = append(fts, ft)
		}
		patterns = append(patterns, Pattern{
			Type:         "component_hotspot",
			Component:    component,
			Frequency:    count,
			FailureTypes: fts,
		})
	}
	return patterns
}

// HistoryLen returns the current window occupancy.
func (d *PatternDetector) HistoryLen() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.history)
}
