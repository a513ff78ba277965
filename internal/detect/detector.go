// Package detect probes host resource usage and emits failure events when
// thresholds are crossed, feeding the healing pipeline with real signals.
package detect

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/healing"
)

// Config controls the resource probes.
type Config struct {
	Enabled           bool          `yaml:"enabled"`
	Interval          time.Duration `yaml:"interval"`
	CPUThreshold      float64       `yaml:"cpu_threshold"`
	MemoryThreshold   float64       `yaml:"memory_threshold"`
	DiskThreshold     float64       `yaml:"disk_threshold"`
	DiskPath          string        `yaml:"disk_path"`
	CooldownPerSignal time.Duration `yaml:"cooldown_per_signal"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = 85
	}
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = 90
	}
	if c.DiskThreshold <= 0 {
		c.DiskThreshold = 90
	}
	if c.DiskPath == "" {
		c.DiskPath = "/"
	}
	if c.CooldownPerSignal <= 0 {
		c.CooldownPerSignal = 5 * time.Minute
	}
}

// Handler consumes detected failure events.
type Handler interface {
	HandleFailure(ctx context.Context, event *healing.FailureEvent) *healing.HandlingSummary
}

// Detector samples host metrics on an interval and forwards threshold
// breaches as failure events. Each signal has its own cooldown so a
// sustained breach does not flood the pipeline.
type Detector struct {
	logger  *zap.Logger
	config  Config
	handler Handler

	lastFired map[healing.FailureType]time.Time
}

// NewDetector creates a detector forwarding to the given handler.
func NewDetector(logger *zap.Logger, config Config, handler Handler) *Detector {
	config.ApplyDefaults()
	return &Detector{
		logger:    logger,
		config:    config,
		handler:   handler,
		lastFired: make(map[healing.FailureType]time.Time),
	}
}

// Run probes until the context is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.logger.Info("Resource detector started",
		zap.Duration("interval", d.config.Interval),
		zap.Float64("cpu_threshold", d.config.CPUThreshold),
		zap.Float64("memory_threshold", d.config.MemoryThreshold),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.probe(ctx)
		}
	}
}

func (d *Detector) probe(ctx context.Context) {
	if usage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usage) > 0 {
		if usage[0] > d.config.CPUThreshold {
			d.fire(ctx, healing.FailureCPUOverload, usage[0], d.config.CPUThreshold,
				[]string{"host"}, map[string]float64{"cpu_percent": usage[0]})
		}
	} else if err != nil {
		d.logger.Debug("CPU probe failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		if vm.UsedPercent > d.config.MemoryThreshold {
			d.fire(ctx, healing.FailureMemoryLeak, vm.UsedPercent, d.config.MemoryThreshold,
				[]string{"host"}, map[string]float64{"memory_percent": vm.UsedPercent})
		}
	} else {
		d.logger.Debug("Memory probe failed", zap.Error(err))
	}

	if du, err := disk.UsageWithContext(ctx, d.config.DiskPath); err == nil {
		if du.UsedPercent > d.config.DiskThreshold {
			d.fire(ctx, healing.FailureDiskFull, du.UsedPercent, d.config.DiskThreshold,
				[]string{"storage"}, map[string]float64{"disk_percent": du.UsedPercent})
		}
	} else {
		d.logger.Debug("Disk probe failed", zap.Error(err))
	}
}

// fire forwards one breach, scaling severity by how far past the
// threshold the reading is.
func (d *Detector) fire(ctx context.Context, ft healing.FailureType, value, threshold float64, components []string, metrics map[string]float64) {
	if last, ok := d.lastFired[ft]; ok && time.Since(last) < d.config.CooldownPerSignal {
		return
	}
	d.lastFired[ft] = time.Now()

	severity := (value - threshold) / (100 - threshold)
	if severity > 1 {
		severity = 1
	}
	if severity < 0.1 {
		severity = 0.1
	}

	d.logger.Warn("Resource threshold breached",
		zap.String("failure_type", ft.String()),
		zap.Float64("value", value),
		zap.Float64("threshold", threshold),
	)

	event := healing.NewFailureEvent(ft, severity, components, metrics)
	d.handler.HandleFailure(ctx, event)
}
