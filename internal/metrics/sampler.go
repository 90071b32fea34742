// Package metrics samples process and pipeline health on a schedule and
// keeps a bounded history for the dashboard.
package metrics

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"containeryard/internal/logging"
	"containeryard/internal/stream"
)

// Defaults applied by NewSampler for zero Config values.
const (
	DefaultInterval    = 5 * time.Second
	DefaultHistorySize = 720 // one hour at the default interval
)

// Sample is one point-in-time measurement.
type Sample struct {
	Time        time.Time `json:"time"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes int64     `json:"memory_bytes"`
	Goroutines  int       `json:"goroutines"`
	Published   uint64    `json:"published"`
	Dropped     uint64    `json:"dropped"`
	Subscribers int       `json:"subscribers"`
}

// StatsSource provides pipeline counters for sampling. *stream.Hub satisfies it.
type StatsSource interface {
	Stats() stream.Stats
}

// Config configures a Sampler.
type Config struct {
	// Interval between samples.
	Interval time.Duration
	// HistorySize is the number of retained samples.
	HistorySize int
	// Source provides hub counters. If nil, those fields stay zero.
	Source StatsSource
	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Sampler takes periodic samples on a gocron scheduler and retains them in a
// fixed-capacity ring.
type Sampler struct {
	interval time.Duration
	source   StatsSource
	cpu      *cpuTracker
	logger   *slog.Logger

	scheduler gocron.Scheduler

	mu   sync.RWMutex
	ring []Sample
	next int
	full bool
}

// NewSampler creates a sampler. Call Start to begin sampling.
func NewSampler(cfg Config) (*Sampler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create metrics scheduler: %w", err)
	}

	return &Sampler{
		interval:  interval,
		source:    cfg.Source,
		cpu:       newCPUTracker(),
		logger:    logging.Default(cfg.Logger).With("component", "metrics"),
		scheduler: scheduler,
		ring:      make([]Sample, size),
	}, nil
}

// Start schedules the sampling job and takes an immediate first sample.
func (s *Sampler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sample),
		gocron.WithName("metrics-sample"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule metrics job: %w", err)
	}
	s.scheduler.Start()
	s.logger.Info("metrics sampler started", "interval", s.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sample to finish.
func (s *Sampler) Stop() error {
	return s.scheduler.Shutdown()
}

// sample measures once and appends to the history ring.
func (s *Sampler) sample() {
	sm := Sample{
		Time:        time.Now(),
		CPUPercent:  s.cpu.Percent(),
		MemoryBytes: memoryInuse(),
		Goroutines:  runtime.NumGoroutine(),
	}
	if s.source != nil {
		stats := s.source.Stats()
		sm.Published = stats.Published
		sm.Dropped = stats.Dropped
		sm.Subscribers = stats.Subscribers
	}

	s.mu.Lock()
	s.ring[s.next] = sm
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.full = true
	}
	s.mu.Unlock()
}

// History returns retained samples in chronological order.
func (s *Sampler) History() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.full {
		return append([]Sample(nil), s.ring[:s.next]...)
	}
	out := make([]Sample, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	out = append(out, s.ring[:s.next]...)
	return out
}

// Latest returns the most recent sample, or false if none was taken yet.
func (s *Sampler) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.next == 0 && !s.full {
		return Sample{}, false
	}
	idx := s.next - 1
	if idx < 0 {
		idx = len(s.ring) - 1
	}
	return s.ring[idx], true
}
