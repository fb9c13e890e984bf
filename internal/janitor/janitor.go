// Package janitor periodically reclaims expired in-memory cache and rate
// limit entries. Expired entries are already ignored on read, so a missed
// sweep only costs memory.
package janitor

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "@every 1m"

// Sweeper drops expired entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// Target is a named Sweeper.
type Target struct {
	Name    string
	Sweeper Sweeper
}

// Janitor wraps robfig/cron and runs every target's Sweep on a schedule.
type Janitor struct {
	cron     *cron.Cron
	schedule string
	targets  []Target
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
}

func New(schedule string, logger *zap.Logger, targets ...Target) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		cron:     cron.New(),
		schedule: schedule,
		targets:  targets,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.started {
		return nil
	}

	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	j.cron.Start()
	j.started = true
	j.logger.Info("janitor started", zap.String("schedule", j.schedule), zap.Int("targets", len(j.targets)))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		return
	}
	<-j.cron.Stop().Done()
	j.started = false
}

// RunOnce sweeps every target.
func (j *Janitor) RunOnce() {
	for _, t := range j.targets {
		if t.Sweeper == nil {
			continue
		}
		if removed := t.Sweeper.Sweep(); removed > 0 {
			j.logger.Debug("swept expired entries", zap.String("target", t.Name), zap.Int("removed", removed))
		}
	}
}
