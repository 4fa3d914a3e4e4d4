// Package scheduler takes periodic diagnostic samples from a clock source
// and logs the decoded local time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"epochcal/internal/clock"
	appLog "epochcal/internal/log"
	"epochcal/internal/model"
	"epochcal/internal/timeconv"
)

// sampleTimeout bounds a single scheduled read, so a wedged I2C bus cannot
// stack up cron jobs.
const sampleTimeout = 5 * time.Second

// Scheduler runs clock samples on a cron schedule and remembers the most
// recent one.
type Scheduler struct {
	cron *cron.Cron
	src  clock.Source
	zone timeconv.Timezone

	mu   sync.RWMutex
	last *model.Sample
}

// New creates a Scheduler for a standard cron spec (5 fields or a
// descriptor such as "@every 30s"). The schedule is evaluated in zone's
// fixed offset, so "0 0 * * *" fires at local midnight.
func New(spec string, src clock.Source, zone timeconv.Timezone) (*Scheduler, error) {
	loc := time.FixedZone(zone.String(), int(zone.Offset()))
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		src:  src,
		zone: zone,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled samples in the background.
func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "source", s.src.Name(), "timezone", s.zone)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sample to finish or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		appLog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce takes a sample immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) (model.Sample, error) {
	sample, err := clock.Sample(ctx, s.src, s.zone)
	if err != nil {
		return model.Sample{}, err
	}

	s.mu.Lock()
	s.last = &sample
	s.mu.Unlock()

	logSample(sample)
	return sample, nil
}

// Last returns the most recent successful sample.
func (s *Scheduler) Last() (model.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.Sample{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		appLog.Error("scheduled sample failed", err, "source", s.src.Name())
	}
}

func logSample(sample model.Sample) {
	dt := sample.Local
	appLog.Info("clock sample",
		"source", sample.Source,
		"unix_ms", sample.UnixMillis,
		"year", dt.Year,
		"month", dt.Month,
		"day", dt.Day,
		"hour", dt.Hour,
		"minute", dt.Minute,
		"second", dt.Second,
		"millisecond", dt.Millisecond,
		"timezone", dt.Timezone,
	)
}
