// Package clock provides timestamp sources for the decoder: the host wall
// clock and a battery-backed counter RTC on the I2C bus.
package clock

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/coder/quartz"

	"epochcal/internal/config"
	appLog "epochcal/internal/log"
	"epochcal/internal/model"
	"epochcal/internal/timeconv"
)

var (
	// ErrBeforeEpoch is returned when a source reads a time before
	// 1970-01-01T00:00:00Z, which cannot be represented as an unsigned
	// timestamp.
	ErrBeforeEpoch = errors.New("clock: time is before the Unix epoch")

	// ErrOscillatorStopped is returned when the RTC reports that its
	// oscillator is disabled and the counter is not advancing.
	ErrOscillatorStopped = errors.New("clock: rtc oscillator is stopped")
)

// Source abstracts how we obtain the current time, so the web API and the
// scheduler work the same with or without RTC hardware.
type Source interface {
	// Now returns milliseconds since the Unix epoch.
	Now(ctx context.Context) (uint64, error)
	// Name identifies the source in logs and API responses.
	Name() string
}

// systemSource reads the host wall clock.
type systemSource struct {
	clk quartz.Clock
}

// NewSystemSource returns a Source backed by clk. A nil clk means the real
// wall clock.
func NewSystemSource(clk quartz.Clock) Source {
	if clk == nil {
		clk = quartz.NewReal()
	}
	return &systemSource{clk: clk}
}

func (s *systemSource) Name() string { return config.ClockSystem }

func (s *systemSource) Now(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ms := s.clk.Now().UnixMilli()
	if ms < 0 {
		return 0, ErrBeforeEpoch
	}
	return uint64(ms), nil
}

// DefaultSource returns the Source selected by cfg.
//
// For "auto" the RTC is tried once on Linux; if it cannot be read the
// system clock is used instead, so callers always get a working Source.
func DefaultSource(ctx context.Context, cfg config.ClockConfig) Source {
	switch cfg.Source {
	case config.ClockSystem:
		return NewSystemSource(nil)
	case config.ClockRTC:
		return NewRTCSource(cfg.I2CBus, cfg.I2CAddr)
	}

	if runtime.GOOS != "linux" {
		return NewSystemSource(nil)
	}

	r := NewRTCSource(cfg.I2CBus, cfg.I2CAddr)
	if _, err := r.Now(ctx); err != nil {
		appLog.Info("rtc unavailable, using system clock", "bus", cfg.I2CBus, "addr", fmt.Sprintf("0x%02x", cfg.I2CAddr), "reason", err.Error())
		return NewSystemSource(nil)
	}
	return r
}

// Sample reads src once and decodes the reading for tz.
func Sample(ctx context.Context, src Source, tz timeconv.Timezone) (model.Sample, error) {
	ms, err := src.Now(ctx)
	if err != nil {
		return model.Sample{}, fmt.Errorf("clock: read %s: %w", src.Name(), err)
	}
	return model.Sample{
		Source:     src.Name(),
		UnixMillis: ms,
		Local:      timeconv.FromUnixMillis(ms, tz),
		TakenAt:    time.Now().UTC(),
	}, nil
}
