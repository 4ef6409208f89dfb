// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/device"
	"github.com/corecode/lab/internal/mode"
	"github.com/corecode/lab/internal/recorder"
	"github.com/corecode/lab/internal/sampler"
)

// Options controls one test execution.
type Options struct {
	Interval time.Duration
	// Duration bounds sampling; 0 runs until the profile condition ends it.
	Duration time.Duration
	// RunID tags logs and published samples; generated when empty.
	RunID string
	Clock sampler.Clock
}

// Summary describes a finished run.
type Summary struct {
	RunID   string
	Samples int64
	Elapsed time.Duration
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Run executes one test:
//
//	disable input -> configure profile -> enable (guarded) -> sample + record -> restore
//
// The input is restored to its state before enabling on every exit path
// after the enable succeeded. A restore failure is joined with the run error.
func Run(ctx context.Context, d *device.Device, p mode.Profile, opts Options, rec recorder.Recorder) (sum Summary, err error) {
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	if opts.Clock == nil {
		opts.Clock = sampler.SystemClock{}
	}
	sum.RunID = opts.RunID

	// ---- safe state ----
	// setpoints are only accepted with the input off
	if err := d.SetEnabled(false); err != nil {
		return sum, fmt.Errorf("session: disable input: %w", err)
	}

	// ---- configure ----
	plan, err := p.Configure(d)
	if err != nil {
		return sum, fmt.Errorf("session: configure: %w", err)
	}

	s, err := sampler.New(sampler.Config{
		Interval:  opts.Interval,
		Duration:  opts.Duration,
		Condition: plan.Condition,
		Clock:     opts.Clock,
	}, plan.Accessors)
	if err != nil {
		return sum, fmt.Errorf("session: %w", err)
	}

	if err := rec.Header(s.Names()); err != nil {
		return sum, fmt.Errorf("session: record header: %w", err)
	}

	// ---- guarded run ----
	g, err := device.Acquire(d, true)
	if err != nil {
		return sum, fmt.Errorf("session: %w", err)
	}
	defer func() {
		if rerr := g.Release(); rerr != nil {
			klog.ErrorS(rerr, "session: input restore failed", "run", opts.RunID)
			err = errors.Join(err, rerr)
		}
	}()

	klog.InfoS("session: started", "run", opts.RunID, "mode", p.Name(),
		"interval", opts.Interval, "duration", opts.Duration)

	start := opts.Clock.Now()
	for s.Next(ctx) {
		r := s.Record()
		klog.V(3).InfoS("session: sample", "run", opts.RunID, "values", r.Values)
		if err := rec.Write(r); err != nil {
			sum.Samples = s.Ticks()
			return sum, fmt.Errorf("session: record sample %d: %w", s.Ticks(), err)
		}
	}
	sum.Samples = s.Ticks()
	sum.Elapsed = opts.Clock.Now().Sub(start)

	if err := s.Err(); err != nil {
		return sum, fmt.Errorf("session: %w", err)
	}

	klog.InfoS("session: finished", "run", opts.RunID, "samples", sum.Samples, "elapsed", sum.Elapsed)
	return sum, nil
}
