// internal/sampler/sampler.go
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Accessor is one named measurement, polled once per tick.
type Accessor struct {
	Name string
	Read func() (float64, error)
}

// Condition is checked before every tick; false ends the run.
type Condition func() (bool, error)

// Config is the immutable sampler configuration.
type Config struct {
	Interval time.Duration
	// Duration bounds the run; 0 means unbounded.
	Duration  time.Duration
	Condition Condition
	Clock     Clock
}

// Record is one sample. Values follow the accessor order.
type Record struct {
	Time   time.Time
	Values []float64
}

// Sampler is a drift-compensated periodic reader.
//
// Tick i is scheduled at start + i*Interval, so the time spent reading and
// consuming a record shortens the following sleep instead of accumulating.
// It is pulled like bufio.Scanner:
//
//	for s.Next(ctx) {
//		rec := s.Record()
//	}
//	if err := s.Err(); err != nil { ... }
//
// A Sampler is single use; a new one starts a new epoch.
type Sampler struct {
	cfg       Config
	accessors []Accessor

	start time.Time
	tick  int64
	rec   Record
	err   error
	done  bool
}

// New validates cfg and returns a sampler that has not started yet.
func New(cfg Config, accessors []Accessor) (*Sampler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("sampler: interval must be > 0")
	}
	if cfg.Duration < 0 {
		return nil, errors.New("sampler: duration must be >= 0")
	}
	for i, a := range accessors {
		if a.Read == nil {
			return nil, fmt.Errorf("sampler: accessor %d (%q) has no read function", i, a.Name)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Sampler{cfg: cfg, accessors: accessors}, nil
}

// Names returns the record header: "time" followed by the accessor names.
func (s *Sampler) Names() []string {
	names := make([]string, 0, len(s.accessors)+1)
	names = append(names, "time")
	for _, a := range s.accessors {
		names = append(names, a.Name)
	}
	return names
}

// Next waits for the next tick and takes a sample. It returns false when
// the run is over: condition false, duration elapsed, accessor failure or
// ctx cancellation. Err tells them apart.
func (s *Sampler) Next(ctx context.Context) bool {
	if s.done {
		return false
	}

	clk := s.cfg.Clock

	if s.tick == 0 {
		s.start = clk.Now()
	} else {
		target := s.start.Add(time.Duration(s.tick) * s.cfg.Interval)
		if err := clk.Sleep(ctx, target.Sub(clk.Now())); err != nil {
			return s.stop(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return s.stop(err)
	}

	if s.cfg.Condition != nil {
		ok, err := s.cfg.Condition()
		if err != nil {
			return s.stop(fmt.Errorf("sampler: condition: %w", err))
		}
		if !ok {
			return s.stop(nil)
		}
	}

	now := clk.Now()
	if s.cfg.Duration > 0 && now.Sub(s.start) >= s.cfg.Duration {
		return s.stop(nil)
	}

	values := make([]float64, len(s.accessors))
	for i, a := range s.accessors {
		v, err := a.Read()
		if err != nil {
			return s.stop(fmt.Errorf("sampler: read %s: %w", a.Name, err))
		}
		values[i] = v
	}

	s.rec = Record{Time: now, Values: values}
	s.tick++
	return true
}

// Record returns the sample taken by the last successful Next.
func (s *Sampler) Record() Record { return s.rec }

// Err returns the error that ended the run, or nil for a normal end.
func (s *Sampler) Err() error { return s.err }

// Ticks is the number of records produced so far.
func (s *Sampler) Ticks() int64 { return s.tick }

func (s *Sampler) stop(err error) bool {
	s.done = true
	s.err = err
	s.rec = Record{}
	return false
}
