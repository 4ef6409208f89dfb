// internal/recorder/recorder.go
package recorder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corecode/lab/internal/sampler"
)

// Recorder persists one run: a header once, then one row per record.
// The header starts with "time".
type Recorder interface {
	Header(names []string) error
	Write(r sampler.Record) error
	Close() error
}

// multi delivers every call to all sinks, even after one fails.
type multi struct {
	sinks []Recorder
}

// Multi fans out to several recorders. Errors are aggregated.
func Multi(sinks ...Recorder) Recorder {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multi{sinks: sinks}
}

func (m *multi) Header(names []string) error {
	return m.each("header", func(r Recorder) error { return r.Header(names) })
}

func (m *multi) Write(rec sampler.Record) error {
	return m.each("write", func(r Recorder) error { return r.Write(rec) })
}

func (m *multi) Close() error {
	return m.each("close", func(r Recorder) error { return r.Close() })
}

func (m *multi) each(op string, fn func(Recorder) error) error {
	var errs []string
	for i, r := range m.sinks {
		if err := fn(r); err != nil {
			errs = append(errs, fmt.Sprintf("sink=%d %s: %v", i, op, err))
		}
	}
	if len(errs) > 0 {
		return errors.New("recorder: " + strings.Join(errs, " | "))
	}
	return nil
}
