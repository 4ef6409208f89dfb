// internal/recorder/csv.go
package recorder

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/corecode/lab/internal/sampler"
)

// CSV writes one comma-separated row per record and flushes it right away,
// so an interrupted run keeps every completed sample.
// The underlying writer is owned by the caller.
type CSV struct {
	w      *csv.Writer
	fields int
}

func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

func (c *CSV) Header(names []string) error {
	if c.fields != 0 {
		return errors.New("csv recorder: header already written")
	}
	c.fields = len(names)
	return c.row(names)
}

func (c *CSV) Write(r sampler.Record) error {
	if c.fields == 0 {
		return errors.New("csv recorder: header not written")
	}
	if len(r.Values)+1 != c.fields {
		return errors.New("csv recorder: record does not match header")
	}

	row := make([]string, 0, c.fields)
	row = append(row, formatTime(r.Time))
	for _, v := range r.Values {
		// measurements are float32 on the wire
		row = append(row, strconv.FormatFloat(v, 'f', -1, 32))
	}
	return c.row(row)
}

func (c *CSV) Close() error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) row(fields []string) error {
	if err := c.w.Write(fields); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// formatTime renders seconds since the epoch with millisecond precision.
func formatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1e3, 'f', 3, 64)
}
