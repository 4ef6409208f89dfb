// internal/recorder/pretty.go
package recorder

import (
	"fmt"
	"io"
	"strings"

	"github.com/corecode/lab/internal/sampler"
)

const prettyTimeLayout = "2006-01-02 15:04:05"

// Pretty writes human readable lines:
//
//	2024-01-02 15:04:05 voltage=4.19000 current=0.10000
type Pretty struct {
	w     io.Writer
	names []string
}

func NewPretty(w io.Writer) *Pretty {
	return &Pretty{w: w}
}

func (p *Pretty) Header(names []string) error {
	p.names = append([]string(nil), names...)
	return nil
}

func (p *Pretty) Write(r sampler.Record) error {
	_, err := io.WriteString(p.w, p.Format(r)+"\n")
	return err
}

func (p *Pretty) Close() error { return nil }

// Format renders one record without the trailing newline.
func (p *Pretty) Format(r sampler.Record) string {
	var b strings.Builder
	b.WriteString(r.Time.Local().Format(prettyTimeLayout))

	for i, v := range r.Values {
		name := fmt.Sprintf("value%d", i+1)
		if i+1 < len(p.names) {
			name = p.names[i+1]
		}
		fmt.Fprintf(&b, " %s=%0.5f", name, v)
	}
	return b.String()
}
