package influx

import (
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `${`, `\${`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

// RenderFlux turns a Filter into a Flux script over bucket. Output is
// deterministic for a given filter.
func RenderFlux(bucket string, f tsdb.Filter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", quote(bucket))
	fmt.Fprintf(&b, "  |> range(start: -%s)\n", fluxDuration(f.Lookback))
	b.WriteString("  |> filter(fn: (r) => ")
	if len(f.Predicates) == 0 {
		b.WriteString("true")
	}
	for i, p := range f.Predicates {
		if i > 0 {
			b.WriteString(" and ")
		}
		fmt.Fprintf(&b, "r[%s] == %s", quote(p.Key), quote(p.Value))
	}
	b.WriteString(")")
	if f.Last {
		b.WriteString("\n  |> last()")
	}
	return b.String()
}

func fluxDuration(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
}
