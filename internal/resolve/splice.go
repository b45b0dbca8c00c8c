package resolve

import (
	"strings"

	"github.com/samber/lo"

	"mergeflow/internal/diff3"
)

// FailedPlaceholder stands in for a region whose resolution failed.
const FailedPlaceholder = "[conflict resolution failed]"

// ResolvedLine is one line of the final document with its origin.
type ResolvedLine struct {
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
}

// Splice rebuilds the document from a merge result, replacing the Nth
// conflicting region with the Nth outcome of the report. Regions without a
// successful outcome become a single FailedPlaceholder line.
func Splice(res diff3.Result, report Report) []ResolvedLine {
	var out []ResolvedLine
	n := 0
	for _, region := range res.Regions {
		switch region.Kind {
		case diff3.Stable:
			out = append(out, lo.Map(region.Lines, func(line string, _ int) ResolvedLine {
				return ResolvedLine{Text: line, Provenance: ProvenanceNone}
			})...)
		case diff3.Conflicting:
			o, ok := outcomeAt(report, n)
			out = append(out, spliceRegion(*region.Conflict, o, ok)...)
			n++
		}
	}
	return out
}

func outcomeAt(report Report, n int) (Outcome, bool) {
	if n >= len(report.Outcomes) {
		return Outcome{}, false
	}
	return report.Outcomes[n], true
}

func spliceRegion(c diff3.Conflict, o Outcome, ok bool) []ResolvedLine {
	if !ok || o.Failed() {
		return []ResolvedLine{{Text: FailedPlaceholder, Provenance: ProvenanceFailed}}
	}
	prov := o.Resolution.Label.Provenance()
	lines := reindent(o.Resolution.Lines, c.Local)
	return lo.Map(lines, func(line string, _ int) ResolvedLine {
		return ResolvedLine{Text: line, Provenance: prov}
	})
}

// reindent gives the first replacement line the leading whitespace of the
// first local line. The remaining lines are left as returned.
func reindent(lines, local []string) []string {
	if len(lines) == 0 || len(local) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	copy(out, lines)
	out[0] = leadingWhitespace(local[0]) + strings.TrimLeft(out[0], " \t")
	return out
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// Texts drops provenance.
func Texts(lines []ResolvedLine) []string {
	return lo.Map(lines, func(l ResolvedLine, _ int) string { return l.Text })
}
