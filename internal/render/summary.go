package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"mergeflow/internal/resolve"
)

// SummaryMarkdown describes a resolution as a markdown table, one row per
// conflicting region.
func SummaryMarkdown(report resolve.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Resolution (%s, %s)\n\n", report.Mode, report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "%d of %d regions resolved.\n\n", report.ResolvedCount(), len(report.Outcomes))
	b.WriteString("| # | Prediction | Status | Duration |\n")
	b.WriteString("|---|------------|--------|----------|\n")
	for _, o := range report.Outcomes {
		prediction, status := o.Resolution.Label.String(), "resolved"
		if o.Failed() {
			prediction, status = "-", "failed: "+escapeCell(o.Err.Error())
		} else if o.Resolution.RawLabel != "" && !strings.EqualFold(o.Resolution.RawLabel, prediction) {
			prediction += " (" + escapeCell(o.Resolution.RawLabel) + ")"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", o.Index+1, prediction, status, o.Duration.Round(time.Millisecond))
	}
	return b.String()
}

// Summary renders SummaryMarkdown for the terminal. Without colour, or if
// glamour fails, the markdown is returned as is.
func (r *Renderer) Summary(report resolve.Report, width int) string {
	text := SummaryMarkdown(report)
	if !r.opts.Color {
		return text
	}
	if width < 40 {
		width = 80
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	rendered, err := tr.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
