package diff3

import "strings"

const (
	MarkerLocal     = "<<<<<<< LOCAL"
	MarkerBase      = "||||||| BASE"
	MarkerSeparator = "======="
	MarkerRemote    = ">>>>>>> REMOTE"

	conflictPrefix  = "<<<<<<<"
	basePrefix      = "|||||||"
	separatorPrefix = "======="
	endPrefix       = ">>>>>>>"
)

type RenderOptions struct {
	// ShowBase adds a "||||||| BASE" section with the base slice to every
	// conflict block.
	ShowBase bool
}

// Render flattens a result for display: stable lines verbatim, each conflict
// as LOCAL marker, local lines, separator, remote lines, REMOTE marker.
func Render(r Result) []string {
	return RenderWith(r, RenderOptions{})
}

func RenderWith(r Result, opts RenderOptions) []string {
	out := make([]string, 0, r.renderedLen(opts))
	for _, region := range r.Regions {
		switch region.Kind {
		case Stable:
			out = append(out, region.Lines...)
		case Conflicting:
			c := region.Conflict
			out = append(out, MarkerLocal)
			out = append(out, c.Local...)
			if opts.ShowBase {
				out = append(out, MarkerBase)
				out = append(out, c.Base...)
			}
			out = append(out, MarkerSeparator)
			out = append(out, c.Remote...)
			out = append(out, MarkerRemote)
		}
	}
	return out
}

func (r Result) renderedLen(opts RenderOptions) int {
	n := 0
	for _, region := range r.Regions {
		if region.Kind == Stable {
			n += len(region.Lines)
			continue
		}
		n += conflictBlockLen(region.Conflict, opts)
	}
	return n
}

// ConflictLineCount counts rendered lines that belong to conflict blocks,
// marker lines included, under the default rendering.
func (r Result) ConflictLineCount() int {
	n := 0
	for _, region := range r.Regions {
		if region.Kind == Conflicting {
			n += conflictBlockLen(region.Conflict, RenderOptions{})
		}
	}
	return n
}

func conflictBlockLen(c *Conflict, opts RenderOptions) int {
	n := len(c.Local) + len(c.Remote) + 3
	if opts.ShowBase {
		n += len(c.Base) + 1
	}
	return n
}

// HasConflictMarkers reports whether any line starts with "<<<<<<<".
func HasConflictMarkers(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, conflictPrefix) {
			return true
		}
	}
	return false
}

// IsMarkerLine reports whether line is a conflict marker of any kind.
func IsMarkerLine(line string) bool {
	for _, prefix := range []string{conflictPrefix, basePrefix, separatorPrefix, endPrefix} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
