package diff3

import "strings"

type markerSection int

const (
	sectionNone markerSection = iota
	sectionLocal
	sectionBase
	sectionRemote
)

// ParseConflicts reads a marker-annotated document back into a Result.
// Both the two-way form and the diff3 form with a "|||||||" base section are
// accepted; without one the base slice is empty. A block left open at the
// end of the input, or interrupted by a new "<<<<<<<" marker, is closed
// where it stops.
func ParseConflicts(lines []string) Result {
	var b resultBuilder
	section := sectionNone
	var cur Conflict
	localPos, basePos, remotePos := 0, 0, 0

	flush := func() {
		if section == sectionNone {
			return
		}
		b.conflict(cur)
		localPos += len(cur.Local)
		basePos += len(cur.Base)
		remotePos += len(cur.Remote)
		section = sectionNone
		cur = Conflict{}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, conflictPrefix):
			flush()
			section = sectionLocal
			cur = Conflict{
				Local:       []string{},
				Base:        []string{},
				Remote:      []string{},
				LocalStart:  localPos,
				BaseStart:   basePos,
				RemoteStart: remotePos,
			}
		case section == sectionNone:
			b.stable([]string{line})
			localPos++
			basePos++
			remotePos++
		case strings.HasPrefix(line, basePrefix):
			section = sectionBase
		case strings.HasPrefix(line, separatorPrefix):
			section = sectionRemote
		case strings.HasPrefix(line, endPrefix):
			flush()
		case section == sectionLocal:
			cur.Local = append(cur.Local, line)
		case section == sectionBase:
			cur.Base = append(cur.Base, line)
		case section == sectionRemote:
			cur.Remote = append(cur.Remote, line)
		}
	}
	flush()
	return b.result()
}
