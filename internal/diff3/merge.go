// Package diff3 implements a line-oriented three-way merge.
//
// Merge aligns local and remote against their common base, passes through
// every change that only one side made (or that both sides made
// identically), and reports the spans both sides changed differently as
// Conflicting regions. The package performs no I/O and holds no state.
package diff3

import (
	"fmt"
	"sort"
)

// RegionKind distinguishes pass-through content from unresolved conflicts.
type RegionKind int

const (
	Stable RegionKind = iota
	Conflicting
)

func (k RegionKind) String() string {
	switch k {
	case Stable:
		return "stable"
	case Conflicting:
		return "conflict"
	default:
		return "unknown"
	}
}

func (k RegionKind) MarshalText() ([]byte, error) {
	switch k {
	case Stable, Conflicting:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown region kind %d", int(k))
	}
}

// Conflict is a span of base that local and remote both replaced, with
// different content. Base is kept as context for resolvers; it is not part
// of the merged text.
type Conflict struct {
	Local  []string `json:"local"`
	Base   []string `json:"base"`
	Remote []string `json:"remote"`

	// Offsets of each slice within its input sequence.
	LocalStart  int `json:"local_start"`
	BaseStart   int `json:"base_start"`
	RemoteStart int `json:"remote_start"`
}

// Region is one unit of a merge result. Lines is set for Stable regions,
// Conflict for Conflicting ones.
type Region struct {
	Kind     RegionKind `json:"kind"`
	Lines    []string   `json:"lines,omitempty"`
	Conflict *Conflict  `json:"conflict,omitempty"`
}

// Result is the ordered list of regions produced by Merge, in base order.
type Result struct {
	Regions []Region `json:"regions"`
}

// Conflicts returns the conflicting regions in document order. The Nth
// element is the Nth conflict slot for resolution.
func (r Result) Conflicts() []Conflict {
	var out []Conflict
	for _, region := range r.Regions {
		if region.Kind == Conflicting && region.Conflict != nil {
			out = append(out, *region.Conflict)
		}
	}
	return out
}

func (r Result) ConflictCount() int {
	n := 0
	for _, region := range r.Regions {
		if region.Kind == Conflicting {
			n++
		}
	}
	return n
}

func (r Result) HasConflicts() bool {
	return r.ConflictCount() > 0
}

// Merge performs a diff3 merge of local and remote against base.
//
// Each side is aligned with base independently using a longest common
// subsequence. Changes from both sides that overlap or touch in base
// coordinates are grouped into one span; a span changed by only one side
// takes that side's lines, a span changed identically by both sides takes
// the shared lines, and any other span becomes a Conflicting region.
// Adjacent stable content is coalesced so Stable regions are maximal.
func Merge(local, base, remote []string) Result {
	hunks := append(diffHunks(base, local, sideLocal), diffHunks(base, remote, sideRemote)...)
	sort.SliceStable(hunks, func(i, j int) bool {
		if hunks[i].baseStart != hunks[j].baseStart {
			return hunks[i].baseStart < hunks[j].baseStart
		}
		return hunks[i].side < hunks[j].side
	})

	var b resultBuilder
	offset := 0
	for i := 0; i < len(hunks); {
		regionStart := hunks[i].baseStart
		regionEnd := hunks[i].baseEnd()
		j := i + 1
		for j < len(hunks) && hunks[j].baseStart <= regionEnd {
			regionEnd = max(regionEnd, hunks[j].baseEnd())
			j++
		}

		b.stable(base[offset:regionStart])

		group := hunks[i:j]
		if len(group) == 1 {
			h := group[0]
			if h.side == sideLocal {
				b.stable(local[h.sideStart:h.sideEnd()])
			} else {
				b.stable(remote[h.sideStart:h.sideEnd()])
			}
		} else {
			// A group of two or more hunks always holds both sides: hunks
			// from one side never touch each other.
			ls, le := sideSpan(group, sideLocal, regionStart, regionEnd)
			rs, re := sideSpan(group, sideRemote, regionStart, regionEnd)
			localLines, remoteLines := local[ls:le], remote[rs:re]
			if equalLines(localLines, remoteLines) {
				b.stable(localLines)
			} else {
				b.conflict(Conflict{
					Local:       cloneLines(localLines),
					Base:        cloneLines(base[regionStart:regionEnd]),
					Remote:      cloneLines(remoteLines),
					LocalStart:  ls,
					BaseStart:   regionStart,
					RemoteStart: rs,
				})
			}
		}

		offset = regionEnd
		i = j
	}
	b.stable(base[offset:])
	return b.result()
}

// sideSpan maps the base span [regionStart, regionEnd) onto one side, using
// the first and last hunk of that side in the group as anchors.
func sideSpan(group []hunk, s side, regionStart, regionEnd int) (int, int) {
	first, last := -1, -1
	for k, h := range group {
		if h.side != s {
			continue
		}
		if first < 0 {
			first = k
		}
		last = k
	}
	f, l := group[first], group[last]
	start := f.sideStart - (f.baseStart - regionStart)
	end := l.sideEnd() + (regionEnd - l.baseEnd())
	return start, end
}

type resultBuilder struct {
	regions []Region
	pending []string
}

func (b *resultBuilder) stable(lines []string) {
	b.pending = append(b.pending, lines...)
}

func (b *resultBuilder) flush() {
	if len(b.pending) == 0 {
		return
	}
	b.regions = append(b.regions, Region{Kind: Stable, Lines: b.pending})
	b.pending = nil
}

func (b *resultBuilder) conflict(c Conflict) {
	b.flush()
	b.regions = append(b.regions, Region{Kind: Conflicting, Conflict: &c})
}

func (b *resultBuilder) result() Result {
	b.flush()
	return Result{Regions: b.regions}
}

// cloneLines copies lines into a non-nil slice, so an empty side encodes as
// [] rather than null.
func cloneLines(lines []string) []string {
	return append([]string{}, lines...)
}
