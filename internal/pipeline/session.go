package pipeline

import (
	"fmt"

	"mergeflow/internal/diff3"
	"mergeflow/internal/resolve"
)

// Session is the caller-owned state of one detect/resolve cycle. A Session
// built from a conflicted file uses Conflicted instead of the three inputs.
type Session struct {
	Base       Source
	Local      Source
	Remote     Source
	Conflicted Source

	// RunID and RunState track the history record, when one is kept.
	RunID    string
	RunState string

	Merge    *diff3.Result
	Rendered []string
	Report   *resolve.Report
	Resolved []resolve.ResolvedLine
}

// NewSession returns a session for the given input paths. Nothing is read
// until Load.
func NewSession(base, local, remote string) *Session {
	return &Session{
		Base:   Source{Path: base},
		Local:  Source{Path: local},
		Remote: Source{Path: remote},
	}
}

// NewConflictedSession returns a session for a file that already carries
// conflict markers.
func NewConflictedSession(path string) *Session {
	return &Session{Conflicted: Source{Path: path}}
}

// Load (re)reads every input from its path and drops earlier results.
func (s *Session) Load(maxBytes int64) error {
	s.reset()
	if s.Conflicted.Path != "" {
		src, err := LoadSource(s.Conflicted.Path, maxBytes)
		if err != nil {
			return fmt.Errorf("load conflicted file: %w", err)
		}
		s.Conflicted = src
		return nil
	}
	for _, in := range []struct {
		name string
		src  *Source
	}{
		{"base", &s.Base},
		{"local", &s.Local},
		{"remote", &s.Remote},
	} {
		if in.src.Path == "" {
			continue
		}
		src, err := LoadSource(in.src.Path, maxBytes)
		if err != nil {
			return fmt.Errorf("load %s: %w", in.name, err)
		}
		*in.src = src
	}
	return nil
}

// Missing names the inputs that are not loaded.
func (s *Session) Missing() []string {
	if s.Conflicted.Path != "" {
		if s.Conflicted.Loaded {
			return nil
		}
		return []string{"conflicted"}
	}
	var missing []string
	if !s.Base.Loaded {
		missing = append(missing, "base")
	}
	if !s.Local.Loaded {
		missing = append(missing, "local")
	}
	if !s.Remote.Loaded {
		missing = append(missing, "remote")
	}
	return missing
}

func (s *Session) Detected() bool { return s.Merge != nil }

// HasConflicts reports whether the rendered document carries a conflict
// start marker. A stable line that happens to start with "<<<<<<<" counts.
func (s *Session) HasConflicts() bool { return s.Merge != nil && diff3.HasConflictMarkers(s.Rendered) }

// ConflictCount is the number of conflicting regions a resolve would send.
func (s *Session) ConflictCount() int {
	if s.Merge == nil {
		return 0
	}
	return s.Merge.ConflictCount()
}

func (s *Session) IsResolved() bool { return s.Report != nil }

// Paths returns the input paths, conflicted file first when set.
func (s *Session) Paths() []string {
	if s.Conflicted.Path != "" {
		return []string{s.Conflicted.Path}
	}
	return []string{s.Base.Path, s.Local.Path, s.Remote.Path}
}

// Clear drops the loaded content, the detection and the resolution. Input
// paths are kept so the session can be loaded again.
func (s *Session) Clear() {
	s.reset()
	s.Base = Source{Path: s.Base.Path}
	s.Local = Source{Path: s.Local.Path}
	s.Remote = Source{Path: s.Remote.Path}
	s.Conflicted = Source{Path: s.Conflicted.Path}
}

func (s *Session) reset() {
	s.RunID = ""
	s.RunState = ""
	s.Merge = nil
	s.Rendered = nil
	s.clearResolution()
}

func (s *Session) clearResolution() {
	s.Report = nil
	s.Resolved = nil
}
