package resolve

import "strings"

// Label is the resolver's classification of one conflicting region.
type Label int

const (
	LabelLocal Label = iota
	LabelRemote
	LabelComplex
)

// ParseLabel maps the resolver's conflict_type onto a Label. "A" and "B" are
// the service's names for local and remote, "Kompleks" for complex; the
// English names are accepted in any case. Anything else is complex.
func ParseLabel(raw string) Label {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a", "local":
		return LabelLocal
	case "b", "remote":
		return LabelRemote
	default:
		return LabelComplex
	}
}

func (l Label) String() string {
	switch l {
	case LabelLocal:
		return "local"
	case LabelRemote:
		return "remote"
	case LabelComplex:
		return "complex"
	default:
		return "unknown"
	}
}

func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Provenance tags a line of resolved output for presentation.
type Provenance int

const (
	ProvenanceNone Provenance = iota
	ProvenanceLocal
	ProvenanceRemote
	ProvenanceComplex
	ProvenanceFailed
)

func (l Label) Provenance() Provenance {
	switch l {
	case LabelLocal:
		return ProvenanceLocal
	case LabelRemote:
		return ProvenanceRemote
	default:
		return ProvenanceComplex
	}
}

func (p Provenance) String() string {
	switch p {
	case ProvenanceLocal:
		return "local"
	case ProvenanceRemote:
		return "remote"
	case ProvenanceComplex:
		return "complex"
	case ProvenanceFailed:
		return "failed"
	default:
		return "none"
	}
}

func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
