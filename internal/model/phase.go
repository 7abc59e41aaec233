package model

// Phase identifies one stage of the crawl pipeline.
type Phase string

const (
	// PhaseInitial discovers the first set of paths from the target URL.
	PhaseInitial Phase = "initial"
	// PhaseDeepen follows discovered links to expand the path set.
	PhaseDeepen Phase = "deepen"
	// PhaseMetadata probes each path for page metadata.
	PhaseMetadata Phase = "metadata"
	// PhaseExtract pulls per-page design data.
	PhaseExtract Phase = "extract"
)

// AllPhases lists phases in dependency order.
func AllPhases() []Phase {
	return []Phase{PhaseInitial, PhaseDeepen, PhaseMetadata, PhaseExtract}
}

func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is a known phase name.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInitial, PhaseDeepen, PhaseMetadata, PhaseExtract:
		return true
	default:
		return false
	}
}
