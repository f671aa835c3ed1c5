package output

import (
	"fmt"
	"strings"

	"github.com/hejijunhao/mosaiq/internal/model"
)

// Verbosity controls how much of an event is written.
type Verbosity int

const (
	// Minimal keeps ids, counters and state only.
	Minimal Verbosity = iota
	// Standard adds the error message and concept ids.
	Standard
	// Full keeps everything, including confidences and timestamps per concept.
	Full
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Standard:
		return "standard"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("verbosity(%d)", int(v))
	}
}

// ParseVerbosity maps a config string to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("output: unknown verbosity %q", s)
}

// FormatEvent returns a copy of the event with fields stripped according to verbosity.
// At Minimal: Concepts and Error are dropped (omitted from JSON via omitempty).
// At Standard: concepts keep only their id and confidence.
// At Full: all fields preserved.
func FormatEvent(e model.ProgressEvent, verbosity Verbosity) model.ProgressEvent {
	switch verbosity {
	case Minimal:
		e.Concepts = nil
		e.Error = ""
	case Standard:
		if len(e.Concepts) > 0 {
			concepts := make([]model.ConceptClassification, len(e.Concepts))
			for i, c := range e.Concepts {
				concepts[i] = model.ConceptClassification{ConceptID: c.ConceptID, Confidence: c.Confidence}
			}
			e.Concepts = concepts
		}
	}
	return e
}
