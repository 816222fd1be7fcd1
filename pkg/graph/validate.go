package graph

import (
	"fmt"

	"github.com/chazu/stepwise/pkg/project"
)

// Severity indicates whether a validation finding blocks saving or is
// merely informational.
type Severity int

const (
	SeverityError   Severity = iota // document is inconsistent
	SeverityWarning                 // tolerated, filtered at read time
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding describes a single validation result.
type Finding struct {
	StepID       string   `json:"stepId,omitempty"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Message      string   `json:"message"`
	Severity     Severity `json:"severity"`
}

func (f Finding) Error() string {
	switch {
	case f.StepID != "":
		return fmt.Sprintf("[%s] step %s: %s", f.Severity, f.StepID, f.Message)
	case f.ConnectionID != "":
		return fmt.Sprintf("[%s] connection %s: %s", f.Severity, f.ConnectionID, f.Message)
	default:
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
}

// Result separates blocking errors from warnings.
type Result struct {
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// OK reports whether there are no blocking errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validate runs every check on p. It is read-only.
func Validate(p project.Project) Result {
	var all []Finding
	all = append(all, validateSteps(p)...)
	all = append(all, validateConnections(p)...)
	all = append(all, validateGuide(p)...)
	all = append(all, validateFlow(p)...)

	res := Result{Errors: []Finding{}, Warnings: []Finding{}}
	for _, f := range all {
		if f.Severity == SeverityError {
			res.Errors = append(res.Errors, f)
		} else {
			res.Warnings = append(res.Warnings, f)
		}
	}
	return res
}

func validateSteps(p project.Project) []Finding {
	var out []Finding
	seen := make(map[string]bool, len(p.Steps))

	if p.Kind == project.KindUpload && p.Asset == "" {
		out = append(out, Finding{Message: "upload project has no shared asset", Severity: SeverityError})
	}

	for _, s := range p.Steps {
		if s.ID == "" {
			out = append(out, Finding{Message: "step with empty id", Severity: SeverityError})
			continue
		}
		if seen[s.ID] {
			out = append(out, Finding{StepID: s.ID, Message: "duplicate step id", Severity: SeverityError})
		}
		seen[s.ID] = true

		switch {
		case s.Shape.IsPrimitive():
			if s.FocusMesh != "" {
				out = append(out, Finding{StepID: s.ID, Message: "focus mesh is ignored on primitive shapes", Severity: SeverityWarning})
			}
		case s.Shape == project.ShapeCustom:
			if p.Kind != project.KindUpload && s.Asset == "" {
				out = append(out, Finding{StepID: s.ID, Message: "custom shape requires an asset reference", Severity: SeverityError})
			}
		default:
			out = append(out, Finding{StepID: s.ID, Message: fmt.Sprintf("unknown shape kind %q", s.Shape), Severity: SeverityError})
		}

		if s.Scale < 0 {
			out = append(out, Finding{StepID: s.ID, Message: fmt.Sprintf("scale must not be negative, got %g", s.Scale), Severity: SeverityError})
		}
		if s.Color != "" && !s.Color.Valid() {
			out = append(out, Finding{StepID: s.ID, Message: fmt.Sprintf("invalid highlight color %q", s.Color), Severity: SeverityWarning})
		}
	}
	return out
}

func validateConnections(p project.Project) []Finding {
	var out []Finding
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	for _, c := range p.Connections {
		if !ids[c.Source] || !ids[c.Target] {
			out = append(out, Finding{ConnectionID: c.ID, Message: "endpoint does not exist", Severity: SeverityWarning})
			continue
		}
		if c.Source == c.Target {
			out = append(out, Finding{ConnectionID: c.ID, Message: "connection loops back to its own step", Severity: SeverityWarning})
		}
		if c.Style != "" && !c.Style.Known() {
			out = append(out, Finding{ConnectionID: c.ID, Message: fmt.Sprintf("unknown style %q, standard is used", c.Style), Severity: SeverityWarning})
		}
		if c.Marker != "" && !c.Marker.IsPrimitive() {
			out = append(out, Finding{ConnectionID: c.ID, Message: fmt.Sprintf("marker %q is not a primitive shape", c.Marker), Severity: SeverityWarning})
		}
	}
	return out
}

func validateGuide(p project.Project) []Finding {
	var out []Finding
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	for _, g := range p.Guide {
		if !ids[g.StepID] {
			out = append(out, Finding{StepID: g.StepID, Message: "guide entry references a missing step", Severity: SeverityWarning})
		}
	}
	return out
}

func validateFlow(p project.Project) []Finding {
	if id, ok := FromProject(p).FindCycle(); ok {
		return []Finding{{StepID: id, Message: "flow contains a cycle", Severity: SeverityWarning}}
	}
	return nil
}
