package render

import "strings"

// Decision is the outcome of evaluating a condition template.
type Decision int

const (
	// DecisionUnknown means the condition could not be evaluated.
	// It is treated as DecisionExecute: a broken condition never blocks a command.
	DecisionUnknown Decision = iota

	// DecisionExecute means the condition rendered "1".
	DecisionExecute

	// DecisionSkip means the condition rendered anything other than "1".
	DecisionSkip
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case DecisionExecute:
		return "execute"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ShouldExecute reports whether the guarded command must run.
func (d Decision) ShouldExecute() bool {
	return d != DecisionSkip
}

// Decide evaluates the template as a condition. A nil template always executes.
func (t *Template) Decide(vars Vars) Decision {
	if t == nil {
		return DecisionExecute
	}
	out, err := t.Render(vars)
	if err != nil {
		return DecisionUnknown
	}
	if strings.TrimSpace(out) == "1" {
		return DecisionExecute
	}
	return DecisionSkip
}

// Truthy renders the template and reports whether the result is one of
// "1", "true" or "True". Render errors are reported as false.
func (t *Template) Truthy(vars Vars) bool {
	if t == nil {
		return false
	}
	out, err := t.Render(vars)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(out) {
	case "1", "true", "True":
		return true
	default:
		return false
	}
}
