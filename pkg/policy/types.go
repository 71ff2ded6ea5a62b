package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError fails the check.
	SeverityError Severity = "error"

	// SeverityCritical fails the check.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity fails the check.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

func (s Severity) valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Policy is one Rego module whose deny rule is evaluated against host facts.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description is taken from the leading comment of the module.
	Description string `json:"description,omitempty"`

	// Rego contains the policy source.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was read from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Passed is false when any violation is blocking.
	Passed bool `json:"passed"`

	Violations []Violation `json:"violations"`

	// Warnings lists policies that could not be evaluated.
	Warnings []string `json:"warnings,omitempty"`

	Evaluated   []string      `json:"evaluated"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	Duration    time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	// Facts is the collected fact tree.
	Facts any `json:"facts"`

	// Plugins lists every known plugin and its run state.
	Plugins []PluginStatus `json:"plugins"`

	Context *Context `json:"context"`
}

// PluginStatus is the run state of one plugin.
type PluginStatus struct {
	Name       string `json:"name"`
	Generation string `json:"generation"`
	State      string `json:"state"`
}

// Context carries information about the collection being checked.
type Context struct {
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
