package jira

import (
	"fmt"
	"strings"

	"github.com/danielolaszy/gfl/pkg/models"
)

// StepKind identifies a remote step of an action.
type StepKind string

const (
	StepTransition StepKind = "transition"
	StepAssign     StepKind = "assign"
	StepUnassign   StepKind = "unassign"
)

// Outcome is what happened to a step.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped" // transition not offered by the issue
	OutcomeFailed  Outcome = "failed"
)

// Step records one remote call made for an action.
type Step struct {
	Kind    StepKind
	Name    string
	Outcome Outcome
	Err     error
}

func (s Step) String() string {
	label := string(s.Kind)
	if s.Name != "" {
		label = fmt.Sprintf("%s %q", s.Kind, s.Name)
	}
	if s.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", label, s.Outcome, s.Err)
	}
	return fmt.Sprintf("%s: %s", label, s.Outcome)
}

// ActionResult lists the steps taken for one issue in order. Steps after a
// failed one were never attempted.
type ActionResult struct {
	Key    string
	Action models.ActionName
	Steps  []Step
}

// Skipped returns the names of transitions the issue did not offer.
func (r ActionResult) Skipped() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Outcome == OutcomeSkipped {
			names = append(names, s.Name)
		}
	}
	return names
}

// Applied reports whether at least one step changed the remote issue.
func (r ActionResult) Applied() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeApplied {
			return true
		}
	}
	return false
}

func (r ActionResult) String() string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s %s: %s", r.Action, r.Key, strings.Join(parts, ", "))
}
