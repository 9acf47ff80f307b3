// Package models defines data structures shared across the application.
package models

import "fmt"

// Status is the internal lifecycle state of an issue. Statuses have no total
// order; only actions define which status follows which.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists every internal status in declaration order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusReview, StatusDone}

// ParseStatus converts a string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	for _, status := range Statuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IssueType is the internal kind of an issue.
type IssueType string

const (
	TypeStory   IssueType = "story"
	TypeTask    IssueType = "task"
	TypeSubtask IssueType = "subtask"
	TypeBug     IssueType = "bug"
)

// IssueTypes lists every internal issue type in declaration order.
var IssueTypes = []IssueType{TypeStory, TypeTask, TypeSubtask, TypeBug}

// ParseIssueType converts a string to an IssueType, rejecting unknown values.
func ParseIssueType(s string) (IssueType, error) {
	for _, t := range IssueTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown issue type %q", s)
}

// ActionName identifies one of the three canonical actions.
type ActionName string

const (
	ActionStart   ActionName = "start"
	ActionReview  ActionName = "review"
	ActionResolve ActionName = "resolve"
)

// ActionNames lists the canonical actions in lifecycle order.
var ActionNames = []ActionName{ActionStart, ActionReview, ActionResolve}

// canonicalStates holds the fixed (initial, next) pair of every action.
var canonicalStates = map[ActionName][2]Status{
	ActionStart:   {StatusOpen, StatusInProgress},
	ActionReview:  {StatusInProgress, StatusReview},
	ActionResolve: {StatusReview, StatusDone},
}

// ParseActionName converts a string to an ActionName, rejecting unknown values.
func ParseActionName(s string) (ActionName, error) {
	if _, ok := canonicalStates[ActionName(s)]; ok {
		return ActionName(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Action moves an issue from InitialState to NextState. The state pair is
// fixed per action name; Transitions and AssignToUser are configured per
// workflow.
type Action struct {
	// Name is the canonical action name
	Name ActionName

	// InitialState is the status an issue must have to be eligible
	InitialState Status

	// NextState is the status the issue has after the action
	NextState Status

	// Transitions are remote transition names applied in order
	Transitions []string

	// AssignToUser assigns the connection user when true and clears the
	// assignee otherwise
	AssignToUser bool
}

// NewAction returns the canonical action for name with no transitions.
func NewAction(name ActionName) (Action, error) {
	states, ok := canonicalStates[name]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return Action{
		Name:         name,
		InitialState: states[0],
		NextState:    states[1],
	}, nil
}

// IsCanonical reports whether the action's state pair matches its name.
func (a Action) IsCanonical() bool {
	states, ok := canonicalStates[a.Name]
	return ok && states[0] == a.InitialState && states[1] == a.NextState
}
