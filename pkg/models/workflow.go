package models

import (
	"fmt"
	"strings"
)

// IssueStatusMapping maps one internal status to a set of remote status names.
type IssueStatusMapping struct {
	Status  Status
	Mapping []string
}

// Contains reports whether remote is one of the mapped remote status names.
func (m IssueStatusMapping) Contains(remote string) bool {
	for _, name := range m.Mapping {
		if name == remote {
			return true
		}
	}
	return false
}

// IssueTypeMapping maps one internal issue type to a remote issue type name
// and the prefix used for branches of that type.
type IssueTypeMapping struct {
	IssueType IssueType
	Mapping   string
	Prefix    string
}

// Workflow maps the internal statuses, types and actions onto the vocabulary
// of one remote project. Lookups scan in declaration order.
type Workflow struct {
	// ID uniquely identifies the workflow
	ID string

	// Statuses maps internal statuses to remote status names
	Statuses []IssueStatusMapping

	// Types maps internal issue types to remote type names and branch prefixes
	Types []IssueTypeMapping

	// Actions holds the per-workflow configuration of each canonical action
	Actions []Action
}

// GetAction returns the action with the given name.
func (w *Workflow) GetAction(name ActionName) (Action, bool) {
	for _, a := range w.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// GetTypeMapping returns the remote type name for an internal issue type.
func (w *Workflow) GetTypeMapping(issueType IssueType) (string, bool) {
	for _, t := range w.Types {
		if t.IssueType == issueType {
			return t.Mapping, true
		}
	}
	return "", false
}

// GetBranchPrefix returns the branch prefix configured for the issue's type.
func (w *Workflow) GetBranchPrefix(issue Issue) (string, bool) {
	for _, t := range w.Types {
		if t.IssueType == issue.Type {
			return t.Prefix, true
		}
	}
	return "", false
}

// MapRemoteStatusToLocal returns the internal status whose mapping set
// contains remote. When sets overlap the first mapping wins.
func (w *Workflow) MapRemoteStatusToLocal(remote string) (Status, error) {
	for _, s := range w.Statuses {
		if s.Contains(remote) {
			return s.Status, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnmappedStatus, remote)
}

// MapRemoteTypeToLocal returns the internal issue type mapped to remote.
func (w *Workflow) MapRemoteTypeToLocal(remote string) (IssueType, error) {
	for _, t := range w.Types {
		if t.Mapping == remote {
			return t.IssueType, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnmappedType, remote)
}

// RemoteTypeNames returns the remote type names mapped to the given types,
// skipping types without a mapping.
func (w *Workflow) RemoteTypeNames(types ...IssueType) []string {
	var names []string
	for _, t := range types {
		if name, ok := w.GetTypeMapping(t); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Validate checks the workflow for unknown vocabulary, non-canonical actions,
// duplicates and overlapping mappings. All problems are reported together.
func (w *Workflow) Validate() error {
	var problems []string

	if strings.TrimSpace(w.ID) == "" {
		problems = append(problems, "workflow id is empty")
	}

	seenStatus := make(map[Status]bool)
	remoteStatusOwner := make(map[string]Status)
	for _, s := range w.Statuses {
		if _, err := ParseStatus(string(s.Status)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seenStatus[s.Status] {
			problems = append(problems, fmt.Sprintf("status %s mapped more than once", s.Status))
		}
		seenStatus[s.Status] = true
		for _, remote := range s.Mapping {
			if owner, ok := remoteStatusOwner[remote]; ok && owner != s.Status {
				problems = append(problems, fmt.Sprintf("remote status %q mapped to both %s and %s", remote, owner, s.Status))
				continue
			}
			remoteStatusOwner[remote] = s.Status
		}
	}

	seenType := make(map[IssueType]bool)
	remoteTypeOwner := make(map[string]IssueType)
	for _, t := range w.Types {
		if _, err := ParseIssueType(string(t.IssueType)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seenType[t.IssueType] {
			problems = append(problems, fmt.Sprintf("issue type %s mapped more than once", t.IssueType))
		}
		seenType[t.IssueType] = true
		if t.Mapping == "" {
			continue
		}
		if owner, ok := remoteTypeOwner[t.Mapping]; ok {
			problems = append(problems, fmt.Sprintf("remote type %q mapped to both %s and %s", t.Mapping, owner, t.IssueType))
			continue
		}
		remoteTypeOwner[t.Mapping] = t.IssueType
	}

	seenAction := make(map[ActionName]bool)
	for _, a := range w.Actions {
		if _, err := ParseActionName(string(a.Name)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if seenAction[a.Name] {
			problems = append(problems, fmt.Sprintf("action %s defined more than once", a.Name))
		}
		seenAction[a.Name] = true
		if !a.IsCanonical() {
			problems = append(problems, fmt.Sprintf("action %s must move %s", a.Name, describeCanonical(a.Name)))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidWorkflow, w.ID, strings.Join(problems, "; "))
	}
	return nil
}

func describeCanonical(name ActionName) string {
	states := canonicalStates[name]
	return fmt.Sprintf("%s -> %s", states[0], states[1])
}
