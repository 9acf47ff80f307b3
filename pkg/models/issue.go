package models

import "fmt"

// Issue is the locally cached representation of a remote work item.
type Issue struct {
	// Key is the remote issue key (e.g., "PRJ-12"), immutable once created
	Key string

	// Summary is the issue's one-line title
	Summary string

	// Type is the internal issue type
	Type IssueType

	// Status is the internal lifecycle status
	Status Status

	// Subtasks are the nested subtasks of a story; a subtask has none
	Subtasks []Issue
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Key, i.Summary)
}

// Equal compares issues by key.
func (i Issue) Equal(other Issue) bool {
	return i.Key == other.Key
}

// AddSubtask appends subtask unless a subtask with the same key exists, in
// which case the existing entry is replaced.
func (i *Issue) AddSubtask(subtask Issue) {
	subtask.Subtasks = nil
	for idx := range i.Subtasks {
		if i.Subtasks[idx].Equal(subtask) {
			i.Subtasks[idx] = subtask
			return
		}
	}
	i.Subtasks = append(i.Subtasks, subtask)
}

// Flatten returns the issues in story-then-subtasks order.
func Flatten(issues []Issue) []Issue {
	var flat []Issue
	for _, issue := range issues {
		flat = append(flat, issue)
		flat = append(flat, issue.Subtasks...)
	}
	return flat
}
