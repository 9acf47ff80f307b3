package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/pkg/models"
)

// Choices flattens stories and their subtasks into selection lines; issues
// rejected by enabled are disabled.
func Choices(issues []models.Issue, enabled func(models.Issue) bool) []Choice {
	var choices []Choice
	for _, story := range issues {
		choices = append(choices, Choice{Issue: story, Disabled: !enabled(story)})
		for _, sub := range story.Subtasks {
			choices = append(choices, Choice{Issue: sub, Subtask: true, Disabled: !enabled(sub)})
		}
	}
	return choices
}

// HasEnabled reports whether any choice can be selected.
func HasEnabled(choices []Choice) bool {
	for _, c := range choices {
		if !c.Disabled {
			return true
		}
	}
	return false
}

// PointerIndex returns the position of currentIssue in the flattened
// story-then-subtasks order, or 0 when it is absent.
func PointerIndex(issues []models.Issue, currentIssue string) int {
	if currentIssue == "" {
		return 0
	}
	for i, issue := range models.Flatten(issues) {
		if issue.Key == currentIssue {
			return i
		}
	}
	return 0
}

// FirstEnabled keeps pointer when it is on an enabled choice and otherwise
// moves it to the first enabled choice. It returns -1 when every choice is
// disabled.
func FirstEnabled(choices []Choice, pointer int) int {
	if pointer >= 0 && pointer < len(choices) && !choices[pointer].Disabled {
		return pointer
	}
	for i, c := range choices {
		if !c.Disabled {
			return i
		}
	}
	return -1
}

// choose runs the selector over all cached issues with the given filter. It
// returns nil without prompting when no issue passes the filter.
func (e *Engine) choose(ctx context.Context, title string, enabled func(models.Issue) bool) ([]models.Issue, error) {
	issues, err := e.issues.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}

	choices := Choices(issues, enabled)
	pointer := FirstEnabled(choices, PointerIndex(issues, e.workspace.CurrentIssue))
	if pointer < 0 {
		return nil, nil
	}
	return e.selector.SelectIssues(title, choices, pointer)
}

// Outcome is the result of an action on one selected issue.
type Outcome struct {
	Issue  models.Issue
	Result jira.ActionResult
	Err    error
}

// PerformAction lets the user pick issues in the action's initial state and
// applies the action to each of them. An issue is persisted with its new
// status only when the remote side accepted every step; failures are
// reported per issue and the rest of the batch continues.
func (e *Engine) PerformAction(ctx context.Context, name models.ActionName) ([]Outcome, error) {
	action, err := e.workspace.GetAction(name)
	if err != nil {
		return nil, err
	}
	if err := e.requireConnector(); err != nil {
		return nil, err
	}

	selected, err := e.choose(ctx, fmt.Sprintf("Choose issues to %s", name), func(issue models.Issue) bool {
		return issue.Status == action.InitialState
	})
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		logging.Info("no issues selected", "action", name)
		return nil, nil
	}

	var outcomes []Outcome
	var errs []error
	for _, issue := range selected {
		outcome := e.apply(ctx, action, issue)
		if outcome.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", issue.Key, outcome.Err))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, errors.Join(errs...)
}

func (e *Engine) apply(ctx context.Context, action models.Action, issue models.Issue) Outcome {
	updated, result, err := e.connector.MakeAction(ctx, action, issue)
	if err != nil {
		logging.Error("action failed", "issue_key", issue.Key, "action", action.Name, "error", err)
		return Outcome{Issue: issue, Result: result, Err: err}
	}
	if err := e.issues.Update(ctx, updated); err != nil {
		logging.Error("failed to store issue", "issue_key", issue.Key, "error", err)
		return Outcome{Issue: updated, Result: result, Err: fmt.Errorf("remote updated but local store failed: %w", err)}
	}
	return Outcome{Issue: updated, Result: result}
}

// Finish removes the stories (and tasks and bugs) the user picks, together
// with their subtasks. When the current issue is gone the user picks a new
// current story. Picking nothing changes nothing. A failed removal does not
// stop the others and the workspace is persisted either way.
func (e *Engine) Finish(ctx context.Context) error {
	selected, err := e.choose(ctx, "Choose issues to finish", func(issue models.Issue) bool {
		return issue.Type != models.TypeSubtask
	})
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return nil
	}

	current := e.workspace.CurrentIssue
	var errs []error
	for _, issue := range selected {
		if err := e.issues.Remove(ctx, issue.Key); err != nil {
			logging.Error("failed to remove issue", "issue_key", issue.Key, "error", err)
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", issue.Key, err))
			continue
		}
		if issue.Key == current || containsKey(issue.Subtasks, current) {
			current = ""
		}
		logging.Info("issue finished", "issue_key", issue.Key)
	}

	if current == "" {
		story, ok, err := e.chooseStory(ctx, "Choose issue to work on")
		if err != nil {
			errs = append(errs, err)
		} else if ok {
			current = story.Key
		}
	}
	if err := e.setCurrentIssue(ctx, current); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) chooseStory(ctx context.Context, title string) (models.Issue, bool, error) {
	issues, err := e.issues.All(ctx)
	if err != nil {
		return models.Issue{}, false, fmt.Errorf("failed to load issues: %w", err)
	}
	var stories []models.Issue
	for _, issue := range issues {
		if issue.Type == models.TypeStory {
			stories = append(stories, issue)
		}
	}
	if len(stories) == 0 {
		return models.Issue{}, false, nil
	}
	return e.selector.SelectIssue(title, stories)
}

func containsKey(issues []models.Issue, key string) bool {
	if key == "" {
		return false
	}
	for _, issue := range issues {
		if issue.Key == key {
			return true
		}
	}
	return false
}
