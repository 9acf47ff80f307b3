package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/pkg/models"
)

// searchTypes are the issue types workon looks for on Jira.
var searchTypes = []models.IssueType{models.TypeStory, models.TypeTask, models.TypeBug}

// WorkOn makes issue the current issue and checks out its branch. Stories
// have no branch and are only cached.
func (e *Engine) WorkOn(ctx context.Context, issue models.Issue) error {
	if issue.Type == models.TypeStory {
		return nil
	}
	if err := e.requireGit(); err != nil {
		return err
	}
	branch, err := e.BranchName(issue)
	if err != nil {
		return err
	}
	if err := e.git.Checkout(branch); err != nil {
		return fmt.Errorf("failed to checkout branch: %w", err)
	}
	return e.setCurrentIssue(ctx, issue.Key)
}

// ChooseLocal lets the user pick a cached issue that is not a story.
func (e *Engine) ChooseLocal(ctx context.Context) (models.Issue, error) {
	selected, err := e.choose(ctx, "Choose issue to work on", func(issue models.Issue) bool {
		return issue.Type != models.TypeStory
	})
	if err != nil {
		return models.Issue{}, err
	}
	if len(selected) == 0 {
		return models.Issue{}, ErrNothingSelected
	}
	return selected[0], nil
}

// FindRemote fetches an issue from Jira, either by key or by searching
// stories, tasks and bugs for keyword. When several issues match the user
// picks one.
func (e *Engine) FindRemote(ctx context.Context, byKey bool, keyword string) (models.Issue, error) {
	if err := e.requireConnector(); err != nil {
		return models.Issue{}, err
	}
	keyword = strings.TrimSpace(keyword)
	if byKey {
		return e.connector.GetIssueByKey(ctx, keyword)
	}

	issues, err := e.connector.SearchIssues(ctx, keyword, searchTypes...)
	if err != nil {
		return models.Issue{}, err
	}
	switch len(issues) {
	case 0:
		return models.Issue{}, fmt.Errorf("%w with keyword: %s", ErrNoIssuesFound, keyword)
	case 1:
		return issues[0], nil
	}

	issue, ok, err := e.selector.SelectIssue("Matching issues", issues)
	if err != nil {
		return models.Issue{}, err
	}
	if !ok {
		return models.Issue{}, ErrNothingSelected
	}
	return issue, nil
}

// Track caches a top-level issue, replacing any cached copy.
func (e *Engine) Track(ctx context.Context, issue models.Issue) error {
	if err := e.issues.Upsert(ctx, issue); err != nil {
		return fmt.Errorf("failed to store issue %s: %w", issue.Key, err)
	}
	return nil
}

// ParentStory returns the story new subtasks go under: the current issue
// when it is a story, the parent of the current subtask, or a story the
// user picks.
func (e *Engine) ParentStory(ctx context.Context) (models.Issue, error) {
	if e.workspace.CurrentIssue != "" {
		issues, err := e.issues.All(ctx)
		if err != nil {
			return models.Issue{}, fmt.Errorf("failed to load issues: %w", err)
		}
		for _, issue := range issues {
			if issue.Type != models.TypeStory {
				continue
			}
			if issue.Key == e.workspace.CurrentIssue || containsKey(issue.Subtasks, e.workspace.CurrentIssue) {
				return issue, nil
			}
		}
	}

	story, ok, err := e.chooseStory(ctx, "Choose parent story")
	if err != nil {
		return models.Issue{}, err
	}
	if !ok {
		return models.Issue{}, fmt.Errorf("%w: a subtask needs a parent story, run 'gfl story' or 'gfl workon' first", ErrNothingSelected)
	}
	return story, nil
}

// CreateIssue creates the issue on Jira, starts it, caches it (a subtask
// inside its parent) and works on it. A subtask without ParentKey goes under
// ParentStory.
func (e *Engine) CreateIssue(ctx context.Context, fields jira.IssueFields) (models.Issue, error) {
	if err := e.requireConnector(); err != nil {
		return models.Issue{}, err
	}
	start, err := e.workspace.GetAction(models.ActionStart)
	if err != nil {
		return models.Issue{}, err
	}

	if fields.Type == models.TypeSubtask && fields.ParentKey == "" {
		parent, err := e.ParentStory(ctx)
		if err != nil {
			return models.Issue{}, err
		}
		fields.ParentKey = parent.Key
	}

	issue, err := e.connector.CreateIssue(ctx, fields)
	if err != nil {
		return models.Issue{}, err
	}

	started, result, err := e.connector.MakeAction(ctx, start, issue)
	if err != nil {
		// The issue exists remotely; cache it as created so it is not lost.
		logging.Error("failed to start new issue", "issue_key", issue.Key, "steps", result.String(), "error", err)
	} else {
		issue = started
	}

	if fields.Type == models.TypeSubtask {
		if storeErr := e.issues.AddSubtask(ctx, fields.ParentKey, issue); storeErr != nil {
			return issue, fmt.Errorf("failed to store subtask %s: %w", issue.Key, storeErr)
		}
	} else if storeErr := e.Track(ctx, issue); storeErr != nil {
		return issue, storeErr
	}
	if err != nil {
		return issue, fmt.Errorf("created %s but failed to start it: %w", issue.Key, err)
	}

	return issue, e.WorkOn(ctx, issue)
}

// Commit commits the working tree for the current issue.
func (e *Engine) Commit(message string, skipAdd bool) error {
	if e.workspace.CurrentIssue == "" {
		return ErrNoCurrentIssue
	}
	if err := e.requireGit(); err != nil {
		return err
	}
	return e.git.Commit(e.workspace.CurrentIssue, message, skipAdd)
}

// Publish pushes the branch of the current issue and returns it.
func (e *Engine) Publish(ctx context.Context) (string, error) {
	issue, err := e.CurrentIssue(ctx)
	if err != nil {
		return "", err
	}
	return e.push(issue)
}

func (e *Engine) push(issue models.Issue) (string, error) {
	if err := e.requireGit(); err != nil {
		return "", err
	}
	branch, err := e.BranchName(issue)
	if err != nil {
		return "", err
	}
	if err := e.git.Push(branch); err != nil {
		return "", fmt.Errorf("failed to push branch: %w", err)
	}
	return branch, nil
}

// OpenPullRequest pushes the issue's branch and opens a pull request for it.
// Stories have no branch and are refused.
func (e *Engine) OpenPullRequest(ctx context.Context, issue models.Issue, opener PullRequestOpener) (string, error) {
	if issue.Type == models.TypeStory {
		return "", fmt.Errorf("story %s has no branch", issue.Key)
	}
	branch, err := e.push(issue)
	if err != nil {
		return "", err
	}
	remoteURL, err := e.git.RemoteURL()
	if err != nil {
		logging.Warn("no remote url", "error", err)
	}
	prURL, err := opener.Open(ctx, e.workspace, remoteURL, issue, branch)
	if err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}
	return prURL, nil
}

// SyncReport lists what Sync did.
type SyncReport struct {
	Updated []models.Issue
	Failed  map[string]error
}

// Sync re-reads every cached top-level issue from Jira and replaces the
// cached copy. Issues that cannot be read or mapped are left as they are.
func (e *Engine) Sync(ctx context.Context) (SyncReport, error) {
	report := SyncReport{Failed: make(map[string]error)}
	if err := e.requireConnector(); err != nil {
		return report, err
	}

	issues, err := e.issues.All(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load issues: %w", err)
	}

	var errs []error
	for _, cached := range issues {
		remote, err := e.connector.GetIssueByKey(ctx, cached.Key)
		if err == nil {
			err = e.issues.Update(ctx, remote)
		}
		if err != nil {
			logging.Warn("sync skipped issue", "issue_key", cached.Key, "error", err)
			report.Failed[cached.Key] = err
			errs = append(errs, fmt.Errorf("%s: %w", cached.Key, err))
			continue
		}
		report.Updated = append(report.Updated, remote)
	}

	err = errors.Join(errs...)
	if errors.Is(err, models.ErrNotFound) {
		logging.Info("some cached issues no longer exist on JIRA, run 'gfl finish' to drop them")
	}
	return report, err
}
