// Package engine drives gfl's work-in-progress flow: it moves cached issues
// through the workflow's actions while replaying them on Jira, and keeps the
// workspace's current issue and git branch in step.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/internal/git"
	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/pkg/models"
)

var (
	// ErrNoCurrentIssue indicates the workspace has no current issue.
	ErrNoCurrentIssue = errors.New("no current issue, run 'gfl workon' first")
	// ErrNothingSelected indicates the user made no choice where one was required.
	ErrNothingSelected = errors.New("no issue selected")
	// ErrNoIssuesFound indicates a remote search came back empty.
	ErrNoIssuesFound = errors.New("no issues found")
)

// Choice is one line of an issue selection. Subtask choices follow the
// story they belong to.
type Choice struct {
	Issue    models.Issue
	Subtask  bool
	Disabled bool
}

// Selector asks the user to choose issues.
type Selector interface {
	// SelectIssues lets the user tick any enabled choices. pointer is the
	// index of the initially focused choice and is always enabled.
	SelectIssues(title string, choices []Choice, pointer int) ([]models.Issue, error)
	// SelectIssue lets the user pick one of issues; ok is false when the
	// user picked nothing.
	SelectIssue(title string, issues []models.Issue) (issue models.Issue, ok bool, err error)
}

// Connector is the remote tracker.
type Connector interface {
	CreateIssue(ctx context.Context, fields jira.IssueFields) (models.Issue, error)
	GetIssueByKey(ctx context.Context, key string) (models.Issue, error)
	SearchIssues(ctx context.Context, keyword string, types ...models.IssueType) ([]models.Issue, error)
	MakeAction(ctx context.Context, action models.Action, issue models.Issue) (models.Issue, jira.ActionResult, error)
}

// IssueRepository is the local issue cache.
type IssueRepository interface {
	All(ctx context.Context) ([]models.Issue, error)
	FindByKey(ctx context.Context, key string) (models.Issue, error)
	Upsert(ctx context.Context, issue models.Issue) error
	Update(ctx context.Context, issue models.Issue) error
	AddSubtask(ctx context.Context, parentKey string, subtask models.Issue) error
	Remove(ctx context.Context, key string) error
}

// WorkspaceRepository persists the workspace.
type WorkspaceRepository interface {
	Update(ctx context.Context, w *models.Workspace) error
}

// Git runs git in the workspace.
type Git interface {
	Checkout(branch string) error
	Commit(issueKey, message string, skipAdd bool) error
	Push(branch string) error
	RemoteURL() (string, error)
}

// PullRequestOpener opens a pull request for a pushed branch.
type PullRequestOpener interface {
	Open(ctx context.Context, ws *models.Workspace, remoteURL string, issue models.Issue, branch string) (string, error)
}

// Engine operates on one workspace.
type Engine struct {
	workspace  *models.Workspace
	workflow   *models.Workflow
	connector  Connector
	issues     IssueRepository
	workspaces WorkspaceRepository
	selector   Selector
	git        Git
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Connector  Connector
	Issues     IssueRepository
	Workspaces WorkspaceRepository
	Selector   Selector
	Git        Git
}

// New returns an engine for ws. The workspace must be bound to a project
// with a workflow.
func New(ws *models.Workspace, deps Deps) (*Engine, error) {
	if ws == nil {
		return nil, models.ErrNoWorkspace
	}
	workflow := ws.Workflow()
	if workflow == nil {
		return nil, fmt.Errorf("workspace %s has no project workflow", ws.Path)
	}
	if deps.Issues == nil || deps.Workspaces == nil || deps.Selector == nil {
		return nil, fmt.Errorf("engine needs issue and workspace repositories and a selector")
	}
	return &Engine{
		workspace:  ws,
		workflow:   workflow,
		connector:  deps.Connector,
		issues:     deps.Issues,
		workspaces: deps.Workspaces,
		selector:   deps.Selector,
		git:        deps.Git,
	}, nil
}

// Workspace returns the engine's workspace.
func (e *Engine) Workspace() *models.Workspace {
	return e.workspace
}

func (e *Engine) requireConnector() error {
	if e.connector == nil {
		return fmt.Errorf("no JIRA connection for project")
	}
	return nil
}

func (e *Engine) requireGit() error {
	if e.git == nil {
		return fmt.Errorf("git is not available in %s", e.workspace.Path)
	}
	return nil
}

// BranchName returns the git branch of issue.
func (e *Engine) BranchName(issue models.Issue) (string, error) {
	prefix, ok := e.workflow.GetBranchPrefix(issue)
	if !ok {
		return "", fmt.Errorf("%w: no branch prefix for %s", models.ErrUnmappedType, issue.Type)
	}
	return git.GenerateBranchName(prefix, issue.Key, issue.Summary), nil
}

// CurrentIssue returns the cached current issue of the workspace.
func (e *Engine) CurrentIssue(ctx context.Context) (models.Issue, error) {
	if e.workspace.CurrentIssue == "" {
		return models.Issue{}, ErrNoCurrentIssue
	}
	issue, err := e.issues.FindByKey(ctx, e.workspace.CurrentIssue)
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to load current issue %s: %w", e.workspace.CurrentIssue, err)
	}
	return issue, nil
}

// Issues returns the cached issues in story-then-subtasks order of stories.
func (e *Engine) Issues(ctx context.Context) ([]models.Issue, error) {
	return e.issues.All(ctx)
}

func (e *Engine) setCurrentIssue(ctx context.Context, key string) error {
	e.workspace.CurrentIssue = key
	if err := e.workspaces.Update(ctx, e.workspace); err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	logging.Info("current issue set", "issue_key", key, "workspace", e.workspace.Path)
	return nil
}
