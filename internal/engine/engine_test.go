package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/internal/store"
	"github.com/danielolaszy/gfl/pkg/models"
)

// fakeSelector picks issues by key and records what it was shown.
type fakeSelector struct {
	pick     []string
	one      string
	calls    int
	choices  []Choice
	pointer  int
	oneCalls int
}

func (s *fakeSelector) SelectIssues(title string, choices []Choice, pointer int) ([]models.Issue, error) {
	s.calls++
	s.choices = choices
	s.pointer = pointer
	var picked []models.Issue
	for _, key := range s.pick {
		for _, c := range choices {
			if c.Issue.Key == key && !c.Disabled {
				picked = append(picked, c.Issue)
			}
		}
	}
	return picked, nil
}

func (s *fakeSelector) SelectIssue(title string, issues []models.Issue) (models.Issue, bool, error) {
	s.oneCalls++
	for _, issue := range issues {
		if issue.Key == s.one {
			return issue, true, nil
		}
	}
	return models.Issue{}, false, nil
}

// fakeConnector applies actions locally; keys in fail are rejected.
type fakeConnector struct {
	fail    map[string]error
	remote  map[string]models.Issue
	search  []models.Issue
	created []jira.IssueFields
	actions []string
}

func (c *fakeConnector) MakeAction(ctx context.Context, action models.Action, issue models.Issue) (models.Issue, jira.ActionResult, error) {
	c.actions = append(c.actions, string(action.Name)+" "+issue.Key)
	result := jira.ActionResult{Key: issue.Key, Action: action.Name}
	if err := c.fail[issue.Key]; err != nil {
		result.Steps = append(result.Steps, jira.Step{Kind: jira.StepTransition, Outcome: jira.OutcomeFailed, Err: err})
		return issue, result, err
	}
	issue.Status = action.NextState
	return issue, result, nil
}

func (c *fakeConnector) CreateIssue(ctx context.Context, fields jira.IssueFields) (models.Issue, error) {
	c.created = append(c.created, fields)
	return models.Issue{Key: "PRJ-50", Summary: fields.Summary, Type: fields.Type, Status: models.StatusOpen}, nil
}

func (c *fakeConnector) GetIssueByKey(ctx context.Context, key string) (models.Issue, error) {
	issue, ok := c.remote[key]
	if !ok {
		return models.Issue{}, &models.NotFoundError{Key: key}
	}
	return issue, nil
}

func (c *fakeConnector) SearchIssues(ctx context.Context, keyword string, types ...models.IssueType) ([]models.Issue, error) {
	return c.search, nil
}

type fakeGit struct {
	checkouts []string
	commits   []string
	pushes    []string
}

func (g *fakeGit) Checkout(branch string) error {
	g.checkouts = append(g.checkouts, branch)
	return nil
}

func (g *fakeGit) Commit(issueKey, message string, skipAdd bool) error {
	g.commits = append(g.commits, issueKey+" "+message)
	return nil
}

func (g *fakeGit) Push(branch string) error {
	g.pushes = append(g.pushes, branch)
	return nil
}

func (g *fakeGit) RemoteURL() (string, error) {
	return "git@github.com:danielolaszy/gfl.git", nil
}

type fakeOpener struct {
	branches []string
}

func (o *fakeOpener) Open(ctx context.Context, ws *models.Workspace, remoteURL string, issue models.Issue, branch string) (string, error) {
	o.branches = append(o.branches, branch)
	return "https://github.com/danielolaszy/gfl/pull/1", nil
}

type testEnv struct {
	engine    *Engine
	repos     *store.Repositories
	workspace *models.Workspace
	selector  *fakeSelector
	connector *fakeConnector
	git       *fakeGit
}

func testWorkflow(t *testing.T) *models.Workflow {
	t.Helper()
	wf := &models.Workflow{
		ID: "W1",
		Statuses: []models.IssueStatusMapping{
			{Status: models.StatusOpen, Mapping: []string{"To Do"}},
			{Status: models.StatusInProgress, Mapping: []string{"In Progress"}},
			{Status: models.StatusReview, Mapping: []string{"In Review"}},
			{Status: models.StatusDone, Mapping: []string{"Done"}},
		},
		Types: []models.IssueTypeMapping{
			{IssueType: models.TypeStory, Mapping: "Story", Prefix: "story/"},
			{IssueType: models.TypeTask, Mapping: "Task", Prefix: "task/"},
			{IssueType: models.TypeSubtask, Mapping: "Sub-task", Prefix: "feat/"},
			{IssueType: models.TypeBug, Mapping: "Bug", Prefix: "fix/"},
		},
	}
	for _, name := range []models.ActionName{models.ActionStart, models.ActionReview} {
		action, err := models.NewAction(name)
		require.NoError(t, err)
		wf.Actions = append(wf.Actions, action)
	}
	return wf
}

func setupEngine(t *testing.T, issues ...models.Issue) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "gfl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	repos := store.NewRepositories(s)

	wf := testWorkflow(t)
	require.NoError(t, repos.Workflows.Save(ctx, wf))
	project := &models.Project{ID: "prj", Key: "PRJ", Workflow: wf}
	require.NoError(t, repos.Projects.Save(ctx, project))

	ws := &models.Workspace{Path: t.TempDir(), Project: project, PRURL: "https://example.com/compare/%s"}
	require.NoError(t, repos.Workspaces.Upsert(ctx, ws))

	for _, issue := range issues {
		require.NoError(t, repos.Issues.Save(ctx, issue))
	}

	env := &testEnv{
		repos:     repos,
		workspace: ws,
		selector:  &fakeSelector{},
		connector: &fakeConnector{fail: map[string]error{}, remote: map[string]models.Issue{}},
		git:       &fakeGit{},
	}
	env.engine, err = New(ws, Deps{
		Connector:  env.connector,
		Issues:     repos.Issues,
		Workspaces: repos.Workspaces,
		Selector:   env.selector,
		Git:        env.git,
	})
	require.NoError(t, err)
	return env
}

// failingRemove rejects Remove for the keys in fail.
type failingRemove struct {
	IssueRepository
	fail map[string]bool
}

func (r failingRemove) Remove(ctx context.Context, key string) error {
	if r.fail[key] {
		return errors.New("disk full")
	}
	return r.IssueRepository.Remove(ctx, key)
}

func storyWithSubtask() models.Issue {
	return models.Issue{
		Key: "PRJ-10", Summary: "Login", Type: models.TypeStory, Status: models.StatusInProgress,
		Subtasks: []models.Issue{
			{Key: "PRJ-12", Summary: "Form", Type: models.TypeSubtask, Status: models.StatusOpen},
		},
	}
}

func TestNew_RequiresWorkflow(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.ErrorIs(t, err, models.ErrNoWorkspace)

	_, err = New(&models.Workspace{Path: "/src", Project: &models.Project{ID: "p"}}, Deps{})
	assert.Error(t, err)
}

func TestPointerIndex(t *testing.T) {
	issues := []models.Issue{
		storyWithSubtask(),
		{Key: "PRJ-20", Type: models.TypeTask},
	}

	testCases := []struct {
		name     string
		current  string
		expected int
	}{
		{name: "no current issue", current: "", expected: 0},
		{name: "story", current: "PRJ-10", expected: 0},
		{name: "subtask", current: "PRJ-12", expected: 1},
		{name: "task after subtasks", current: "PRJ-20", expected: 2},
		{name: "unknown key", current: "PRJ-99", expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, PointerIndex(issues, tc.current))
		})
	}
}

func TestFirstEnabled(t *testing.T) {
	choices := []Choice{{Disabled: true}, {}, {Disabled: true}, {}}

	assert.Equal(t, 1, FirstEnabled(choices, 0))
	assert.Equal(t, 3, FirstEnabled(choices, 3))
	assert.Equal(t, 1, FirstEnabled(choices, 2))
	assert.Equal(t, 1, FirstEnabled(choices, 9))
	assert.Equal(t, -1, FirstEnabled([]Choice{{Disabled: true}}, 0))
	assert.Equal(t, -1, FirstEnabled(nil, 0))
}

func TestChoices(t *testing.T) {
	choices := Choices([]models.Issue{storyWithSubtask()}, func(issue models.Issue) bool {
		return issue.Status == models.StatusOpen
	})
	require.Len(t, choices, 2)
	assert.Equal(t, "PRJ-10", choices[0].Issue.Key)
	assert.True(t, choices[0].Disabled)
	assert.False(t, choices[0].Subtask)
	assert.Equal(t, "PRJ-12", choices[1].Issue.Key)
	assert.False(t, choices[1].Disabled)
	assert.True(t, choices[1].Subtask)
	assert.True(t, HasEnabled(choices))
}

func TestPerformAction_StartSubtaskLeavesParent(t *testing.T) {
	env := setupEngine(t, storyWithSubtask())
	env.selector.pick = []string{"PRJ-12"}
	ctx := context.Background()

	outcomes, err := env.engine.PerformAction(ctx, models.ActionStart)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusInProgress, outcomes[0].Issue.Status)

	sub, err := env.repos.Issues.FindByKey(ctx, "PRJ-12")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, sub.Status)

	parent, err := env.repos.Issues.FindByKey(ctx, "PRJ-10")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, parent.Status)
	assert.Equal(t, "Login", parent.Summary)
}

func TestPerformAction_OnlyOpenIssuesAreSelectable(t *testing.T) {
	env := setupEngine(t,
		storyWithSubtask(),
		models.Issue{Key: "PRJ-20", Type: models.TypeTask, Status: models.StatusOpen},
		models.Issue{Key: "PRJ-21", Type: models.TypeBug, Status: models.StatusReview},
	)
	env.selector.pick = []string{"PRJ-10", "PRJ-12", "PRJ-20", "PRJ-21"}
	ctx := context.Background()

	outcomes, err := env.engine.PerformAction(ctx, models.ActionStart)
	require.NoError(t, err)

	var keys []string
	for _, o := range outcomes {
		keys = append(keys, o.Issue.Key)
	}
	assert.Equal(t, []string{"PRJ-12", "PRJ-20"}, keys)
	assert.Equal(t, 1, env.selector.pointer, "pointer moves to the first open issue")

	for _, c := range env.selector.choices {
		assert.Equal(t, c.Issue.Status != models.StatusOpen, c.Disabled, c.Issue.Key)
	}

	for _, key := range keys {
		issue, err := env.repos.Issues.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, issue.Status, key)
	}
	bug, err := env.repos.Issues.FindByKey(ctx, "PRJ-21")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, bug.Status)
}

func TestPerformAction_NoCandidatesIsNoop(t *testing.T) {
	env := setupEngine(t, models.Issue{Key: "PRJ-1", Type: models.TypeTask, Status: models.StatusDone})

	outcomes, err := env.engine.PerformAction(context.Background(), models.ActionStart)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Zero(t, env.selector.calls)
	assert.Empty(t, env.connector.actions)
}

func TestPerformAction_UnknownActionBeforeRemote(t *testing.T) {
	env := setupEngine(t, models.Issue{Key: "PRJ-1", Type: models.TypeTask, Status: models.StatusReview})

	_, err := env.engine.PerformAction(context.Background(), models.ActionResolve)
	assert.ErrorIs(t, err, models.ErrUnknownAction)
	assert.Zero(t, env.selector.calls)
	assert.Empty(t, env.connector.actions)
}

func TestPerformAction_PartialFailureContinuesBatch(t *testing.T) {
	env := setupEngine(t,
		models.Issue{Key: "PRJ-1", Type: models.TypeTask, Status: models.StatusOpen},
		models.Issue{Key: "PRJ-2", Type: models.TypeTask, Status: models.StatusOpen},
	)
	env.selector.pick = []string{"PRJ-1", "PRJ-2"}
	env.connector.fail["PRJ-1"] = errors.New("transition rejected")
	ctx := context.Background()

	outcomes, err := env.engine.PerformAction(ctx, models.ActionStart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRJ-1: transition rejected")
	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)

	failed, err := env.repos.Issues.FindByKey(ctx, "PRJ-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, failed.Status, "failed issue keeps its status")

	done, err := env.repos.Issues.FindByKey(ctx, "PRJ-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, done.Status)
}

func TestFinish(t *testing.T) {
	ctx := context.Background()

	t.Run("empty selection changes nothing", func(t *testing.T) {
		env := setupEngine(t, storyWithSubtask())
		env.workspace.CurrentIssue = "PRJ-12"
		require.NoError(t, env.repos.Workspaces.Update(ctx, env.workspace))

		require.NoError(t, env.engine.Finish(ctx))
		require.NoError(t, env.engine.Finish(ctx))

		all, err := env.repos.Issues.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		ws, err := env.repos.Workspaces.GetByPath(ctx, env.workspace.Path)
		require.NoError(t, err)
		assert.Equal(t, "PRJ-12", ws.CurrentIssue)
		assert.Zero(t, env.selector.oneCalls)
	})

	t.Run("removing current issue picks a story", func(t *testing.T) {
		env := setupEngine(t,
			storyWithSubtask(),
			models.Issue{Key: "PRJ-30", Summary: "Next", Type: models.TypeStory, Status: models.StatusOpen},
		)
		env.workspace.CurrentIssue = "PRJ-12"
		env.selector.pick = []string{"PRJ-10", "PRJ-12"}
		env.selector.one = "PRJ-30"

		require.NoError(t, env.engine.Finish(ctx))

		_, err := env.repos.Issues.FindByKey(ctx, "PRJ-12")
		assert.ErrorIs(t, err, store.ErrRecordNotFound)
		ws, err := env.repos.Workspaces.GetByPath(ctx, env.workspace.Path)
		require.NoError(t, err)
		assert.Equal(t, "PRJ-30", ws.CurrentIssue)
	})

	t.Run("failed removal still persists current issue", func(t *testing.T) {
		env := setupEngine(t,
			storyWithSubtask(),
			models.Issue{Key: "PRJ-5", Type: models.TypeTask, Status: models.StatusDone},
		)
		env.workspace.CurrentIssue = "PRJ-12"
		env.selector.pick = []string{"PRJ-10", "PRJ-5"}

		e, err := New(env.workspace, Deps{
			Issues:     failingRemove{IssueRepository: env.repos.Issues, fail: map[string]bool{"PRJ-5": true}},
			Workspaces: env.repos.Workspaces,
			Selector:   env.selector,
		})
		require.NoError(t, err)

		err = e.Finish(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PRJ-5")

		_, err = env.repos.Issues.FindByKey(ctx, "PRJ-10")
		assert.ErrorIs(t, err, store.ErrRecordNotFound)
		_, err = env.repos.Issues.FindByKey(ctx, "PRJ-5")
		assert.NoError(t, err)
		ws, err := env.repos.Workspaces.GetByPath(ctx, env.workspace.Path)
		require.NoError(t, err)
		assert.Empty(t, ws.CurrentIssue)
	})

	t.Run("failed removal of current issue keeps it", func(t *testing.T) {
		env := setupEngine(t, storyWithSubtask())
		env.workspace.CurrentIssue = "PRJ-12"
		require.NoError(t, env.repos.Workspaces.Update(ctx, env.workspace))
		env.selector.pick = []string{"PRJ-10"}

		e, err := New(env.workspace, Deps{
			Issues:     failingRemove{IssueRepository: env.repos.Issues, fail: map[string]bool{"PRJ-10": true}},
			Workspaces: env.repos.Workspaces,
			Selector:   env.selector,
		})
		require.NoError(t, err)

		assert.Error(t, e.Finish(ctx))
		assert.Zero(t, env.selector.oneCalls)
		ws, err := env.repos.Workspaces.GetByPath(ctx, env.workspace.Path)
		require.NoError(t, err)
		assert.Equal(t, "PRJ-12", ws.CurrentIssue)
	})

	t.Run("no story left clears current issue", func(t *testing.T) {
		env := setupEngine(t, models.Issue{Key: "PRJ-5", Type: models.TypeTask, Status: models.StatusDone})
		env.workspace.CurrentIssue = "PRJ-5"
		env.selector.pick = []string{"PRJ-5"}

		require.NoError(t, env.engine.Finish(ctx))
		ws, err := env.repos.Workspaces.GetByPath(ctx, env.workspace.Path)
		require.NoError(t, err)
		assert.Empty(t, ws.CurrentIssue)
	})
}

func TestCreateIssue_SubtaskUnderCurrentStory(t *testing.T) {
	env := setupEngine(t, storyWithSubtask())
	env.workspace.CurrentIssue = "PRJ-12"
	ctx := context.Background()

	issue, err := env.engine.CreateIssue(ctx, jira.IssueFields{Summary: "Validate input", Type: models.TypeSubtask})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, issue.Status)
	require.Len(t, env.connector.created, 1)
	assert.Equal(t, "PRJ-10", env.connector.created[0].ParentKey)
	assert.Equal(t, []string{"start PRJ-50"}, env.connector.actions)

	parent, err := env.repos.Issues.FindByKey(ctx, "PRJ-10")
	require.NoError(t, err)
	require.Len(t, parent.Subtasks, 2)
	assert.Equal(t, "PRJ-50", parent.Subtasks[1].Key)

	assert.Equal(t, []string{"feat/PRJ-50-validate-input"}, env.git.checkouts)
	assert.Equal(t, "PRJ-50", env.workspace.CurrentIssue)
}

func TestCreateIssue_StoryIsNotCheckedOut(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	issue, err := env.engine.CreateIssue(ctx, jira.IssueFields{Summary: "Epic thing", Type: models.TypeStory})
	require.NoError(t, err)

	stored, err := env.repos.Issues.FindByKey(ctx, issue.Key)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Empty(t, env.git.checkouts)
	assert.Empty(t, env.workspace.CurrentIssue)
}

func TestFindRemote(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t)
	env.connector.remote["PRJ-7"] = models.Issue{Key: "PRJ-7", Type: models.TypeTask}

	t.Run("by key", func(t *testing.T) {
		issue, err := env.engine.FindRemote(ctx, true, "PRJ-7")
		require.NoError(t, err)
		assert.Equal(t, "PRJ-7", issue.Key)

		_, err = env.engine.FindRemote(ctx, true, "PRJ-8")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("no match", func(t *testing.T) {
		env.connector.search = nil
		_, err := env.engine.FindRemote(ctx, false, "login")
		assert.ErrorIs(t, err, ErrNoIssuesFound)
	})

	t.Run("several matches ask the user", func(t *testing.T) {
		env.connector.search = []models.Issue{{Key: "PRJ-1"}, {Key: "PRJ-2"}}
		env.selector.one = "PRJ-2"
		issue, err := env.engine.FindRemote(ctx, false, "login")
		require.NoError(t, err)
		assert.Equal(t, "PRJ-2", issue.Key)
	})
}

func TestCommitAndPublish(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t, models.Issue{Key: "PRJ-3", Summary: "Fix crash", Type: models.TypeBug, Status: models.StatusInProgress})

	assert.ErrorIs(t, env.engine.Commit("wip", false), ErrNoCurrentIssue)

	require.NoError(t, env.engine.WorkOn(ctx, models.Issue{Key: "PRJ-3", Summary: "Fix crash", Type: models.TypeBug}))
	require.NoError(t, env.engine.Commit("handle nil", false))
	assert.Equal(t, []string{"PRJ-3 handle nil"}, env.git.commits)

	branch, err := env.engine.Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fix/PRJ-3-fix-crash", branch)
	assert.Equal(t, []string{branch}, env.git.pushes)
}

func TestOpenPullRequest(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t)
	opener := &fakeOpener{}

	_, err := env.engine.OpenPullRequest(ctx, models.Issue{Key: "PRJ-1", Type: models.TypeStory}, opener)
	assert.Error(t, err)

	prURL, err := env.engine.OpenPullRequest(ctx, models.Issue{Key: "PRJ-2", Summary: "Add form", Type: models.TypeTask}, opener)
	require.NoError(t, err)
	assert.NotEmpty(t, prURL)
	assert.Equal(t, []string{"task/PRJ-2-add-form"}, opener.branches)
	assert.Equal(t, []string{"task/PRJ-2-add-form"}, env.git.pushes)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	env := setupEngine(t,
		storyWithSubtask(),
		models.Issue{Key: "PRJ-40", Summary: "Gone", Type: models.TypeTask, Status: models.StatusOpen},
	)
	remote := storyWithSubtask()
	remote.Status = models.StatusReview
	remote.Subtasks[0].Status = models.StatusDone
	env.connector.remote["PRJ-10"] = remote

	report, err := env.engine.Sync(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.Len(t, report.Updated, 1)
	assert.Contains(t, report.Failed, "PRJ-40")

	story, err := env.repos.Issues.FindByKey(ctx, "PRJ-10")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, story.Status)
	assert.Equal(t, models.StatusDone, story.Subtasks[0].Status)

	gone, err := env.repos.Issues.FindByKey(ctx, "PRJ-40")
	require.NoError(t, err)
	assert.Equal(t, "Gone", gone.Summary)
}
