package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/gfl/pkg/models"
)

// fakeJira serves the subset of the Jira REST v2 API used by the connector.
type fakeJira struct {
	t           *testing.T
	issues      map[string]map[string]any
	search      []string // keys returned by search, in order
	transitions []map[string]string
	created     map[string]any

	posted    []string // transition ids
	assignees []map[string]any
	lastJQL   string

	failPost  int // 1-based transition POST answered with 400, 0 for none
	postCount int
}

func newFakeJira(t *testing.T) *fakeJira {
	return &fakeJira{t: t, issues: make(map[string]map[string]any)}
}

func (f *fakeJira) addIssue(key, summary, remoteType, remoteStatus string, subtasks ...map[string]any) {
	fields := map[string]any{
		"summary":   summary,
		"issuetype": map[string]any{"name": remoteType},
		"status":    map[string]any{"name": remoteStatus},
	}
	if len(subtasks) > 0 {
		fields["subtasks"] = subtasks
	}
	f.issues[key] = map[string]any{"id": "1" + key, "key": key, "fields": fields}
}

func subtaskJSON(key, summary, remoteStatus string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":   summary,
			"issuetype": map[string]any{"name": "Sub-task"},
			"status":    map[string]any{"name": remoteStatus},
		},
	}
}

func (f *fakeJira) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/rest/api/2/")
	parts := strings.Split(path, "/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case path == "myself":
		writeJSON(w, http.StatusOK, map[string]any{"accountId": "acc-1", "emailAddress": "jdoe@example.com"})

	case path == "search":
		f.lastJQL = r.URL.Query().Get("jql")
		var issues []any
		for _, key := range f.search {
			issues = append(issues, f.issues[key])
		}
		writeJSON(w, http.StatusOK, map[string]any{"startAt": 0, "maxResults": 50, "total": len(issues), "issues": issues})

	case path == "issue" && r.Method == http.MethodPost:
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.created = body
		fields := body["fields"].(map[string]any)
		f.addIssue("PRJ-50", fields["summary"].(string), fields["issuetype"].(map[string]any)["name"].(string), "To Do")
		writeJSON(w, http.StatusCreated, map[string]any{"id": "10050", "key": "PRJ-50"})

	case len(parts) == 2 && parts[0] == "issue":
		issue, ok := f.issues[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist or you do not have permission to see it."}})
			return
		}
		writeJSON(w, http.StatusOK, issue)

	case len(parts) == 3 && parts[2] == "transitions" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"transitions": f.transitions})

	case len(parts) == 3 && parts[2] == "transitions" && r.Method == http.MethodPost:
		var body struct {
			Transition struct {
				ID string `json:"id"`
			} `json:"transition"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.postCount++
		if f.postCount == f.failPost {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errorMessages": []string{"transition not allowed"}})
			return
		}
		f.posted = append(f.posted, body.Transition.ID)
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 3 && parts[2] == "assignee" && r.Method == http.MethodPut:
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.assignees = append(f.assignees, body)
		w.WriteHeader(http.StatusNoContent)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func testWorkflow(t *testing.T) *models.Workflow {
	t.Helper()
	wf := &models.Workflow{
		ID: "W1",
		Statuses: []models.IssueStatusMapping{
			{Status: models.StatusOpen, Mapping: []string{"To Do"}},
			{Status: models.StatusInProgress, Mapping: []string{"In Progress"}},
			{Status: models.StatusReview, Mapping: []string{"In Review", "Reviewing"}},
			{Status: models.StatusDone, Mapping: []string{"Done"}},
		},
		Types: []models.IssueTypeMapping{
			{IssueType: models.TypeStory, Mapping: "Story", Prefix: "story/"},
			{IssueType: models.TypeTask, Mapping: "Task", Prefix: "task/"},
			{IssueType: models.TypeSubtask, Mapping: "Sub-task", Prefix: "feat/"},
			{IssueType: models.TypeBug, Mapping: "Bug", Prefix: "fix/"},
		},
	}
	require.NoError(t, wf.Validate())
	return wf
}

func setupConnector(t *testing.T, instanceType string) (*Connector, *fakeJira) {
	t.Helper()
	fake := newFakeJira(t)
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	project := &models.Project{
		ID:  "prj",
		Key: "PRJ",
		Instance: &models.Instance{
			ID:          "test",
			URL:         server.URL,
			Type:        instanceType,
			Credentials: &models.Credentials{ID: "me", Username: "jdoe", Email: "jdoe@example.com", Token: "token"},
		},
		Workflow: testWorkflow(t),
	}
	connector, err := NewConnector(project, WithMaxResults(10))
	require.NoError(t, err)
	return connector, fake
}

func TestNewConnector_Validation(t *testing.T) {
	testCases := []struct {
		name          string
		project       *models.Project
		errorContains string
	}{
		{
			name:          "nil project",
			project:       nil,
			errorContains: "no project",
		},
		{
			name:          "missing instance and workflow",
			project:       &models.Project{ID: "p", Key: "PRJ"},
			errorContains: "workflow, instance",
		},
		{
			name: "dangling credentials",
			project: &models.Project{ID: "p", Key: "PRJ", Workflow: &models.Workflow{ID: "w"},
				Instance: &models.Instance{ID: "i", URL: "https://jira.example.com", Type: models.InstanceServer}},
			errorContains: "credentials",
		},
		{
			name: "cloud credentials without email",
			project: &models.Project{ID: "p", Key: "PRJ", Workflow: &models.Workflow{ID: "w"},
				Instance: &models.Instance{ID: "i", URL: "https://x.atlassian.net", Type: models.InstanceCloud,
					Credentials: &models.Credentials{ID: "c", Username: "jdoe", Token: "t"}}},
			errorContains: "connection user",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConnector(tc.project)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}

func TestGetIssueByKey(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceServer)
	fake.addIssue("PRJ-10", "Login page", "Story", "In Progress",
		subtaskJSON("PRJ-11", "Form", "To Do"),
		subtaskJSON("PRJ-12", "Validation", "Reviewing"))

	t.Run("converts issue and subtasks", func(t *testing.T) {
		issue, err := connector.GetIssueByKey(context.Background(), "PRJ-10")
		require.NoError(t, err)

		assert.Equal(t, "PRJ-10", issue.Key)
		assert.Equal(t, models.TypeStory, issue.Type)
		assert.Equal(t, models.StatusInProgress, issue.Status)
		require.Len(t, issue.Subtasks, 2)
		assert.Equal(t, models.Issue{Key: "PRJ-11", Summary: "Form", Type: models.TypeSubtask, Status: models.StatusOpen}, issue.Subtasks[0])
		assert.Equal(t, models.StatusReview, issue.Subtasks[1].Status)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := connector.GetIssueByKey(context.Background(), "PRJ-404")
		assert.ErrorIs(t, err, models.ErrNotFound)

		var notFound *models.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "PRJ-404", notFound.Key)
	})

	t.Run("unmapped status", func(t *testing.T) {
		fake.addIssue("PRJ-13", "Old", "Task", "Closed")
		_, err := connector.GetIssueByKey(context.Background(), "PRJ-13")
		assert.ErrorIs(t, err, models.ErrUnmappedStatus)
	})
}

func TestSearchIssues(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceServer)
	fake.addIssue("PRJ-1", "Add login page", "Story", "To Do")
	fake.addIssue("PRJ-2", "Fix logout", "Bug", "In Progress")
	fake.addIssue("PRJ-3", "Login audit", "Epic", "To Do")
	fake.addIssue("PRJ-21", "Refactor", "Task", "To Do")
	fake.search = []string{"PRJ-21", "PRJ-3", "PRJ-2", "PRJ-1"}

	testCases := []struct {
		name     string
		keyword  string
		expected []string
	}{
		{name: "summary match is case-insensitive", keyword: "LOGIN", expected: []string{"PRJ-1"}},
		{name: "key match", keyword: "prj-2", expected: []string{"PRJ-21", "PRJ-2"}},
		{name: "empty keyword matches all mappable", keyword: "", expected: []string{"PRJ-21", "PRJ-2", "PRJ-1"}},
		{name: "no match", keyword: "payments", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			issues, err := connector.SearchIssues(context.Background(), tc.keyword, models.TypeStory, models.TypeTask, models.TypeBug)
			require.NoError(t, err)

			var keys []string
			for _, issue := range issues {
				keys = append(keys, issue.Key)
			}
			assert.Equal(t, tc.expected, keys)
		})
	}

	assert.Equal(t, `project = "PRJ" AND type in ("Story", "Task", "Bug") order by created desc`, fake.lastJQL)
}

func TestCreateIssue(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceServer)
	fake.addIssue("PRJ-10", "Parent", "Story", "In Progress")

	t.Run("subtask under parent", func(t *testing.T) {
		issue, err := connector.CreateIssue(context.Background(), IssueFields{
			Summary:   "Write tests",
			Type:      models.TypeSubtask,
			ParentKey: "PRJ-10",
		})
		require.NoError(t, err)
		assert.Equal(t, models.Issue{Key: "PRJ-50", Summary: "Write tests", Type: models.TypeSubtask, Status: models.StatusOpen}, issue)

		fields := fake.created["fields"].(map[string]any)
		assert.Equal(t, "PRJ", fields["project"].(map[string]any)["key"])
		assert.Equal(t, "PRJ-10", fields["parent"].(map[string]any)["key"])
	})

	t.Run("subtask without parent", func(t *testing.T) {
		_, err := connector.CreateIssue(context.Background(), IssueFields{Summary: "Orphan", Type: models.TypeSubtask})
		assert.Error(t, err)
	})

	t.Run("type without mapping", func(t *testing.T) {
		connector.workflow = &models.Workflow{ID: "empty"}
		defer func() { connector.workflow = connector.project.Workflow }()

		_, err := connector.CreateIssue(context.Background(), IssueFields{Summary: "Story", Type: models.TypeStory})
		assert.ErrorIs(t, err, models.ErrUnmappedType)
	})
}

func TestMakeAction_SkipsUnavailableTransition(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceServer)
	fake.addIssue("PRJ-12", "Form", "Sub-task", "To Do")
	fake.transitions = []map[string]string{
		{"id": "11", "name": "Start Progress"},
		{"id": "21", "name": "Done"},
	}

	action, err := models.NewAction(models.ActionStart)
	require.NoError(t, err)
	action.Transitions = []string{"Start Progress", "Claim"}
	action.AssignToUser = true

	issue := models.Issue{Key: "PRJ-12", Summary: "Form", Type: models.TypeSubtask, Status: models.StatusOpen}
	updated, result, err := connector.MakeAction(context.Background(), action, issue)
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, []string{"11"}, fake.posted)
	assert.Equal(t, []string{"Claim"}, result.Skipped())
	require.Len(t, fake.assignees, 1)
	assert.Equal(t, "jdoe", fake.assignees[0]["name"])

	require.Len(t, result.Steps, 3)
	assert.Equal(t, OutcomeApplied, result.Steps[0].Outcome)
	assert.Equal(t, OutcomeSkipped, result.Steps[1].Outcome)
	assert.Equal(t, StepAssign, result.Steps[2].Kind)
}

func TestMakeAction_FailureAbortsRemainingSteps(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceServer)
	fake.addIssue("PRJ-7", "Chain", "Task", "To Do")
	fake.transitions = []map[string]string{
		{"id": "1", "name": "A"},
		{"id": "2", "name": "B"},
		{"id": "3", "name": "C"},
	}
	fake.failPost = 2

	action, err := models.NewAction(models.ActionStart)
	require.NoError(t, err)
	action.Transitions = []string{"A", "B", "C"}
	action.AssignToUser = true

	issue := models.Issue{Key: "PRJ-7", Summary: "Chain", Type: models.TypeTask, Status: models.StatusOpen}
	updated, result, err := connector.MakeAction(context.Background(), action, issue)
	require.Error(t, err)

	assert.Equal(t, []string{"1"}, fake.posted)
	assert.Empty(t, fake.assignees)
	assert.Equal(t, models.StatusOpen, updated.Status)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, OutcomeApplied, result.Steps[0].Outcome)
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, "B", last.Name)
	assert.Equal(t, OutcomeFailed, last.Outcome)
	assert.Error(t, last.Err)
}

func TestMakeAction_TransitionsFollowConfiguredOrder(t *testing.T) {
	testCases := []struct {
		name        string
		transitions []string
		expected    []string
	}{
		{name: "declared order", transitions: []string{"Start Progress", "Claim"}, expected: []string{"11", "12"}},
		{name: "reversed order", transitions: []string{"Claim", "Start Progress"}, expected: []string{"12", "11"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			connector, fake := setupConnector(t, models.InstanceServer)
			fake.addIssue("PRJ-8", "Order", "Task", "To Do")
			fake.transitions = []map[string]string{
				{"id": "11", "name": "Start Progress"},
				{"id": "12", "name": "Claim"},
			}

			action, err := models.NewAction(models.ActionStart)
			require.NoError(t, err)
			action.Transitions = tc.transitions

			issue := models.Issue{Key: "PRJ-8", Type: models.TypeTask, Status: models.StatusOpen}
			updated, _, err := connector.MakeAction(context.Background(), action, issue)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, fake.posted)
			assert.Equal(t, models.StatusInProgress, updated.Status)
		})
	}
}

func TestMakeAction_CloudUnassign(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceCloud)
	fake.addIssue("PRJ-3", "Review me", "Task", "In Progress")
	fake.transitions = []map[string]string{{"id": "31", "name": "request review"}}

	action, err := models.NewAction(models.ActionReview)
	require.NoError(t, err)
	action.Transitions = []string{"Request Review"}

	issue := models.Issue{Key: "PRJ-3", Type: models.TypeTask, Status: models.StatusInProgress}
	updated, result, err := connector.MakeAction(context.Background(), action, issue)
	require.NoError(t, err)

	assert.Equal(t, models.StatusReview, updated.Status)
	assert.Equal(t, []string{"31"}, fake.posted)
	require.Len(t, fake.assignees, 1)
	value, ok := fake.assignees[0]["accountId"]
	assert.True(t, ok)
	assert.Nil(t, value)
	assert.Equal(t, StepUnassign, result.Steps[1].Kind)
}

func TestMakeAction_CloudAssignUsesAccountID(t *testing.T) {
	connector, fake := setupConnector(t, models.InstanceCloud)
	fake.addIssue("PRJ-4", "Mine", "Task", "To Do")

	action, err := models.NewAction(models.ActionStart)
	require.NoError(t, err)
	action.AssignToUser = true

	_, _, err = connector.MakeAction(context.Background(), action, models.Issue{Key: "PRJ-4", Status: models.StatusOpen})
	require.NoError(t, err)
	require.Len(t, fake.assignees, 1)
	assert.Equal(t, "acc-1", fake.assignees[0]["accountId"])
}

func TestMakeAction_MissingIssueLeavesStatus(t *testing.T) {
	connector, _ := setupConnector(t, models.InstanceServer)

	action, err := models.NewAction(models.ActionStart)
	require.NoError(t, err)

	issue := models.Issue{Key: "PRJ-404", Status: models.StatusOpen}
	updated, result, err := connector.MakeAction(context.Background(), action, issue)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.StatusOpen, updated.Status)
	assert.Empty(t, result.Steps)
}

func TestActionResultString(t *testing.T) {
	result := ActionResult{
		Key:    "PRJ-1",
		Action: models.ActionStart,
		Steps: []Step{
			{Kind: StepTransition, Name: "Start Progress", Outcome: OutcomeApplied},
			{Kind: StepUnassign, Outcome: OutcomeFailed, Err: fmt.Errorf("boom")},
		},
	}
	assert.Equal(t, `start PRJ-1: transition "Start Progress": applied, unassign: failed (boom)`, result.String())
	assert.True(t, result.Applied())
	assert.Empty(t, result.Skipped())
}
