package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/pkg/models"
)

// DefaultMaxResults caps search results when no limit is configured.
const DefaultMaxResults = 100

// Connector talks to the Jira instance of one project and translates between
// remote issues and the project's workflow vocabulary.
type Connector struct {
	client     *jira.Client
	instance   *models.Instance
	project    *models.Project
	workflow   *models.Workflow
	maxResults int

	// accountID of the connection user, looked up once on cloud instances
	accountID string
}

// Option customizes a Connector.
type Option func(*Connector)

// WithMaxResults sets the search result cap.
func WithMaxResults(n int) Option {
	return func(c *Connector) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// NewConnector creates a Jira client for the project's instance using basic
// auth with the instance's connection user and token.
func NewConnector(project *models.Project, opts ...Option) (*Connector, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}

	instance := project.Instance
	tp := jira.BasicAuthTransport{
		Username: instance.ConnectionUser(),
		Password: instance.Credentials.Token,
	}

	client, err := jira.NewClient(tp.Client(), instance.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %w", err)
	}

	c := &Connector{
		client:     client,
		instance:   instance,
		project:    project,
		workflow:   project.Workflow,
		maxResults: DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(c)
	}

	logging.Debug("JIRA client created",
		"url", instance.URL,
		"user", instance.ConnectionUser(),
		"token", logging.MaskSensitive(instance.Credentials.Token))
	return c, nil
}

func validateProject(project *models.Project) error {
	if project == nil {
		return fmt.Errorf("JIRA client not initialized: no project")
	}

	var missing []string
	if project.Key == "" {
		missing = append(missing, "project key")
	}
	if project.Workflow == nil {
		missing = append(missing, "workflow")
	}
	if project.Instance == nil {
		missing = append(missing, "instance")
	} else {
		if project.Instance.URL == "" {
			missing = append(missing, "instance url")
		}
		if project.Instance.Credentials == nil {
			missing = append(missing, "credentials")
		} else if project.Instance.ConnectionUser() == "" {
			missing = append(missing, "connection user")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("project %s is missing: %s", project.ID, strings.Join(missing, ", "))
	}
	return nil
}

// IssueFields describes an issue to create.
type IssueFields struct {
	Summary     string
	Description string
	Type        models.IssueType

	// ParentKey is required for subtasks
	ParentKey string
}

// CreateIssue creates a remote issue and returns it as re-read from Jira.
func (c *Connector) CreateIssue(ctx context.Context, fields IssueFields) (models.Issue, error) {
	remoteType, ok := c.workflow.GetTypeMapping(fields.Type)
	if !ok || remoteType == "" {
		return models.Issue{}, fmt.Errorf("%w: no remote type for %s", models.ErrUnmappedType, fields.Type)
	}

	issueFields := &jira.IssueFields{
		Project:     jira.Project{Key: c.project.Key},
		Summary:     fields.Summary,
		Description: fields.Description,
		Type:        jira.IssueType{Name: remoteType},
	}
	if fields.Type == models.TypeSubtask {
		if fields.ParentKey == "" {
			return models.Issue{}, fmt.Errorf("subtask needs a parent issue")
		}
		issueFields.Parent = &jira.Parent{Key: fields.ParentKey}
	}

	created, resp, err := c.client.Issue.CreateWithContext(ctx, &jira.Issue{Fields: issueFields})
	if err != nil {
		return models.Issue{}, fmt.Errorf("failed to create JIRA issue: %w (status: %d)", err, statusCode(resp))
	}

	logging.Info("created JIRA issue", "issue_key", created.Key, "type", remoteType)
	return c.GetIssueByKey(ctx, created.Key)
}

// GetIssueByKey fetches one issue. A missing key yields *models.NotFoundError.
func (c *Connector) GetIssueByKey(ctx context.Context, key string) (models.Issue, error) {
	remote, err := c.fetch(ctx, key)
	if err != nil {
		return models.Issue{}, err
	}
	return c.convert(remote)
}

func (c *Connector) fetch(ctx context.Context, key string) (*jira.Issue, error) {
	remote, resp, err := c.client.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return nil, &models.NotFoundError{Key: key}
		}
		return nil, fmt.Errorf("failed to get JIRA issue %s: %w (status: %d)", key, err, statusCode(resp))
	}
	return remote, nil
}

// SearchIssues returns the newest issues of the given types whose key or
// summary contains keyword, case-insensitively. Jira cannot filter key and
// summary by substring in one query, so the keyword is matched locally.
// Issues that do not map onto the workflow are skipped.
func (c *Connector) SearchIssues(ctx context.Context, keyword string, types ...models.IssueType) ([]models.Issue, error) {
	jql := c.searchQuery(types)
	logging.Debug("searching JIRA issues", "jql", jql, "max_results", c.maxResults)

	remotes, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: c.maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to search JIRA issues: %w (status: %d)", err, statusCode(resp))
	}

	keyword = strings.ToLower(keyword)
	var issues []models.Issue
	for i := range remotes {
		remote := &remotes[i]
		if !matchesKeyword(remote, keyword) {
			continue
		}
		issue, err := c.convert(remote)
		if err != nil {
			logging.Warn("skipping issue", "issue_key", remote.Key, "error", err)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (c *Connector) searchQuery(types []models.IssueType) string {
	clauses := []string{fmt.Sprintf("project = %q", c.project.Key)}
	if names := c.workflow.RemoteTypeNames(types...); len(names) > 0 {
		quoted := make([]string, len(names))
		for i, name := range names {
			quoted[i] = fmt.Sprintf("%q", name)
		}
		clauses = append(clauses, fmt.Sprintf("type in (%s)", strings.Join(quoted, ", ")))
	}
	return strings.Join(clauses, " AND ") + " order by created desc"
}

func matchesKeyword(remote *jira.Issue, keyword string) bool {
	if keyword == "" {
		return true
	}
	if strings.Contains(strings.ToLower(remote.Key), keyword) {
		return true
	}
	return remote.Fields != nil && strings.Contains(strings.ToLower(remote.Fields.Summary), keyword)
}

// MakeAction replays the action on the remote issue: each configured
// transition in order, then the assignment. The returned issue carries the
// action's next state only when every step succeeded; on error the partial
// result shows which steps were applied.
func (c *Connector) MakeAction(ctx context.Context, action models.Action, issue models.Issue) (models.Issue, ActionResult, error) {
	result := ActionResult{Key: issue.Key, Action: action.Name}

	remote, err := c.fetch(ctx, issue.Key)
	if err != nil {
		return issue, result, err
	}

	for _, name := range action.Transitions {
		step, err := c.transition(ctx, remote.Key, name)
		result.Steps = append(result.Steps, step)
		if err != nil {
			return issue, result, err
		}
	}

	step, err := c.assign(ctx, remote.Key, action.AssignToUser)
	result.Steps = append(result.Steps, step)
	if err != nil {
		return issue, result, err
	}

	issue.Status = action.NextState
	logging.Info("action applied", "issue_key", issue.Key, "action", action.Name, "status", issue.Status)
	return issue, result, nil
}

// transition applies the named transition when the issue currently offers
// it. Transition names are compared case-insensitively.
func (c *Connector) transition(ctx context.Context, key, name string) (Step, error) {
	step := Step{Kind: StepTransition, Name: name}

	transitions, resp, err := c.client.Issue.GetTransitionsWithContext(ctx, key)
	if err != nil {
		step.Outcome = OutcomeFailed
		step.Err = fmt.Errorf("failed to list transitions of %s: %w (status: %d)", key, err, statusCode(resp))
		return step, step.Err
	}

	id := findTransitionID(transitions, name)
	if id == "" {
		logging.Warn("transition not available", "issue_key", key, "transition", name)
		step.Outcome = OutcomeSkipped
		return step, nil
	}

	if resp, err := c.client.Issue.DoTransitionWithContext(ctx, key, id); err != nil {
		step.Outcome = OutcomeFailed
		step.Err = fmt.Errorf("failed to transition %s with %q: %w (status: %d)", key, name, err, statusCode(resp))
		return step, step.Err
	}

	logging.Debug("transition applied", "issue_key", key, "transition", name, "transition_id", id)
	step.Outcome = OutcomeApplied
	return step, nil
}

func findTransitionID(transitions []jira.Transition, name string) string {
	for _, t := range transitions {
		if strings.EqualFold(t.Name, name) {
			return t.ID
		}
	}
	return ""
}

// assign sets the connection user as assignee, or clears the assignee.
func (c *Connector) assign(ctx context.Context, key string, toUser bool) (Step, error) {
	step := Step{Kind: StepAssign, Name: c.instance.ConnectionUser()}
	if !toUser {
		step.Kind = StepUnassign
		step.Name = ""
	}

	var err error
	if toUser {
		err = c.assignUser(ctx, key)
	} else {
		err = c.unassign(ctx, key)
	}
	if err != nil {
		step.Outcome = OutcomeFailed
		step.Err = err
		return step, err
	}
	step.Outcome = OutcomeApplied
	return step, nil
}

func (c *Connector) assignUser(ctx context.Context, key string) error {
	user := &jira.User{Name: c.instance.ConnectionUser()}
	if c.instance.Type == models.InstanceCloud {
		accountID, err := c.connectionAccountID(ctx)
		if err != nil {
			return err
		}
		user = &jira.User{AccountID: accountID}
	}

	resp, err := c.client.Issue.UpdateAssigneeWithContext(ctx, key, user)
	if err != nil {
		return fmt.Errorf("failed to assign %s: %w (status: %d)", key, err, statusCode(resp))
	}
	return nil
}

// unassign clears the assignee. go-jira omits empty user fields, so the null
// assignee is sent as a raw request.
func (c *Connector) unassign(ctx context.Context, key string) error {
	body := map[string]interface{}{"name": nil}
	if c.instance.Type == models.InstanceCloud {
		body = map[string]interface{}{"accountId": nil}
	}

	req, err := c.client.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("rest/api/2/issue/%s/assignee", key), body)
	if err != nil {
		return fmt.Errorf("failed to build unassign request: %w", err)
	}
	resp, err := c.client.Do(req, nil)
	if err != nil {
		return fmt.Errorf("failed to unassign %s: %w (status: %d)", key, err, statusCode(resp))
	}
	return nil
}

// Cloud instances identify users by account id only.
func (c *Connector) connectionAccountID(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}
	self, resp, err := c.client.User.GetSelfWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get JIRA user: %w (status: %d)", err, statusCode(resp))
	}
	if self.AccountID == "" {
		return "", errors.New("JIRA user has no account id")
	}
	c.accountID = self.AccountID
	return c.accountID, nil
}

// convert maps a remote issue through the workflow's reverse mappings.
// Subtasks are converted the same way.
func (c *Connector) convert(remote *jira.Issue) (models.Issue, error) {
	if remote.Fields == nil {
		return models.Issue{}, fmt.Errorf("JIRA issue %s has no fields", remote.Key)
	}
	issue, err := c.convertFields(remote.Key, remote.Fields)
	if err != nil {
		return models.Issue{}, err
	}
	for _, sub := range remote.Fields.Subtasks {
		if sub == nil {
			continue
		}
		subtask, err := c.convertFields(sub.Key, &sub.Fields)
		if err != nil {
			return models.Issue{}, fmt.Errorf("subtask %s: %w", sub.Key, err)
		}
		issue.Subtasks = append(issue.Subtasks, subtask)
	}
	return issue, nil
}

func (c *Connector) convertFields(key string, fields *jira.IssueFields) (models.Issue, error) {
	issueType, err := c.workflow.MapRemoteTypeToLocal(fields.Type.Name)
	if err != nil {
		return models.Issue{}, err
	}
	if fields.Status == nil {
		return models.Issue{}, fmt.Errorf("%w: issue %s has no status", models.ErrUnmappedStatus, key)
	}
	status, err := c.workflow.MapRemoteStatusToLocal(fields.Status.Name)
	if err != nil {
		return models.Issue{}, err
	}
	return models.Issue{
		Key:     key,
		Summary: fields.Summary,
		Type:    issueType,
		Status:  status,
	}, nil
}

func statusCode(resp *jira.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
