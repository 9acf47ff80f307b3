package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/pkg/models"
)

// Credentials asks for a new set of Jira credentials.
func Credentials(exists func(string) bool) (*models.Credentials, error) {
	c := &models.Credentials{}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Credentials ID").
			Value(&c.ID).
			Validate(uniqueID("credentials", exists)),
		huh.NewInput().
			Title("Username").
			Description("Used to log in to JIRA server").
			Value(&c.Username),
		huh.NewInput().
			Title("Email").
			Description("Used to log in to JIRA cloud").
			Value(&c.Email),
		huh.NewInput().
			Title("API token").
			Description("API token on cloud, password on server").
			EchoMode(huh.EchoModePassword).
			Value(&c.Token).
			Validate(required("token")),
	))
	if err := run(form); err != nil {
		return nil, err
	}
	c.ID = strings.TrimSpace(c.ID)
	if c.Username == "" && c.Email == "" {
		return nil, fmt.Errorf("credentials need a username or an email")
	}
	return c, nil
}

// Instance asks for a new Jira instance. The credentials id is returned for
// the caller to resolve.
func Instance(exists func(string) bool, credentialIDs []string) (*models.Instance, string, error) {
	if len(credentialIDs) == 0 {
		return nil, "", fmt.Errorf("no credentials, run 'gfl credentials add' first")
	}
	i := &models.Instance{Type: models.InstanceCloud}
	var credentialsID string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Instance ID").
			Value(&i.ID).
			Validate(uniqueID("instance", exists)),
		huh.NewInput().
			Title("URL").
			Placeholder("https://example.atlassian.net").
			Value(&i.URL).
			Validate(required("url")),
		huh.NewSelect[string]().
			Title("Instance type").
			Options(huh.NewOptions(models.InstanceCloud, models.InstanceServer)...).
			Value(&i.Type),
		huh.NewSelect[string]().
			Title("Credentials").
			Options(huh.NewOptions(credentialIDs...)...).
			Value(&credentialsID),
	))
	if err := run(form); err != nil {
		return nil, "", err
	}
	i.ID = strings.TrimSpace(i.ID)
	i.URL = strings.TrimSpace(i.URL)
	return i, credentialsID, nil
}

// Workflow walks through every issue type, status and action of a new
// workflow.
func Workflow(exists func(string) bool) (*models.Workflow, error) {
	wf := &models.Workflow{}

	typeMappings := make([]string, len(models.IssueTypes))
	prefixes := make([]string, len(models.IssueTypes))
	var typeFields []huh.Field
	typeFields = append(typeFields, huh.NewInput().
		Title("Workflow ID").
		Value(&wf.ID).
		Validate(uniqueID("workflow", exists)))
	for i, t := range models.IssueTypes {
		typeFields = append(typeFields,
			huh.NewInput().
				Title(fmt.Sprintf("%s: JIRA issue type", t)).
				Value(&typeMappings[i]),
			huh.NewInput().
				Title(fmt.Sprintf("%s: branch prefix", t)).
				Placeholder(fmt.Sprintf("%s/", t)).
				Value(&prefixes[i]),
		)
	}

	statusMappings := make([]string, len(models.Statuses))
	var statusFields []huh.Field
	for i, s := range models.Statuses {
		statusFields = append(statusFields, huh.NewInput().
			Title(fmt.Sprintf("%s: JIRA statuses", s)).
			Description("Comma-separated").
			Value(&statusMappings[i]))
	}

	transitions := make([]string, len(models.ActionNames))
	assign := make([]bool, len(models.ActionNames))
	var actionFields []huh.Field
	for i, name := range models.ActionNames {
		actionFields = append(actionFields,
			huh.NewInput().
				Title(fmt.Sprintf("%s: JIRA transitions", name)).
				Description("Comma-separated, applied in order").
				Value(&transitions[i]),
			huh.NewConfirm().
				Title(fmt.Sprintf("%s: assign issue to yourself?", name)).
				Value(&assign[i]),
		)
	}

	form := huh.NewForm(
		huh.NewGroup(typeFields...).Title("Issue types"),
		huh.NewGroup(statusFields...).Title("Statuses"),
		huh.NewGroup(actionFields...).Title("Actions"),
	)
	if err := run(form); err != nil {
		return nil, err
	}

	wf.ID = strings.TrimSpace(wf.ID)
	for i, t := range models.IssueTypes {
		prefix := strings.TrimSpace(prefixes[i])
		if prefix == "" {
			prefix = string(t) + "/"
		}
		wf.Types = append(wf.Types, models.IssueTypeMapping{
			IssueType: t,
			Mapping:   strings.TrimSpace(typeMappings[i]),
			Prefix:    prefix,
		})
	}
	for i, s := range models.Statuses {
		wf.Statuses = append(wf.Statuses, models.IssueStatusMapping{Status: s, Mapping: SplitList(statusMappings[i])})
	}
	for i, name := range models.ActionNames {
		action, err := models.NewAction(name)
		if err != nil {
			return nil, err
		}
		action.Transitions = SplitList(transitions[i])
		action.AssignToUser = assign[i]
		wf.Actions = append(wf.Actions, action)
	}
	return wf, wf.Validate()
}

// ProjectAnswers are the ids chosen for a new project.
type ProjectAnswers struct {
	ID         string
	Key        string
	InstanceID string
	WorkflowID string
}

// Project asks for a new project bound to an instance and a workflow.
func Project(exists func(string) bool, instanceIDs, workflowIDs []string) (ProjectAnswers, error) {
	var a ProjectAnswers
	if len(instanceIDs) == 0 {
		return a, fmt.Errorf("no instances, run 'gfl instances add' first")
	}
	if len(workflowIDs) == 0 {
		return a, fmt.Errorf("no workflows, run 'gfl workflows add' first")
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Project ID").
			Value(&a.ID).
			Validate(uniqueID("project", exists)),
		huh.NewInput().
			Title("Project key").
			Placeholder("PRJ").
			Value(&a.Key).
			Validate(required("project key")),
		huh.NewSelect[string]().
			Title("Project instance").
			Options(huh.NewOptions(instanceIDs...)...).
			Value(&a.InstanceID),
		huh.NewSelect[string]().
			Title("Project workflow").
			Options(huh.NewOptions(workflowIDs...)...).
			Value(&a.WorkflowID),
	))
	if err := run(form); err != nil {
		return a, err
	}
	a.ID = strings.TrimSpace(a.ID)
	a.Key = strings.ToUpper(strings.TrimSpace(a.Key))
	return a, nil
}

// ValidatePRURL checks a pull request URL template.
func ValidatePRURL(s string) error {
	if strings.Count(s, "%s") != 1 {
		return fmt.Errorf("use exactly one %%s as branch placeholder")
	}
	return nil
}

// Workspace asks which project the workspace belongs to and how its pull
// request URLs look. It returns the project id and the URL template.
func Workspace(projectIDs []string) (string, string, error) {
	if len(projectIDs) == 0 {
		return "", "", fmt.Errorf("no projects, run 'gfl projects add' first")
	}
	var projectID, prURL string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Choose project").
			Options(huh.NewOptions(projectIDs...)...).
			Value(&projectID),
		huh.NewInput().
			Title("Pull request URL format").
			Description("Use %s as branch placeholder").
			Placeholder("https://github.com/owner/repo/compare/%s?expand=1").
			Value(&prURL).
			Validate(ValidatePRURL),
	))
	if err := run(form); err != nil {
		return "", "", err
	}
	return projectID, strings.TrimSpace(prURL), nil
}

// IssueFields asks for the summary and description of a new issue.
func IssueFields(issueType models.IssueType) (jira.IssueFields, error) {
	fields := jira.IssueFields{Type: issueType}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("Please enter %s summary", issueType)).
			Value(&fields.Summary).
			Validate(required("summary")),
		huh.NewText().
			Title("Description").
			CharLimit(5000).
			Value(&fields.Description),
	))
	if err := run(form); err != nil {
		return fields, err
	}
	fields.Summary = strings.TrimSpace(fields.Summary)
	return fields, nil
}
