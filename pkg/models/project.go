package models

import (
	"fmt"
	"strings"
)

// Jira deployment types.
const (
	InstanceCloud  = "cloud"
	InstanceServer = "server"
)

// Credentials holds the login used against a Jira instance.
type Credentials struct {
	ID       string
	Username string
	Email    string
	Token    string // API token or password
}

// Instance is a Jira deployment reachable at URL.
type Instance struct {
	ID          string
	URL         string
	Type        string       // InstanceCloud or InstanceServer
	Credentials *Credentials // nil when the referenced credentials are gone
}

// ConnectionUser returns the login name: the username on server
// deployments, the email on cloud.
func (i *Instance) ConnectionUser() string {
	if i.Credentials == nil {
		return ""
	}
	if i.Type == InstanceServer {
		return i.Credentials.Username
	}
	return i.Credentials.Email
}

// Project binds a remote project key to an instance and a workflow.
type Project struct {
	ID       string
	Key      string
	Instance *Instance
	Workflow *Workflow
}

// Workspace binds a filesystem path to a project and tracks the issue
// currently worked on.
type Workspace struct {
	// Path is the absolute directory the workspace is registered for
	Path string

	// Project is the bound project, nil when the reference is unresolved
	Project *Project

	// CurrentIssue is the key of the issue being worked on, empty if none
	CurrentIssue string

	// PRURL is a pull request URL template with a single %s branch placeholder
	PRURL string
}

// Workflow returns the workflow of the bound project, or nil.
func (w *Workspace) Workflow() *Workflow {
	if w.Project == nil {
		return nil
	}
	return w.Project.Workflow
}

// GetAction resolves a named action from the project's workflow.
func (w *Workspace) GetAction(name ActionName) (Action, error) {
	wf := w.Workflow()
	if wf == nil {
		return Action{}, fmt.Errorf("%w: %s (workspace has no workflow)", ErrUnknownAction, name)
	}
	action, ok := wf.GetAction(name)
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return action, nil
}

// PullRequestURL fills the PR URL template with branch.
func (w *Workspace) PullRequestURL(branch string) (string, error) {
	if strings.Count(w.PRURL, "%s") != 1 {
		return "", fmt.Errorf("pull request url %q must contain exactly one %%s placeholder", w.PRURL)
	}
	return strings.Replace(w.PRURL, "%s", branch, 1), nil
}
