package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/browser"

	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/pkg/models"
)

// Opener opens a pull request for an issue branch. With an API client the
// pull request is created through GitHub; otherwise the workspace's PR URL
// template is filled in. Either way the resulting page is opened in the
// browser.
type Opener struct {
	api     *Client
	openURL func(string) error
}

// NewOpener returns an opener; api may be nil.
func NewOpener(api *Client) *Opener {
	return &Opener{api: api, openURL: browser.OpenURL}
}

// Open returns the URL of the pull request opened for branch.
func (o *Opener) Open(ctx context.Context, ws *models.Workspace, remoteURL string, issue models.Issue, branch string) (string, error) {
	var prURL string
	if o.api != nil {
		pr, err := o.api.CreatePullRequest(ctx, remoteURL, branch, issue.String(), pullRequestBody(ws, issue))
		if err != nil {
			return "", err
		}
		prURL = pr.URL
	} else {
		u, err := ws.PullRequestURL(branch)
		if err != nil {
			return "", err
		}
		prURL = u
	}

	if err := o.openURL(prURL); err != nil {
		// The URL is still usable; the caller prints it.
		logging.Warn("failed to open browser", "url", prURL, "error", err)
	}
	return prURL, nil
}

func pullRequestBody(ws *models.Workspace, issue models.Issue) string {
	if ws.Project == nil || ws.Project.Instance == nil {
		return issue.Key
	}
	return fmt.Sprintf("%s/browse/%s", strings.TrimSuffix(ws.Project.Instance.URL, "/"), issue.Key)
}
