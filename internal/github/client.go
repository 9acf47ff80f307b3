// Package github opens pull requests for pushed issue branches, either through
// the GitHub API or by opening the workspace's pull request URL in a browser.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"

	"github.com/danielolaszy/gfl/internal/config"
	"github.com/danielolaszy/gfl/internal/git"
	"github.com/danielolaszy/gfl/internal/logging"
)

const defaultDomain = "github.com"

// Client encapsulates the GitHub API client.
type Client struct {
	client     *github.Client
	baseBranch string
}

// PullRequest is an opened or already existing pull request.
type PullRequest struct {
	Number  int
	URL     string
	Created bool
}

// APIURL returns the REST endpoint for a GitHub domain; enterprise domains
// serve the API under /api/v3/.
func APIURL(domain string) string {
	if domain == "" || domain == defaultDomain {
		return "https://api.github.com/"
	}
	return fmt.Sprintf("https://%s/api/v3/", domain)
}

// NewClient creates a GitHub API client authenticated with the configured
// token.
func NewClient(cfg config.GitHubConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token not found in configuration")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = defaultDomain
	}
	apiURL := APIURL(domain)

	logging.Info("github configuration",
		"domain", domain,
		"api_url", apiURL,
		"token", logging.MaskSensitive(cfg.Token))

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return newClient(tc, apiURL, cfg.BaseBranch)
}

func newClient(httpClient *http.Client, apiURL, baseBranch string) (*Client, error) {
	client := github.NewClient(httpClient)

	parsedURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github api url: %w", err)
	}
	client.BaseURL = parsedURL
	client.UploadURL = parsedURL

	if baseBranch == "" {
		baseBranch = "main"
	}
	return &Client{client: client, baseBranch: baseBranch}, nil
}

// CreatePullRequest opens a pull request from branch into the base branch of
// the repository behind remoteURL. When one is already open for the branch
// it is returned instead.
func (c *Client) CreatePullRequest(ctx context.Context, remoteURL, branch, title, body string) (*PullRequest, error) {
	owner, repo, err := git.ExtractOwnerRepo(remoteURL)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(branch),
		Base:  github.String(c.baseBranch),
		Body:  github.String(body),
	})
	if err == nil {
		logging.Info("pull request created", "repository", owner+"/"+repo, "branch", branch, "number", pr.GetNumber())
		return &PullRequest{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), Created: true}, nil
	}

	var errResp *github.ErrorResponse
	if !errors.As(err, &errResp) || resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("failed to create pull request for %s: %w", branch, err)
	}

	existing, err := c.findOpen(ctx, owner, repo, branch)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("failed to create pull request for %s: %w", branch, errResp)
	}
	logging.Info("pull request already open", "repository", owner+"/"+repo, "branch", branch, "number", existing.Number)
	return existing, nil
}

func (c *Client) findOpen(ctx context.Context, owner, repo, branch string) (*PullRequest, error) {
	prs, _, err := c.client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State: "open",
		Head:  owner + ":" + branch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &PullRequest{Number: prs[0].GetNumber(), URL: prs[0].GetHTMLURL()}, nil
}
