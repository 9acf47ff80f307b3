// Package git runs the git operations gfl needs inside a workspace.
package git

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/danielolaszy/gfl/internal/logging"
)

// MaxBranchLength is the maximum length of a generated branch name in bytes.
const MaxBranchLength = 70

// DefaultRemote is the remote branches are pushed to.
const DefaultRemote = "origin"

// Client runs git inside one working tree.
type Client struct {
	dir string
}

// NewClient returns a client for the working tree at dir.
func NewClient(dir string) *Client {
	return &Client{dir: dir}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	logging.Debug("running git", "dir", path, "args", strings.Join(args, " "))
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Dir returns the working tree the client operates on.
func (c *Client) Dir() string {
	return c.dir
}

// BranchExists reports whether branch exists locally or on the default remote.
func (c *Client) BranchExists(branch string) bool {
	for _, ref := range []string{"refs/heads/" + branch, "refs/remotes/" + DefaultRemote + "/" + branch} {
		if _, err := gitCmd(c.dir, "rev-parse", "--verify", "--quiet", ref); err == nil {
			return true
		}
	}
	return false
}

// Checkout switches to branch, creating it from HEAD when it does not exist.
func (c *Client) Checkout(branch string) error {
	args := []string{"checkout", branch}
	if !c.BranchExists(branch) {
		args = []string{"checkout", "-b", branch}
	}
	if _, err := gitCmd(c.dir, args...); err != nil {
		return err
	}
	logging.Info("checked out branch", "branch", branch)
	return nil
}

// Commit records the staged changes as "<issueKey> <message>". Unless
// skipAdd is set every change in the working tree is staged first.
func (c *Client) Commit(issueKey, message string, skipAdd bool) error {
	if !skipAdd {
		if _, err := gitCmd(c.dir, "add", "."); err != nil {
			return err
		}
	}
	msg := CommitMessage(issueKey, message)
	if _, err := gitCmd(c.dir, "commit", "-m", msg); err != nil {
		return err
	}
	logging.Info("committed", "issue_key", issueKey, "message", msg)
	return nil
}

// Push pushes branch to the default remote and sets it as upstream.
func (c *Client) Push(branch string) error {
	if _, err := gitCmd(c.dir, "push", "-u", DefaultRemote, branch); err != nil {
		return err
	}
	logging.Info("pushed branch", "branch", branch, "remote", DefaultRemote)
	return nil
}

// CurrentBranch returns the checked out branch name.
func (c *Client) CurrentBranch() (string, error) {
	return gitCmd(c.dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// RemoteURL returns the fetch URL of the default remote.
func (c *Client) RemoteURL() (string, error) {
	return gitCmd(c.dir, "remote", "get-url", DefaultRemote)
}

// CommitMessage prefixes message with the issue key.
func CommitMessage(issueKey, message string) string {
	return fmt.Sprintf("%s %s", issueKey, message)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slug lowercases s and collapses every run of non-alphanumerics into a
// single "-", trimming dashes at both ends.
func Slug(s string) string {
	return strings.Trim(strings.ToLower(nonAlphanumeric.ReplaceAllString(s, "-")), "-")
}

// GenerateBranchName builds "<prefix><key>-<slug(summary)>" cut to
// MaxBranchLength bytes. The cut may land mid-token but never mid-rune.
func GenerateBranchName(prefix, key, summary string) string {
	branch := prefix + key
	if slug := Slug(summary); slug != "" {
		branch += "-" + slug
	}
	if len(branch) > MaxBranchLength {
		n := MaxBranchLength
		for n > 0 && !utf8.RuneStart(branch[n]) {
			n--
		}
		branch = branch[:n]
	}
	return branch
}

// ExtractOwnerRepo parses a GitHub remote URL and returns owner/repo. Both
// SSH (git@host:owner/repo.git) and HTTPS remotes of any host are accepted.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(remoteURL, "git@"):
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", remoteURL)
		}
		path = parts[1]
	case strings.HasPrefix(remoteURL, "https://"), strings.HasPrefix(remoteURL, "http://"), strings.HasPrefix(remoteURL, "ssh://"):
		trimmed := remoteURL[strings.Index(remoteURL, "://")+3:]
		slash := strings.Index(trimmed, "/")
		if slash < 0 {
			return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
		}
		path = trimmed[slash+1:]
	default:
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := strings.SplitN(path, "/", 2)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[0], segments[1], nil
}
