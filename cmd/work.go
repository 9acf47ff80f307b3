package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/gfl/internal/engine"
	"github.com/danielolaszy/gfl/internal/github"
	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/internal/output"
	"github.com/danielolaszy/gfl/internal/prompt"
	"github.com/danielolaszy/gfl/pkg/models"
)

var workonCmd = &cobra.Command{
	Use:   "workon [keyword...]",
	Short: "Work on an issue",
	Long: `Work on an issue.

Without a keyword, choose one of the cached issues. With --key the keyword is
an issue key fetched from JIRA; otherwise stories, tasks and bugs whose key or
summary contain the keyword are searched and you choose one when several
match. The issue is cached and, unless it is a story, its branch is checked
out and it becomes the current issue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		byKey, err := cmd.Flags().GetBool("key")
		if err != nil {
			return err
		}
		keyword := strings.Join(args, " ")
		if byKey && keyword == "" {
			return fmt.Errorf("an issue key is required with --key")
		}

		ctx := cmd.Context()
		return withEngine(ctx, keyword != "", func(a *app, e *engine.Engine) error {
			var issue models.Issue
			if keyword == "" {
				issue, err = e.ChooseLocal(ctx)
			} else {
				issue, err = e.FindRemote(ctx, byKey, keyword)
				if err == nil {
					err = e.Track(ctx, issue)
				}
			}
			if err != nil {
				return err
			}

			if err := e.WorkOn(ctx, issue); err != nil {
				return err
			}
			if issue.Type == models.TypeStory {
				a.ui.Success("Story %s cached", output.Cyan(issue.Key))
				return nil
			}
			a.ui.Success("Working on %s", a.ui.IssueLine(issue, false))
			return nil
		})
	},
}

func newCreateCmd(issueType models.IssueType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(issueType),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, true, func(a *app, e *engine.Engine) error {
				fields, err := prompt.IssueFields(issueType)
				if err != nil {
					return err
				}
				issue, err := e.CreateIssue(ctx, fields)
				if issue.Key != "" {
					a.ui.Success("Created %s", a.ui.IssueLine(issue, false))
				}
				return err
			})
		},
	}
}

func newActionCmd(name models.ActionName, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(name),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, true, func(a *app, e *engine.Engine) error {
				outcomes, err := e.PerformAction(ctx, name)
				if len(outcomes) == 0 && err == nil {
					a.ui.Info("Nothing to %s", name)
				}
				for _, o := range outcomes {
					printResult(a.ui, o.Result)
					if o.Err == nil {
						a.ui.Success("%s", a.ui.IssueLine(o.Issue, false))
					}
				}
				return err
			})
		},
	}
}

var reviewCmd = &cobra.Command{
	Use:   string(models.ActionReview),
	Short: "Move issues to review and open pull requests",
	Long: `Move the chosen in-progress issues to review. For every reviewed issue that
is not a story the branch is pushed and a pull request is opened, unless
--skip-pr is set or create_pull_request is disabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		skipPR, err := cmd.Flags().GetBool("skip-pr")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		return withEngine(ctx, true, func(a *app, e *engine.Engine) error {
			outcomes, err := e.PerformAction(ctx, models.ActionReview)
			if len(outcomes) == 0 && err == nil {
				a.ui.Info("Nothing to review")
			}

			errs := []error{err}
			var opener *github.Opener
			if !skipPR && a.cfg.CreatePullRequest {
				if opener, err = newOpener(a); err != nil {
					return errors.Join(append(errs, err)...)
				}
			}

			for _, o := range outcomes {
				printResult(a.ui, o.Result)
				if o.Err != nil {
					continue
				}
				a.ui.Success("%s", a.ui.IssueLine(o.Issue, false))
				if opener == nil || o.Issue.Type == models.TypeStory {
					continue
				}
				prURL, err := e.OpenPullRequest(ctx, o.Issue, opener)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", o.Issue.Key, err))
					continue
				}
				a.ui.Info("Pull request: %s", output.Cyan(prURL))
			}
			return errors.Join(errs...)
		})
	},
}

// newOpener uses the GitHub API when a token is configured and the
// workspace's PR URL template otherwise.
func newOpener(a *app) (*github.Opener, error) {
	if a.cfg.GitHub.Token == "" {
		return github.NewOpener(nil), nil
	}
	api, err := github.NewClient(a.cfg.GitHub)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize github client: %w", err)
	}
	return github.NewOpener(api), nil
}

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Commit changes for the current issue",
	Long: `Stage every change (unless --skip-add) and commit it with the current
issue's key in front of the message.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipAdd, err := cmd.Flags().GetBool("skip-add")
		if err != nil {
			return err
		}
		message := strings.Join(args, " ")

		ctx := cmd.Context()
		return withEngine(ctx, false, func(a *app, e *engine.Engine) error {
			if err := e.Commit(message, skipAdd); err != nil {
				return err
			}
			a.ui.Success("Committed %s", output.Cyan(e.Workspace().CurrentIssue+" "+message))
			return nil
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push the current issue's branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withEngine(ctx, false, func(a *app, e *engine.Engine) error {
			branch, err := e.Publish(ctx)
			if err != nil {
				return err
			}
			a.ui.Success("Pushed %s", output.Cyan(branch))
			return nil
		})
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Stop tracking finished issues",
	Long: `Choose cached stories, tasks and bugs to drop together with their subtasks.
When the current issue is dropped you choose a new current story.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withEngine(ctx, false, func(a *app, e *engine.Engine) error {
			if err := e.Finish(ctx); err != nil {
				return err
			}
			issues, err := e.Issues(ctx)
			if err != nil {
				return err
			}
			a.ui.IssueTree(issues, e.Workspace().CurrentIssue)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workspace and its issues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withEngine(ctx, false, func(a *app, e *engine.Engine) error {
			ws := e.Workspace()
			if ws.Project != nil {
				a.ui.Info("Project: %s (%s)", output.Cyan(ws.Project.ID), ws.Project.Key)
			}
			if ws.CurrentIssue == "" {
				a.ui.Info("No current issue")
			} else {
				a.ui.Info("Current issue: %s", output.Cyan(ws.CurrentIssue))
			}

			issues, err := e.Issues(ctx)
			if err != nil {
				return err
			}
			a.ui.IssueTree(issues, ws.CurrentIssue)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh cached issues from JIRA",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withEngine(ctx, true, func(a *app, e *engine.Engine) error {
			report, err := e.Sync(ctx)
			for key, failure := range report.Failed {
				a.ui.Warning("%s: %v", key, failure)
			}
			logging.Info("sync complete", "updated_count", len(report.Updated), "failed_count", len(report.Failed))
			a.ui.Success("Synchronized %d issue(s)", len(report.Updated))
			return err
		})
	},
}

func init() {
	workonCmd.Flags().BoolP("key", "k", false, "treat the keyword as an issue key")
	reviewCmd.Flags().BoolP("skip-pr", "s", false, "do not push or open pull requests")
	commitCmd.Flags().BoolP("skip-add", "a", false, "commit only what is already staged")

	rootCmd.AddCommand(
		workonCmd,
		newCreateCmd(models.TypeStory, "Create and start a story"),
		newCreateCmd(models.TypeTask, "Create and start a task"),
		newCreateCmd(models.TypeBug, "Create and start a bug"),
		newCreateCmd(models.TypeSubtask, "Create and start a subtask of the current story"),
		newActionCmd(models.ActionStart, "Start open issues"),
		reviewCmd,
		newActionCmd(models.ActionResolve, "Resolve issues in review"),
		commitCmd,
		publishCmd,
		finishCmd,
		statusCmd,
		syncCmd,
	)
}
