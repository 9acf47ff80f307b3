package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/gfl/internal/logging"
	"github.com/danielolaszy/gfl/internal/output"
	"github.com/danielolaszy/gfl/internal/prompt"
	"github.com/danielolaszy/gfl/internal/store"
	"github.com/danielolaszy/gfl/pkg/models"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage JIRA credentials",
}

var credentialsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add JIRA credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			c, err := prompt.Credentials(exists(ctx, a.repos.Credentials.Exists))
			if err != nil {
				return err
			}
			if err := a.repos.Credentials.Save(ctx, c); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			logging.Info("credentials added", "credentials_id", c.ID, "token", logging.MaskSensitive(c.Token))
			a.ui.Success("Credentials %s added", output.Cyan(c.ID))
			return nil
		})
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List JIRA credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			all, err := a.repos.Credentials.All(ctx)
			if err != nil {
				return err
			}
			table := a.ui.Table([]string{"ID", "Username", "Email", "Token"})
			for _, c := range all {
				if err := table.Append([]string{c.ID, c.Username, c.Email, logging.MaskSensitive(c.Token)}); err != nil {
					return err
				}
			}
			return table.Render()
		})
	},
}

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Manage JIRA instances",
}

var instancesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a JIRA instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			credentialIDs, err := a.repos.Credentials.IDs(ctx)
			if err != nil {
				return err
			}
			instance, credentialsID, err := prompt.Instance(exists(ctx, a.repos.Instances.Exists), credentialIDs)
			if err != nil {
				return err
			}
			instance.Credentials, err = a.repos.Credentials.FindByID(ctx, credentialsID)
			if err != nil {
				return err
			}
			if err := a.repos.Instances.Save(ctx, instance); err != nil {
				return fmt.Errorf("failed to save instance: %w", err)
			}
			logging.Info("instance added", "instance_id", instance.ID, "url", instance.URL, "type", instance.Type)
			a.ui.Success("Instance %s added", output.Cyan(instance.ID))
			return nil
		})
	},
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List JIRA instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			all, err := a.repos.Instances.All(ctx)
			if err != nil {
				return err
			}
			table := a.ui.Table([]string{"ID", "URL", "Type", "Credentials"})
			for _, i := range all {
				credentials := "-"
				if i.Credentials != nil {
					credentials = i.Credentials.ID
				}
				if err := table.Append([]string{i.ID, i.URL, i.Type, credentials}); err != nil {
					return err
				}
			}
			return table.Render()
		})
	},
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage workflows",
	Long: `Manage workflows.

A workflow maps gfl's issue types, statuses and actions onto the names a JIRA
project uses. Each action lists the JIRA transitions to run in order and
whether the issue is assigned to you afterwards.`,
}

var workflowsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a workflow interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			wf, err := prompt.Workflow(exists(ctx, a.repos.Workflows.Exists))
			if err != nil {
				return err
			}
			return saveWorkflow(ctx, a, wf, false)
		})
	},
}

var workflowsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a workflow from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}
		wf, err := store.ReadWorkflowFile(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			return saveWorkflow(ctx, a, wf, force)
		})
	},
}

var workflowsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Print a workflow as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			wf, err := a.repos.Workflows.FindByID(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := store.MarshalWorkflowYAML(wf)
			if err != nil {
				return err
			}
			_, err = a.ui.Out.Write(data)
			return err
		})
	},
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			all, err := a.repos.Workflows.All(ctx)
			if err != nil {
				return err
			}
			table := a.ui.Table([]string{"ID", "Types", "Actions"})
			for _, wf := range all {
				if err := table.Append([]string{wf.ID, describeTypes(wf), describeActions(wf)}); err != nil {
					return err
				}
			}
			return table.Render()
		})
	},
}

func saveWorkflow(ctx context.Context, a *app, wf *models.Workflow, replace bool) error {
	save := a.repos.Workflows.Save
	if replace {
		save = a.repos.Workflows.Upsert
	}
	if err := save(ctx, wf); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	logging.Info("workflow saved", "workflow_id", wf.ID)
	a.ui.Success("Workflow %s saved", output.Cyan(wf.ID))
	return nil
}

func describeTypes(wf *models.Workflow) string {
	parts := make([]string, 0, len(wf.Types))
	for _, t := range wf.Types {
		parts = append(parts, fmt.Sprintf("%s=%s", t.IssueType, t.Mapping))
	}
	return strings.Join(parts, ", ")
}

func describeActions(wf *models.Workflow) string {
	parts := make([]string, 0, len(wf.Actions))
	for _, action := range wf.Actions {
		parts = append(parts, fmt.Sprintf("%s=[%s]", action.Name, strings.Join(action.Transitions, ", ")))
	}
	return strings.Join(parts, " ")
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage JIRA projects",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a JIRA project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			instanceIDs, err := a.repos.Instances.IDs(ctx)
			if err != nil {
				return err
			}
			workflowIDs, err := a.repos.Workflows.IDs(ctx)
			if err != nil {
				return err
			}
			answers, err := prompt.Project(exists(ctx, a.repos.Projects.Exists), instanceIDs, workflowIDs)
			if err != nil {
				return err
			}

			project := &models.Project{ID: answers.ID, Key: answers.Key}
			if project.Instance, err = a.repos.Instances.FindByID(ctx, answers.InstanceID); err != nil {
				return err
			}
			if project.Workflow, err = a.repos.Workflows.FindByID(ctx, answers.WorkflowID); err != nil {
				return err
			}
			if err := a.repos.Projects.Save(ctx, project); err != nil {
				return fmt.Errorf("failed to save project: %w", err)
			}
			logging.Info("project added", "project_id", project.ID, "project_key", project.Key)
			a.ui.Success("Project %s added", output.Cyan(project.ID))
			return nil
		})
	},
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List JIRA projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			all, err := a.repos.Projects.All(ctx)
			if err != nil {
				return err
			}
			table := a.ui.Table([]string{"ID", "Key", "Instance", "Workflow"})
			for _, p := range all {
				instance, workflow := "-", "-"
				if p.Instance != nil {
					instance = p.Instance.ID
				}
				if p.Workflow != nil {
					workflow = p.Workflow.ID
				}
				if err := table.Append([]string{p.ID, p.Key, instance, workflow}); err != nil {
					return err
				}
			}
			return table.Render()
		})
	},
}

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Manage workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			all, err := a.repos.Workspaces.All(ctx)
			if err != nil {
				return err
			}
			table := a.ui.Table([]string{"Path", "Project", "Current", "PR URL"})
			for _, w := range all {
				project := "-"
				if w.Project != nil {
					project = w.Project.ID
				}
				if err := table.Append([]string{w.Path, project, w.CurrentIssue, w.PRURL}); err != nil {
					return err
				}
			}
			return table.Render()
		})
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Register a directory as a gfl workspace",
	Long: `Register a directory (the working directory by default) as a workspace
bound to a project. Commands run in the directory or any directory below it
use that workspace.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		path, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}

		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			projectIDs, err := a.repos.Projects.IDs(ctx)
			if err != nil {
				return err
			}
			projectID, prURL, err := prompt.Workspace(projectIDs)
			if err != nil {
				return err
			}
			project, err := a.repos.Projects.FindByID(ctx, projectID)
			if err != nil {
				return err
			}

			ws := &models.Workspace{Path: path, Project: project, PRURL: prURL}
			if err := a.repos.Workspaces.Upsert(ctx, ws); err != nil {
				return fmt.Errorf("failed to save workspace: %w", err)
			}
			logging.Info("workspace registered", "workspace", path, "project_id", project.ID)
			a.ui.Success("Workspace %s bound to project %s", output.Cyan(path), output.Cyan(project.ID))
			return nil
		})
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsAddCmd, credentialsListCmd)
	instancesCmd.AddCommand(instancesAddCmd, instancesListCmd)
	workflowsCmd.AddCommand(workflowsAddCmd, workflowsImportCmd, workflowsExportCmd, workflowsListCmd)
	projectsCmd.AddCommand(projectsAddCmd, projectsListCmd)
	workspacesCmd.AddCommand(workspacesListCmd)

	workflowsImportCmd.Flags().BoolP("force", "f", false, "replace an existing workflow with the same id")

	rootCmd.AddCommand(credentialsCmd, instancesCmd, workflowsCmd, projectsCmd, workspacesCmd, initCmd)
}
