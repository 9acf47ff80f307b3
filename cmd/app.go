package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielolaszy/gfl/internal/config"
	"github.com/danielolaszy/gfl/internal/engine"
	"github.com/danielolaszy/gfl/internal/git"
	"github.com/danielolaszy/gfl/internal/jira"
	"github.com/danielolaszy/gfl/internal/output"
	"github.com/danielolaszy/gfl/internal/prompt"
	"github.com/danielolaszy/gfl/internal/store"
	"github.com/danielolaszy/gfl/pkg/models"
)

const dbName = "gfl.db"

// app holds what a single command invocation works with.
type app struct {
	cfg   *config.Config
	store *store.Store
	repos *store.Repositories
	ui    *output.UI
}

func openApp(ctx context.Context) (*app, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	s, err := store.Open(ctx, filepath.Join(cfg.DataDir, dbName))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:   cfg,
		store: s,
		repos: store.NewRepositories(s),
		ui:    output.New(cfg.Badges),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// workspace resolves the workspace registered for the working directory or
// one of its parents.
func (a *app) workspace(ctx context.Context) (*models.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	ws, err := a.repos.Workspaces.Resolve(ctx, cwd)
	if errors.Is(err, models.ErrNoWorkspace) {
		return nil, fmt.Errorf("%w, run 'gfl init' first", err)
	}
	return ws, err
}

// engine builds an engine for the current workspace. The JIRA connector is
// only created when remote is set.
func (a *app) engine(ctx context.Context, remote bool) (*engine.Engine, error) {
	ws, err := a.workspace(ctx)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Issues:     a.repos.Issues,
		Workspaces: a.repos.Workspaces,
		Selector:   prompt.NewSelector(a.ui),
		Git:        git.NewClient(ws.Path),
	}
	if remote {
		if ws.Project == nil {
			return nil, fmt.Errorf("workspace %s is bound to a project that no longer exists", ws.Path)
		}
		connector, err := jira.NewConnector(ws.Project, jira.WithMaxResults(a.cfg.MaxResults))
		if err != nil {
			return nil, err
		}
		deps.Connector = connector
	}
	return engine.New(ws, deps)
}

// withEngine opens the app, builds an engine and runs fn.
func withEngine(ctx context.Context, remote bool, fn func(*app, *engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.engine(ctx, remote)
	if err != nil {
		return err
	}
	return fn(a, e)
}

// withApp opens the app and runs fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// exists adapts a repository existence check to the prompt validators.
// Lookup failures count as taken so a broken store never gets overwritten.
func exists(ctx context.Context, check func(context.Context, string) (bool, error)) func(string) bool {
	return func(id string) bool {
		ok, err := check(ctx, id)
		return ok || err != nil
	}
}

// printResult reports the steps of an action that were skipped or failed.
func printResult(ui *output.UI, result jira.ActionResult) {
	for _, name := range result.Skipped() {
		ui.Warning("%s: transition %q not available, skipped", result.Key, name)
	}
	for _, step := range result.Steps {
		if step.Outcome == jira.OutcomeFailed {
			ui.Error("%s: %s", result.Key, step)
		}
	}
}
