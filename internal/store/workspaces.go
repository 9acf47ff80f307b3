package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/danielolaszy/gfl/pkg/models"
)

type workspaceRecord struct {
	Path         string `json:"path"`
	Project      string `json:"project"`
	CurrentIssue string `json:"current_issue"`
	PRURL        string `json:"pr_url"`
}

func encodeWorkspace(w *models.Workspace) workspaceRecord {
	rec := workspaceRecord{Path: w.Path, CurrentIssue: w.CurrentIssue, PRURL: w.PRURL}
	if w.Project != nil {
		rec.Project = w.Project.ID
	}
	return rec
}

// WorkspaceRepository stores workspaces keyed by their absolute path.
type WorkspaceRepository struct {
	store    *Store
	projects *ProjectRepository
}

func (r *WorkspaceRepository) decode(ctx context.Context, rec workspaceRecord) (*models.Workspace, error) {
	project, err := r.projects.resolve(ctx, rec.Project)
	if err != nil {
		return nil, err
	}
	return &models.Workspace{
		Path:         rec.Path,
		Project:      project,
		CurrentIssue: rec.CurrentIssue,
		PRURL:        rec.PRURL,
	}, nil
}

// Upsert registers the workspace or replaces the one at the same path.
func (r *WorkspaceRepository) Upsert(ctx context.Context, w *models.Workspace) error {
	if !filepath.IsAbs(w.Path) {
		return fmt.Errorf("workspace path %q is not absolute", w.Path)
	}
	return r.store.upsert(ctx, tableWorkspaces, w.Path, encodeWorkspace(w))
}

// Update replaces a registered workspace, last write wins.
func (r *WorkspaceRepository) Update(ctx context.Context, w *models.Workspace) error {
	return r.store.replace(ctx, tableWorkspaces, w.Path, encodeWorkspace(w))
}

// Remove unregisters the workspace at path.
func (r *WorkspaceRepository) Remove(ctx context.Context, path string) error {
	return r.store.delete(ctx, tableWorkspaces, path)
}

// GetByPath returns the workspace registered for exactly path.
func (r *WorkspaceRepository) GetByPath(ctx context.Context, path string) (*models.Workspace, error) {
	var rec workspaceRecord
	if err := r.store.get(ctx, tableWorkspaces, path, &rec); err != nil {
		return nil, err
	}
	return r.decode(ctx, rec)
}

// Resolve walks from dir upward to the filesystem root and returns the first
// registered workspace. models.ErrNoWorkspace is returned when none matches.
func (r *WorkspaceRepository) Resolve(ctx context.Context, dir string) (*models.Workspace, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	for {
		w, err := r.GetByPath(ctx, dir)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: %s", models.ErrNoWorkspace, dir)
		}
		dir = parent
	}
}

// All returns every registered workspace.
func (r *WorkspaceRepository) All(ctx context.Context) ([]*models.Workspace, error) {
	raw, err := r.store.list(ctx, tableWorkspaces)
	if err != nil {
		return nil, err
	}
	all := make([]*models.Workspace, 0, len(raw))
	for _, data := range raw {
		var rec workspaceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode workspace: %w", err)
		}
		w, err := r.decode(ctx, rec)
		if err != nil {
			return nil, err
		}
		all = append(all, w)
	}
	return all, nil
}
