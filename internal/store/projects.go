package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/pkg/models"
)

type projectRecord struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Instance string `json:"instance"`
	Workflow string `json:"workflow"`
}

func encodeProject(p *models.Project) projectRecord {
	rec := projectRecord{ID: p.ID, Key: p.Key}
	if p.Instance != nil {
		rec.Instance = p.Instance.ID
	}
	if p.Workflow != nil {
		rec.Workflow = p.Workflow.ID
	}
	return rec
}

// ProjectRepository stores projects. Instance and workflow references are
// resolved on load and come back nil when dangling.
type ProjectRepository struct {
	store     *Store
	instances *InstanceRepository
	workflows *WorkflowRepository
}

func (r *ProjectRepository) decode(ctx context.Context, rec projectRecord) (*models.Project, error) {
	instance, err := r.instances.resolve(ctx, rec.Instance)
	if err != nil {
		return nil, err
	}
	workflow, err := r.workflows.resolve(ctx, rec.Workflow)
	if err != nil {
		return nil, err
	}
	return &models.Project{ID: rec.ID, Key: rec.Key, Instance: instance, Workflow: workflow}, nil
}

// Save inserts a new project.
func (r *ProjectRepository) Save(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is empty")
	}
	return r.store.insert(ctx, tableProjects, p.ID, encodeProject(p))
}

// Update replaces an existing project.
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) error {
	return r.store.replace(ctx, tableProjects, p.ID, encodeProject(p))
}

// Remove deletes the project with the given id.
func (r *ProjectRepository) Remove(ctx context.Context, id string) error {
	return r.store.delete(ctx, tableProjects, id)
}

// FindByID returns the project with its instance and workflow resolved.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	var rec projectRecord
	if err := r.store.get(ctx, tableProjects, id, &rec); err != nil {
		return nil, err
	}
	return r.decode(ctx, rec)
}

func (r *ProjectRepository) resolve(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, nil
	}
	p, err := r.FindByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return p, err
}

// All returns every stored project.
func (r *ProjectRepository) All(ctx context.Context) ([]*models.Project, error) {
	raw, err := r.store.list(ctx, tableProjects)
	if err != nil {
		return nil, err
	}
	all := make([]*models.Project, 0, len(raw))
	for _, data := range raw {
		var rec projectRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode project: %w", err)
		}
		p, err := r.decode(ctx, rec)
		if err != nil {
			return nil, err
		}
		all = append(all, p)
	}
	return all, nil
}

// IDs returns the ids of all stored projects.
func (r *ProjectRepository) IDs(ctx context.Context) ([]string, error) {
	return r.store.ids(ctx, tableProjects)
}

// Exists reports whether a project with the given id is stored.
func (r *ProjectRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.store.exists(ctx, tableProjects, id)
}
