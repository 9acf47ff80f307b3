package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielolaszy/gfl/pkg/models"
)

// The workflow record doubles as the YAML import/export format.
type workflowRecord struct {
	ID       string         `json:"id" yaml:"id"`
	Statuses []statusRecord `json:"statuses" yaml:"statuses"`
	Types    []typeRecord   `json:"types" yaml:"types"`
	Actions  []actionRecord `json:"actions" yaml:"actions"`
}

type statusRecord struct {
	Status  string   `json:"status" yaml:"status"`
	Mapping []string `json:"mapping" yaml:"mapping"`
}

type typeRecord struct {
	IssueType string `json:"issue_type" yaml:"issue_type"`
	Mapping   string `json:"mapping" yaml:"mapping"`
	Prefix    string `json:"prefix" yaml:"prefix"`
}

type actionRecord struct {
	Name         string   `json:"name" yaml:"name"`
	InitialState string   `json:"initial_state,omitempty" yaml:"initial_state,omitempty"`
	NextState    string   `json:"next_state,omitempty" yaml:"next_state,omitempty"`
	Transitions  []string `json:"transitions" yaml:"transitions"`
	AssignToUser bool     `json:"assign_to_user" yaml:"assign_to_user"`
}

func encodeWorkflow(wf *models.Workflow) workflowRecord {
	rec := workflowRecord{ID: wf.ID}
	for _, s := range wf.Statuses {
		rec.Statuses = append(rec.Statuses, statusRecord{Status: string(s.Status), Mapping: s.Mapping})
	}
	for _, t := range wf.Types {
		rec.Types = append(rec.Types, typeRecord{IssueType: string(t.IssueType), Mapping: t.Mapping, Prefix: t.Prefix})
	}
	for _, a := range wf.Actions {
		rec.Actions = append(rec.Actions, actionRecord{
			Name:         string(a.Name),
			InitialState: string(a.InitialState),
			NextState:    string(a.NextState),
			Transitions:  a.Transitions,
			AssignToUser: a.AssignToUser,
		})
	}
	return rec
}

// decodeWorkflow rebuilds a workflow and validates it, so an unknown action
// name or a non-canonical state pair fails at load time. States omitted in
// the record default to the canonical pair.
func decodeWorkflow(rec workflowRecord) (*models.Workflow, error) {
	wf := &models.Workflow{ID: rec.ID}
	for _, s := range rec.Statuses {
		wf.Statuses = append(wf.Statuses, models.IssueStatusMapping{Status: models.Status(s.Status), Mapping: s.Mapping})
	}
	for _, t := range rec.Types {
		wf.Types = append(wf.Types, models.IssueTypeMapping{IssueType: models.IssueType(t.IssueType), Mapping: t.Mapping, Prefix: t.Prefix})
	}
	for _, a := range rec.Actions {
		action, err := models.NewAction(models.ActionName(a.Name))
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", models.ErrInvalidWorkflow, rec.ID, err)
		}
		if a.InitialState != "" {
			action.InitialState = models.Status(a.InitialState)
		}
		if a.NextState != "" {
			action.NextState = models.Status(a.NextState)
		}
		action.Transitions = a.Transitions
		action.AssignToUser = a.AssignToUser
		wf.Actions = append(wf.Actions, action)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// WorkflowRepository stores workflows. Every workflow is validated before it
// is written and after it is read.
type WorkflowRepository struct {
	store *Store
}

// Save validates and inserts a new workflow.
func (r *WorkflowRepository) Save(ctx context.Context, wf *models.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	return r.store.insert(ctx, tableWorkflows, wf.ID, encodeWorkflow(wf))
}

// Update validates and replaces an existing workflow.
func (r *WorkflowRepository) Update(ctx context.Context, wf *models.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	return r.store.replace(ctx, tableWorkflows, wf.ID, encodeWorkflow(wf))
}

// Upsert inserts or replaces a workflow; used by imports.
func (r *WorkflowRepository) Upsert(ctx context.Context, wf *models.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	return r.store.upsert(ctx, tableWorkflows, wf.ID, encodeWorkflow(wf))
}

// Remove deletes the workflow with the given id.
func (r *WorkflowRepository) Remove(ctx context.Context, id string) error {
	return r.store.delete(ctx, tableWorkflows, id)
}

// FindByID returns the workflow with the given id.
func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	var rec workflowRecord
	if err := r.store.get(ctx, tableWorkflows, id, &rec); err != nil {
		return nil, err
	}
	return decodeWorkflow(rec)
}

func (r *WorkflowRepository) resolve(ctx context.Context, id string) (*models.Workflow, error) {
	if id == "" {
		return nil, nil
	}
	wf, err := r.FindByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return wf, err
}

// All returns every stored workflow.
func (r *WorkflowRepository) All(ctx context.Context) ([]*models.Workflow, error) {
	raw, err := r.store.list(ctx, tableWorkflows)
	if err != nil {
		return nil, err
	}
	all := make([]*models.Workflow, 0, len(raw))
	for _, data := range raw {
		var rec workflowRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode workflow: %w", err)
		}
		wf, err := decodeWorkflow(rec)
		if err != nil {
			return nil, err
		}
		all = append(all, wf)
	}
	return all, nil
}

// IDs returns the ids of all stored workflows.
func (r *WorkflowRepository) IDs(ctx context.Context) ([]string, error) {
	return r.store.ids(ctx, tableWorkflows)
}

// Exists reports whether a workflow with the given id is stored.
func (r *WorkflowRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.store.exists(ctx, tableWorkflows, id)
}

// ParseWorkflowYAML decodes and validates a workflow definition.
func ParseWorkflowYAML(data []byte) (*models.Workflow, error) {
	var rec workflowRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse workflow yaml: %w", err)
	}
	return decodeWorkflow(rec)
}

// ReadWorkflowFile loads a workflow definition from a YAML file.
func ReadWorkflowFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return ParseWorkflowYAML(data)
}

// MarshalWorkflowYAML encodes a workflow in the import format.
func MarshalWorkflowYAML(wf *models.Workflow) ([]byte, error) {
	data, err := yaml.Marshal(encodeWorkflow(wf))
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow yaml: %w", err)
	}
	return data, nil
}
