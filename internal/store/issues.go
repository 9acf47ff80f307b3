package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/pkg/models"
)

// Subtasks are kept inside their parent's record.
type issueRecord struct {
	Key      string        `json:"key"`
	Summary  string        `json:"summary"`
	Type     string        `json:"type"`
	Status   string        `json:"status"`
	Subtasks []issueRecord `json:"subtasks,omitempty"`
}

func encodeIssue(i models.Issue) issueRecord {
	rec := issueRecord{Key: i.Key, Summary: i.Summary, Type: string(i.Type), Status: string(i.Status)}
	for _, sub := range i.Subtasks {
		rec.Subtasks = append(rec.Subtasks, encodeIssue(sub))
	}
	return rec
}

func decodeIssue(rec issueRecord) models.Issue {
	issue := models.Issue{
		Key:     rec.Key,
		Summary: rec.Summary,
		Type:    models.IssueType(rec.Type),
		Status:  models.Status(rec.Status),
	}
	for _, sub := range rec.Subtasks {
		issue.Subtasks = append(issue.Subtasks, decodeIssue(sub))
	}
	return issue
}

// IssueRepository caches the issues being worked on, keyed by issue key.
type IssueRepository struct {
	store *Store
}

// Save inserts a top-level issue.
func (r *IssueRepository) Save(ctx context.Context, issue models.Issue) error {
	if issue.Key == "" {
		return fmt.Errorf("issue key is empty")
	}
	return r.store.insert(ctx, tableIssues, issue.Key, encodeIssue(issue))
}

// Upsert inserts the issue or replaces the stored record with the same key.
func (r *IssueRepository) Upsert(ctx context.Context, issue models.Issue) error {
	if issue.Key == "" {
		return fmt.Errorf("issue key is empty")
	}
	return r.store.upsert(ctx, tableIssues, issue.Key, encodeIssue(issue))
}

// Update replaces the stored issue with the same key. A subtask is replaced
// inside its parent's record; the subtask's own status and summary win, the
// parent is otherwise left as stored. Returns ErrRecordNotFound when neither
// a top-level issue nor a subtask has the key.
func (r *IssueRepository) Update(ctx context.Context, issue models.Issue) error {
	exists, err := r.store.exists(ctx, tableIssues, issue.Key)
	if err != nil {
		return err
	}
	if exists {
		return r.store.replace(ctx, tableIssues, issue.Key, encodeIssue(issue))
	}

	parent, err := r.findParent(ctx, issue.Key)
	if err != nil {
		return err
	}
	parent.AddSubtask(issue)
	return r.store.replace(ctx, tableIssues, parent.Key, encodeIssue(parent))
}

// AddSubtask stores subtask under the issue with parentKey.
func (r *IssueRepository) AddSubtask(ctx context.Context, parentKey string, subtask models.Issue) error {
	parent, err := r.FindByKey(ctx, parentKey)
	if err != nil {
		return err
	}
	parent.AddSubtask(subtask)
	return r.store.replace(ctx, tableIssues, parent.Key, encodeIssue(parent))
}

// Remove deletes a top-level issue together with its subtasks.
func (r *IssueRepository) Remove(ctx context.Context, key string) error {
	return r.store.delete(ctx, tableIssues, key)
}

// FindByKey looks the key up among top-level issues and then one level of
// subtasks.
func (r *IssueRepository) FindByKey(ctx context.Context, key string) (models.Issue, error) {
	var rec issueRecord
	err := r.store.get(ctx, tableIssues, key, &rec)
	if err == nil {
		return decodeIssue(rec), nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return models.Issue{}, err
	}

	all, listErr := r.All(ctx)
	if listErr != nil {
		return models.Issue{}, listErr
	}
	for _, issue := range all {
		for _, sub := range issue.Subtasks {
			if sub.Key == key {
				return sub, nil
			}
		}
	}
	return models.Issue{}, fmt.Errorf("%w: issue %s", ErrRecordNotFound, key)
}

func (r *IssueRepository) findParent(ctx context.Context, subtaskKey string) (models.Issue, error) {
	all, err := r.All(ctx)
	if err != nil {
		return models.Issue{}, err
	}
	for _, issue := range all {
		for _, sub := range issue.Subtasks {
			if sub.Key == subtaskKey {
				return issue, nil
			}
		}
	}
	return models.Issue{}, fmt.Errorf("%w: issue %s", ErrRecordNotFound, subtaskKey)
}

// All returns the top-level issues in insertion order.
func (r *IssueRepository) All(ctx context.Context) ([]models.Issue, error) {
	raw, err := r.store.list(ctx, tableIssues)
	if err != nil {
		return nil, err
	}
	all := make([]models.Issue, 0, len(raw))
	for _, data := range raw {
		var rec issueRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode issue: %w", err)
		}
		all = append(all, decodeIssue(rec))
	}
	return all, nil
}
