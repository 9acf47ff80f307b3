package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/pkg/models"
)

type instanceRecord struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Credentials string `json:"credentials"`
}

func encodeInstance(i *models.Instance) instanceRecord {
	rec := instanceRecord{ID: i.ID, URL: i.URL, Type: i.Type}
	if i.Credentials != nil {
		rec.Credentials = i.Credentials.ID
	}
	return rec
}

// InstanceRepository stores Jira instances. Credentials are resolved on load.
type InstanceRepository struct {
	store       *Store
	credentials *CredentialsRepository
}

func (r *InstanceRepository) decode(ctx context.Context, rec instanceRecord) (*models.Instance, error) {
	creds, err := r.credentials.resolve(ctx, rec.Credentials)
	if err != nil {
		return nil, err
	}
	return &models.Instance{ID: rec.ID, URL: rec.URL, Type: rec.Type, Credentials: creds}, nil
}

// Save inserts a new instance.
func (r *InstanceRepository) Save(ctx context.Context, i *models.Instance) error {
	if i.ID == "" {
		return fmt.Errorf("instance id is empty")
	}
	if i.Type != models.InstanceCloud && i.Type != models.InstanceServer {
		return fmt.Errorf("instance type must be %s or %s, got %q", models.InstanceCloud, models.InstanceServer, i.Type)
	}
	return r.store.insert(ctx, tableInstances, i.ID, encodeInstance(i))
}

// Update replaces an existing instance.
func (r *InstanceRepository) Update(ctx context.Context, i *models.Instance) error {
	return r.store.replace(ctx, tableInstances, i.ID, encodeInstance(i))
}

// Remove deletes the instance with the given id.
func (r *InstanceRepository) Remove(ctx context.Context, id string) error {
	return r.store.delete(ctx, tableInstances, id)
}

// FindByID returns the instance with its credentials resolved.
func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*models.Instance, error) {
	var rec instanceRecord
	if err := r.store.get(ctx, tableInstances, id, &rec); err != nil {
		return nil, err
	}
	return r.decode(ctx, rec)
}

func (r *InstanceRepository) resolve(ctx context.Context, id string) (*models.Instance, error) {
	if id == "" {
		return nil, nil
	}
	i, err := r.FindByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return i, err
}

// All returns every stored instance.
func (r *InstanceRepository) All(ctx context.Context) ([]*models.Instance, error) {
	raw, err := r.store.list(ctx, tableInstances)
	if err != nil {
		return nil, err
	}
	all := make([]*models.Instance, 0, len(raw))
	for _, data := range raw {
		var rec instanceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode instance: %w", err)
		}
		i, err := r.decode(ctx, rec)
		if err != nil {
			return nil, err
		}
		all = append(all, i)
	}
	return all, nil
}

// IDs returns the ids of all stored instances.
func (r *InstanceRepository) IDs(ctx context.Context) ([]string, error) {
	return r.store.ids(ctx, tableInstances)
}

// Exists reports whether an instance with the given id is stored.
func (r *InstanceRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.store.exists(ctx, tableInstances, id)
}
