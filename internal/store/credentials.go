package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielolaszy/gfl/pkg/models"
)

type credentialsRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

func encodeCredentials(c *models.Credentials) credentialsRecord {
	return credentialsRecord{ID: c.ID, Username: c.Username, Email: c.Email, Token: c.Token}
}

func decodeCredentials(r credentialsRecord) *models.Credentials {
	return &models.Credentials{ID: r.ID, Username: r.Username, Email: r.Email, Token: r.Token}
}

// CredentialsRepository stores Jira credentials.
type CredentialsRepository struct {
	store *Store
}

// Save inserts new credentials; the id must be unused.
func (r *CredentialsRepository) Save(ctx context.Context, c *models.Credentials) error {
	if c.ID == "" {
		return fmt.Errorf("credentials id is empty")
	}
	return r.store.insert(ctx, tableCredentials, c.ID, encodeCredentials(c))
}

// Update replaces existing credentials.
func (r *CredentialsRepository) Update(ctx context.Context, c *models.Credentials) error {
	return r.store.replace(ctx, tableCredentials, c.ID, encodeCredentials(c))
}

// Remove deletes the credentials with the given id.
func (r *CredentialsRepository) Remove(ctx context.Context, id string) error {
	return r.store.delete(ctx, tableCredentials, id)
}

// FindByID returns ErrRecordNotFound when no credentials have the id.
func (r *CredentialsRepository) FindByID(ctx context.Context, id string) (*models.Credentials, error) {
	var rec credentialsRecord
	if err := r.store.get(ctx, tableCredentials, id, &rec); err != nil {
		return nil, err
	}
	return decodeCredentials(rec), nil
}

// resolve loads a foreign credentials reference; a dangling id yields nil.
func (r *CredentialsRepository) resolve(ctx context.Context, id string) (*models.Credentials, error) {
	if id == "" {
		return nil, nil
	}
	c, err := r.FindByID(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return c, err
}

// All returns every stored set of credentials.
func (r *CredentialsRepository) All(ctx context.Context) ([]*models.Credentials, error) {
	raw, err := r.store.list(ctx, tableCredentials)
	if err != nil {
		return nil, err
	}
	all := make([]*models.Credentials, 0, len(raw))
	for _, data := range raw {
		var rec credentialsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode credentials: %w", err)
		}
		all = append(all, decodeCredentials(rec))
	}
	return all, nil
}

// IDs returns the ids of all stored credentials.
func (r *CredentialsRepository) IDs(ctx context.Context) ([]string, error) {
	return r.store.ids(ctx, tableCredentials)
}

// Exists reports whether credentials with the given id are stored.
func (r *CredentialsRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.store.exists(ctx, tableCredentials, id)
}
