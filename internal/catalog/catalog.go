// Package catalog is the local key-value record of repositories this machine knows about.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/bucketsync/internal/errs"
)

const (
	repoKeyPrefix = "repos/"
	activeRepoKey = "active_repo"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// State is the lifecycle position of a repository.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateCreated       State = "created"
	StateCloned        State = "cloned"
	StateSynced        State = "synced"
	StateDiverged      State = "diverged"
)

// Repository is one catalog record. ID is also the name of the remote bucket.
type Repository struct {
	ID           string    `json:"id"`
	FriendlyName string    `json:"friendlyName"`
	Organization string    `json:"organization"`
	FolderPath   string    `json:"folderPath"`
	State        State     `json:"state"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Catalog persists arbitrary JSON values by key in a sqlite table.
type Catalog struct {
	db *sqlx.DB
}

// New prepares the catalog table on db.
func New(db *sqlx.DB) (*Catalog, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Get returns the raw value stored under key. ok is false when the key is absent.
func (c *Catalog) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM catalog WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.IO("catalog get", key, err)
	}
	return json.RawMessage(value), true, nil
}

// Set encodes value and stores it under key, replacing any previous value.
func (c *Catalog) Set(ctx context.Context, key string, value any) error {
	data, err := jsonMarshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO catalog (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UnixMilli())
	if err != nil {
		return errs.IO("catalog set", key, err)
	}
	return nil
}

func (c *Catalog) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM catalog WHERE key = ?`, key); err != nil {
		return errs.IO("catalog delete", key, err)
	}
	return nil
}

// GetAll returns every stored key with its raw value.
func (c *Catalog) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := c.db.SelectContext(ctx, &rows, `SELECT key, value FROM catalog`); err != nil {
		return nil, errs.IO("catalog scan", "", err)
	}

	all := make(map[string]json.RawMessage, len(rows))
	for _, r := range rows {
		all[r.Key] = json.RawMessage(r.Value)
	}
	return all, nil
}

// Repo returns the record for id, or errs.ErrNotFound.
func (c *Catalog) Repo(ctx context.Context, id string) (*Repository, error) {
	raw, ok, err := c.Get(ctx, repoKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFound("catalog repo", id, nil)
	}

	var repo Repository
	if err := jsonUnmarshal(raw, &repo); err != nil {
		return nil, fmt.Errorf("decode repo %s: %w", id, err)
	}
	return &repo, nil
}

// PutRepo stores repo and stamps UpdatedAt.
func (c *Catalog) PutRepo(ctx context.Context, repo *Repository) error {
	if repo.ID == "" {
		return fmt.Errorf("repository id is required")
	}
	if repo.State == "" {
		repo.State = StateUninitialized
	}
	repo.UpdatedAt = time.Now().UTC()
	return c.Set(ctx, repoKeyPrefix+repo.ID, repo)
}

func (c *Catalog) DeleteRepo(ctx context.Context, id string) error {
	return c.Delete(ctx, repoKeyPrefix+id)
}

// Repos lists every repository record ordered by friendly name.
func (c *Catalog) Repos(ctx context.Context) ([]*Repository, error) {
	all, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	repos := make([]*Repository, 0, len(all))
	for key, raw := range all {
		if !strings.HasPrefix(key, repoKeyPrefix) {
			continue
		}
		var repo Repository
		if err := jsonUnmarshal(raw, &repo); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		repos = append(repos, &repo)
	}

	sort.Slice(repos, func(i, j int) bool {
		if repos[i].FriendlyName != repos[j].FriendlyName {
			return repos[i].FriendlyName < repos[j].FriendlyName
		}
		return repos[i].ID < repos[j].ID
	})
	return repos, nil
}

// ActiveID returns the active repository id, or "" when none is set.
func (c *Catalog) ActiveID(ctx context.Context) (string, error) {
	raw, ok, err := c.Get(ctx, activeRepoKey)
	if err != nil || !ok {
		return "", err
	}
	var id string
	if err := jsonUnmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode active repo: %w", err)
	}
	return id, nil
}

// SetActive marks id as the active repository. The record must exist.
func (c *Catalog) SetActive(ctx context.Context, id string) error {
	if _, err := c.Repo(ctx, id); err != nil {
		return err
	}
	return c.Set(ctx, activeRepoKey, id)
}
