// Package metastore persists the shared repository registry: one item per repository,
// keyed by the repository id that also names its bucket.
package metastore

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DefaultTable is the registry table name used when none is configured.
const DefaultTable = "repositories"

// Item is a repository registry record.
type Item struct {
	ID           string    `json:"id" dynamodbav:"id" db:"id"`
	FriendlyName string    `json:"friendlyName" dynamodbav:"friendlyName" db:"friendly_name"`
	Organization string    `json:"organization" dynamodbav:"organization" db:"organization"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"createdAt" db:"created_at"`
}

// Store is a minimal item store over a named table.
type Store interface {
	// EnsureTable creates the table if it does not exist.
	EnsureTable(ctx context.Context, table string) error
	PutItem(ctx context.Context, table string, item *Item) error
	// GetItem returns errs.ErrNotFound when no item has the id.
	GetItem(ctx context.Context, table, id string) (*Item, error)
	ScanAll(ctx context.Context, table string) ([]*Item, error)
	DeleteItem(ctx context.Context, table, id string) error
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{2,254}$`)

func validateTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

func validateItem(item *Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	return nil
}
