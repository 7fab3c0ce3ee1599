package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/bucketsync/internal/errs"
)

// SQLStore keeps registry items in a SQL table. It runs on the sqlite and
// postgres handles opened by internal/db.
type SQLStore struct {
	db *sqlx.DB
}

// itemRow stores timestamps as unix milliseconds so both drivers scan them the same way.
type itemRow struct {
	ID           string `db:"id"`
	FriendlyName string `db:"friendly_name"`
	Organization string `db:"organization"`
	CreatedAt    int64  `db:"created_at"`
}

func (r *itemRow) toItem() *Item {
	return &Item{
		ID:           r.ID,
		FriendlyName: r.FriendlyName,
		Organization: r.Organization,
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
	}
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) EnsureTable(ctx context.Context, table string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		friendly_name TEXT NOT NULL,
		organization TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`, table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errs.IO("create table", table, err)
	}
	return nil
}

func (s *SQLStore) PutItem(ctx context.Context, table string, item *Item) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if err := validateItem(item); err != nil {
		return err
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := s.db.Rebind(fmt.Sprintf(`INSERT INTO %q (id, friendly_name, organization, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			friendly_name = excluded.friendly_name,
			organization = excluded.organization,
			created_at = excluded.created_at`, table))
	if _, err := s.db.ExecContext(ctx, query, item.ID, item.FriendlyName, item.Organization, createdAt.UnixMilli()); err != nil {
		return errs.IO("put item", item.ID, err)
	}
	return nil
}

func (s *SQLStore) GetItem(ctx context.Context, table, id string) (*Item, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	var row itemRow
	query := s.db.Rebind(fmt.Sprintf(`SELECT id, friendly_name, organization, created_at FROM %q WHERE id = ?`, table))
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("get item", id, nil)
		}
		return nil, errs.IO("get item", id, err)
	}
	return row.toItem(), nil
}

func (s *SQLStore) ScanAll(ctx context.Context, table string) ([]*Item, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	var rows []itemRow
	query := fmt.Sprintf(`SELECT id, friendly_name, organization, created_at FROM %q ORDER BY created_at, id`, table)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errs.IO("scan", table, err)
	}

	items := make([]*Item, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toItem())
	}
	return items, nil
}

func (s *SQLStore) DeleteItem(ctx context.Context, table, id string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	query := s.db.Rebind(fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return errs.IO("delete item", id, err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
