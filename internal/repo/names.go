package repo

import (
	"context"

	"github.com/openmined/bucketsync/internal/catalog"
	"github.com/openmined/bucketsync/internal/metastore"
)

// nameResolver looks friendly names up in the local catalog first and falls back
// to the shared registry.
type nameResolver struct {
	catalog *catalog.Catalog
	meta    metastore.Store
	table   string
}

func (r *nameResolver) FriendlyName(ctx context.Context, id string) (string, error) {
	if repo, err := r.catalog.Repo(ctx, id); err == nil && repo.FriendlyName != "" {
		return repo.FriendlyName, nil
	}
	item, err := r.meta.GetItem(ctx, r.table, id)
	if err != nil {
		return "", err
	}
	return item.FriendlyName, nil
}
