package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/bucketsync/internal/catalog"
	"github.com/openmined/bucketsync/internal/config"
	"github.com/openmined/bucketsync/internal/db"
	"github.com/openmined/bucketsync/internal/metastore"
	"github.com/openmined/bucketsync/internal/metrics"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/repo"
)

// app is the wired service graph for one command invocation.
type app struct {
	cfg     *config.Config
	svc     *repo.Service
	metrics *metrics.Recorder
	closers []func() error
}

// openObjectStore is replaced in tests to share one in-memory store across commands.
var openObjectStore = func(ctx context.Context, cfg *config.Config) (objstore.Store, error) {
	switch cfg.ObjectBackend {
	case config.BackendMemory:
		slog.Warn("using in-memory object store, nothing will persist")
		return objstore.NewMemoryStore(), nil
	default:
		return objstore.NewS3Store(ctx, &objstore.S3Config{
			Region:    cfg.Region,
			Profile:   cfg.Profile,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Endpoint:  cfg.Endpoint,
		})
	}
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewRecorder()}

	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	meta, err := a.openMetaStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("metadata store: %w", err)
	}

	catDB, err := db.NewSqliteDB(db.WithPath(cfg.CatalogPath()))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("catalog db: %w", err)
	}
	cat, err := catalog.New(catDB)
	if err != nil {
		catDB.Close()
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, cat.Close)

	a.svc, err = repo.NewService(&repo.Config{
		Catalog:  cat,
		Meta:     meta,
		Store:    store,
		Table:    cfg.MetadataTable,
		LocksDir: cfg.LocksDir(),
		Workers:  cfg.Workers,
		Metrics:  a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.svc.Setup(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openMetaStore(ctx context.Context) (metastore.Store, error) {
	switch a.cfg.MetadataBackend {
	case config.BackendSQLite:
		conn, err := db.NewSqliteDB(db.WithPath(a.cfg.RegistryPath()))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		return metastore.NewSQLStore(conn), nil

	case config.BackendPostgres:
		conn, err := db.NewPostgresDB(a.cfg.MetadataDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		return metastore.NewSQLStore(conn), nil

	default:
		return metastore.NewDynamoStore(ctx, &metastore.DynamoConfig{
			Region:    a.cfg.Region,
			Profile:   a.cfg.Profile,
			AccessKey: a.cfg.AccessKey,
			SecretKey: a.cfg.SecretKey,
			Endpoint:  a.cfg.Endpoint,
		})
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// activeRepo resolves an optional id argument, falling back to the active repository.
func activeRepo(ctx context.Context, a *app, args []string) (*catalog.Repository, error) {
	if len(args) > 0 {
		return a.svc.Get(ctx, args[0])
	}
	r, err := a.svc.Active(ctx)
	if errors.Is(err, repo.ErrNoActiveRepo) {
		return nil, fmt.Errorf("%w: run 'bucketsync use ID' or pass an id", err)
	}
	return r, err
}
