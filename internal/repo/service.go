// Package repo ties the catalog, the metadata registry, the object store and the
// sync executor together into repository lifecycle operations.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/bucketsync/internal/catalog"
	"github.com/openmined/bucketsync/internal/diff"
	"github.com/openmined/bucketsync/internal/errs"
	"github.com/openmined/bucketsync/internal/hashing"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/metastore"
	"github.com/openmined/bucketsync/internal/metrics"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/syncer"
	"github.com/openmined/bucketsync/internal/utils"
)

var ErrNoActiveRepo = errors.New("no active repository")

// repository ids double as bucket names
var repoIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

type Config struct {
	Catalog  *catalog.Catalog
	Meta     metastore.Store
	Store    objstore.Store
	Table    string
	LocksDir string
	Workers  int
	Metrics  *metrics.Recorder
}

type Service struct {
	catalog *catalog.Catalog
	meta    metastore.Store
	table   string
	store   objstore.Store
	names   *nameResolver
	differ  *diff.Differ
	exec    *syncer.Executor
	locks   *LockManager
	metrics *metrics.Recorder
}

// CreateParams describes a new repository. FolderPath is the repository directory itself.
type CreateParams struct {
	FolderPath   string `json:"folderPath"`
	FriendlyName string `json:"friendlyName"`
	Organization string `json:"organization"`
}

func (p *CreateParams) validate() error {
	if p.FriendlyName == "" {
		return fmt.Errorf("friendly name is required")
	}
	if p.FolderPath == "" {
		return fmt.Errorf("folder path is required")
	}
	return nil
}

func NewService(cfg *Config) (*Service, error) {
	if cfg.Catalog == nil || cfg.Meta == nil || cfg.Store == nil {
		return nil, fmt.Errorf("catalog, metadata store and object store are required")
	}

	table := cfg.Table
	if table == "" {
		table = metastore.DefaultTable
	}

	hasher := hashing.NewProvider(cfg.Store)
	return &Service{
		catalog: cfg.Catalog,
		meta:    cfg.Meta,
		table:   table,
		store:   cfg.Store,
		names:   &nameResolver{catalog: cfg.Catalog, meta: cfg.Meta, table: table},
		differ:  diff.NewDiffer(hasher, diff.WithWorkers(cfg.Workers)),
		exec:    syncer.NewExecutor(cfg.Store, hasher, syncer.WithWorkers(cfg.Workers), syncer.WithMetrics(cfg.Metrics)),
		locks:   NewLockManager(cfg.LocksDir),
		metrics: cfg.Metrics,
	}, nil
}

// Setup creates the metadata table if needed.
func (s *Service) Setup(ctx context.Context) error {
	if err := s.meta.EnsureTable(ctx, s.table); err != nil {
		return fmt.Errorf("ensure metadata table %s: %w", s.table, err)
	}
	return nil
}

// Create registers a new empty repository: bucket, metadata record, local directory
// and catalog record. If a later step fails the remote steps are rolled back.
func (s *Service) Create(ctx context.Context, params *CreateParams) (*catalog.Repository, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	repoDir, err := utils.ResolvePath(params.FolderPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", params.FolderPath, err)
	}

	id := uuid.NewString()
	undo, err := s.createRemote(ctx, id, params)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		undo()
		return nil, errs.FromFS("create repo dir", repoDir, err)
	}

	repo := &catalog.Repository{
		ID:           id,
		FriendlyName: params.FriendlyName,
		Organization: params.Organization,
		FolderPath:   repoDir,
		State:        catalog.StateCreated,
	}
	if err := s.saveActive(ctx, repo); err != nil {
		undo()
		return nil, err
	}

	slog.Info("repository created", "id", id, "name", repo.FriendlyName, "dir", repoDir)
	return repo, nil
}

// CloneRemote materializes an existing repository under parentDir/<friendly name>.
func (s *Service) CloneRemote(ctx context.Context, id, parentDir string) (*catalog.Repository, *syncer.Summary, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	item, err := s.meta.GetItem(ctx, s.table, id)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup repository %s: %w", id, err)
	}

	parent, err := utils.ResolvePath(parentDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", parentDir, err)
	}
	if name := item.FriendlyName; name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, nil, fmt.Errorf("repository %s has unusable folder name %q", id, name)
	}

	repo := &catalog.Repository{
		ID:           id,
		FriendlyName: item.FriendlyName,
		Organization: item.Organization,
		FolderPath:   filepath.Join(parent, item.FriendlyName),
		State:        catalog.StateUninitialized,
	}
	if err := s.catalog.PutRepo(ctx, repo); err != nil {
		return nil, nil, err
	}

	ignore := hierarchy.LoadIgnoreList(repo.FolderPath)
	root, err := s.builder(ignore).BuildRemote(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	sum, err := s.exec.WithIgnore(ignore).CloneRemote(ctx, root, repo.FolderPath, id)
	if err != nil {
		return repo, sum, err
	}

	repo.State = catalog.StateCloned
	if err := s.saveActive(ctx, repo); err != nil {
		return repo, sum, err
	}
	return repo, sum, nil
}

// CloneLocal publishes an existing local directory as a new repository.
func (s *Service) CloneLocal(ctx context.Context, params *CreateParams) (*catalog.Repository, *syncer.Summary, error) {
	if err := params.validate(); err != nil {
		return nil, nil, err
	}
	repoDir, err := utils.ResolvePath(params.FolderPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", params.FolderPath, err)
	}
	if !utils.DirExists(repoDir) {
		return nil, nil, errs.NotFound("clone local", repoDir, nil)
	}

	ignore := hierarchy.LoadIgnoreList(repoDir)
	root, err := s.builder(ignore).BuildLocal(repoDir)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	unlock, err := s.lock(id)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	undo, err := s.createRemote(ctx, id, params)
	if err != nil {
		return nil, nil, err
	}

	repo := &catalog.Repository{
		ID:           id,
		FriendlyName: params.FriendlyName,
		Organization: params.Organization,
		FolderPath:   repoDir,
		State:        catalog.StateCreated,
	}
	if err := s.catalog.PutRepo(ctx, repo); err != nil {
		undo()
		return nil, nil, err
	}

	sum, err := s.exec.WithIgnore(ignore).CloneLocal(ctx, root, repoDir, id)
	if err != nil {
		return repo, sum, err
	}

	repo.State = catalog.StateCloned
	if err := s.saveActive(ctx, repo); err != nil {
		return repo, sum, err
	}
	return repo, sum, nil
}

// Check diffs the repository's directory against its bucket and records whether
// they have diverged.
func (s *Service) Check(ctx context.Context, id string) (diff.Result, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return diff.Result{}, err
	}
	defer unlock()

	repo, err := s.catalog.Repo(ctx, id)
	if err != nil {
		return diff.Result{}, err
	}
	return s.check(ctx, repo)
}

func (s *Service) check(ctx context.Context, repo *catalog.Repository) (diff.Result, error) {
	start := time.Now()
	defer s.metrics.Observe("check", start)

	if !utils.DirExists(repo.FolderPath) {
		return diff.Result{}, errs.NotFound("check", repo.FolderPath, nil)
	}

	builder := s.builder(hierarchy.LoadIgnoreList(repo.FolderPath))
	local, err := builder.BuildLocal(repo.FolderPath)
	if err != nil {
		return diff.Result{}, err
	}
	remote, err := builder.BuildRemote(ctx, repo.ID)
	if err != nil {
		return diff.Result{}, err
	}

	result, err := s.differ.Diff(ctx, local, remote, repo.ID)
	if err != nil {
		return diff.Result{}, fmt.Errorf("diff %s: %w", repo.ID, err)
	}
	s.metrics.Check(len(result.NewFiles), len(result.ModifiedFiles), len(result.DeletedFiles))

	state := catalog.StateSynced
	if !result.IsEmpty() {
		state = catalog.StateDiverged
	}
	if repo.State != state {
		slog.Info("repository state", "id", repo.ID, "from", repo.State, "to", state)
		repo.State = state
		if err := s.catalog.PutRepo(ctx, repo); err != nil {
			return result, err
		}
	}

	slog.Debug("check", "id", repo.ID,
		"new", len(result.NewFiles),
		"modified", len(result.ModifiedFiles),
		"deleted", len(result.DeletedFiles),
		"took", time.Since(start),
	)
	return result, nil
}

// Pull fetches new and changed remote files, then re-checks the repository.
func (s *Service) Pull(ctx context.Context, id string) (*syncer.Summary, error) {
	unlock, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	repo, err := s.catalog.Repo(ctx, id)
	if err != nil {
		return nil, err
	}

	ignore := hierarchy.LoadIgnoreList(repo.FolderPath)
	root, err := s.builder(ignore).BuildRemote(ctx, id)
	if err != nil {
		return nil, err
	}

	sum, err := s.exec.WithIgnore(ignore).Pull(ctx, root, repo.FolderPath, id)
	if err != nil {
		return sum, err
	}

	if _, err := s.check(ctx, repo); err != nil {
		return sum, fmt.Errorf("re-check after pull: %w", err)
	}
	return sum, nil
}

// Push diffs the repository afresh, applies the selected part of the diff to the
// bucket and re-checks.
func (s *Service) Push(ctx context.Context, id string, sel syncer.Selection) (*syncer.Summary, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	repo, err := s.catalog.Repo(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.check(ctx, repo)
	if err != nil {
		return nil, err
	}

	ignore := hierarchy.LoadIgnoreList(repo.FolderPath)
	sum, err := s.exec.WithIgnore(ignore).PushSelected(ctx, result, sel, repo.FolderPath, id)
	if err != nil {
		return sum, err
	}

	if _, err := s.check(ctx, repo); err != nil {
		return sum, fmt.Errorf("re-check after push: %w", err)
	}
	return sum, nil
}

func (s *Service) Get(ctx context.Context, id string) (*catalog.Repository, error) {
	return s.catalog.Repo(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id string) error {
	return s.catalog.SetActive(ctx, id)
}

// Active returns the active repository, or ErrNoActiveRepo.
func (s *Service) Active(ctx context.Context) (*catalog.Repository, error) {
	id, err := s.catalog.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNoActiveRepo
	}
	return s.catalog.Repo(ctx, id)
}

// ListLocal lists the repositories known to this machine.
func (s *Service) ListLocal(ctx context.Context) ([]*catalog.Repository, error) {
	return s.catalog.Repos(ctx)
}

// ListRemote lists every registered repository, ordered by friendly name.
func (s *Service) ListRemote(ctx context.Context) ([]*metastore.Item, error) {
	items, err := s.meta.ScanAll(ctx, s.table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.table, err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].FriendlyName != items[j].FriendlyName {
			return items[i].FriendlyName < items[j].FriendlyName
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Tree builds the local or the remote hierarchy of a repository.
func (s *Service) Tree(ctx context.Context, id string, remote bool) (*hierarchy.Node, error) {
	repo, err := s.catalog.Repo(ctx, id)
	if err != nil {
		return nil, err
	}

	builder := s.builder(hierarchy.LoadIgnoreList(repo.FolderPath))
	var root *hierarchy.Node
	if remote {
		root, err = builder.BuildRemote(ctx, id)
	} else {
		root, err = builder.BuildLocal(repo.FolderPath)
	}
	if err != nil {
		return nil, err
	}
	hierarchy.SortChildren(root)
	return root, nil
}

func (s *Service) builder(ignore *hierarchy.IgnoreList) *hierarchy.Builder {
	return hierarchy.NewBuilder(s.store, s.names).WithIgnore(ignore)
}

// createRemote creates the bucket and then the metadata record. The returned func
// deletes both.
func (s *Service) createRemote(ctx context.Context, id string, params *CreateParams) (func(), error) {
	if err := s.store.CreateContainer(ctx, id); err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", id, err)
	}

	item := &metastore.Item{
		ID:           id,
		FriendlyName: params.FriendlyName,
		Organization: params.Organization,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.meta.PutItem(ctx, s.table, item); err != nil {
		s.rollbackContainer(id)
		return nil, fmt.Errorf("register repository %s: %w", id, err)
	}

	return func() {
		// rollback must run even when ctx is what failed
		rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.meta.DeleteItem(rctx, s.table, id); err != nil {
			slog.Error("rollback metadata record", "id", id, "error", err)
		}
		s.rollbackContainer(id)
	}, nil
}

func (s *Service) rollbackContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.DeleteContainer(ctx, id); err != nil {
		slog.Error("rollback bucket", "id", id, "error", err)
		return
	}
	slog.Warn("rolled back repository", "id", id)
}

func (s *Service) saveActive(ctx context.Context, repo *catalog.Repository) error {
	if err := s.catalog.PutRepo(ctx, repo); err != nil {
		return err
	}
	return s.catalog.SetActive(ctx, repo.ID)
}

// lock serializes operations on id. Ids also name lock files, so they are checked first.
func (s *Service) lock(id string) (func(), error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.locks.TryLock(id)
}

func validateID(id string) error {
	if !repoIDRe.MatchString(id) {
		return fmt.Errorf("invalid repository id %q", id)
	}
	return nil
}
