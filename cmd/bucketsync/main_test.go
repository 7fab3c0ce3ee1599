package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/openmined/bucketsync/internal/config"
	"github.com/openmined/bucketsync/internal/diff"
	"github.com/openmined/bucketsync/internal/objstore"
	"github.com/openmined/bucketsync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv runs commands against one data dir and one in-memory bucket store.
type cliEnv struct {
	dataDir string
	store   *objstore.MemoryStore
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	color.NoColor = true

	env := &cliEnv{dataDir: t.TempDir(), store: objstore.NewMemoryStore()}
	prev := openObjectStore
	openObjectStore = func(ctx context.Context, cfg *config.Config) (objstore.Store, error) {
		return env.store, nil
	}
	t.Cleanup(func() { openObjectStore = prev })
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--config", filepath.Join(e.dataDir, "absent.yaml"),
		"--data-dir", e.dataDir,
		"--object-backend", "memory",
		"--metadata-backend", "sqlite",
		"--log-level", "error",
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, base...))

	err := cmd.ExecuteContext(context.Background())
	closeLog()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestCLI_Workflow(t *testing.T) {
	env := newCLIEnv(t)
	repoDir := filepath.Join(t.TempDir(), "notes")
	writeFile(t, filepath.Join(repoDir, "a.txt"), "hello")
	writeFile(t, filepath.Join(repoDir, "b.txt"), "B")

	out := env.mustRun(t, "clone-local", "--path", repoDir, "--name", "notes", "--org", "acme")
	assert.Contains(t, out, "Clone complete: 2 succeeded")
	fields := strings.Fields(strings.TrimSpace(out))
	id := fields[len(fields)-1]

	out = env.mustRun(t, "repos")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, id)

	out = env.mustRun(t, "repos", "--remote", "-o", "json")
	assert.Contains(t, out, `"friendlyName": "notes"`)

	out = env.mustRun(t, "status")
	assert.Contains(t, out, "up to date")

	writeFile(t, filepath.Join(repoDir, "b.txt"), "B changed")
	writeFile(t, filepath.Join(repoDir, "docs", "c.md"), "# c")

	out = env.mustRun(t, "status")
	assert.Contains(t, out, "~ b.txt")
	assert.Contains(t, out, "+ docs/")
	assert.Contains(t, out, "(diverged)")

	out = env.mustRun(t, "status", "-o", "json")
	var result diff.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []string{"b.txt"}, result.ModifiedFiles)

	_, err := env.run(t, "push")
	assert.ErrorContains(t, err, "nothing selected")

	out = env.mustRun(t, "push", "--modified", "b.txt")
	assert.Contains(t, out, "Push complete: 1 succeeded")

	out = env.mustRun(t, "status", "-o", "yaml")
	assert.Contains(t, out, "- docs/")
	assert.NotContains(t, out, "b.txt")

	env.mustRun(t, "push", "--all")
	out = env.mustRun(t, "status")
	assert.Contains(t, out, "up to date")

	out = env.mustRun(t, "tree", "--remote")
	assert.Contains(t, out, "notes/")
	assert.Contains(t, out, "    c.md")

	require.NoError(t, env.store.PutObject(context.Background(), &objstore.PutObjectParams{
		Bucket: id, Key: "a.txt", Body: strings.NewReader("hello again"), Size: 11,
	}))
	out = env.mustRun(t, "pull", id)
	assert.Contains(t, out, "Pull complete:")
	data, err := os.ReadFile(filepath.Join(repoDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello again", string(data))

	parent := t.TempDir()
	out = env.mustRun(t, "clone", id, "--into", parent)
	assert.Contains(t, out, "Clone complete:")
	assert.Contains(t, out, "notes cloned into")
	data, err = os.ReadFile(filepath.Join(parent, "notes", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B changed", string(data))
	assert.FileExists(t, filepath.Join(parent, "notes", "docs", "c.md"))
}

func TestCLI_CreateAndUse(t *testing.T) {
	env := newCLIEnv(t)
	dir := filepath.Join(t.TempDir(), "fresh")

	out := env.mustRun(t, "create", "-p", dir, "-n", "fresh")
	assert.Contains(t, out, "Created fresh")
	assert.DirExists(t, dir)

	_, err := env.run(t, "use", "0b7c4f0e-unknown")
	assert.Error(t, err)

	_, err = env.run(t, "create", "-p", dir)
	assert.ErrorContains(t, err, `required flag(s) "name" not set`)
}

func TestCLI_NoActiveRepo(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "status")
	assert.ErrorContains(t, err, "no active repository")
}

func TestCLI_BadOutputFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "status", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestCLI_ConfigShowAndSave(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("BUCKETSYNC_ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("BUCKETSYNC_SECRET_KEY", "supersecret")

	out := env.mustRun(t, "config", "show")
	assert.Contains(t, out, "access_key: AKIA*****")
	assert.NotContains(t, out, "supersecret")
	assert.Contains(t, out, "object_backend: memory")

	path := filepath.Join(t.TempDir(), "config.yaml")
	env.mustRun(t, "config", "save", path)
	assert.FileExists(t, path)

	_, err := env.run(t, "config", "save", path)
	assert.ErrorContains(t, err, "--force")
	env.mustRun(t, "config", "save", path, "--force")
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("BUCKETSYNC_WORKERS", "3")
	t.Setenv("BUCKETSYNC_METADATA_BACKEND", "sqlite")
	t.Setenv("BUCKETSYNC_DATA_DIR", t.TempDir())

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, config.BackendSQLite, cfg.MetadataBackend)
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestVersionCommand_JSON(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "-o", "json"})

	require.NoError(t, cmd.Execute())
	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.AppName, info.App)
	assert.Equal(t, version.Version, info.Version)
}
