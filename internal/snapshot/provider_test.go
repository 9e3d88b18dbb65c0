package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gardener-cli/internal/config"
	"github.com/xkilldash9x/gardener-cli/internal/snapshot"
)

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string, msg string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err = wt.Add(path)
		require.NoError(t, err)
	}
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func initRepo(t *testing.T, dir string, files map[string]string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFiles(t, repo, dir, files, "initial commit")
	return repo
}

func localConfig(workdir string) config.RepoConfig {
	return config.RepoConfig{
		Workdir:    workdir,
		Branch:     "master",
		RemoteName: "origin",
	}
}

func TestCapture_ReadsWorkingTree(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, map[string]string{
		"a.py":          "import time\ntime.sleep(5)\n",
		"docs/notes.md": "# notes\n",
	})

	p := snapshot.NewProvider(zaptest.NewLogger(t), localConfig(dir))
	snap, err := p.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, []string{"a.py", "docs/notes.md"}, snap.Paths())

	entry, ok := snap.Get("a.py")
	require.True(t, ok)
	assert.Equal(t, "import time\ntime.sleep(5)\n", string(entry.Content))
	assert.Equal(t, snapshot.HashBytes(entry.Content), entry.Hash)
}

func TestCapture_SkipsGitDirectory(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, map[string]string{"a.txt": "hello\n"})

	p := snapshot.NewProvider(zaptest.NewLogger(t), localConfig(dir))
	snap, err := p.Capture(context.Background())
	require.NoError(t, err)

	for _, path := range snap.Paths() {
		assert.NotContains(t, path, ".git/")
	}
	assert.Equal(t, 1, snap.Len())
}

func TestCapture_MissingWorkdirWithoutURL(t *testing.T) {
	p := snapshot.NewProvider(zaptest.NewLogger(t), localConfig(filepath.Join(t.TempDir(), "absent")))

	_, err := p.Capture(context.Background())
	require.ErrorIs(t, err, snapshot.ErrCapture)
}

func TestCapture_ClonesOnFirstUse(t *testing.T) {
	srcDir := t.TempDir()
	initRepo(t, srcDir, map[string]string{"a.txt": "upstream\n"})

	cfg := localConfig(filepath.Join(t.TempDir(), "clone"))
	cfg.URL = srcDir

	p := snapshot.NewProvider(zaptest.NewLogger(t), cfg)
	snap, err := p.Capture(context.Background())
	require.NoError(t, err)

	entry, ok := snap.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, "upstream\n", string(entry.Content))
}

func TestCapture_RefreshPicksUpUpstreamCommits(t *testing.T) {
	srcDir := t.TempDir()
	srcRepo := initRepo(t, srcDir, map[string]string{"a.txt": "v1\n"})

	cfg := localConfig(filepath.Join(t.TempDir(), "clone"))
	cfg.URL = srcDir
	p := snapshot.NewProvider(zaptest.NewLogger(t), cfg)

	first, err := p.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Len())

	commitFiles(t, srcRepo, srcDir, map[string]string{"b.txt": "v2\n"}, "add b")

	second, err := p.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Len())
	_, ok := second.Get("b.txt")
	assert.True(t, ok)

	// The earlier snapshot is immutable; it must not see the new file.
	_, ok = first.Get("b.txt")
	assert.False(t, ok)
}

func TestCapture_FailedCloneLeavesNoWorkdir(t *testing.T) {
	workdir := filepath.Join(t.TempDir(), "clone")
	cfg := localConfig(workdir)
	cfg.URL = filepath.Join(t.TempDir(), "no-such-repo")

	p := snapshot.NewProvider(zaptest.NewLogger(t), cfg)
	_, err := p.Capture(context.Background())
	require.ErrorIs(t, err, snapshot.ErrCapture)

	_, statErr := os.Stat(workdir)
	assert.True(t, os.IsNotExist(statErr), "half-finished clone must be removed")
}

func TestCapture_FailedCloneKeepsPreexistingWorkdir(t *testing.T) {
	// A misconfigured workdir pointing at an existing non-repo directory
	// must survive a failed clone untouched.
	workdir := t.TempDir()
	keep := filepath.Join(workdir, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("precious\n"), 0o644))

	cfg := localConfig(workdir)
	cfg.URL = filepath.Join(t.TempDir(), "no-such-repo")

	p := snapshot.NewProvider(zaptest.NewLogger(t), cfg)
	_, err := p.Capture(context.Background())
	require.ErrorIs(t, err, snapshot.ErrCapture)

	content, readErr := os.ReadFile(keep)
	require.NoError(t, readErr)
	assert.Equal(t, "precious\n", string(content))
}

func TestCapture_IgnoresIrregularFiles(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir, map[string]string{"real.txt": "content\n"})
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))

	p := snapshot.NewProvider(zaptest.NewLogger(t), localConfig(dir))
	snap, err := p.Capture(context.Background())
	require.NoError(t, err)

	_, ok := snap.Get("link.txt")
	assert.False(t, ok)
	_, ok = snap.Get("real.txt")
	assert.True(t, ok)
}

func TestHashBytes(t *testing.T) {
	a := snapshot.HashBytes([]byte("hello"))
	b := snapshot.HashBytes([]byte("hello"))
	c := snapshot.HashBytes([]byte("hello "))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.NotEmpty(t, snapshot.HashBytes(nil))
}
