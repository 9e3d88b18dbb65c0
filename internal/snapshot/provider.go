// File: internal/snapshot/provider.go
package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/config"
)

// ErrCapture marks a failed snapshot capture. Capture is atomic: on any
// failure no partial snapshot is returned and no prior snapshot is mutated.
var ErrCapture = errors.New("snapshot capture failed")

// HashBytes returns the hex digest used for snapshot content and staleness
// checks throughout a cycle.
func HashBytes(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Provider captures point-in-time views of the configured repository. It
// owns the local working copy: the first capture clones it, later captures
// refresh it from the remote when one is configured.
type Provider struct {
	logger *zap.Logger
	cfg    config.RepoConfig
}

// NewProvider creates a snapshot provider for the configured repository.
func NewProvider(logger *zap.Logger, cfg config.RepoConfig) *Provider {
	return &Provider{
		logger: logger.Named("snapshot"),
		cfg:    cfg,
	}
}

// Workdir exposes the working copy path the provider maintains.
func (p *Provider) Workdir() string { return p.cfg.Workdir }

// Capture clones or refreshes the working copy, then reads every tracked
// tree file into an immutable Snapshot.
func (p *Provider) Capture(ctx context.Context) (*schemas.Snapshot, error) {
	repo, err := p.ensureWorkingCopy(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	if p.cfg.URL != "" {
		if err := p.refresh(ctx, repo); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCapture, err)
		}
	}

	files, err := p.readTree()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	snap := schemas.NewSnapshot(files)
	p.logger.Info("Snapshot captured.",
		zap.Int("files", snap.Len()),
		zap.String("workdir", p.cfg.Workdir),
	)
	return snap, nil
}

func (p *Provider) ensureWorkingCopy(ctx context.Context) (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(p.cfg.Workdir, ".git")); err == nil {
		repo, err := git.PlainOpen(p.cfg.Workdir)
		if err != nil {
			return nil, fmt.Errorf("open working copy: %w", err)
		}
		return repo, nil
	}

	if p.cfg.URL == "" {
		return nil, fmt.Errorf("working copy %q does not exist and no repo URL is configured", p.cfg.Workdir)
	}

	created := false
	if _, err := os.Stat(p.cfg.Workdir); os.IsNotExist(err) {
		created = true
	}

	p.logger.Info("Cloning working copy.", zap.String("url", p.cfg.URL), zap.String("workdir", p.cfg.Workdir))
	repo, err := git.PlainCloneContext(ctx, p.cfg.Workdir, false, &git.CloneOptions{
		URL:           p.cfg.URL,
		RemoteName:    p.cfg.RemoteName,
		ReferenceName: plumbing.NewBranchReferenceName(p.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		// A half-finished clone must not poison the next capture, but only
		// a directory this clone created may be discarded.
		if created {
			_ = os.RemoveAll(p.cfg.Workdir)
		}
		return nil, fmt.Errorf("clone %s: %w", p.cfg.URL, err)
	}
	return repo, nil
}

func (p *Provider) refresh(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    p.cfg.RemoteName,
		ReferenceName: plumbing.NewBranchReferenceName(p.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", p.cfg.RemoteName, err)
	}
	return nil
}

// readTree walks the working copy and hashes every regular file. Any read
// error fails the whole capture; there is no partial snapshot.
func (p *Provider) readTree() (map[string]schemas.FileEntry, error) {
	root := p.cfg.Workdir
	files := make(map[string]schemas.FileEntry)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == git.GitDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = schemas.FileEntry{
			Content: content,
			Hash:    HashBytes(content),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
