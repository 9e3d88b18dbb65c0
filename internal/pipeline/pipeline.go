// File: internal/pipeline/pipeline.go
// Description: Applies accepted patches to the working copy in candidate
// order, then performs one atomic commit covering all of them plus one push
// to the remote. All-or-nothing at cycle granularity: any failure after the
// first write hard-resets the working copy to the pre-cycle HEAD.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/config"
)

// CommitError is a cycle-fatal pipeline failure. The working copy has been
// rolled back when it is returned.
type CommitError struct {
	Stage string
	Err   error
}

func (e *CommitError) Error() string { return fmt.Sprintf("commit pipeline %s: %v", e.Stage, e.Err) }
func (e *CommitError) Unwrap() error { return e.Err }

// Pipeline is the sole component permitted to mutate the working copy.
type Pipeline struct {
	logger  *zap.Logger
	cfg     config.RepoConfig
	workdir string
}

// New creates a commit pipeline over the provider's working copy.
func New(logger *zap.Logger, cfg config.RepoConfig) *Pipeline {
	return &Pipeline{
		logger:  logger.Named("pipeline"),
		cfg:     cfg,
		workdir: cfg.Workdir,
	}
}

// Commit applies the accepted changes and records the outcome. Zero changes
// is a NO-OP: no commit is created and the repository is left untouched.
func (p *Pipeline) Commit(ctx context.Context, cycleID string, changes []schemas.Change, skipped []schemas.SkippedCandidate) (schemas.CommitRecord, error) {
	record := schemas.CommitRecord{
		CycleID:   cycleID,
		Timestamp: time.Now().UTC(),
		Applied:   []schemas.AppliedChange{},
		Skipped:   skipped,
	}

	if len(changes) == 0 {
		record.Outcome = schemas.OutcomeNoOp
		p.logger.Info("No eligible changes; cycle is a no-op.", zap.String("cycle_id", cycleID))
		return record, nil
	}

	repo, err := git.PlainOpen(p.workdir)
	if err != nil {
		record.Outcome = schemas.OutcomeFailed
		record.Reason = err.Error()
		return record, &CommitError{Stage: "open", Err: err}
	}
	head, err := repo.Head()
	if err != nil {
		record.Outcome = schemas.OutcomeFailed
		record.Reason = err.Error()
		return record, &CommitError{Stage: "head", Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		record.Outcome = schemas.OutcomeFailed
		record.Reason = err.Error()
		return record, &CommitError{Stage: "worktree", Err: err}
	}

	fail := func(stage string, cause error) (schemas.CommitRecord, error) {
		p.rollback(wt, head.Hash())
		record.Outcome = schemas.OutcomeFailed
		record.CommitID = ""
		record.Applied = []schemas.AppliedChange{}
		record.Reason = fmt.Sprintf("%s: %v", stage, cause)
		return record, &CommitError{Stage: stage, Err: cause}
	}

	for _, change := range changes {
		if err := p.writeFile(change.Patch); err != nil {
			return fail("apply", err)
		}
		if _, err := wt.Add(change.Patch.Path); err != nil {
			return fail("stage", err)
		}
		record.Applied = append(record.Applied, schemas.AppliedChange{
			CandidateID: change.Candidate.ID,
			Path:        change.Candidate.Path,
			Category:    change.Candidate.Category,
			Rationale:   change.Candidate.Rationale,
		})
	}

	message := CommitMessage(cycleID, changes)
	commitHash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.cfg.Git.AuthorName,
			Email: p.cfg.Git.AuthorEmail,
			When:  time.Now().UTC(),
		},
	})
	if err != nil {
		return fail("commit", err)
	}

	if err := p.push(ctx, repo); err != nil {
		return fail("push", err)
	}

	record.CommitID = commitHash.String()
	if len(skipped) > 0 {
		record.Outcome = schemas.OutcomePartial
	} else {
		record.Outcome = schemas.OutcomeSucceeded
	}
	p.logger.Info("Cycle committed and pushed.",
		zap.String("cycle_id", cycleID),
		zap.String("commit", record.CommitID),
		zap.Int("applied", len(record.Applied)),
		zap.Int("skipped", len(skipped)),
	)
	return record, nil
}

// writeFile places patched content under the working copy root. The gate has
// already vetted the path; this re-checks before touching the filesystem.
func (p *Pipeline) writeFile(patch schemas.Patch) error {
	clean := filepath.Clean(filepath.FromSlash(patch.Path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid file path (path traversal detected): %s", patch.Path)
	}
	full := filepath.Join(p.workdir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", patch.Path, err)
	}
	if err := os.WriteFile(full, patch.NewContent, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", patch.Path, err)
	}
	return nil
}

// push pushes to the configured remote if one exists, retrying exactly once
// on a transient network failure. A working copy without the remote (a
// purely local repository) skips the push.
func (p *Pipeline) push(ctx context.Context, repo *git.Repository) error {
	if _, err := repo.Remote(p.cfg.RemoteName); err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			p.logger.Debug("No remote configured; skipping push.", zap.String("remote", p.cfg.RemoteName))
			return nil
		}
		return err
	}

	opts := &git.PushOptions{RemoteName: p.cfg.RemoteName}
	err := repo.PushContext(ctx, opts)
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if !isTransient(err) {
		return err
	}

	p.logger.Warn("Push failed transiently; retrying once.", zap.Error(err))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	err = repo.PushContext(ctx, opts)
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// rollback discards the local commit and all working-copy changes, restoring
// the pre-cycle HEAD.
func (p *Pipeline) rollback(wt *git.Worktree, head plumbing.Hash) {
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: head}); err != nil {
		p.logger.Error("Rollback failed; working copy may be dirty.", zap.Error(err))
		return
	}
	p.logger.Info("Working copy rolled back.", zap.String("head", head.String()))
}

// isTransient reports whether a push failure is worth the single retry.
// Auth failures and diverged remote history are permanent for this cycle.
func isTransient(err error) bool {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrRepositoryNotFound) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "i/o timeout", "temporarily unavailable", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// CommitMessage renders the deterministic message for a set of applied
// changes: "AUTO-EVOLVE[<cycle_id>]: <n> change(s) — <cat1>,<cat2>,..."
// followed by one rationale line per applied patch.
func CommitMessage(cycleID string, changes []schemas.Change) string {
	seen := make(map[schemas.Category]bool)
	var categories []string
	for _, change := range changes {
		if !seen[change.Candidate.Category] {
			seen[change.Candidate.Category] = true
			categories = append(categories, string(change.Candidate.Category))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "AUTO-EVOLVE[%s]: %d change(s) — %s", cycleID, len(changes), strings.Join(categories, ","))
	for _, change := range changes {
		b.WriteString("\n")
		b.WriteString(change.Candidate.Rationale)
	}
	return b.String()
}
