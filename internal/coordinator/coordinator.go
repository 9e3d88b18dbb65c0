// File: internal/coordinator/coordinator.go
// Description: Orchestrates one end-to-end cycle (capture → scan →
// synthesize → gate → commit), enforces at-most-one concurrent cycle per
// process, and reports cycle status. The single CycleState instance is
// guarded by one mutex and transitions only through this component.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/config"
	"github.com/xkilldash9x/gardener-cli/internal/snapshot"
)

var (
	// ErrCycleBusy is returned when a trigger arrives while a cycle is
	// RUNNING. Triggers are rejected, never queued.
	ErrCycleBusy = errors.New("a cycle is already running")
	// ErrCooldown is returned when a trigger arrives before the configured
	// cooldown since the previous cycle has elapsed.
	ErrCooldown = errors.New("cycle cooldown in effect")
)

// GateFactory builds a gate for a cycle's effective max change ratio, which
// a trigger may override.
type GateFactory func(maxChangeRatio float64) schemas.SafetyGate

// Coordinator drives the improvement loop.
type Coordinator struct {
	logger   *zap.Logger
	cfg      config.EvolutionConfig
	provider schemas.SnapshotProvider
	scanner  schemas.CandidateScanner
	synth    schemas.ChangeSynthesizer
	gate     GateFactory
	pipeline schemas.CommitPipeline
	journal  schemas.Journal
	limiter  *rate.Limiter

	mu    sync.Mutex
	state schemas.CycleState
	done  chan struct{}
}

// New wires the coordinator and seeds the last record from the journal.
func New(
	logger *zap.Logger,
	cfg config.EvolutionConfig,
	provider schemas.SnapshotProvider,
	scanner schemas.CandidateScanner,
	synth schemas.ChangeSynthesizer,
	gateFn GateFactory,
	pipeline schemas.CommitPipeline,
	journal schemas.Journal,
) *Coordinator {
	var limiter *rate.Limiter
	if cfg.Cooldown > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Cooldown), 1)
	}
	c := &Coordinator{
		logger:   logger.Named("coordinator"),
		cfg:      cfg,
		provider: provider,
		scanner:  scanner,
		synth:    synth,
		gate:     gateFn,
		pipeline: pipeline,
		journal:  journal,
		limiter:  limiter,
		state:    schemas.CycleState{Status: schemas.StatusIdle},
	}
	if last, err := journal.Last(); err == nil && last != nil {
		c.state.LastRecord = last
	}
	return c
}

// Status returns a copy of the current cycle state. A terminal SUCCEEDED or
// FAILED status is reported exactly once; the read collapses it to IDLE and
// clears the cycle id, so pollers observe the terminal transition before the
// coordinator presents as idle again.
func (c *Coordinator) Status() schemas.CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.state
	switch c.state.Status {
	case schemas.StatusSucceeded, schemas.StatusFailed:
		c.state.Status = schemas.StatusIdle
		c.state.CycleID = ""
	}
	return out
}

// Trigger starts a cycle asynchronously and returns its id plus the state at
// acceptance time. Returns ErrCycleBusy while a cycle is RUNNING and
// ErrCooldown when rate-limited; neither alters the state.
func (c *Coordinator) Trigger(ov schemas.Overrides) (string, schemas.CycleState, error) {
	cycleID, done, err := c.reserve()
	if err != nil {
		return "", c.Status(), err
	}
	go func() {
		defer close(done)
		c.execute(context.Background(), cycleID, ov)
	}()
	return cycleID, c.Status(), nil
}

// RunCycle runs one cycle synchronously and returns its commit record. Used
// by the CLI; subject to the same mutual exclusion as Trigger.
func (c *Coordinator) RunCycle(ctx context.Context, ov schemas.Overrides) (schemas.CommitRecord, error) {
	cycleID, done, err := c.reserve()
	if err != nil {
		return schemas.CommitRecord{}, err
	}
	defer close(done)
	return c.execute(ctx, cycleID, ov), nil
}

// WaitIdle blocks until the most recently started cycle has finished.
func (c *Coordinator) WaitIdle() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// reserve transitions any non-RUNNING state to RUNNING, enforcing mutual
// exclusion and the cooldown. On success the caller owns the cycle and must
// close the returned channel when it completes.
func (c *Coordinator) reserve() (string, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == schemas.StatusRunning {
		return "", nil, ErrCycleBusy
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return "", nil, ErrCooldown
	}

	cycleID := uuid.NewString()
	c.state.Status = schemas.StatusRunning
	c.state.CycleID = cycleID
	c.done = make(chan struct{})
	return cycleID, c.done, nil
}

// execute runs the reserved cycle end to end, journals the record, and moves
// the state to its terminal status (SUCCEEDED or FAILED). The next Status
// read or trigger returns the state to IDLE.
func (c *Coordinator) execute(ctx context.Context, cycleID string, ov schemas.Overrides) schemas.CommitRecord {
	timeout := c.cfg.CycleTimeout
	if ov.TimeoutSeconds != nil {
		timeout = time.Duration(*ov.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	c.logger.Info("Cycle started.", zap.String("cycle_id", cycleID), zap.Bool("dry_run", ov.DryRun))

	record := c.cycle(ctx, cycleID, ov)

	if err := c.journal.Append(record); err != nil {
		c.logger.Error("Failed to journal commit record.", zap.Error(err))
	}

	c.mu.Lock()
	if record.Outcome == schemas.OutcomeFailed {
		c.state.Status = schemas.StatusFailed
	} else {
		c.state.Status = schemas.StatusSucceeded
	}
	c.state.LastRecord = &record
	c.mu.Unlock()

	c.logger.Info("Cycle finished.",
		zap.String("cycle_id", cycleID),
		zap.String("outcome", string(record.Outcome)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return record
}

func (c *Coordinator) cycle(ctx context.Context, cycleID string, ov schemas.Overrides) schemas.CommitRecord {
	failed := func(reason string) schemas.CommitRecord {
		return schemas.CommitRecord{
			CycleID:   cycleID,
			Timestamp: time.Now().UTC(),
			Outcome:   schemas.OutcomeFailed,
			Applied:   []schemas.AppliedChange{},
			Reason:    reason,
			DryRun:    ov.DryRun,
		}
	}

	snap, err := c.provider.Capture(ctx)
	if err != nil {
		return failed(err.Error())
	}
	if err := ctx.Err(); err != nil {
		return failed(fmt.Sprintf("cycle deadline exceeded during capture: %v", err))
	}

	candidates, err := c.scanner.Scan(ctx, snap)
	if err != nil {
		return failed(fmt.Sprintf("scan: %v", err))
	}
	if err := ctx.Err(); err != nil {
		return failed(fmt.Sprintf("cycle deadline exceeded during scan: %v", err))
	}

	maxRatio := c.cfg.MaxChangeRatio
	if ov.MaxChangeRatio != nil {
		maxRatio = *ov.MaxChangeRatio
	}
	gate := c.gate(maxRatio)

	// The overlay tracks digests of already-accepted patches so a second
	// patch against the same file in this cycle is seen as stale.
	view := newOverlayView(snap)

	var (
		changes []schemas.Change
		skipped []schemas.SkippedCandidate
	)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return failed(fmt.Sprintf("cycle deadline exceeded during synthesis: %v", err))
		}

		patch, err := c.synth.Synthesize(candidate, snap)
		if err != nil {
			skipped = append(skipped, schemas.SkippedCandidate{
				CandidateID: candidate.ID,
				Path:        candidate.Path,
				Stage:       "synthesize",
				Reason:      err.Error(),
			})
			continue
		}

		verdict := gate.Validate(ctx, patch, view)
		if !verdict.Accepted {
			skipped = append(skipped, schemas.SkippedCandidate{
				CandidateID: candidate.ID,
				Path:        candidate.Path,
				Stage:       "gate",
				Reason:      verdict.Reason,
			})
			continue
		}

		view.set(patch.Path, snapshot.HashBytes(patch.NewContent))
		changes = append(changes, schemas.Change{Candidate: candidate, Patch: patch})
	}

	if ov.DryRun {
		return dryRunRecord(cycleID, changes, skipped)
	}

	record, err := c.pipeline.Commit(ctx, cycleID, changes, skipped)
	if err != nil {
		// The pipeline has rolled the working copy back; the record it
		// returns already carries the FAILED outcome and reason.
		c.logger.Error("Commit pipeline failed.", zap.String("cycle_id", cycleID), zap.Error(err))
	}
	return record
}

// dryRunRecord reports the would-be outcome without mutating anything.
func dryRunRecord(cycleID string, changes []schemas.Change, skipped []schemas.SkippedCandidate) schemas.CommitRecord {
	record := schemas.CommitRecord{
		CycleID:   cycleID,
		Timestamp: time.Now().UTC(),
		Applied:   make([]schemas.AppliedChange, 0, len(changes)),
		Skipped:   skipped,
		DryRun:    true,
	}
	for _, change := range changes {
		record.Applied = append(record.Applied, schemas.AppliedChange{
			CandidateID: change.Candidate.ID,
			Path:        change.Candidate.Path,
			Category:    change.Candidate.Category,
			Rationale:   change.Candidate.Rationale,
		})
	}
	switch {
	case len(changes) == 0:
		record.Outcome = schemas.OutcomeNoOp
	case len(skipped) > 0:
		record.Outcome = schemas.OutcomePartial
	default:
		record.Outcome = schemas.OutcomeSucceeded
	}
	return record
}

// overlayView layers in-cycle content digests over the immutable snapshot.
type overlayView struct {
	snap    *schemas.Snapshot
	applied map[string]string
}

func newOverlayView(snap *schemas.Snapshot) *overlayView {
	return &overlayView{snap: snap, applied: make(map[string]string)}
}

func (v *overlayView) Hash(path string) (string, bool) {
	if h, ok := v.applied[path]; ok {
		return h, true
	}
	return v.snap.Hash(path)
}

func (v *overlayView) set(path, hash string) { v.applied[path] = hash }
