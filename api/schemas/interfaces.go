// File: api/schemas/interfaces.go
// Description: Contracts between the cycle coordinator and its stage
// implementations. The coordinator is injected with these interfaces, making
// it decoupled and testable.

package schemas

import "context"

// SnapshotProvider obtains a consistent, read-only view of the target
// repository. Capture either returns a complete snapshot or an error; there
// is no partial-success state.
type SnapshotProvider interface {
	Capture(ctx context.Context) (*Snapshot, error)
}

// CandidateScanner walks a snapshot and emits improvement candidates.
// Scanning the same snapshot twice yields the same candidates in the same
// order: priority descending, path ascending, detector registration order.
type CandidateScanner interface {
	Scan(ctx context.Context, snap *Snapshot) ([]Candidate, error)
}

// ChangeSynthesizer turns one candidate into a concrete, minimal patch.
// Same candidate plus same snapshot produces a byte-identical patch.
type ChangeSynthesizer interface {
	Synthesize(candidate Candidate, snap *Snapshot) (Patch, error)
}

// HashView exposes the current content digest per path. During a cycle the
// coordinator overlays digests of already-accepted patches so that a later
// patch against the same file is seen as stale.
type HashView interface {
	Hash(path string) (string, bool)
}

// SafetyGate validates a synthesized patch against the cycle's invariants.
// It is a pure decision function; rejection excludes one patch, never the
// whole cycle.
type SafetyGate interface {
	Validate(ctx context.Context, patch Patch, view HashView) GateVerdict
}

// CommitPipeline applies accepted changes to the working copy and performs
// one atomic commit plus push. Zero changes is a NO-OP. A failed push rolls
// the working copy back to its pre-cycle state.
type CommitPipeline interface {
	Commit(ctx context.Context, cycleID string, changes []Change, skipped []SkippedCandidate) (CommitRecord, error)
}

// Journal is the append-only log of commit records, one per completed cycle.
type Journal interface {
	Append(record CommitRecord) error
	Last() (*CommitRecord, error)
	List() ([]CommitRecord, error)
}
