// File: api/schemas/evolution.go
package schemas

import (
	"sort"
	"time"
)

// Category classifies an improvement candidate.
type Category string

const (
	CategoryPerformance Category = "PERFORMANCE"
	CategorySecurity    Category = "SECURITY"
	CategoryStyle       Category = "STYLE"
	CategoryReliability Category = "RELIABILITY"
)

// Priority orders candidates within a cycle. Higher values sort first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Outcome is the terminal result of one cycle's commit pipeline.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomePartial   Outcome = "PARTIAL"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeNoOp      Outcome = "NO-OP"
)

// CycleStatus is the coordinator's state machine status. A cycle moves
// IDLE → RUNNING → {SUCCEEDED, FAILED} → IDLE; the terminal status stays
// queryable at least once before the state returns to IDLE.
type CycleStatus string

const (
	StatusIdle      CycleStatus = "IDLE"
	StatusRunning   CycleStatus = "RUNNING"
	StatusSucceeded CycleStatus = "SUCCEEDED"
	StatusFailed    CycleStatus = "FAILED"
)

// FileEntry is one file inside a Snapshot: raw content plus a stable digest.
type FileEntry struct {
	Content []byte
	Hash    string
}

// Snapshot is an immutable point-in-time view of the repository contents.
// Paths are unique and sorted; content and hashes never change after
// construction. The scanner and synthesizer rely on this immutability for
// the duration of a cycle.
type Snapshot struct {
	files map[string]FileEntry
	paths []string
}

// NewSnapshot copies the given file map into an immutable Snapshot.
func NewSnapshot(files map[string]FileEntry) *Snapshot {
	s := &Snapshot{
		files: make(map[string]FileEntry, len(files)),
		paths: make([]string, 0, len(files)),
	}
	for path, entry := range files {
		content := make([]byte, len(entry.Content))
		copy(content, entry.Content)
		s.files[path] = FileEntry{Content: content, Hash: entry.Hash}
		s.paths = append(s.paths, path)
	}
	sort.Strings(s.paths)
	return s
}

// Paths returns the sorted file paths. The returned slice is a copy.
func (s *Snapshot) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Get returns the entry for a path. The content slice must not be mutated.
func (s *Snapshot) Get(path string) (FileEntry, bool) {
	e, ok := s.files[path]
	return e, ok
}

// Hash implements HashView over the snapshot's original digests.
func (s *Snapshot) Hash(path string) (string, bool) {
	e, ok := s.files[path]
	return e.Hash, ok
}

// Len reports the number of files in the snapshot.
func (s *Snapshot) Len() int { return len(s.paths) }

// Candidate is a detected, not-yet-applied improvement opportunity. It is
// created by the scanner and read-only afterward; its lifetime is one cycle.
type Candidate struct {
	ID            string   `json:"id"`
	Path          string   `json:"path"`
	Category      Category `json:"category"`
	Priority      Priority `json:"priority"`
	Rationale     string   `json:"rationale"`
	Detector      string   `json:"detector"`
	DetectorIndex int      `json:"-"`
}

// Patch is a concrete textual change derived from exactly one Candidate.
// BaseHash must match the current view of the target file or the patch is
// stale. Never mutated after creation.
type Patch struct {
	CandidateID  string
	Path         string
	BaseHash     string
	NewContent   []byte
	LinesChanged int
	// OriginalLines is the line count of the file the patch was synthesized
	// against; the gate's change-ratio bound divides by it.
	OriginalLines int
}

// GateVerdict is the safety gate's decision for one patch.
type GateVerdict struct {
	CandidateID string
	Accepted    bool
	Reason      string
}

// Change pairs an accepted patch with the candidate that produced it, in the
// order the pipeline must apply them.
type Change struct {
	Candidate Candidate
	Patch     Patch
}

// AppliedChange summarizes one committed patch inside a CommitRecord.
type AppliedChange struct {
	CandidateID string   `json:"candidate_id"`
	Path        string   `json:"path"`
	Category    Category `json:"category"`
	Rationale   string   `json:"rationale"`
}

// SkippedCandidate records a per-candidate failure that was recovered
// locally (synthesis error or gate rejection).
type SkippedCandidate struct {
	CandidateID string `json:"candidate_id"`
	Path        string `json:"path"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

// CommitRecord is the persisted result of one completed cycle. It is the
// only entity that outlives a cycle; the journal is append-only.
type CommitRecord struct {
	CycleID   string             `json:"cycle_id"`
	Timestamp time.Time          `json:"timestamp"`
	Outcome   Outcome            `json:"outcome"`
	CommitID  string             `json:"commit_id,omitempty"`
	Applied   []AppliedChange    `json:"applied"`
	Skipped   []SkippedCandidate `json:"skipped,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	DryRun    bool               `json:"dry_run,omitempty"`
}

// CycleState is the process-wide coordinator state. Exactly one instance
// exists per running process; it transitions only through the coordinator.
type CycleState struct {
	Status     CycleStatus   `json:"status"`
	CycleID    string        `json:"cycle_id,omitempty"`
	LastRecord *CommitRecord `json:"last_record,omitempty"`
}

// Overrides are the per-trigger configuration overrides recognized by the
// trigger surface. Nil pointers mean "use configured default".
type Overrides struct {
	MaxChangeRatio *float64 `json:"max_change_ratio,omitempty"`
	TimeoutSeconds *int     `json:"timeout_seconds,omitempty"`
	DryRun         bool     `json:"dry_run,omitempty"`
}
