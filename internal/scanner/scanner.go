// File: internal/scanner/scanner.go
// Description: Walks an immutable snapshot and emits a bounded, ordered set
// of improvement candidates using deterministic static checks. Detector
// evaluation fans out across files; ordering is a final sort, not an
// emission-order requirement.

package scanner

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
)

// Detector is a pure function of file content to zero-or-one finding.
// Implementations must never fail on malformed input; a file that cannot be
// interpreted yields no finding, not an error for the whole scan.
type Detector interface {
	ID() string
	Category() schemas.Category
	Priority() schemas.Priority
	// Detect returns a human-readable rationale and true when the file
	// exhibits the condition this detector looks for.
	Detect(path string, content []byte) (rationale string, ok bool)
}

// Scanner applies a fixed, ordered set of detectors per file.
type Scanner struct {
	logger    *zap.Logger
	detectors []Detector
}

// New creates a scanner over the given detectors. Registration order is part
// of the ordering contract: it is the final tie-break between candidates of
// equal priority on the same file.
func New(logger *zap.Logger, detectors ...Detector) *Scanner {
	return &Scanner{
		logger:    logger.Named("scanner"),
		detectors: detectors,
	}
}

// Default returns a scanner with the built-in detector set. When enabled is
// non-empty, only the named detector ids are registered, preserving the
// built-in registration order.
func Default(logger *zap.Logger, enabled []string) *Scanner {
	all := []Detector{
		&blockingSleepDetector{},
		&stringSQLDetector{},
		&bareExceptDetector{},
		&trailingWhitespaceDetector{},
	}
	if len(enabled) == 0 {
		return New(logger, all...)
	}
	want := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		want[id] = true
	}
	var selected []Detector
	for _, d := range all {
		if want[d.ID()] {
			selected = append(selected, d)
		}
	}
	return New(logger, selected...)
}

// Scan evaluates every detector against every file and returns the ordered
// candidate list: priority descending, path ascending, detector registration
// order. Re-invoking Scan on the same snapshot yields the same candidates in
// the same order.
func (s *Scanner) Scan(ctx context.Context, snap *schemas.Snapshot) ([]schemas.Candidate, error) {
	var (
		mu         sync.Mutex
		candidates []schemas.Candidate
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, path := range snap.Paths() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, ok := snap.Get(path)
			if !ok {
				return nil
			}
			found := s.scanFile(path, entry.Content)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.DetectorIndex < b.DetectorIndex
	})

	s.logger.Debug("Scan complete.",
		zap.Int("files", snap.Len()),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func (s *Scanner) scanFile(path string, content []byte) []schemas.Candidate {
	var found []schemas.Candidate
	for idx, det := range s.detectors {
		rationale, ok := det.Detect(path, content)
		if !ok {
			continue
		}
		found = append(found, schemas.Candidate{
			// Deterministic id: one finding per (detector, file) pair, so
			// the pair itself is unique within a cycle.
			ID:            det.ID() + "@" + path,
			Path:          path,
			Category:      det.Category(),
			Priority:      det.Priority(),
			Rationale:     rationale,
			Detector:      det.ID(),
			DetectorIndex: idx,
		})
	}
	return found
}
