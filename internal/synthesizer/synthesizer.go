// File: internal/synthesizer/synthesizer.go
// Description: Turns one candidate into a concrete, minimal textual patch
// with a human-readable rationale. Synthesis is a pure, template-driven text
// transformation bound to the candidate's detector: same candidate plus same
// snapshot always produces a byte-identical patch.

package synthesizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/scanner"
)

var (
	// ErrFileMissing means the candidate's target file is absent from the
	// snapshot.
	ErrFileMissing = errors.New("synthesis target file missing from snapshot")
	// ErrNotApplicable means the detector's pattern is no longer present in
	// the current content.
	ErrNotApplicable = errors.New("transformation not applicable to current content")
)

// transform rewrites the file's lines and reports whether anything changed.
type transform func(path string, lines []string) ([]string, bool)

// Synthesizer maps detector ids to their template transforms.
type Synthesizer struct {
	logger     *zap.Logger
	transforms map[string]transform
}

// New creates a synthesizer covering the built-in detector set.
func New(logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		logger: logger.Named("synthesizer"),
		transforms: map[string]transform{
			scanner.DetectorBlockingSleep:      removeBlockingSleep,
			scanner.DetectorStringSQL:          annotateStringSQL,
			scanner.DetectorBareExcept:         qualifyBareExcept,
			scanner.DetectorTrailingWhitespace: stripTrailingWhitespace,
		},
	}
}

// Synthesize produces the patch for one candidate. It never synthesizes a
// patch that deletes the file or reduces it to zero bytes.
func (s *Synthesizer) Synthesize(candidate schemas.Candidate, snap *schemas.Snapshot) (schemas.Patch, error) {
	entry, ok := snap.Get(candidate.Path)
	if !ok {
		return schemas.Patch{}, fmt.Errorf("%w: %s", ErrFileMissing, candidate.Path)
	}

	tf, ok := s.transforms[candidate.Detector]
	if !ok {
		return schemas.Patch{}, fmt.Errorf("%w: no transform for detector %q", ErrNotApplicable, candidate.Detector)
	}

	oldLines := scanner.SplitLines(entry.Content)
	newLines, changed := tf(candidate.Path, oldLines)
	if !changed {
		return schemas.Patch{}, fmt.Errorf("%w: %s on %s", ErrNotApplicable, candidate.Detector, candidate.Path)
	}

	newContent := strings.Join(newLines, "\n")
	if len(newContent) == 0 {
		return schemas.Patch{}, fmt.Errorf("%w: transform would empty %s", ErrNotApplicable, candidate.Path)
	}

	patch := schemas.Patch{
		CandidateID:   candidate.ID,
		Path:          candidate.Path,
		BaseHash:      entry.Hash,
		NewContent:    []byte(newContent),
		LinesChanged:  changedLines(string(entry.Content), newContent),
		OriginalLines: len(oldLines),
	}
	s.logger.Debug("Patch synthesized.",
		zap.String("candidate", candidate.ID),
		zap.Int("lines_changed", patch.LinesChanged),
	)
	return patch, nil
}

// -- Transforms --

var (
	sleepLineRe  = regexp.MustCompile(`^(\s*)time\.[Ss]leep\(\s*([0-9]+(?:\.[0-9]+)?)[^)]*\)`)
	bareExceptRe = regexp.MustCompile(`^(\s*)except(\s*):`)
	trailingWSRe = regexp.MustCompile(`[ \t]+(\r?)$`)
)

// removeBlockingSleep replaces the first literal-duration sleep line with a
// same-indent comment noting the removed delay.
func removeBlockingSleep(path string, lines []string) ([]string, bool) {
	for i, line := range lines {
		m := sleepLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out := make([]string, len(lines))
		copy(out, lines)
		out[i] = fmt.Sprintf("%s%s removed blocking sleep (%ss)", m[1], scanner.CommentToken(path), m[2])
		return out, true
	}
	return nil, false
}

// annotateStringSQL inserts a marker comment above the first string-built
// SQL statement. The marker suppresses re-detection, keeping the loop
// idempotent.
func annotateStringSQL(path string, lines []string) ([]string, bool) {
	for i, line := range lines {
		if !scanner.SQLConcatRe.MatchString(line) {
			continue
		}
		if i > 0 && strings.Contains(lines[i-1], scanner.SQLMarker) {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		marker := fmt.Sprintf("%s%s %s", indent, scanner.CommentToken(path), scanner.SQLMarker)
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i]...)
		out = append(out, marker)
		out = append(out, lines[i:]...)
		return out, true
	}
	return nil, false
}

// qualifyBareExcept rewrites the first bare "except:" to "except Exception:"
// so system-exiting signals propagate.
func qualifyBareExcept(_ string, lines []string) ([]string, bool) {
	for i, line := range lines {
		if !bareExceptRe.MatchString(line) {
			continue
		}
		out := make([]string, len(lines))
		copy(out, lines)
		out[i] = bareExceptRe.ReplaceAllString(line, "${1}except Exception:")
		return out, true
	}
	return nil, false
}

// stripTrailingWhitespace removes trailing spaces and tabs from every line.
func stripTrailingWhitespace(_ string, lines []string) ([]string, bool) {
	out := make([]string, len(lines))
	changed := false
	for i, line := range lines {
		stripped := trailingWSRe.ReplaceAllString(line, "${1}")
		out[i] = stripped
		if stripped != line {
			changed = true
		}
	}
	if !changed {
		return nil, false
	}
	return out, true
}
