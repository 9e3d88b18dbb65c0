// File: internal/scanner/detectors.go
package scanner

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
)

// Detector ids. The synthesizer binds its transforms to these.
const (
	DetectorBlockingSleep      = "blocking-sleep"
	DetectorStringSQL          = "string-built-sql"
	DetectorBareExcept         = "bare-except"
	DetectorTrailingWhitespace = "trailing-whitespace"
)

// SQLMarker is the annotation the synthesizer inserts above a flagged query.
// Its presence suppresses the string-built-sql detector on the next cycle.
const SQLMarker = "SECURITY: parameterize this query"

// SQLConcatRe matches SQL built by string concatenation or f-string
// interpolation. The synthesizer uses the same pattern to locate the line
// its marker belongs above.
var SQLConcatRe = regexp.MustCompile(`(?i)"(?:select|insert|update|delete)\b[^"]*"\s*\+|f"(?:select|insert|update|delete)\b[^"]*\{`)

var (
	// Matches literal-duration sleeps: Python "time.sleep(5)" and Go
	// "time.Sleep(5 * time.Second)" style lines.
	sleepRe = regexp.MustCompile(`^\s*time\.[Ss]leep\(\s*([0-9]+(?:\.[0-9]+)?)`)

	bareExceptRe = regexp.MustCompile(`^\s*except\s*:`)

	trailingWSRe = regexp.MustCompile(`[ \t]+(\r?)$`)
)

// CommentToken returns the single-line comment leader for a file.
func CommentToken(path string) string {
	switch filepath.Ext(path) {
	case ".go", ".js", ".ts", ".java", ".c", ".h", ".cpp":
		return "//"
	default:
		return "#"
	}
}

// SplitLines splits content preserving the trailing-newline shape: a file
// ending in "\n" yields a final empty element, so Join inverts it exactly.
func SplitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0
}

// -- blocking-sleep (PERFORMANCE, HIGH) --

type blockingSleepDetector struct{}

func (d *blockingSleepDetector) ID() string                 { return DetectorBlockingSleep }
func (d *blockingSleepDetector) Category() schemas.Category { return schemas.CategoryPerformance }
func (d *blockingSleepDetector) Priority() schemas.Priority { return schemas.PriorityHigh }

func (d *blockingSleepDetector) Detect(path string, content []byte) (string, bool) {
	if isBinary(content) {
		return "", false
	}
	for i, line := range SplitLines(content) {
		if m := sleepRe.FindStringSubmatch(line); m != nil {
			return fmt.Sprintf("blocking sleep of %ss on line %d of %s", m[1], i+1, path), true
		}
	}
	return "", false
}

// -- string-built-sql (SECURITY, HIGH) --

type stringSQLDetector struct{}

func (d *stringSQLDetector) ID() string                 { return DetectorStringSQL }
func (d *stringSQLDetector) Category() schemas.Category { return schemas.CategorySecurity }
func (d *stringSQLDetector) Priority() schemas.Priority { return schemas.PriorityHigh }

func (d *stringSQLDetector) Detect(path string, content []byte) (string, bool) {
	if isBinary(content) {
		return "", false
	}
	lines := SplitLines(content)
	for i, line := range lines {
		if !SQLConcatRe.MatchString(line) {
			continue
		}
		// Already annotated on a previous cycle.
		if i > 0 && strings.Contains(lines[i-1], SQLMarker) {
			continue
		}
		return fmt.Sprintf("SQL statement built from strings on line %d of %s", i+1, path), true
	}
	return "", false
}

// -- bare-except (RELIABILITY, MEDIUM) --

type bareExceptDetector struct{}

func (d *bareExceptDetector) ID() string                 { return DetectorBareExcept }
func (d *bareExceptDetector) Category() schemas.Category { return schemas.CategoryReliability }
func (d *bareExceptDetector) Priority() schemas.Priority { return schemas.PriorityMedium }

func (d *bareExceptDetector) Detect(path string, content []byte) (string, bool) {
	if filepath.Ext(path) != ".py" || isBinary(content) {
		return "", false
	}
	for i, line := range SplitLines(content) {
		if bareExceptRe.MatchString(line) {
			return fmt.Sprintf("bare except swallows all signals on line %d of %s", i+1, path), true
		}
	}
	return "", false
}

// -- trailing-whitespace (STYLE, LOW) --

type trailingWhitespaceDetector struct{}

func (d *trailingWhitespaceDetector) ID() string                 { return DetectorTrailingWhitespace }
func (d *trailingWhitespaceDetector) Category() schemas.Category { return schemas.CategoryStyle }
func (d *trailingWhitespaceDetector) Priority() schemas.Priority { return schemas.PriorityLow }

func (d *trailingWhitespaceDetector) Detect(path string, content []byte) (string, bool) {
	if isBinary(content) {
		return "", false
	}
	count := 0
	for _, line := range SplitLines(content) {
		if trailingWSRe.MatchString(line) {
			count++
		}
	}
	if count == 0 {
		return "", false
	}
	return fmt.Sprintf("%d line(s) with trailing whitespace in %s", count, path), true
}
