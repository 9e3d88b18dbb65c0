// File: internal/synthesizer/diff.go
package synthesizer

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// changedLines reports how many lines a patch touches: inserted, deleted and
// replaced lines each count once, so a one-line replacement counts as one
// changed line. The safety gate divides this by the original line count for
// its change-ratio bound, so the metric must be deterministic.
func changedLines(oldContent, newContent string) int {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	count := 0
	for i := 0; i < len(diffs); i++ {
		switch diffs[i].Type {
		case diffmatchpatch.DiffDelete:
			deleted := lineCount(diffs[i].Text)
			// An adjacent delete+insert pair is a replacement of
			// max(deleted, inserted) lines, not a delete plus an insert.
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted := lineCount(diffs[i+1].Text)
				if inserted > deleted {
					count += inserted
				} else {
					count += deleted
				}
				i++
			} else {
				count += deleted
			}
		case diffmatchpatch.DiffInsert:
			count += lineCount(diffs[i].Text)
		}
	}
	return count
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
