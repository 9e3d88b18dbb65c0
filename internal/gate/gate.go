// File: internal/gate/gate.go
// Description: Validates a synthesized patch against the cycle's safety
// invariants before it may touch the working copy. The gate is a pure
// decision function with no side effects; a rejection excludes one patch,
// never the whole cycle.

package gate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
)

// languages maps file extensions to tree-sitter grammars for the syntactic
// well-formedness check. Files with other extensions skip the check.
var languages = map[string]*sitter.Language{
	".go": golang.GetLanguage(),
	".py": python.GetLanguage(),
	".js": javascript.GetLanguage(),
}

// Gate enforces the patch safety invariants.
type Gate struct {
	logger         *zap.Logger
	maxChangeRatio float64
}

// New creates a gate with the configured maximum change ratio: the fraction
// of a file's lines a single patch may change. A patch exactly at the bound
// is accepted.
func New(logger *zap.Logger, maxChangeRatio float64) *Gate {
	return &Gate{
		logger:         logger.Named("gate"),
		maxChangeRatio: maxChangeRatio,
	}
}

// Validate checks one patch against the current hash view.
func (g *Gate) Validate(ctx context.Context, patch schemas.Patch, view schemas.HashView) schemas.GateVerdict {
	reject := func(reason string) schemas.GateVerdict {
		g.logger.Info("Patch rejected.",
			zap.String("candidate", patch.CandidateID),
			zap.String("reason", reason),
		)
		return schemas.GateVerdict{CandidateID: patch.CandidateID, Accepted: false, Reason: reason}
	}

	if !pathInsideRoot(patch.Path) {
		return reject(fmt.Sprintf("path %q escapes the repository root", patch.Path))
	}

	currentHash, ok := view.Hash(patch.Path)
	if !ok {
		return reject(fmt.Sprintf("target file %s not present", patch.Path))
	}
	if currentHash != patch.BaseHash {
		return reject(fmt.Sprintf("stale patch: %s changed since synthesis", patch.Path))
	}

	if len(patch.NewContent) == 0 {
		return reject(fmt.Sprintf("patch would reduce %s to zero bytes", patch.Path))
	}

	if reason, ok := g.checkChangeRatio(patch); !ok {
		return reject(reason)
	}

	if reason, ok := checkSyntax(ctx, patch.Path, patch.NewContent); !ok {
		return reject(reason)
	}

	return schemas.GateVerdict{CandidateID: patch.CandidateID, Accepted: true}
}

func (g *Gate) checkChangeRatio(patch schemas.Patch) (string, bool) {
	if patch.OriginalLines <= 0 {
		return "patch reports no original file size", false
	}
	ratio := float64(patch.LinesChanged) / float64(patch.OriginalLines)
	if ratio > g.maxChangeRatio {
		return fmt.Sprintf("change ratio %.3f exceeds maximum %.3f (%d of %d lines)",
			ratio, g.maxChangeRatio, patch.LinesChanged, patch.OriginalLines), false
	}
	return "", true
}

// pathInsideRoot rejects absolute paths and any path that climbs out of the
// repository root.
func pathInsideRoot(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// checkSyntax parses the patched content with the grammar matching the file
// extension and rejects trees containing parse errors.
func checkSyntax(ctx context.Context, path string, content []byte) (string, bool) {
	lang, ok := languages[filepath.Ext(path)]
	if !ok {
		return "", true
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Sprintf("syntax check failed for %s: %v", path, err), false
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return fmt.Sprintf("patched %s is not syntactically well-formed", path), false
	}
	return "", true
}
