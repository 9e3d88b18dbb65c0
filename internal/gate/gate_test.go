package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
	"github.com/xkilldash9x/gardener-cli/internal/gate"
	"github.com/xkilldash9x/gardener-cli/internal/snapshot"
)

// mapView is a HashView over a fixed path -> hash map.
type mapView map[string]string

func (v mapView) Hash(path string) (string, bool) {
	h, ok := v[path]
	return h, ok
}

func validPatch(path, content string) (schemas.Patch, mapView) {
	base := []byte("original content\nsecond line\nthird line\nfourth line")
	patch := schemas.Patch{
		CandidateID:   "test@" + path,
		Path:          path,
		BaseHash:      snapshot.HashBytes(base),
		NewContent:    []byte(content),
		LinesChanged:  2,
		OriginalLines: 4,
	}
	return patch, mapView{path: patch.BaseHash}
}

func TestValidate_AcceptsWellFormedPatch(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)
	patch, view := validPatch("a.py", "print('hello')\n")

	verdict := g.Validate(context.Background(), patch, view)
	assert.True(t, verdict.Accepted)
	assert.Empty(t, verdict.Reason)
	assert.Equal(t, patch.CandidateID, verdict.CandidateID)
}

func TestValidate_ChangeRatioBoundary(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)

	t.Run("exactly at the bound is accepted", func(t *testing.T) {
		patch, view := validPatch("a.py", "print('ok')\n")
		patch.LinesChanged = 2
		patch.OriginalLines = 4

		verdict := g.Validate(context.Background(), patch, view)
		assert.True(t, verdict.Accepted)
	})

	t.Run("one line over the bound is rejected", func(t *testing.T) {
		patch, view := validPatch("a.py", "print('ok')\n")
		patch.LinesChanged = 3
		patch.OriginalLines = 4

		verdict := g.Validate(context.Background(), patch, view)
		require.False(t, verdict.Accepted)
		assert.Contains(t, verdict.Reason, "change ratio")
	})

	t.Run("zero original lines is rejected", func(t *testing.T) {
		patch, view := validPatch("a.py", "print('ok')\n")
		patch.OriginalLines = 0

		verdict := g.Validate(context.Background(), patch, view)
		assert.False(t, verdict.Accepted)
	})
}

func TestValidate_StalePatchRejected(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)
	patch, _ := validPatch("a.py", "print('ok')\n")
	// The file moved on since synthesis.
	view := mapView{"a.py": snapshot.HashBytes([]byte("different content now"))}

	verdict := g.Validate(context.Background(), patch, view)
	require.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reason, "stale")
}

func TestValidate_MissingTargetRejected(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)
	patch, _ := validPatch("a.py", "print('ok')\n")

	verdict := g.Validate(context.Background(), patch, mapView{})
	require.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reason, "not present")
}

func TestValidate_PathEscapeRejected(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)

	for _, path := range []string{
		"../outside.py",
		"../../etc/passwd",
		"a/../../outside.py",
		"/abs/path.py",
		"",
	} {
		patch, view := validPatch(path, "print('ok')\n")
		verdict := g.Validate(context.Background(), patch, view)
		assert.False(t, verdict.Accepted, "path %q must be rejected", path)
	}
}

func TestValidate_DotDotInsideRootAccepted(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)
	// Cleans to "b.py", which stays inside the root.
	patch, view := validPatch("a/../b.py", "print('ok')\n")

	verdict := g.Validate(context.Background(), patch, view)
	assert.True(t, verdict.Accepted)
}

func TestValidate_EmptyContentRejected(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 0.5)
	patch, view := validPatch("a.py", "x = 1\n")
	patch.NewContent = nil

	verdict := g.Validate(context.Background(), patch, view)
	require.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reason, "zero bytes")
}

func TestValidate_SyntaxCheck(t *testing.T) {
	g := gate.New(zaptest.NewLogger(t), 1.0)

	tests := []struct {
		name    string
		path    string
		content string
		accept  bool
	}{
		{"valid python", "a.py", "def f():\n    return 1\n", true},
		{"broken python", "a.py", "def f(:\n    return\n", false},
		{"valid go", "m.go", "package m\n\nfunc F() int { return 1 }\n", true},
		{"broken go", "m.go", "package m\n\nfunc F( {\n", false},
		{"valid javascript", "s.js", "function f() { return 1; }\n", true},
		{"broken javascript", "s.js", "function f( { return; \n", false},
		{"unknown extension skips the check", "notes.txt", "anything ((( goes\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, view := validPatch(tt.path, tt.content)
			verdict := g.Validate(context.Background(), patch, view)
			assert.Equal(t, tt.accept, verdict.Accepted, "reason: %s", verdict.Reason)
		})
	}
}
