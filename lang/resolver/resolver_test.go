package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/resolver"
	"github.com/mna/kenafgo/lang/source"
)

func resolve(t *testing.T, text string) (*ast.Function, *diag.Sink) {
	t.Helper()
	buf := source.New("test.kf", []byte(text))
	errs := diag.NewSink("test.kf")
	top := parser.Parse(buf, errs)
	resolver.Resolve(buf, errs, top)
	return top, errs
}

// TestLocalReadResolvesToLocalName covers the common case: a declared local
// read back resolves to LocalName, never staying a bare Name.
func TestLocalReadResolvesToLocalName(t *testing.T) {
	top, errs := resolve(t, "var x = 1\nreturn x")
	require.Empty(t, errs.List())
	assertNoBareNames(t, top)

	var found bool
	for i := range top.Nodes {
		if top.Nodes[i].Kind == ast.LocalName {
			found = true
		}
	}
	require.True(t, found)
}

// TestUndeclaredReadIsGlobalNotError covers that reading (not assigning) an
// unresolved identifier is an ordinary global reference, not a diagnostic.
func TestUndeclaredReadIsGlobalNotError(t *testing.T) {
	top, errs := resolve(t, "return undeclared_name")
	require.Empty(t, errs.List())

	var found bool
	for i := range top.Nodes {
		if top.Nodes[i].Kind == ast.GlobalName {
			require.Equal(t, "undeclared_name", top.Payloads[i].Str)
			found = true
		}
	}
	require.True(t, found)
}

// TestUndeclaredGlobalAssignmentIsError covers the one case a GlobalName IS
// an error: it is the target of an assignment.
func TestUndeclaredGlobalAssignmentIsError(t *testing.T) {
	_, errs := resolve(t, "y = 1")
	require.True(t, errs.HasErrors())
	require.Contains(t, errs.List()[0].Message, "cannot assign to undeclared identifier 'y'")
}

// TestOpAssignToUndeclaredGlobalIsError covers the OpAssign ("+=" etc.)
// target path, a separate AST shape from plain Assign.
func TestOpAssignToUndeclaredGlobalIsError(t *testing.T) {
	_, errs := resolve(t, "y += 1")
	require.True(t, errs.HasErrors())
	require.Contains(t, errs.List()[0].Message, "cannot assign to undeclared identifier 'y'")
}

// TestAssignToLocalIsNotError covers that the new assign-target check never
// flags an ordinary, already-declared local.
func TestAssignToLocalIsNotError(t *testing.T) {
	_, errs := resolve(t, "var x = 1\nx = 2")
	require.Empty(t, errs.List())
}

// TestBreakOutsideLoopMessage covers the exact required diagnostic prefix.
func TestBreakOutsideLoopMessage(t *testing.T) {
	_, errs := resolve(t, "break")
	require.True(t, errs.HasErrors())
	require.Contains(t, errs.List()[0].Message, "invalid 'break' outside of loop")
}

// TestBreakInsideLoopIsFine covers that break/continue are only rejected
// when no enclosing loop exists.
func TestBreakInsideLoopIsFine(t *testing.T) {
	_, errs := resolve(t, "while true\nbreak\nend")
	require.Empty(t, errs.List())
}

// TestCapturedLocalBecomesUpvalAndOutenv covers the closure-capture scenario:
// the outer local becomes an upvalue once a nested function reads it, and
// the nested function imports it as an outenv.
func TestCapturedLocalBecomesUpvalAndOutenv(t *testing.T) {
	top, errs := resolve(t, `
		var make_counter = def()
			var n = 0
			return def() n += 1; return n end
		end
	`)
	require.Empty(t, errs.List())

	var makeCounter *ast.Function
	for i := range top.Nodes {
		if top.Nodes[i].Leaf == ast.LeafFunction {
			makeCounter = top.Payloads[i].Func
		}
	}
	require.NotNil(t, makeCounter)
	require.Equal(t, 1, makeCounter.MaxUpstackSize)
	require.True(t, makeCounter.Locals[0].Captured)

	var inner *ast.Function
	for i := range makeCounter.Nodes {
		if makeCounter.Nodes[i].Leaf == ast.LeafFunction {
			inner = makeCounter.Payloads[i].Func
		}
	}
	require.NotNil(t, inner)
	require.Len(t, inner.OutEnvs, 1)
	require.Equal(t, 0, inner.OutEnvs[0].OuterIndex)
	require.False(t, inner.OutEnvs[0].OuterIsOutEnv)

	var sawOutenv bool
	for i := range inner.Nodes {
		if inner.Nodes[i].Kind == ast.OutenvName {
			sawOutenv = true
		}
	}
	require.True(t, sawOutenv)
}

func assertNoBareNames(t *testing.T, fn *ast.Function) {
	t.Helper()
	for i := range fn.Nodes {
		require.NotEqual(t, ast.Name, fn.Nodes[i].Kind, "node %d still unresolved", i)
	}
}
