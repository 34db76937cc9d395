package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/source"
)

func parse(t *testing.T, text string) (*ast.Function, *diag.Sink) {
	t.Helper()
	buf := source.New("test.kf", []byte(text))
	errs := diag.NewSink("test.kf")
	top := parser.Parse(buf, errs)
	require.NotNil(t, top)
	return top, errs
}

// TestTopLevelWrapsImplicitVarargParam covers the synthetic "args" parameter
// every top-level function carries.
func TestTopLevelWrapsImplicitVarargParam(t *testing.T) {
	top, errs := parse(t, "return 1")
	require.Empty(t, errs.List())
	require.Len(t, top.Locals, 1)
	require.Equal(t, "args", top.Locals[0].Name)
	require.True(t, top.Locals[0].IsVararg)
	require.True(t, top.Locals[0].IsParameter)
	require.NotZero(t, top.Flags&ast.FlagVararg)
}

// TestPostorderInvariant covers spec.md §8.1's postorder invariant: every
// node's Child index, and every descendant reached through the Children
// chain, has a strictly smaller index than the node itself.
func TestPostorderInvariant(t *testing.T) {
	top, errs := parse(t, `
		var x = 1 + 2 * 3
		if x > 0
			x = x - 1
		end
		return x
	`)
	require.Empty(t, errs.List())

	var check func(idx int32)
	check = func(idx int32) {
		for _, c := range ast.Children(top, idx) {
			require.Less(t, c, idx)
			check(c)
		}
	}
	check(top.Root())
}

// TestBinaryPrecedence covers "1 + 2 * 3" parsing as Binary(+, 1,
// Binary(*, 2, 3)) rather than left-to-right.
func TestBinaryPrecedence(t *testing.T) {
	top, errs := parse(t, "return 1 + 2 * 3")
	require.Empty(t, errs.List())

	root := top.Root() // Block
	children := ast.Children(top, root)
	require.Len(t, children, 1)
	ret := children[0]
	require.Equal(t, ast.Return, top.Nodes[ret].Kind)

	retChildren := ast.Children(top, ret)
	require.Len(t, retChildren, 1)
	add := retChildren[0]
	require.Equal(t, ast.Binary, top.Nodes[add].Kind)

	addChildren := ast.Children(top, add)
	require.Len(t, addChildren, 2)
	require.Equal(t, ast.Number, top.Nodes[addChildren[0]].Kind)
	require.Equal(t, float64(1), top.Payloads[addChildren[0]].Num)

	mul := addChildren[1]
	require.Equal(t, ast.Binary, top.Nodes[mul].Kind)
	mulChildren := ast.Children(top, mul)
	require.Equal(t, float64(2), top.Payloads[mulChildren[0]].Num)
	require.Equal(t, float64(3), top.Payloads[mulChildren[1]].Num)
}

// TestSyntaxErrorRecovery covers the parser's recovery: a malformed
// statement is reported but parsing continues to the next recovery point.
func TestSyntaxErrorRecovery(t *testing.T) {
	_, errs := parse(t, "var = \nreturn 1")
	require.True(t, errs.HasErrors())
}

// TestLambdaCreatesNestedFunction covers a lambda body being parsed into its
// own ast.Function, reachable through a FunctionNode leaf.
func TestLambdaCreatesNestedFunction(t *testing.T) {
	top, errs := parse(t, "var f = def() return 1 end")
	require.Empty(t, errs.List())

	var found *ast.Function
	for i := range top.Nodes {
		if top.Nodes[i].Leaf == ast.LeafFunction {
			found = top.Payloads[i].Func
		}
	}
	require.NotNil(t, found)
	require.Same(t, top, found.Parent)
}
