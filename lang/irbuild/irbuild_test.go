package irbuild_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/irbuild"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/resolver"
	"github.com/mna/kenafgo/lang/source"
)

func build(t *testing.T, text string) *ir.Function {
	t.Helper()
	buf := source.New("test.kf", []byte(text))
	errs := diag.NewSink("test.kf")
	top := parser.Parse(buf, errs)
	resolver.Resolve(buf, errs, top)
	require.Empty(t, errs.List())
	return irbuild.Build(top)
}

func findOp(fn *ir.Function, code ir.OpCode) (blockIdx, opIdx int, ok bool) {
	for bi := range fn.Blocks {
		for oi, op := range fn.Blocks[bi].Ops {
			if op.Code == code {
				return bi, oi, true
			}
		}
	}
	return 0, 0, false
}

// TestShortCircuitAndShape covers spec §8.3 scenario 3: "var x = a and b"
// lowers to the B_AND/B_DEF/B_PHI quartet, with B_AND terminating the entry
// block and jumping forward to just before the B_PHI join.
func TestShortCircuitAndShape(t *testing.T) {
	fn := build(t, "var a = 1\nvar b = 2\nvar x = a and b")

	defBlock, _, ok := findOp(fn, ir.B_DEF)
	require.True(t, ok, "B_DEF not found")

	andBlock, andIdx, ok := findOp(fn, ir.B_AND)
	require.True(t, ok, "B_AND not found")
	require.Equal(t, defBlock, andBlock, "B_DEF and B_AND share the evaluating block")

	// B_AND is the block's terminator.
	require.Equal(t, len(fn.Blocks[andBlock].Ops)-1, andIdx)
	andOp := fn.Blocks[andBlock].Ops[andIdx]
	require.True(t, andOp.Pinned)
	require.Len(t, fn.Blocks[andBlock].Succs, 2)
	rBlock, joinBlock := fn.Blocks[andBlock].Succs[0], fn.Blocks[andBlock].Succs[1]

	phiBlock, phiIdx, ok := findOp(fn, ir.B_PHI)
	require.True(t, ok, "B_PHI not found")
	require.EqualValues(t, joinBlock, phiBlock)

	phiOp := fn.Blocks[phiBlock].Ops[phiIdx]
	require.Len(t, phiOp.Args, 2)
	require.Equal(t, ir.OperandOp, phiOp.Args[0].Kind)
	require.EqualValues(t, defBlock, phiOp.Args[0].Block)

	// the right-hand operand is evaluated in rBlock, which jumps to the join.
	require.NotZero(t, len(fn.Blocks[rBlock].Ops))
	last := fn.Blocks[rBlock].Ops[len(fn.Blocks[rBlock].Ops)-1]
	require.Equal(t, ir.JUMP, last.Code)
}

// TestShortCircuitOrUsesCut covers that "a or b" lowers to B_CUT (not B_AND)
// with its two successor blocks swapped relative to "and".
func TestShortCircuitOrUsesCut(t *testing.T) {
	fn := build(t, "var a = 1\nvar b = 2\nvar x = a or b")

	_, _, ok := findOp(fn, ir.B_AND)
	require.False(t, ok, "B_AND should not appear for 'or'")

	cutBlock, _, ok := findOp(fn, ir.B_CUT)
	require.True(t, ok, "B_CUT not found")
	require.Len(t, fn.Blocks[cutBlock].Succs, 2)
}

// TestClosureCaptureAndUpstack covers spec §8.3 scenario 4: make_counter
// declares one upstack slot for n, the inner function's single outenv
// targets outer_index 0/outer_is_outenv false, and it reads/writes n via
// OUTENV_GET/OUTENV_SET. make_counter's own NEW_UPSTACK never closes the
// cell before returning: the returned closure must keep using the same cell
// n lives in, so this implementation only closes upstack cells between loop
// iterations (see TestLoopClosesUpstackEachIteration), not at function exit.
func TestClosureCaptureAndUpstack(t *testing.T) {
	buf := source.New("test.kf", []byte(`
		var make_counter = def()
			var n = 0
			return def() n += 1; return n end
		end
	`))
	errs := diag.NewSink("test.kf")
	top := parser.Parse(buf, errs)
	resolver.Resolve(buf, errs, top)
	require.Empty(t, errs.List())

	var makeCounterAST *ast.Function
	for i := range top.Nodes {
		if top.Nodes[i].Leaf == ast.LeafFunction {
			makeCounterAST = top.Payloads[i].Func
		}
	}
	require.NotNil(t, makeCounterAST)
	require.Equal(t, 1, makeCounterAST.MaxUpstackSize)

	var innerAST *ast.Function
	for i := range makeCounterAST.Nodes {
		if makeCounterAST.Nodes[i].Leaf == ast.LeafFunction {
			innerAST = makeCounterAST.Payloads[i].Func
		}
	}
	require.NotNil(t, innerAST)
	require.Len(t, innerAST.OutEnvs, 1)
	require.Equal(t, 0, innerAST.OutEnvs[0].OuterIndex)
	require.False(t, innerAST.OutEnvs[0].OuterIsOutEnv)

	makeCounterIR := irbuild.Build(makeCounterAST)
	require.Equal(t, 1, makeCounterIR.MaxUpstackSize)

	_, _, ok := findOp(makeCounterIR, ir.NEW_UPSTACK)
	require.True(t, ok, "NEW_UPSTACK not found")

	innerIR := irbuild.Build(innerAST)
	require.Equal(t, 1, innerIR.NumOutEnvs)

	_, _, ok = findOp(innerIR, ir.OUTENV_GET)
	require.True(t, ok, "OUTENV_GET not found")
	_, _, ok = findOp(innerIR, ir.OUTENV_SET)
	require.True(t, ok, "OUTENV_SET not found")
}

// TestLoopClosesUpstackEachIteration covers that a captured loop-body local
// gets a fresh cell per iteration: CLOSE_UPSTACK appears at the end of the
// loop body, right before the body's closing jump to the loop's continue
// block (which steps the counter and jumps back to the header).
func TestLoopClosesUpstackEachIteration(t *testing.T) {
	fn := build(t, `
		var fns = []
		for i = 0 : 3
			var f = def() return i end
			fns[i] = f
		end
	`)
	require.Equal(t, 1, fn.MaxUpstackSize)

	closeBlock, closeIdx, ok := findOp(fn, ir.CLOSE_UPSTACK)
	require.True(t, ok, "CLOSE_UPSTACK not found")

	// CLOSE_UPSTACK is immediately followed by the body's closing jump (to
	// the continue block), never by further value-producing ops in the same
	// block.
	ops := fn.Blocks[closeBlock].Ops
	require.Less(t, closeIdx, len(ops))
	for _, op := range ops[closeIdx+1:] {
		require.Equal(t, ir.JUMP, op.Code)
	}
}
