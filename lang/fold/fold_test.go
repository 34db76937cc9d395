package fold_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/fold"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/irbuild"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/resolver"
	"github.com/mna/kenafgo/lang/source"
)

// buildAndFold parses, resolves, irbuild-lowers and folds text, returning the
// folded IR function and the diagnostic sink (which may carry warnings even
// on success, e.g. arithmetic on a non-number constant).
func buildAndFold(t *testing.T, text string) (*ir.Function, *diag.Sink) {
	t.Helper()
	buf := source.New("test.kf", []byte(text))
	errs := diag.NewSink("test.kf")
	top := parser.Parse(buf, errs)
	resolver.Resolve(buf, errs, top)
	require.False(t, errs.HasErrors())
	fn := irbuild.Build(top)
	fold.Run(buf, errs, fn)
	return fn, errs
}

func countOps(fn *ir.Function, code ir.OpCode) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == code {
				n++
			}
		}
	}
	return n
}

// TestArithmeticFoldsThroughNesting covers that "2 + 3 * 4" folds to a single
// CONST_NUMBER(14) in one pass, since irbuild's postorder emission always
// places the inner MUL before the outer ADD in the op stream.
func TestArithmeticFoldsThroughNesting(t *testing.T) {
	fn, errs := buildAndFold(t, "return 2 + 3 * 4")
	require.Empty(t, errs.List())
	require.Zero(t, countOps(fn, ir.ADD))
	require.Zero(t, countOps(fn, ir.MUL))

	found := false
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == ir.CONST_NUMBER && op.ConstNumber == 14 {
				found = true
			}
		}
	}
	require.True(t, found, "expected a folded CONST_NUMBER(14)")
}

// TestConcatFolds covers string concatenation folding to a single interned
// CONST_STRING.
func TestConcatFolds(t *testing.T) {
	fn, errs := buildAndFold(t, `return "a" ~ "b" ~ "c"`)
	require.Empty(t, errs.List())
	require.Zero(t, countOps(fn, ir.CONCAT))

	found := false
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == ir.CONST_STRING && op.ConstString == "abc" {
				found = true
			}
		}
	}
	require.True(t, found, "expected a folded CONST_STRING(abc)")
}

// TestArithmeticOnNonNumberConstantWarns covers the WARNING diagnostic fold
// reports rather than folding (the op is left in place for the emitter to
// handle at runtime).
func TestArithmeticOnNonNumberConstantWarns(t *testing.T) {
	fn, errs := buildAndFold(t, `return 1 + "x"`)
	require.NotEmpty(t, errs.List())
	require.Equal(t, diag.Warning, errs.List()[0].Kind)
	require.Contains(t, errs.List()[0].Message, "arithmetic on a non-number constant")
	require.False(t, errs.HasErrors())
	require.Equal(t, 1, countOps(fn, ir.ADD), "unfoldable op is left in place")
}

// TestConstantIfCollapsesDeadBranch covers that a JUMP_TEST on a constant
// condition folds to an unconditional JUMP, and the untaken branch's block
// is pruned (ops blanked to NOP, no successors) by the reachability sweep
// that runs after folding.
func TestConstantIfCollapsesDeadBranch(t *testing.T) {
	fn, errs := buildAndFold(t, `
		if false
			return 1
		else
			return 2
		end
	`)
	require.Empty(t, errs.List())
	require.Zero(t, countOps(fn, ir.JUMP_TEST))

	// exactly one RETURN survives: the other branch's block was pruned.
	require.Equal(t, 1, countOps(fn, ir.JUMP_RETURN))
}

// TestPhiCollapsesWhenBothBranchesAgree covers fold's phi-simplification: a
// postfix conditional expression ("1 if a else 1") whose two arms fold to the
// same constant collapses the join's PHI into that CONST_NUMBER directly.
func TestPhiCollapsesWhenBothBranchesAgree(t *testing.T) {
	fn, errs := buildAndFold(t, "return 1 if a else 1")
	require.Empty(t, errs.List())
	require.Zero(t, countOps(fn, ir.PHI))
}

// TestDeterministicFoldOutput covers that folding the same IR twice (from
// independently built functions) produces the same op sequence, per spec.md
// §8.1's determinism invariant.
func TestDeterministicFoldOutput(t *testing.T) {
	fn1, errs1 := buildAndFold(t, "return 2 + 3 * 4")
	fn2, errs2 := buildAndFold(t, "return 2 + 3 * 4")
	require.Empty(t, errs1.List())
	require.Empty(t, errs2.List())
	require.Equal(t, len(fn1.Blocks), len(fn2.Blocks))
	for bi := range fn1.Blocks {
		require.Equal(t, len(fn1.Blocks[bi].Ops), len(fn2.Blocks[bi].Ops))
		for oi := range fn1.Blocks[bi].Ops {
			require.Equal(t, fn1.Blocks[bi].Ops[oi].Code, fn2.Blocks[bi].Ops[oi].Code)
		}
	}
}
