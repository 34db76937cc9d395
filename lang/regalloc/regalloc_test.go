package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/regalloc"
)

func op(block, index int32) ir.Operand {
	return ir.Operand{Kind: ir.OperandOp, Block: block, Index: index}
}

// TestSelfReservesRegisterZero covers that a function with an implicit self
// parameter starts local allocation at register 0.
func TestSelfReservesRegisterZero(t *testing.T) {
	fn := &ir.Function{HasImplicitSelf: true, NumLocals: 2, Blocks: []ir.Block{{Reachable: true}}}
	res := regalloc.Alloc(fn)
	require.Equal(t, []int32{0, 1}, res.LocalReg)
}

// TestNoSelfStillReservesRegisterZero covers that register 0 is skipped for
// locals even when the function has no self, per the package's documented
// "register 0 always reserved" rule.
func TestNoSelfStillReservesRegisterZero(t *testing.T) {
	fn := &ir.Function{HasImplicitSelf: false, NumLocals: 2, Blocks: []ir.Block{{Reachable: true}}}
	res := regalloc.Alloc(fn)
	require.Equal(t, []int32{1, 2}, res.LocalReg)
}

// TestLowestFreeRegisterReused covers the allocator's core reuse rule: once a
// value's last use has passed, its register is freed and the LOWEST freed
// register is handed to the next value needing one, rather than always
// growing the stack. Build:
//
//	0: CONST 1        (A, last used by op 2)
//	1: CONST 2        (B, last used by op 2)
//	2: ADD(0, 1)      (C, last used by op 4)
//	3: CONST 3        (D, last used by op 4)
//	4: ADD(2, 3)      (E, last used by op 5)
//	5: JUMP_RETURN(4)
//
// A and B free at op 3, so D (needing a register at op 3) reuses the lower
// of the two (A's), leaving B's register free for E at op 4.
func TestLowestFreeRegisterReused(t *testing.T) {
	fn := &ir.Function{
		NumLocals: 0,
		Blocks: []ir.Block{{
			Reachable: true,
			Ops: []ir.Op{
				{Code: ir.CONST_NUMBER, ConstNumber: 1},                        // 0: A
				{Code: ir.CONST_NUMBER, ConstNumber: 2},                        // 1: B
				{Code: ir.ADD, Args: []ir.Operand{op(0, 0), op(0, 1)}},         // 2: C
				{Code: ir.CONST_NUMBER, ConstNumber: 3},                        // 3: D
				{Code: ir.ADD, Args: []ir.Operand{op(0, 2), op(0, 3)}},         // 4: E
				{Code: ir.JUMP_RETURN, Args: []ir.Operand{op(0, 4)}},           // 5
			},
		}},
	}

	res := regalloc.Alloc(fn)
	regA, regB, regC, regD, regE := res.OpReg[0][0], res.OpReg[0][1], res.OpReg[0][2], res.OpReg[0][3], res.OpReg[0][4]

	require.NotEqual(t, int32(-1), regA)
	require.NotEqual(t, int32(-1), regB)
	require.NotEqual(t, int32(-1), regC)
	require.NotEqual(t, int32(-1), regD)
	require.NotEqual(t, int32(-1), regE)

	// C and D are live at the same time (both feed op 4): distinct registers.
	require.NotEqual(t, regC, regD)

	// D reuses the lower of A/B's two now-dead registers, not a fresh one.
	require.Equal(t, regD, int32(1))
	require.Equal(t, regA, int32(1))
	require.Less(t, regD, regC)

	// E reuses B's now-freed register rather than growing the stack further.
	require.Equal(t, regE, regB)

	require.Equal(t, int32(-1), res.OpReg[0][5], "JUMP_RETURN has no result")
}

// TestNoResultOpsNeverAllocated covers that pure side-effecting ops (stores,
// jumps) never consume a register slot even when marked live.
func TestNoResultOpsNeverAllocated(t *testing.T) {
	fn := &ir.Function{
		NumLocals: 1,
		Blocks: []ir.Block{{
			Reachable: true,
			Ops: []ir.Op{
				{Code: ir.CONST_NUMBER, ConstNumber: 1},                     // 0
				{Code: ir.LOCAL_SET, Slot: 0, Args: []ir.Operand{op(0, 0)}}, // 1
			},
		}},
	}
	res := regalloc.Alloc(fn)
	require.NotEqual(t, int32(-1), res.OpReg[0][0])
	require.Equal(t, int32(-1), res.OpReg[0][1])
}

// TestStackSizeTracksHighWaterMark covers that StackSize reports the peak
// register count actually reached, not just the locals footprint.
func TestStackSizeTracksHighWaterMark(t *testing.T) {
	fn := &ir.Function{
		NumLocals: 0,
		Blocks: []ir.Block{{
			Reachable: true,
			Ops: []ir.Op{
				{Code: ir.CONST_NUMBER, ConstNumber: 1},                // 0
				{Code: ir.CONST_NUMBER, ConstNumber: 2},                // 1
				{Code: ir.ADD, Args: []ir.Operand{op(0, 0), op(0, 1)}}, // 2
				{Code: ir.JUMP_RETURN, Args: []ir.Operand{op(0, 2)}},   // 3
			},
		}},
	}
	res := regalloc.Alloc(fn)
	require.Equal(t, int32(4), res.StackSize)
}
