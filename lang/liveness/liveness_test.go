package liveness_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/liveness"
)

func op(block, index int32) ir.Operand {
	return ir.Operand{Kind: ir.OperandOp, Block: block, Index: index}
}

// TestDeadOpNotLive covers that a computed value nothing ever reads is marked
// not live, while the value actually consumed by the terminator is.
func TestDeadOpNotLive(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{
		{Reachable: true, Ops: []ir.Op{
			{Code: ir.CONST_NUMBER, ConstNumber: 1}, // 0: dead, unused
			{Code: ir.CONST_NUMBER, ConstNumber: 2}, // 1: returned
			{Code: ir.JUMP_RETURN, Args: []ir.Operand{op(0, 1)}}, // 2
		}},
	}}

	res := liveness.Run(fn)
	require.False(t, res.Live[0][0])
	require.True(t, res.Live[0][1])
	require.True(t, res.Live[0][2], "JUMP_RETURN is side-effecting regardless of use")
	require.EqualValues(t, 2, res.LastUse[0][1])
	require.EqualValues(t, -1, res.LastUse[0][0])
}

// TestCrossBlockLivenessDoesNotSetLastUse covers that an op read by a later
// block is marked live there, but LastUse is only ever recorded within the
// defining op's own block (per the package's in-block-only LastUse
// contract); a successor block's use leaves it at -1.
func TestCrossBlockLivenessDoesNotSetLastUse(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{
		{Reachable: true, Ops: []ir.Op{
			{Code: ir.CONST_NUMBER, ConstNumber: 1}, // block 0, op 0
		}},
		{Reachable: true, Ops: []ir.Op{
			{Code: ir.PHI, Args: []ir.Operand{op(0, 0)}},  // block 1, op 0
			{Code: ir.JUMP_RETURN, Args: []ir.Operand{op(1, 0)}}, // block 1, op 1
		}},
	}}

	res := liveness.Run(fn)
	require.True(t, res.Live[1][1])
	require.True(t, res.Live[1][0], "PHI used by the return in the same block")
	require.EqualValues(t, 1, res.LastUse[1][0])

	require.True(t, res.Live[0][0], "block 0's const is read across blocks by the PHI")
	require.EqualValues(t, -1, res.LastUse[0][0], "cross-block use never updates the defining block's LastUse")
}

// TestUnreachableBlockNeverSeeded covers that an unreachable block (fold has
// already NOP'd it out, or it was simply never marked reachable) contributes
// no live ops even if it still holds a side-effecting opcode.
func TestUnreachableBlockNeverSeeded(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{
		{Reachable: false, Ops: []ir.Op{
			{Code: ir.CALL},
		}},
	}}

	res := liveness.Run(fn)
	require.False(t, res.Live[0][0])
}

// TestSideEffectingOpPinsItsArguments covers that a store's value argument
// becomes live purely because the store itself is side-effecting, even
// though nothing ever reads the local again.
func TestSideEffectingOpPinsItsArguments(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{
		{Reachable: true, Ops: []ir.Op{
			{Code: ir.CONST_NUMBER, ConstNumber: 42}, // 0
			{Code: ir.LOCAL_SET, Slot: 0, Args: []ir.Operand{op(0, 0)}}, // 1
		}},
	}}

	res := liveness.Run(fn)
	require.True(t, res.Live[0][1])
	require.True(t, res.Live[0][0])
}
