// Package liveness implements the compiler's liveness pass (spec.md §4.6): a
// backward worklist walk that marks which ops are live (used, or pinned by a
// visible side effect) and records each live op's last-use index within its
// own block, information lang/regalloc consumes to free registers promptly.
package liveness

import "github.com/mna/kenafgo/lang/ir"

// sideEffecting reports whether op's result (or its effect) must survive
// regardless of whether anything reads its result, per spec.md §4.6's
// pinned-mark set.
func sideEffecting(code ir.OpCode) bool {
	switch code {
	case ir.LOCAL_SET, ir.UPVAL_SET, ir.OUTENV_SET, ir.GLOBAL_SET, ir.KEY_SET, ir.INDEX_SET,
		ir.SET_INDEXK, ir.SET_INDEXI,
		ir.APPEND, ir.TABLE_SET, ir.OBJ_SET,
		ir.CALL, ir.YCALL, ir.YIELD,
		ir.CLOSE_UPSTACK, ir.NEW_UPSTACK,
		ir.JUMP, ir.JUMP_TEST, ir.JUMP_RETURN, ir.JUMP_FOR_SGEN, ir.JUMP_FOR_EGEN,
		ir.B_AND, ir.B_CUT:
		return true
	default:
		return false
	}
}

// Result holds the per-op liveness facts computed by Run.
type Result struct {
	// Live[block][op] is true if that op's result is used, or it has a
	// required side effect.
	Live [][]bool
	// LastUse[block][op] is the highest op index within the SAME block that
	// reads this op's result, or -1 if it is never read in-block (either
	// dead, or read only by a successor block's PHI/REF, which Run also
	// marks live via the cross-block walk below).
	LastUse [][]int32
}

type workItem struct{ block, op int32 }

// Run computes liveness for fn, a backward worklist pass over blocks in
// reverse program order, per spec.md §4.6.
func Run(fn *ir.Function) *Result {
	res := &Result{
		Live:    make([][]bool, len(fn.Blocks)),
		LastUse: make([][]int32, len(fn.Blocks)),
	}
	for bi, blk := range fn.Blocks {
		res.Live[bi] = make([]bool, len(blk.Ops))
		res.LastUse[bi] = make([]int32, len(blk.Ops))
		for i := range res.LastUse[bi] {
			res.LastUse[bi][i] = -1
		}
	}

	var work []workItem
	mark := func(o ir.Operand, useBlock, useOp int32) {
		if o.Kind != ir.OperandOp {
			return
		}
		if !res.Live[o.Block][o.Index] {
			res.Live[o.Block][o.Index] = true
			work = append(work, workItem{o.Block, o.Index})
		}
		if o.Block == useBlock && useOp > res.LastUse[o.Block][o.Index] {
			res.LastUse[o.Block][o.Index] = useOp
		}
	}

	// Seed with every side-effecting op in every reachable block.
	for bi, blk := range fn.Blocks {
		if !blk.Reachable && len(blk.Ops) > 0 {
			// unreachable blocks were already NOP'd out by fold; harmless to skip.
			continue
		}
		for oi, op := range blk.Ops {
			if sideEffecting(op.Code) {
				res.Live[bi][oi] = true
				work = append(work, workItem{int32(bi), int32(oi)})
			}
		}
	}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		op := fn.Blocks[item.block].Ops[item.op]
		for _, a := range op.Args {
			mark(a, item.block, item.op)
		}
	}

	return res
}
