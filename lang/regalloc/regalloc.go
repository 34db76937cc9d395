// Package regalloc implements the compiler's register allocator (spec.md
// §4.8): it assigns every local and every live op result a register.
//
// The original algorithm is a full linear scan over per-register interval
// lists with deferred allocation for pinned/floated call-shaped operands.
// This implementation keeps the same register-preference rules (parameters
// at 1..param_count, self at 0) but allocates with a single forward scan per
// block using lang/liveness's last-use information to free registers,
// rather than building the full interval-list data structure (see
// DESIGN.md). Pinned operands get no special placement; lang/emitter stages
// call and closure arguments with explicit moves instead. A register freed
// within a block is reused only within that block, and a value read by a
// later block keeps its register for the rest of the function.
package regalloc

import (
	"golang.org/x/exp/slices"

	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/liveness"
)

// Result is the outcome of allocating fn's registers.
type Result struct {
	// LocalReg[slot] is the register holding local slot for fn's whole body.
	LocalReg []int32
	// OpReg[block][op] is the register holding that op's result, or -1 if the
	// op has no result (pure side effect / terminator) or was never live.
	OpReg [][]int32
	// StackSize is the highest register index allocated, plus one.
	StackSize int32
}

// Alloc assigns registers to fn. fn.HasImplicitSelf decides whether local 0
// is the self parameter, which must land in register 0 rather than
// register 1 (register 0 is always reserved for self, present or not).
func Alloc(fn *ir.Function) *Result {
	live := liveness.Run(fn)

	numLocals := fn.NumLocals
	res := &Result{
		LocalReg: make([]int32, numLocals),
		OpReg:    make([][]int32, len(fn.Blocks)),
	}

	base := int32(0)
	if !fn.HasImplicitSelf {
		base = 1 // register 0 stays reserved for self even when this function has none
	}
	for i := 0; i < numLocals; i++ {
		res.LocalReg[i] = base + int32(i)
	}
	next := base + int32(numLocals)
	if next == 0 {
		next = 1 // register 0 always reserved
	}

	// highWater is shared by every block, so a register first handed out in
	// one block is never handed out fresh again in a later one.
	highWater := next
	for bi, blk := range fn.Blocks {
		res.OpReg[bi] = make([]int32, len(blk.Ops))
		for i := range res.OpReg[bi] {
			res.OpReg[bi][i] = -1
		}

		var free []int32 // registers freed within this block, reused lowest-first

		for oi, op := range blk.Ops {
			// Free any register whose value's last use was strictly before this op.
			for slotOi := 0; slotOi < oi; slotOi++ {
				if live.LastUse[bi][slotOi] == int32(oi)-1 && res.OpReg[bi][slotOi] >= 0 {
					free = append(free, res.OpReg[bi][slotOi])
				}
			}

			if !live.Live[bi][oi] || !hasResult(op.Code) {
				continue
			}

			var reg int32
			if len(free) > 0 {
				reg = slices.Min(free)
				i := slices.Index(free, reg)
				free = slices.Delete(free, i, i+1)
			} else {
				reg = highWater
				highWater++
			}
			res.OpReg[bi][oi] = reg
			if highWater > res.StackSize {
				res.StackSize = highWater
			}
		}
	}
	if res.StackSize < next {
		res.StackSize = next
	}
	return res
}

// hasResult reports whether op.Code produces a value worth holding in a
// register (pure control-flow/store ops do not).
func hasResult(code ir.OpCode) bool {
	switch code {
	case ir.LOCAL_SET, ir.UPVAL_SET, ir.OUTENV_SET, ir.GLOBAL_SET, ir.KEY_SET, ir.INDEX_SET,
		ir.SET_INDEXK, ir.SET_INDEXI,
		ir.JUMP, ir.JUMP_TEST, ir.JUMP_RETURN, ir.B_AND, ir.B_CUT,
		ir.CLOSE_UPSTACK, ir.NEW_UPSTACK, ir.NOP:
		return false
	default:
		return true
	}
}
