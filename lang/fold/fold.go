// Package fold implements the compiler's fold pass (spec.md §4.5): constant
// folding, dead-block removal and phi-use simplification over an ir.Function
// built by lang/irbuild.
//
// This implementation's IR is block-structured rather than the original's
// single flat op stream, so "phi simplification" here targets PHI/B_PHI ops
// (this IR's join points) directly instead of walking a loop-header phi's
// self-referencing operand chain.
package fold

import (
	"math"
	"strconv"

	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/source"
)

// Run folds constants and removes unreachable blocks in fn, reporting any
// warnings (e.g. arithmetic on a non-number constant) to errs.
func Run(buf *source.Buffer, errs *diag.Sink, fn *ir.Function) {
	f := &folder{buf: buf, errs: errs, fn: fn}
	f.markReachable()
	f.foldBlocks()
	f.removeUnreachable()
}

type folder struct {
	buf  *source.Buffer
	errs *diag.Sink
	fn   *ir.Function
}

// markReachable walks successors from block 0, per spec.md §4.5's
// reachability-ordered sweep.
func (f *folder) markReachable() {
	if len(f.fn.Blocks) == 0 {
		return
	}
	var walk func(i int32)
	walk = func(i int32) {
		b := &f.fn.Blocks[i]
		if b.Reachable {
			return
		}
		b.Reachable = true
		for _, s := range b.Succs {
			walk(s)
		}
	}
	walk(0)
}

// foldBlocks constant-folds every reachable block's ops in place, in block
// order (reachability order since unreachable blocks are skipped).
func (f *folder) foldBlocks() {
	for bi := range f.fn.Blocks {
		blk := &f.fn.Blocks[bi]
		if !blk.Reachable {
			continue
		}
		for oi := range blk.Ops {
			f.foldOp(int32(bi), int32(oi))
		}
	}
}

// constOf reports whether operand is a fully-resolved constant, following
// REF chains within the same function (across blocks is safe since REF only
// ever points at an earlier-defined, already-folded op by construction
// order).
func (f *folder) constOf(o ir.Operand) (ir.Op, bool) {
	for o.Kind == ir.OperandOp {
		op := &f.fn.Blocks[o.Block].Ops[o.Index]
		switch op.Code {
		case ir.CONST_NULL, ir.CONST_BOOL, ir.CONST_NUMBER, ir.CONST_STRING:
			return *op, true
		case ir.REF:
			o = op.Args[0]
			continue
		}
		return ir.Op{}, false
	}
	return ir.Op{}, false
}

func truthy(op ir.Op) bool {
	switch op.Code {
	case ir.CONST_NULL:
		return false
	case ir.CONST_BOOL:
		return op.ConstBool
	default:
		return true // 0 and NaN are truthy per spec.md §4.5
	}
}

func (f *folder) foldOp(bi, oi int32) {
	op := &f.fn.Blocks[bi].Ops[oi]

	switch op.Code {
	case ir.ADD, ir.SUB, ir.MUL, ir.DIV, ir.IDIV, ir.MOD,
		ir.BIT_AND, ir.BIT_OR, ir.BIT_XOR, ir.LSHIFT, ir.RSHIFT, ir.ASHIFT:
		f.foldArith(op)
	case ir.CONCAT:
		f.foldConcat(op)
	case ir.CMP_LT, ir.CMP_LE, ir.CMP_GT, ir.CMP_GE, ir.CMP_EQ, ir.CMP_NE, ir.CMP_IS, ir.CMP_ISNOT:
		f.foldCompare(op)
	case ir.LOGICAL_NOT:
		f.foldNot(op)
	case ir.JUMP_TEST:
		f.foldJumpTest(bi, op)
	case ir.B_AND, ir.B_CUT:
		f.foldShortCircuitTest(bi, op)
	case ir.PHI, ir.B_PHI:
		f.foldPhi(op)
	}
}

func (f *folder) foldArith(op *ir.Op) {
	lc, lok := f.constOf(op.Args[0])
	rc, rok := f.constOf(op.Args[1])
	if !lok || !rok {
		return
	}
	if lc.Code != ir.CONST_NUMBER || rc.Code != ir.CONST_NUMBER {
		f.errs.Warnf(f.buf, op.Pos, "arithmetic on a non-number constant")
		return
	}
	var result float64
	switch op.Code {
	case ir.ADD:
		result = lc.ConstNumber + rc.ConstNumber
	case ir.SUB:
		result = lc.ConstNumber - rc.ConstNumber
	case ir.MUL:
		result = lc.ConstNumber * rc.ConstNumber
	case ir.DIV:
		result = lc.ConstNumber / rc.ConstNumber
	case ir.IDIV:
		result = math.Floor(lc.ConstNumber / rc.ConstNumber)
	case ir.MOD:
		result = math.Mod(lc.ConstNumber, rc.ConstNumber)
	case ir.BIT_AND:
		result = float64(int64(lc.ConstNumber) & int64(rc.ConstNumber))
	case ir.BIT_OR:
		result = float64(int64(lc.ConstNumber) | int64(rc.ConstNumber))
	case ir.BIT_XOR:
		result = float64(int64(lc.ConstNumber) ^ int64(rc.ConstNumber))
	case ir.LSHIFT:
		result = float64(int64(lc.ConstNumber) << uint64(int64(rc.ConstNumber)))
	case ir.RSHIFT:
		result = float64(uint64(lc.ConstNumber) >> uint64(int64(rc.ConstNumber)))
	case ir.ASHIFT:
		result = float64(int64(lc.ConstNumber) >> uint64(int64(rc.ConstNumber)))
	}
	*op = ir.Op{Code: ir.CONST_NUMBER, Pos: op.Pos, ConstNumber: result, Pinned: op.Pinned}
}

func (f *folder) foldConcat(op *ir.Op) {
	lc, lok := f.constOf(op.Args[0])
	rc, rok := f.constOf(op.Args[1])
	if !lok || !rok {
		return
	}
	*op = ir.Op{Code: ir.CONST_STRING, Pos: op.Pos, ConstString: constString(lc) + constString(rc), Pinned: op.Pinned}
}

func constString(op ir.Op) string {
	switch op.Code {
	case ir.CONST_STRING:
		return op.ConstString
	case ir.CONST_NULL:
		return "null"
	case ir.CONST_BOOL:
		if op.ConstBool {
			return "true"
		}
		return "false"
	case ir.CONST_NUMBER:
		return formatNumber(op.ConstNumber)
	}
	return ""
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func (f *folder) foldCompare(op *ir.Op) {
	lc, lok := f.constOf(op.Args[0])
	rc, rok := f.constOf(op.Args[1])
	if !lok || !rok {
		return
	}
	if op.Code == ir.CMP_IS || op.Code == ir.CMP_ISNOT {
		eq := sameConst(lc, rc)
		if op.Code == ir.CMP_ISNOT {
			eq = !eq
		}
		*op = ir.Op{Code: ir.CONST_BOOL, Pos: op.Pos, ConstBool: eq, Pinned: op.Pinned}
		return
	}
	if lc.Code != ir.CONST_NUMBER || rc.Code != ir.CONST_NUMBER {
		return
	}
	var result bool
	switch op.Code {
	case ir.CMP_LT:
		result = lc.ConstNumber < rc.ConstNumber
	case ir.CMP_LE:
		result = lc.ConstNumber <= rc.ConstNumber
	case ir.CMP_GT:
		result = lc.ConstNumber > rc.ConstNumber
	case ir.CMP_GE:
		result = lc.ConstNumber >= rc.ConstNumber
	case ir.CMP_EQ:
		result = lc.ConstNumber == rc.ConstNumber
	case ir.CMP_NE:
		result = lc.ConstNumber != rc.ConstNumber
	}
	*op = ir.Op{Code: ir.CONST_BOOL, Pos: op.Pos, ConstBool: result, Pinned: op.Pinned}
}

func sameConst(a, b ir.Op) bool {
	if a.Code != b.Code {
		return false
	}
	switch a.Code {
	case ir.CONST_NULL:
		return true
	case ir.CONST_BOOL:
		return a.ConstBool == b.ConstBool
	case ir.CONST_NUMBER:
		return math.Float64bits(a.ConstNumber) == math.Float64bits(b.ConstNumber)
	case ir.CONST_STRING:
		return a.ConstString == b.ConstString
	}
	return false
}

func (f *folder) foldNot(op *ir.Op) {
	c, ok := f.constOf(op.Args[0])
	if !ok {
		return
	}
	*op = ir.Op{Code: ir.CONST_BOOL, Pos: op.Pos, ConstBool: !truthy(c), Pinned: op.Pinned}
}

// foldJumpTest collapses a JUMP_TEST on a constant condition to an
// unconditional JUMP, marking the untaken successor unreachable (discovered
// by the next markReachable pass a caller may re-run; here we simply prune
// Succs so removeUnreachable's own reachability walk, run after folding,
// naturally drops it).
func (f *folder) foldJumpTest(bi int32, op *ir.Op) {
	c, ok := f.constOf(op.Args[0])
	if !ok {
		return
	}
	blk := &f.fn.Blocks[bi]
	if len(blk.Succs) != 2 {
		return
	}
	target := blk.Succs[1]
	if truthy(c) {
		target = blk.Succs[0]
	}
	*op = ir.Op{Code: ir.JUMP, Pos: op.Pos, Pinned: true}
	blk.Succs = []int32{target}
}

func (f *folder) foldShortCircuitTest(bi int32, op *ir.Op) {
	f.foldJumpTest(bi, op)
}

// foldPhi collapses a PHI/B_PHI whose operands all resolve to the same
// constant (a common case once JUMP_TEST folding has pruned a branch) into
// that CONST op directly.
func (f *folder) foldPhi(op *ir.Op) {
	if len(op.Args) == 0 {
		return
	}
	first, ok := f.constOf(op.Args[0])
	if !ok {
		return
	}
	for _, a := range op.Args[1:] {
		c, ok := f.constOf(a)
		if !ok || !sameConst(c, first) {
			return
		}
	}
	*op = first
}

// removeUnreachable re-runs reachability (folding JUMP_TEST may have changed
// the graph) and blanks out ops in blocks no longer reachable from block 0.
func (f *folder) removeUnreachable() {
	for i := range f.fn.Blocks {
		f.fn.Blocks[i].Reachable = false
	}
	f.markReachable()
	for i := range f.fn.Blocks {
		blk := &f.fn.Blocks[i]
		if blk.Reachable {
			continue
		}
		for j := range blk.Ops {
			blk.Ops[j] = ir.Op{Code: ir.NOP}
		}
		blk.Succs = nil
	}
}
