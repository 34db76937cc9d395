// Package constinline implements the compiler's constant-inlining and pool
// construction pass (spec.md §4.7): arithmetic/concat/index ops with one
// constant operand are rewritten to their register+immediate form where the
// VM supports it (compare ops keep their register form), ops that are no
// longer live after that rewrite are blanked to NOP, and every
// constant/selector a remaining op references is interned into a
// deduplicated pool, reporting an error if a pool's size cap is exceeded.
package constinline

import (
	"math"

	"github.com/dolthub/swiss"

	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/liveness"
	"github.com/mna/kenafgo/lang/source"
)

// Pool size caps, per spec.md §4.7.
const (
	MaxInlineConst = 255
	MaxFullConst   = 65535
	MaxSelector    = 65535
)

// ConstKind distinguishes a pooled constant's payload type.
type ConstKind int8

const (
	ConstNull ConstKind = iota
	ConstBoolTrue
	ConstBoolFalse
	ConstNumber
	ConstString
)

// Const is one entry of the deduplicated constant pool.
type Const struct {
	Kind ConstKind
	Num  float64
	Str  string
}

// Pools holds the constant and selector pools built for one function. A
// nested ir.Function gets its own Pools from its own Run call, since
// constants are not shared between functions.
type Pools struct {
	Constants []Const
	Selectors []string
}

type builder struct {
	buf  *source.Buffer
	errs *diag.Sink
	fn   *ir.Function

	pools   Pools
	numPool *swiss.Map[uint64, int32]
	strPool *swiss.Map[string, int32]
	selPool *swiss.Map[string, int32]
}

// Run rewrites fn's ops into their constant-inlined form, blanks the ops no
// live op reads any more, and builds fn's own constant/selector pools. It
// does not descend into the functions referenced by CONST_FUNCTION ops: the
// emitter calls Run once per function it encodes.
func Run(buf *source.Buffer, errs *diag.Sink, fn *ir.Function) *Pools {
	b := &builder{
		buf: buf, errs: errs, fn: fn,
		numPool: swiss.NewMap[uint64, int32](8),
		strPool: swiss.NewMap[string, int32](8),
		selPool: swiss.NewMap[string, int32](8),
	}
	for bi := range fn.Blocks {
		blk := &fn.Blocks[bi]
		for oi := range blk.Ops {
			b.inline(&blk.Ops[oi])
		}
	}
	// Dead ops (including CONST_* ops whose only reader was just rewritten
	// into a K/I form) become NOP, so only constants and selectors of
	// surviving ops reach the pools and the emitter.
	live := liveness.Run(fn)
	for bi := range fn.Blocks {
		blk := &fn.Blocks[bi]
		for oi := range blk.Ops {
			if !live.Live[bi][oi] {
				blk.Ops[oi] = ir.Op{Code: ir.NOP}
			}
		}
	}
	for bi := range fn.Blocks {
		blk := &fn.Blocks[bi]
		for oi := range blk.Ops {
			b.intern(&blk.Ops[oi])
		}
	}
	return &b.pools
}

// asConst reports whether o refers to a CONST_* op, returning that op.
func (b *builder) asConst(o ir.Operand) (ir.Op, bool) {
	if o.Kind != ir.OperandOp {
		return ir.Op{}, false
	}
	op := b.fn.Blocks[o.Block].Ops[o.Index]
	switch op.Code {
	case ir.CONST_NULL, ir.CONST_BOOL, ir.CONST_NUMBER, ir.CONST_STRING:
		return op, true
	}
	return ir.Op{}, false
}

func fitsInt8(n float64) bool {
	return n == math.Trunc(n) && n >= -128 && n <= 127
}

// inline rewrites op in place when one operand is a constant and the
// operation has a VM-supported constant-operand form (spec.md §4.7's table).
func (b *builder) inline(op *ir.Op) {
	switch op.Code {
	case ir.ADD, ir.MUL:
		b.inlineCommutative(op)
	case ir.SUB:
		b.inlineSub(op)
	case ir.CONCAT:
		b.inlineConcat(op)
	case ir.CMP_EQ, ir.CMP_NE, ir.CMP_LT, ir.CMP_GT, ir.CMP_LE, ir.CMP_GE:
		// No compare-and-branch fusion: the packed instruction word has no
		// spare bits for a register, a constant operand and two jump targets
		// at once, so CMP_* always keeps its register form (see DESIGN.md).
	case ir.INDEX_GET:
		b.inlineIndexGet(op)
	case ir.INDEX_SET:
		b.inlineIndexSet(op)
	}
}

func (b *builder) inlineCommutative(op *ir.Op) {
	l, r := op.Args[0], op.Args[1]
	rc, ok := b.asConst(r)
	swapped := false
	if !ok {
		rc, ok = b.asConst(l)
		if !ok {
			return
		}
		l = r
		swapped = true
	}
	if rc.Code != ir.CONST_NUMBER {
		return
	}
	base := ir.ADDK
	ibase := ir.ADDI
	if op.Code == ir.MUL {
		base, ibase = ir.MULK, ir.MULI
	}
	_ = swapped // commutative: operand order after the rewrite doesn't matter
	n := rc.ConstNumber
	if fitsInt8(n) {
		*op = ir.Op{Code: ibase, Pos: op.Pos, Args: []ir.Operand{l}, ConstNumber: n, Pinned: op.Pinned}
	} else {
		*op = ir.Op{Code: base, Pos: op.Pos, Args: []ir.Operand{l}, ConstNumber: n, Pinned: op.Pinned}
	}
}

func (b *builder) inlineSub(op *ir.Op) {
	l, r := op.Args[0], op.Args[1]
	if rc, ok := b.asConst(r); ok && rc.Code == ir.CONST_NUMBER {
		n := -rc.ConstNumber
		if fitsInt8(n) {
			*op = ir.Op{Code: ir.ADDI, Pos: op.Pos, Args: []ir.Operand{l}, ConstNumber: n, Pinned: op.Pinned}
		} else {
			*op = ir.Op{Code: ir.ADDK, Pos: op.Pos, Args: []ir.Operand{l}, ConstNumber: n, Pinned: op.Pinned}
		}
		return
	}
	if lc, ok := b.asConst(l); ok && lc.Code == ir.CONST_NUMBER {
		// SUB c,v: not commutative, so the rewritten op keeps v as its only
		// register operand and carries c itself ("c - v"): SUBI when c fits a
		// signed 8-bit immediate, SUBK (a pool constant) otherwise.
		code := ir.SUBK
		if fitsInt8(lc.ConstNumber) {
			code = ir.SUBI
		}
		*op = ir.Op{Code: code, Pos: op.Pos, Args: []ir.Operand{r}, ConstNumber: lc.ConstNumber, Pinned: op.Pinned}
	}
}

func (b *builder) inlineConcat(op *ir.Op) {
	l, r := op.Args[0], op.Args[1]
	if rc, ok := b.asConst(r); ok && rc.Code == ir.CONST_STRING {
		*op = ir.Op{Code: ir.CONCATK, Pos: op.Pos, Args: []ir.Operand{l}, ConstString: rc.ConstString, Pinned: op.Pinned}
		return
	}
	if lc, ok := b.asConst(l); ok && lc.Code == ir.CONST_STRING {
		*op = ir.Op{Code: ir.RCONCATK, Pos: op.Pos, Args: []ir.Operand{r}, ConstString: lc.ConstString, Pinned: op.Pinned}
	}
}

func (b *builder) inlineIndexGet(op *ir.Op) {
	obj, idx := op.Args[0], op.Args[1]
	c, ok := b.asConst(idx)
	if !ok {
		return
	}
	switch c.Code {
	case ir.CONST_NUMBER:
		if !fitsInt8(c.ConstNumber) {
			return
		}
		*op = ir.Op{Code: ir.GET_INDEXI, Pos: op.Pos, Args: []ir.Operand{obj}, ConstNumber: c.ConstNumber, Pinned: op.Pinned}
	case ir.CONST_STRING:
		*op = ir.Op{Code: ir.GET_INDEXK, Pos: op.Pos, Args: []ir.Operand{obj}, ConstString: c.ConstString, Pinned: op.Pinned}
	}
}

func (b *builder) inlineIndexSet(op *ir.Op) {
	obj, idx, val := op.Args[0], op.Args[1], op.Args[2]
	c, ok := b.asConst(idx)
	if !ok {
		return
	}
	switch c.Code {
	case ir.CONST_NUMBER:
		if !fitsInt8(c.ConstNumber) {
			return
		}
		*op = ir.Op{Code: ir.SET_INDEXI, Pos: op.Pos, Args: []ir.Operand{obj, val}, ConstNumber: c.ConstNumber, Pinned: op.Pinned}
	case ir.CONST_STRING:
		*op = ir.Op{Code: ir.SET_INDEXK, Pos: op.Pos, Args: []ir.Operand{obj, val}, ConstString: c.ConstString, Pinned: op.Pinned}
	}
}

// intern records every constant and selector still referenced by op (after
// inlining) into the deduplicated pools, and writes the resulting pool index
// into op.Slot so lang/emitter can encode it directly without re-deriving it.
func (b *builder) intern(op *ir.Op) {
	switch op.Code {
	case ir.CONST_NULL:
		op.Slot = b.constIndex(Const{Kind: ConstNull})
	case ir.CONST_BOOL:
		k := ConstBoolFalse
		if op.ConstBool {
			k = ConstBoolTrue
		}
		op.Slot = b.constIndex(Const{Kind: k})
	case ir.CONST_NUMBER, ir.ADDK, ir.SUBK, ir.MULK:
		op.Slot = b.constIndex(Const{Kind: ConstNumber, Num: op.ConstNumber})
	case ir.CONST_STRING, ir.CONCATK, ir.RCONCATK:
		op.Slot = b.constIndex(Const{Kind: ConstString, Str: op.ConstString})
	case ir.GET_INDEXK, ir.SET_INDEXK:
		op.Slot = b.constIndex(Const{Kind: ConstString, Str: op.ConstString})
	case ir.KEY_GET, ir.KEY_SET, ir.OBJ_SET, ir.GLOBAL_GET, ir.GLOBAL_SET:
		op.Slot = b.internSelector(op.Name)
	}
}

func (b *builder) constIndex(c Const) int32 {
	var key uint64
	var byStr bool
	switch c.Kind {
	case ConstString:
		byStr = true
	default:
		key = math.Float64bits(c.Num) ^ uint64(c.Kind)<<56
	}
	if byStr {
		if idx, ok := b.strPool.Get(c.Str); ok {
			return idx
		}
		idx := int32(len(b.pools.Constants))
		b.pools.Constants = append(b.pools.Constants, c)
		b.strPool.Put(c.Str, idx)
		b.reportCap(idx)
		return idx
	}
	if idx, ok := b.numPool.Get(key); ok {
		return idx
	}
	idx := int32(len(b.pools.Constants))
	b.pools.Constants = append(b.pools.Constants, c)
	b.numPool.Put(key, idx)
	b.reportCap(idx)
	return idx
}

func (b *builder) reportCap(idx int32) {
	if idx == MaxFullConst+1 {
		b.errs.Errorf(b.buf, b.fn.Pos, "too many constants")
	}
}

func (b *builder) internSelector(name string) int32 {
	if idx, ok := b.selPool.Get(name); ok {
		return idx
	}
	idx := int32(len(b.pools.Selectors))
	b.pools.Selectors = append(b.pools.Selectors, name)
	b.selPool.Put(name, idx)
	if idx == MaxSelector+1 {
		b.errs.Errorf(b.buf, b.fn.Pos, "too many selectors")
	}
	return idx
}
