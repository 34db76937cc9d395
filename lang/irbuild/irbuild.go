// Package irbuild lowers a resolved ast.Function into an ir.Function,
// implementing spec.md §4.4: short-circuit logical operators lower to the
// B_AND/B_CUT/B_DEF/B_PHI quartet (§4.4.1), assignments evaluate every
// right-hand side, left to right, before any store (§4.4.2), and loops
// lower with explicit CLOSE_UPSTACK insertion plus break/continue
// backpatching (§4.4.4). Locals are not renamed into SSA values: they are
// read and written through LOCAL_GET/LOCAL_SET (UPVAL_GET/UPVAL_SET once
// captured), and the only merge ops built are the PHI/B_PHI of conditional
// and short-circuit expressions.
package irbuild

import (
	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/token"
)

// Build lowers fn and every function nested within it into ir.Functions.
func Build(fn *ast.Function) *ir.Function {
	b := &builder{fn: fn, out: &ir.Function{
		Name:            fn.Name,
		Pos:             fn.Pos,
		NumLocals:       len(fn.Locals),
		HasImplicitSelf: fn.Flags&ast.FlagImplicitSelf != 0,
		IsVararg:        fn.Flags&ast.FlagVararg != 0,
		IsGenerator:     fn.Flags&ast.FlagGenerator != 0,
		MaxUpstackSize:  fn.MaxUpstackSize,
		NumOutEnvs:      len(fn.OutEnvs),
	}}
	for _, l := range fn.Locals {
		if l.IsParameter {
			b.out.NumParams++
		}
	}
	b.newBlock() // entry, index 0
	if fn.MaxUpstackSize > 0 {
		b.out.NewOp(b.cur, ir.Op{Code: ir.NEW_UPSTACK, Slot: int32(fn.MaxUpstackSize), Pinned: true})
	}
	if root := fn.Root(); root != ast.NoIndex {
		b.stmt(root)
	}
	b.terminateReturn(nil)
	return b.out
}

type loopCtx struct {
	breaks, continues []patch
}

// patch records a jump op awaiting its real target block once the
// enclosing loop's header/exit blocks are known.
type patch struct {
	block int32
	opIdx int32
}

type builder struct {
	fn  *ast.Function
	out *ir.Function
	cur int32 // current block index

	loops []loopCtx
}

func (b *builder) newBlock() int32 {
	b.out.Blocks = append(b.out.Blocks, ir.Block{})
	return int32(len(b.out.Blocks) - 1)
}

func (b *builder) emit(op ir.Op) ir.Operand {
	idx := b.out.NewOp(b.cur, op)
	return ir.Ref(b.cur, idx)
}

// jump emits an unconditional jump whose target is filled in once known;
// callers that don't yet know the target pass -1 and patch b.out later.
func (b *builder) jump(target int32) int32 {
	idx := b.out.NewOp(b.cur, ir.Op{Code: ir.JUMP, Pinned: true})
	b.out.Blocks[b.cur].Succs = []int32{target}
	return idx
}

func (b *builder) setJumpTarget(blockIdx int32, target int32) {
	b.out.Blocks[blockIdx].Succs = []int32{target}
}

func (b *builder) terminateReturn(valueNodes []int32) {
	// Avoid a double terminator if the last statement already returned on
	// every path (fold's dead-block removal cleans up any unreachable tail
	// this leaves behind regardless).
	blk := &b.out.Blocks[b.cur]
	if len(blk.Ops) > 0 && blk.Ops[len(blk.Ops)-1].Code == ir.JUMP_RETURN {
		return
	}
	args := make([]ir.Operand, len(valueNodes))
	for i, n := range valueNodes {
		args[i] = b.expr(n)
	}
	b.out.NewOp(b.cur, ir.Op{Code: ir.JUMP_RETURN, Args: args, Pinned: true})
}

// stmt lowers one statement subtree, rooted at idx, appending ops/blocks to
// b.out and advancing b.cur as control flow requires.
func (b *builder) stmt(idx int32) {
	if idx == ast.NoIndex {
		return
	}
	n := b.fn.Nodes[idx]
	children := ast.Children(b.fn, idx)

	switch n.Kind {
	case ast.Block:
		for _, c := range children {
			b.stmt(c)
		}

	case ast.ExprStmt:
		if len(children) > 0 {
			b.expr(children[0])
		}

	case ast.VarDecl:
		b.varDecl(idx, children)

	case ast.Assign:
		b.assign(idx, children)

	case ast.OpAssign:
		b.opAssign(idx, n.Op, children)

	case ast.If:
		b.ifStmt(idx, children)

	case ast.While:
		b.whileStmt(idx, children)

	case ast.Repeat:
		b.repeatStmt(idx, children)

	case ast.ForStep:
		b.forStepStmt(idx, children)

	case ast.ForEach:
		b.forEachStmt(idx, children)

	case ast.Break:
		b.loopJump(true)

	case ast.Continue:
		b.loopJump(false)

	case ast.Return:
		b.terminateReturn(children)
		b.cur = b.newBlock() // unreachable tail; fold removes it

	case ast.Throw:
		var args []ir.Operand
		if len(children) > 0 {
			args = []ir.Operand{b.expr(children[0])}
		}
		b.out.NewOp(b.cur, ir.Op{Code: ir.CALL, Name: "throw", Args: args, Pinned: true})
		b.cur = b.newBlock()

	default:
		// a bare expression used as a statement without an ExprStmt wrapper
		// (shouldn't occur from this parser, but tolerate it)
		b.expr(idx)
	}
}

func (b *builder) loopJump(isBreak bool) {
	if len(b.loops) == 0 {
		return // resolver already reported break/continue outside a loop
	}
	lc := &b.loops[len(b.loops)-1]
	opIdx := b.jump(-1)
	p := patch{block: b.cur, opIdx: opIdx}
	if isBreak {
		lc.breaks = append(lc.breaks, p)
	} else {
		lc.continues = append(lc.continues, p)
	}
	b.cur = b.newBlock() // unreachable tail within this block
}

func (b *builder) patchAll(ps []patch, target int32) {
	for _, p := range ps {
		b.setJumpTarget(p.block, target)
	}
}

// varDecl lowers "var a, b = e1, e2": children are [decl1..declN,
// expr1..exprM] per the parser's convention (see parser/stmt.go), paired by
// position; a missing initializer stores CONST_NULL.
func (b *builder) varDecl(_ int32, children []int32) {
	var decls, exprs []int32
	for _, c := range children {
		if b.fn.Nodes[c].Kind == ast.LocalDecl {
			decls = append(decls, c)
		} else {
			exprs = append(exprs, c)
		}
	}
	for i, d := range decls {
		var val ir.Operand
		if i < len(exprs) {
			val = b.expr(exprs[i])
		} else {
			val = b.emit(ir.Op{Code: ir.CONST_NULL})
		}
		b.storeLocalDecl(d, val)
	}
}

func (b *builder) storeLocalDecl(declNode int32, val ir.Operand) {
	slot := b.fn.Payloads[declNode].Index
	loc := b.fn.Locals[slot]
	code := ir.LOCAL_SET
	if loc.Captured {
		code = ir.UPVAL_SET
		slot = int32(loc.UpstackIndex)
	}
	b.out.NewOp(b.cur, ir.Op{Code: code, Args: []ir.Operand{val}, Pinned: true, Name: loc.Name,
		Slot: int32(slot)})
}

// assign lowers "lhs1, lhs2 = rhs1, rhs2": children are [lhs1..lhsN,
// rhs1..rhsM] (parser/stmt.go). Right-hand sides are evaluated first,
// left-to-right, before any store, matching spec.md §4.4.2's ordering rule;
// a single-target assignment stores directly off the rhs op with no extra
// copy (the live-range-shortening heuristic: no temporary is introduced
// when there is nothing to shorten against).
func (b *builder) assign(_ int32, children []int32) {
	var lhs, rhs []int32
	// lhs expressions were parsed first, so they occupy the lower node
	// indices. The parser rejects an assignment whose target and value
	// counts differ, so the two halves are the same length (see DESIGN.md).
	half := len(children) / 2
	lhs, rhs = children[:half], children[half:]
	vals := make([]ir.Operand, len(rhs))
	for i, r := range rhs {
		vals[i] = b.expr(r)
	}
	for i, l := range lhs {
		if i < len(vals) {
			b.storeTarget(l, vals[i])
		}
	}
}

func (b *builder) opAssign(_ int32, op token.Kind, children []int32) {
	if len(children) != 2 {
		return
	}
	target, rhsNode := children[0], children[1]
	cur := b.loadTarget(target)
	rhs := b.expr(rhsNode)
	result := b.binOp(op, cur, rhs)
	b.storeTarget(target, result)
}

// loadTarget reads the current value of an assignable expression (Name or
// Key/Index), used by op-assign to combine with the right-hand side.
func (b *builder) loadTarget(idx int32) ir.Operand {
	return b.expr(idx)
}

// storeTarget writes val into the storage an assignable expression subtree
// designates: a resolved name, or a Key/Index target evaluated for its
// object and then assigned through SET.
func (b *builder) storeTarget(idx int32, val ir.Operand) {
	n := b.fn.Nodes[idx]
	switch n.Kind {
	case ast.LocalName:
		b.out.NewOp(b.cur, ir.Op{Code: ir.LOCAL_SET, Args: []ir.Operand{val}, Pinned: true,
			Slot: b.fn.Payloads[idx].Index})
	case ast.UpvalName:
		b.out.NewOp(b.cur, ir.Op{Code: ir.UPVAL_SET, Args: []ir.Operand{val}, Pinned: true,
			Slot: b.fn.Payloads[idx].Index})
	case ast.OutenvName:
		b.out.NewOp(b.cur, ir.Op{Code: ir.OUTENV_SET, Args: []ir.Operand{val}, Pinned: true,
			Slot: b.fn.Payloads[idx].Index})
	case ast.GlobalName:
		b.out.NewOp(b.cur, ir.Op{Code: ir.GLOBAL_SET, Args: []ir.Operand{val}, Pinned: true,
			Name: b.fn.Payloads[idx].Str})
	case ast.Key:
		children := ast.Children(b.fn, idx)
		obj := b.expr(children[0])
		b.out.NewOp(b.cur, ir.Op{Code: ir.KEY_SET, Args: []ir.Operand{obj, val}, Pinned: true,
			Name: b.fn.Payloads[idx].Str})
	case ast.Index:
		children := ast.Children(b.fn, idx)
		obj := b.expr(children[0])
		index := b.expr(children[1])
		b.out.NewOp(b.cur, ir.Op{Code: ir.INDEX_SET, Args: []ir.Operand{obj, index, val}, Pinned: true})
	}
}

// ifStmt lowers "if cond block (elif cond block)* (else block)? end".
// Children in order: [cond, thenBlock, Elif*, (elseBlock)?] per
// parser/stmt.go's construction order, each Elif node holding that arm's
// [cond, block] as its own children. Each arm's false
// branch falls into the next arm's test (or the else block, or straight to
// the join), an ordinary if/else-if chain.
func (b *builder) ifStmt(_ int32, children []int32) {
	arms, elseBlock := splitIfChildren(b.fn, children)
	join := b.newBlock()

	for _, arm := range arms {
		c := b.expr(arm[0])
		thenB := b.newBlock()
		elseB := b.newBlock()
		b.out.NewOp(b.cur, ir.Op{Code: ir.JUMP_TEST, Args: []ir.Operand{c}, Pinned: true})
		b.out.Blocks[b.cur].Succs = []int32{thenB, elseB}

		b.cur = thenB
		b.stmt(arm[1])
		b.jump(join)

		b.cur = elseB
	}

	if elseBlock != ast.NoIndex {
		b.stmt(elseBlock)
	}
	b.jump(join)
	b.cur = join
}

// splitIfChildren separates an If node's child list into its (cond, block)
// arms (the leading if plus the children of every Elif node) and the
// trailing else block, if any.
func splitIfChildren(fn *ast.Function, children []int32) (arms [][2]int32, elseBlock int32) {
	elseBlock = ast.NoIndex
	if len(children) < 2 {
		return nil, elseBlock
	}
	arms = append(arms, [2]int32{children[0], children[1]})
	i := 2
	for i < len(children) && fn.Nodes[children[i]].Kind == ast.Elif {
		if ec := ast.Children(fn, children[i]); len(ec) == 2 {
			arms = append(arms, [2]int32{ec[0], ec[1]})
		}
		i++
	}
	if i < len(children) {
		elseBlock = children[i]
	}
	return arms, elseBlock
}

func (b *builder) whileStmt(_ int32, children []int32) {
	cond, body := children[0], children[1]

	header := b.newBlock()
	b.jump(header)
	b.cur = header
	c := b.expr(cond)
	bodyB := b.newBlock()
	exitB := b.newBlock()
	b.out.NewOp(b.cur, ir.Op{Code: ir.JUMP_TEST, Args: []ir.Operand{c}, Pinned: true})
	b.out.Blocks[b.cur].Succs = []int32{bodyB, exitB}

	b.loops = append(b.loops, loopCtx{})
	b.cur = bodyB
	b.stmt(body)
	b.closeUpstackIfNeeded()
	b.jump(header)

	lc := b.loops[len(b.loops)-1]
	b.loops = b.loops[:len(b.loops)-1]
	b.patchAll(lc.continues, header)
	b.patchAll(lc.breaks, exitB)

	b.cur = exitB
}

// repeatStmt lowers "repeat block until cond": the condition is evaluated
// after the body, and is allowed to read locals the body declared since
// this implementation treats locals as function-scoped (see resolver
// package doc); continue jumps to the until test, not to the top, per
// spec.md's repeat/until semantics.
func (b *builder) repeatStmt(_ int32, children []int32) {
	body, cond := children[0], children[1]

	header := b.newBlock()
	b.jump(header)
	b.cur = header

	b.loops = append(b.loops, loopCtx{})
	b.stmt(body)

	testB := b.newBlock()
	b.jump(testB)
	lc := b.loops[len(b.loops)-1]
	b.patchAll(lc.continues, testB)

	b.cur = testB
	c := b.expr(cond)
	exitB := b.newBlock()
	b.out.NewOp(b.cur, ir.Op{Code: ir.JUMP_TEST, Args: []ir.Operand{c}, Pinned: true})
	// falls back to header when cond is false (repeat until it's true)
	b.out.Blocks[b.cur].Succs = []int32{exitB, header}

	b.loops = b.loops[:len(b.loops)-1]
	b.patchAll(lc.breaks, exitB)
	b.cur = exitB
}

func (b *builder) forStepStmt(_ int32, children []int32) {
	decl, start, stop := children[0], children[1], children[2]
	rest := children[3:]
	stepIdx := ast.NoIndex
	var body int32
	if len(rest) == 2 {
		stepIdx, body = rest[0], rest[1]
	} else {
		body = rest[0]
	}

	startV := b.expr(start)
	stopV := b.expr(stop)
	var stepV ir.Operand
	if stepIdx != ast.NoIndex {
		stepV = b.expr(stepIdx)
	} else {
		stepV = b.emit(ir.Op{Code: ir.CONST_NUMBER, ConstNumber: 1})
	}
	b.storeLocalDecl(decl, startV)

	header := b.newBlock()
	b.jump(header)
	b.cur = header
	cur := b.loadLocalDecl(decl)
	test := b.emit(ir.Op{Code: ir.JUMP_FOR_SGEN, Args: []ir.Operand{cur, stopV, stepV}})
	bodyB := b.newBlock()
	exitB := b.newBlock()
	b.out.Blocks[b.cur].Succs = []int32{bodyB, exitB}
	_ = test

	b.loops = append(b.loops, loopCtx{})
	b.cur = bodyB
	b.stmt(body)
	b.closeUpstackIfNeeded()

	contB := b.newBlock()
	b.jump(contB)
	lc := b.loops[len(b.loops)-1]
	b.patchAll(lc.continues, contB)
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = contB
	nextV := b.binOp(token.PLUS, b.loadLocalDecl(decl), stepV)
	b.storeLocalDecl(decl, nextV)
	b.jump(header)

	b.patchAll(lc.breaks, exitB)
	b.cur = exitB
}

func (b *builder) forEachStmt(_ int32, children []int32) {
	decl, iterExpr, body := children[0], children[1], children[2]

	iterV := b.expr(iterExpr)
	header := b.newBlock()
	b.jump(header)
	b.cur = header
	next := b.emit(ir.Op{Code: ir.JUMP_FOR_EGEN, Args: []ir.Operand{iterV}})
	b.storeLocalDecl(decl, next)
	bodyB := b.newBlock()
	exitB := b.newBlock()
	b.out.Blocks[b.cur].Succs = []int32{bodyB, exitB}

	b.loops = append(b.loops, loopCtx{})
	b.cur = bodyB
	b.stmt(body)
	b.closeUpstackIfNeeded()

	contB := b.newBlock()
	b.jump(contB)
	lc := b.loops[len(b.loops)-1]
	b.patchAll(lc.continues, contB)
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = contB
	b.jump(header)

	b.patchAll(lc.breaks, exitB)
	b.cur = exitB
}

// closeUpstackIfNeeded emits CLOSE_UPSTACK when this function captures any
// of its own locals into closures, so each loop iteration gets a fresh cell
// for variables declared inside the loop body (spec.md §4.4.4).
func (b *builder) closeUpstackIfNeeded() {
	if b.out.MaxUpstackSize > 0 {
		b.out.NewOp(b.cur, ir.Op{Code: ir.CLOSE_UPSTACK, Pinned: true})
	}
}

func (b *builder) loadLocalDecl(declNode int32) ir.Operand {
	slot := b.fn.Payloads[declNode].Index
	loc := b.fn.Locals[slot]
	if loc.Captured {
		return b.emit(ir.Op{Code: ir.UPVAL_GET, Slot: int32(loc.UpstackIndex)})
	}
	return b.emit(ir.Op{Code: ir.LOCAL_GET, Slot: int32(slot)})
}

// binOpCodes maps a binary operator token (as carried on a Binary/Compare
// node's Op field, or an OpAssign's Op field) to its ir.OpCode. CMP_GT/CMP_GE
// are kept as their own opcodes rather than lowered to a swapped LT/LE
// (see DESIGN.md); no later pass swaps them either, and lang/emitter encodes
// them as bytecode's own CMP_GT/CMP_GE instructions.
var binOpCodes = map[token.Kind]ir.OpCode{
	token.PLUS: ir.ADD, token.MINUS: ir.SUB, token.STAR: ir.MUL, token.SLASH: ir.DIV,
	token.SLASH2: ir.IDIV, token.PERCENT: ir.MOD, token.TILDE: ir.CONCAT,
	token.AMP: ir.BIT_AND, token.PIPE: ir.BIT_OR, token.CARET: ir.BIT_XOR,
	token.LSHIFT: ir.LSHIFT, token.RSHIFT: ir.RSHIFT, token.ASHIFT: ir.ASHIFT,
	token.LT: ir.CMP_LT, token.LE: ir.CMP_LE, token.GT: ir.CMP_GT, token.GE: ir.CMP_GE,
	token.EQ: ir.CMP_EQ, token.NE: ir.CMP_NE, token.IS: ir.CMP_IS, token.ISNOT: ir.CMP_ISNOT,
}

func (b *builder) binOp(op token.Kind, l, r ir.Operand) ir.Operand {
	code, ok := binOpCodes[op]
	if !ok {
		code = ir.NOP
	}
	return b.emit(ir.Op{Code: code, Args: []ir.Operand{l, r}})
}

func (b *builder) unaryOp(op token.Kind, operand int32) ir.Operand {
	v := b.expr(operand)
	var code ir.OpCode
	switch op {
	case token.MINUS:
		code = ir.NEG
	case token.PLUS:
		code = ir.UNM
	case token.TILDE:
		code = ir.BIT_NOT
	case token.NOT_KW:
		code = ir.LOGICAL_NOT
	case token.HASH:
		code = ir.LEN
	default:
		code = ir.NOP
	}
	return b.emit(ir.Op{Code: code, Args: []ir.Operand{v}})
}

// expr lowers one expression subtree to the Operand carrying its value,
// emitting whatever ops/blocks are needed along the way.
func (b *builder) expr(idx int32) ir.Operand {
	n := b.fn.Nodes[idx]

	switch n.Kind {
	case ast.Null:
		return b.emit(ir.Op{Code: ir.CONST_NULL})
	case ast.True:
		return b.emit(ir.Op{Code: ir.CONST_BOOL, ConstBool: true})
	case ast.False:
		return b.emit(ir.Op{Code: ir.CONST_BOOL, ConstBool: false})
	case ast.Number:
		return b.emit(ir.Op{Code: ir.CONST_NUMBER, ConstNumber: b.fn.Payloads[idx].Num})
	case ast.String:
		return b.emit(ir.Op{Code: ir.CONST_STRING, ConstString: b.fn.Payloads[idx].Str})

	// LocalNameSuper/UpvalNameSuper read the same storage slot as self and
	// lower to the same LOCAL_GET/UPVAL_GET; nothing in the IR marks a read
	// as a super read (see DESIGN.md).
	case ast.LocalName, ast.LocalNameSuper:
		return b.emit(ir.Op{Code: ir.LOCAL_GET, Slot: b.fn.Payloads[idx].Index})
	case ast.UpvalName, ast.UpvalNameSuper:
		return b.emit(ir.Op{Code: ir.UPVAL_GET, Slot: b.fn.Payloads[idx].Index})
	case ast.OutenvName:
		return b.emit(ir.Op{Code: ir.OUTENV_GET, Slot: b.fn.Payloads[idx].Index})
	case ast.GlobalName:
		return b.emit(ir.Op{Code: ir.GLOBAL_GET, Name: b.fn.Payloads[idx].Str})

	case ast.Unary:
		return b.unaryOp(n.Op, b.fn.Nodes[idx].Child)

	case ast.Binary, ast.Compare:
		children := ast.Children(b.fn, idx)
		l := b.expr(children[0])
		r := b.expr(children[1])
		return b.binOp(n.Op, l, r)

	case ast.LogicalAnd:
		children := ast.Children(b.fn, idx)
		return b.shortCircuit(false, children[0], children[1])
	case ast.LogicalOr:
		children := ast.Children(b.fn, idx)
		return b.shortCircuit(true, children[0], children[1])

	case ast.IfThenElse:
		return b.ifThenElseExpr(ast.Children(b.fn, idx))

	case ast.Call:
		children := ast.Children(b.fn, idx)
		args := make([]ir.Operand, len(children))
		for i, c := range children {
			args[i] = b.expr(c)
		}
		return b.emit(ir.Op{Code: ir.CALL, Args: args, Pinned: true})

	case ast.Key:
		children := ast.Children(b.fn, idx)
		obj := b.expr(children[0])
		return b.emit(ir.Op{Code: ir.KEY_GET, Args: []ir.Operand{obj}, Name: b.fn.Payloads[idx].Str})

	case ast.Index:
		children := ast.Children(b.fn, idx)
		obj := b.expr(children[0])
		index := b.expr(children[1])
		return b.emit(ir.Op{Code: ir.INDEX_GET, Args: []ir.Operand{obj, index}})

	case ast.Unpack:
		v := b.expr(b.fn.Nodes[idx].Child)
		return b.emit(ir.Op{Code: ir.UNPACK, Args: []ir.Operand{v}})

	case ast.Yield:
		children := ast.Children(b.fn, idx)
		args := make([]ir.Operand, len(children))
		for i, c := range children {
			args[i] = b.expr(c)
		}
		return b.emit(ir.Op{Code: ir.YIELD, Args: args, Pinned: true})

	case ast.YieldFor:
		iter := b.expr(b.fn.Nodes[idx].Child)
		return b.emit(ir.Op{Code: ir.YCALL, Args: []ir.Operand{iter}, Pinned: true})

	case ast.ArrayDef:
		return b.arrayDef(idx)
	case ast.TableDef:
		return b.tableDef(idx)
	case ast.ObjectDef:
		return b.objectDef(idx)

	case ast.FunctionNode:
		return b.closureExpr(idx)

	default:
		return b.emit(ir.Op{Code: ir.CONST_NULL})
	}
}

// shortCircuit lowers "a and b" (isOr false) / "a or b" (isOr true) to the
// B_AND/B_CUT/B_DEF/B_PHI quartet of spec.md §4.4.1, adapted to this
// block-structured IR rather than the original's single-block, linear
// op-index encoding: B_DEF captures the left operand's value for the skip
// edge, the B_AND/B_CUT op is the block's terminator (succs: [evaluate right,
// join] for "and", swapped for "or", matching JUMP_TEST's succs convention),
// and B_PHI merges the two incoming values at the join block.
func (b *builder) shortCircuit(isOr bool, lNode, rNode int32) ir.Operand {
	lVal := b.expr(lNode)
	defVal := b.emit(ir.Op{Code: ir.B_DEF, Args: []ir.Operand{lVal}})

	testBlock := b.cur
	testCode := ir.B_AND
	if isOr {
		testCode = ir.B_CUT
	}
	b.out.NewOp(testBlock, ir.Op{Code: testCode, Args: []ir.Operand{lVal}, Pinned: true})

	rBlock := b.newBlock()
	joinBlock := b.newBlock()
	if isOr {
		b.out.Blocks[testBlock].Succs = []int32{joinBlock, rBlock}
	} else {
		b.out.Blocks[testBlock].Succs = []int32{rBlock, joinBlock}
	}

	b.cur = rBlock
	rVal := b.expr(rNode)
	b.jump(joinBlock)

	b.cur = joinBlock
	return b.emit(ir.Op{Code: ir.B_PHI, Args: []ir.Operand{defVal, rVal}})
}

// ifThenElseExpr lowers the postfix "thenVal if cond else elseVal" form.
// children are in parse order (thenVal, cond, elseVal), per parseExpr.
func (b *builder) ifThenElseExpr(children []int32) ir.Operand {
	thenNode, condNode, elseNode := children[0], children[1], children[2]

	c := b.expr(condNode)
	testBlock := b.cur
	thenB := b.newBlock()
	elseB := b.newBlock()
	b.out.NewOp(testBlock, ir.Op{Code: ir.JUMP_TEST, Args: []ir.Operand{c}, Pinned: true})
	b.out.Blocks[testBlock].Succs = []int32{thenB, elseB}

	b.cur = thenB
	thenVal := b.expr(thenNode)
	joinBlock := b.newBlock()
	b.jump(joinBlock)

	b.cur = elseB
	elseVal := b.expr(elseNode)
	b.jump(joinBlock)

	b.cur = joinBlock
	return b.emit(ir.Op{Code: ir.PHI, Args: []ir.Operand{thenVal, elseVal}})
}

func (b *builder) arrayDef(idx int32) ir.Operand {
	arr := b.emit(ir.Op{Code: ir.NEW_ARRAY})
	for _, c := range ast.Children(b.fn, idx) {
		v := b.expr(c)
		b.out.NewOp(b.cur, ir.Op{Code: ir.APPEND, Args: []ir.Operand{arr, v}, Pinned: true})
	}
	return arr
}

func (b *builder) tableDef(idx int32) ir.Operand {
	tbl := b.emit(ir.Op{Code: ir.NEW_TABLE})
	for _, kv := range ast.Children(b.fn, idx) {
		kc := ast.Children(b.fn, kv)
		key := b.expr(kc[0])
		val := b.expr(kc[1])
		b.out.NewOp(b.cur, ir.Op{Code: ir.TABLE_SET, Args: []ir.Operand{tbl, key, val}, Pinned: true})
	}
	return tbl
}

func (b *builder) objectDef(idx int32) ir.Operand {
	obj := b.emit(ir.Op{Code: ir.NEW_OBJECT})
	for _, d := range ast.Children(b.fn, idx) {
		name := b.fn.Payloads[d].Str
		val := b.expr(b.fn.Nodes[d].Child)
		b.out.NewOp(b.cur, ir.Op{Code: ir.OBJ_SET, Args: []ir.Operand{obj, val}, Pinned: true, Name: name})
	}
	return obj
}

// closureExpr lowers a FunctionNode leaf to a CONST_FUNCTION op: the nested
// function is built recursively into its own ir.Function, and each of its
// OutEnvs entries becomes one captured-value Operand read out of the
// enclosing function's own upstack/outenv storage, in OutEnvs order (the
// emitter threads these into the closure's own upstack at construction time).
func (b *builder) closureExpr(idx int32) ir.Operand {
	nested := b.fn.Payloads[idx].Func
	nestedIR := Build(nested)

	args := make([]ir.Operand, len(nested.OutEnvs))
	for i, oe := range nested.OutEnvs {
		if oe.OuterIsOutEnv {
			args[i] = b.emit(ir.Op{Code: ir.OUTENV_GET, Slot: int32(oe.OuterIndex)})
		} else {
			args[i] = b.emit(ir.Op{Code: ir.UPVAL_GET, Slot: int32(oe.OuterIndex)})
		}
	}
	return b.emit(ir.Op{Code: ir.CONST_FUNCTION, ConstFunc: nestedIR, Args: args})
}
