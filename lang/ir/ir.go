// Package ir implements the compiler's intermediate representation: an
// SSA-form control-flow graph of basic blocks, each holding a sequence of
// Ops with tagged-union Operands, built by lang/irbuild from the resolved
// AST and consumed by lang/fold, lang/liveness, lang/constinline,
// lang/regalloc and lang/emitter in turn (spec.md §3.5, §4.4-§4.9).
package ir

import "github.com/mna/kenafgo/lang/source"

// OpCode identifies the operation an Op performs.
type OpCode int16

//nolint:revive
const (
	NOP OpCode = iota

	// constants and literals
	CONST_NULL
	CONST_BOOL
	CONST_NUMBER
	CONST_STRING
	CONST_FUNCTION // references a nested ir.Function

	// reads of a resolved binding
	LOCAL_GET
	LOCAL_SET
	UPVAL_GET
	UPVAL_SET
	OUTENV_GET
	OUTENV_SET
	GLOBAL_GET
	GLOBAL_SET

	// arithmetic / bitwise / comparison, one opcode per ast operator
	ADD
	SUB
	MUL
	DIV
	IDIV
	MOD
	CONCAT
	BIT_AND
	BIT_OR
	BIT_XOR
	LSHIFT
	RSHIFT
	ASHIFT
	CMP_LT
	CMP_LE
	CMP_GT
	CMP_GE
	CMP_EQ
	CMP_NE
	CMP_IS
	CMP_ISNOT

	NEG
	UNM // unary plus (numeric coercion)
	BIT_NOT
	LOGICAL_NOT
	LEN

	// aggregates
	NEW_ARRAY
	NEW_TABLE
	NEW_OBJECT
	APPEND     // array literal element
	TABLE_SET  // table literal key/value
	OBJ_SET    // object literal member
	KEY_GET    // obj.key
	KEY_SET
	INDEX_GET  // obj[idx]
	INDEX_SET
	UNPACK

	// calls and generators
	CALL
	YCALL
	YIELD

	// control flow
	JUMP
	// JUMP_TEST is a conditional branch on truthiness. A CMP_* op feeding one
	// is never fused into a single compare-and-branch instruction: the
	// packed {Code,R,A,B} instruction word has no room left for a register, a
	// constant operand and two branch targets at once (see DESIGN.md), so
	// CMP_* always lowers to its own register-form instruction ahead of a
	// separate JUMP_TEST.
	JUMP_TEST
	JUMP_RETURN
	JUMP_FOR_SGEN // step-generator loop test (ForStep)
	JUMP_FOR_EGEN // iterator-generator loop test (ForEach)

	// SSA plumbing
	PHI
	REF // reference to another op's result; lang/irbuild and lang/fold never produce it

	// upstack/closure bookkeeping
	NEW_UPSTACK
	CLOSE_UPSTACK

	// short-circuit lowering quartet (spec.md §4.4.1)
	B_AND
	B_CUT
	B_DEF
	B_PHI

	// constant-inlined forms produced by lang/constinline (spec.md §4.7): one
	// operand of the plain op is folded into the instruction itself rather
	// than occupying a register. The K suffix carries a full pool constant
	// (ConstNumber/ConstString), the I suffix a constant small enough to be
	// inlined directly as an immediate (ConstNumber, always an integral
	// value fitting signed 8 bits).
	ADDK
	ADDI
	SUBK
	SUBI
	MULK
	MULI
	CONCATK
	RCONCATK // c .. v, constant on the left
	GET_INDEXK
	GET_INDEXI
	SET_INDEXK
	SET_INDEXI
)

// OperandKind distinguishes what an Operand refers to.
type OperandKind int8

const (
	OperandNone OperandKind = iota
	OperandOp               // refers to another Op's result, by (block, index)
	OperandImm              // an immediate constant, boxed in Op's own Const fields
	OperandLocal
	OperandUpval
	OperandOutenv
	OperandGlobal
)

// Operand is a tagged reference to one of an Op's inputs.
type Operand struct {
	Kind  OperandKind
	Block int32 // defining block, when Kind == OperandOp
	Index int32 // defining op index within Block, when Kind == OperandOp; or
	// local/upval/outenv/global slot index for the other kinds
}

// Op is one instruction inside a Block. Ops are addressed by their index
// within their own Block: (BlockIndex, OpIndex) is the stable identity a
// REF or Operand uses to refer to this op's result, stable across fold's
// dead-block removal (block indices are never reused once assigned).
type Op struct {
	Code OpCode
	Pos  source.Pos

	Args []Operand

	// ConstBool / ConstNumber / ConstString hold CONST_* immediates.
	ConstBool   bool
	ConstNumber float64
	ConstString string
	ConstFunc   *Function

	// Name carries the selector for KEY_GET/KEY_SET, and the global name for
	// GLOBAL_GET/GLOBAL_SET.
	Name string

	// Slot carries the binding index for LOCAL_GET/SET, UPVAL_GET/SET and
	// OUTENV_GET/SET, the cell count for NEW_UPSTACK, and (once
	// lang/constinline has run) the constant-pool index for CONST_* and any
	// *K op, or the selector-pool index for KEY_GET/KEY_SET/OBJ_SET/
	// GLOBAL_GET/GLOBAL_SET.
	Slot int32

	// Pinned marks an op that must not be reordered or dead-code-eliminated
	// by fold/liveness even if its result looks unused (side-effecting ops:
	// CALL, YCALL, YIELD, stores, control flow), per spec.md §4.6/§4.8.
	Pinned bool

	// Live is not set by any pass of this pipeline; lang/liveness reports
	// liveness in its own Result instead.
	Live bool
}

// Block is one SSA basic block: a straight-line sequence of Ops ending in
// exactly one control-flow op (JUMP/JUMP_TEST/JUMP_RETURN/JUMP_FOR_*), or
// no terminator if it falls through to the next block by index (used only
// before lang/emitter resolves final branch targets).
type Block struct {
	Ops []Op

	// Succs holds this block's successor block indices, redundant with the
	// terminating Op's own jump targets but convenient for fold/liveness
	// graph walks.
	Succs []int32

	// Preds is not filled in by any pass of this pipeline and stays nil;
	// lang/emitter derives predecessor lists itself (computePreds).
	Preds []int32

	// Reachable is computed by lang/fold's reachability sweep; blocks found
	// unreachable from block 0 keep their index but have their ops blanked
	// to NOP by that pass.
	Reachable bool
}

// JumpTargets reports the block(s) this block's last Op can transfer
// control to. Jump targets are held only in Succs: a terminator's Args
// carry its value operands (JUMP_TEST's condition, JUMP_RETURN's values,
// JUMP_FOR_*'s loop state), never block references.
func (b *Block) JumpTargets() []int32 { return b.Succs }

// Function is one lang/ir-level function body: a slice of Blocks, block 0
// always the entry block, plus the same upstack/outenv layout metadata
// carried over from ast.Function (spec.md §4.4.3, §4.8).
type Function struct {
	Name string
	Pos  source.Pos

	NumParams       int
	NumLocals       int
	HasImplicitSelf bool
	IsVararg        bool
	IsGenerator     bool
	MaxUpstackSize  int
	NumOutEnvs      int

	Blocks []Block
}

// NewOp appends op to block bi and returns its index within that block.
func (f *Function) NewOp(bi int32, op Op) int32 {
	b := &f.Blocks[bi]
	idx := int32(len(b.Ops))
	b.Ops = append(b.Ops, op)
	return idx
}

// Ref builds an Operand pointing at the result of the op at (block, index).
func Ref(block, index int32) Operand {
	return Operand{Kind: OperandOp, Block: block, Index: index}
}
