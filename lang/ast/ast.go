// Package ast implements the compiler's abstract syntax tree, per spec.md
// §3.3: each function owns a flat, postorder vector of variable-width nodes
// plus side tables for locals and outer-environment references. This
// follows the teacher's Design Notes recommendation (a tagged-union node
// type plus a side table indexed by node id) rather than the original
// kenaf C++ layout's in-place variable-width encoding, while preserving the
// postorder/child-index/sibling-chain invariants the rest of the pipeline
// depends on.
package ast

import (
	"github.com/mna/kenafgo/lang/source"
	"github.com/mna/kenafgo/lang/token"
)

// Kind identifies the syntactic category of a Node. Identifier nodes start
// out as Name and are rewritten in place by the resolver to one of the
// *Name/*Decl kinds (spec.md §4.3, §8.1).
type Kind int16

//nolint:revive
const (
	// expressions
	Null Kind = iota
	True
	False
	Number
	String
	Name           // unresolved identifier, rewritten by the resolver
	LocalName      // resolved: local variable read/write
	LocalNameSuper // resolved: local bound to 'super'
	UpvalName      // resolved: this function's own captured local, routed through the upstack
	UpvalNameSuper // resolved: 'super' binding that has itself been captured
	OutenvName     // resolved: captured from an enclosing function
	GlobalName     // resolved: global reference
	Unary
	Binary
	Compare // one comparison a < b; a < b < c parses as (a < b) < c
	LogicalAnd
	LogicalOr
	IfThenElse // x if c else y
	Call
	Key   // obj.key
	Index // obj[idx]
	Unpack
	Yield
	YieldFor
	Lambda
	ObjectDef
	ArrayDef
	TableDef
	KeyVal

	// statements
	VarDecl
	LocalDecl // a single name slot inside a VarDecl/param list/loop header
	ObjKeyDecl
	Assign
	OpAssign
	If
	Elif
	ForStep
	ForEach
	While
	Repeat
	Break
	Continue
	Return
	Throw
	ExprStmt

	// structural
	FunctionNode // leaf holding a *Function for nested/lambda definitions
	Block
	Params
)

// LeafTag identifies which payload slot, if any, follows a node's header.
type LeafTag int8

const (
	NoLeaf LeafTag = iota
	LeafString
	LeafNumber
	LeafFunction
	LeafIndex // a plain integer index: local slot, outenv (index,slot) pair, etc.
)

// Node is one entry in a function's postorder node vector. Parents always
// appear after their children: for node i, Child(i) <= i and every
// descendant index is < i.
type Node struct {
	Kind  Kind
	Pos   source.Pos
	Op    token.Kind // operator, meaningful only for Unary/Binary/Compare/OpAssign
	Child int32      // index of the first (leftmost) child, or -1
	Next  int32      // sibling chain, filled in by Fixup; -1 until then
	Leaf  LeafTag
}

// NoIndex is the sentinel value of an absent Child or Next link.
const NoIndex int32 = -1

// Payload is the side-table entry for a leaf node, indexed by node index.
// Only one field is meaningful, selected by the owning Node's Leaf tag.
type Payload struct {
	Str      string
	Num      float64
	Func     *Function
	Index    int32 // LeafIndex: local slot index, or packed (outenv, slot) pair
	Index2   int32 // second half of a packed pair (e.g. outenv slot)
}

// Local describes one local variable slot of a Function (spec.md §3.4).
type Local struct {
	Name            string
	Decl            source.Pos
	IsParameter     bool
	IsVararg        bool
	IsImplicitSelf  bool
	Captured        bool // set by the resolver; local lives in the upstack
	UpstackIndex    int  // valid iff Captured
	VarenvSlot      int  // slot in the declaring block's environment record; no pass assigns it, so it stays 0
}

// OutEnv describes how an inner function imports one captured value from
// its lexically enclosing function (spec.md §3.4).
type OutEnv struct {
	OuterIndex   int  // index into the outer function's Locals or OutEnvs
	OuterIsOutEnv bool // true: OuterIndex indexes the outer function's OutEnvs; false: its Locals
}

// Flags is a bitmask of function-level properties.
type Flags uint8

const (
	FlagTopLevel Flags = 1 << iota
	FlagGenerator
	FlagVararg
	FlagImplicitSelf
)

// Function is one lexical function (including the implicit top-level
// function and nested lambdas/defs). Its Nodes vector is a flat postorder
// encoding of its body.
type Function struct {
	Name  string
	Pos   source.Pos
	Flags Flags

	Locals  []*Local
	OutEnvs []OutEnv

	Nodes    []Node
	Payloads []Payload // parallel to Nodes; only valid where Nodes[i].Leaf != NoLeaf

	MaxUpstackSize int

	// Parent is the lexically enclosing function, nil for the top-level
	// function.
	Parent *Function
}

// Root returns the outermost (root) node of the function's body, which is
// always the last entry appended (postorder: parents after children).
func (f *Function) Root() int32 {
	if len(f.Nodes) == 0 {
		return NoIndex
	}
	return int32(len(f.Nodes) - 1)
}

// Payload returns the payload for node i, or the zero Payload if i has none.
func (f *Function) Payload(i int32) Payload {
	if i < 0 || int(i) >= len(f.Payloads) {
		return Payload{}
	}
	return f.Payloads[i]
}
