package ast

import (
	"github.com/mna/kenafgo/lang/source"
	"github.com/mna/kenafgo/lang/token"
)

// Builder appends nodes to a Function's postorder node vector through a
// narrow API, mirroring the teacher's (and the original kenaf parser's)
// node-builder methods: node, string_node, number_node, function_node,
// index_node.
type Builder struct {
	Fn *Function
}

// NewBuilder creates a Builder over a fresh Function.
func NewBuilder(fn *Function) *Builder { return &Builder{Fn: fn} }

func (b *Builder) push(n Node, p Payload) int32 {
	idx := int32(len(b.Fn.Nodes))
	b.Fn.Nodes = append(b.Fn.Nodes, n)
	b.Fn.Payloads = append(b.Fn.Payloads, p)
	return idx
}

// Node appends an internal node whose first child is at index child (or
// NoIndex if it has no children).
func (b *Builder) Node(kind Kind, pos source.Pos, child int32) int32 {
	return b.push(Node{Kind: kind, Pos: pos, Child: child, Next: NoIndex}, Payload{})
}

// OpNode appends an internal node that carries an operator, for Unary,
// Binary, Compare and OpAssign nodes.
func (b *Builder) OpNode(kind Kind, pos source.Pos, op token.Kind, child int32) int32 {
	return b.push(Node{Kind: kind, Pos: pos, Op: op, Child: child, Next: NoIndex}, Payload{})
}

// StringNode appends a leaf node carrying an interned string payload.
func (b *Builder) StringNode(kind Kind, pos source.Pos, s string) int32 {
	return b.push(Node{Kind: kind, Pos: pos, Child: NoIndex, Next: NoIndex, Leaf: LeafString}, Payload{Str: s})
}

// NumberNode appends a leaf node carrying a number payload.
func (b *Builder) NumberNode(kind Kind, pos source.Pos, n float64) int32 {
	return b.push(Node{Kind: kind, Pos: pos, Child: NoIndex, Next: NoIndex, Leaf: LeafNumber}, Payload{Num: n})
}

// FunctionNode appends a leaf node referencing a nested Function (lambda or
// named def).
func (b *Builder) FunctionNode(pos source.Pos, fn *Function) int32 {
	return b.push(Node{Kind: FunctionNode, Pos: pos, Child: NoIndex, Next: NoIndex, Leaf: LeafFunction}, Payload{Func: fn})
}

// IndexNode appends a leaf node carrying a plain integer index payload (used
// after resolution for local slots and packed outenv (index, slot) pairs).
func (b *Builder) IndexNode(kind Kind, pos source.Pos, index, index2 int32) int32 {
	return b.push(Node{Kind: kind, Pos: pos, Child: NoIndex, Next: NoIndex, Leaf: LeafIndex}, Payload{Index: index, Index2: index2})
}

// RewriteName turns an unresolved Name node into one of the resolved leaf
// kinds, called by the resolver (spec.md §4.3). The node keeps its original
// position; its payload is replaced according to kind.
func (b *Builder) RewriteName(nodeIdx int32, kind Kind, index, index2 int32) {
	n := &b.Fn.Nodes[nodeIdx]
	n.Kind = kind
	n.Leaf = LeafIndex
	b.Fn.Payloads[nodeIdx] = Payload{Index: index, Index2: index2}
}

// RewriteGlobal turns an unresolved Name node into a GlobalName, keeping its
// original string payload (the global's name).
func (b *Builder) RewriteGlobal(nodeIdx int32) {
	b.Fn.Nodes[nodeIdx].Kind = GlobalName
	// Leaf stays LeafString; payload (the name) is already in place.
}

// Fixup computes every node's Next sibling-chain pointer from the Child
// (first-child) pointers alone, in a single left-to-right pass. This works
// because the vector is a postorder encoding: a subtree's span is contiguous and ends exactly at its
// root's own index, so each node's children group opens precisely when the
// index equal to its Child field is reached, and closes precisely at the
// node's own index.
func Fixup(fn *Function) {
	n := len(fn.Nodes)
	if n == 0 {
		return
	}

	// parentOf[c] = p means Nodes[p].Child == c: node c starts the children
	// group that node p will close.
	parentOf := make(map[int32]int32, n)
	for i := range fn.Nodes {
		if c := fn.Nodes[i].Child; c != NoIndex {
			parentOf[c] = int32(i)
		}
	}

	type group struct {
		closeAt   int32
		lastChild int32
	}
	var stack []group

	for i := 0; i < n; i++ {
		idx := int32(i)

		// Step 1: if this node has children, their group (opened earlier, when
		// we reached Nodes[i].Child) closes now.
		if fn.Nodes[i].Child != NoIndex {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			fn.Nodes[top.lastChild].Next = idx
		}

		// Step 2: if this node starts some later parent's children group, open it.
		if p, ok := parentOf[idx]; ok {
			stack = append(stack, group{closeAt: p, lastChild: NoIndex})
		}

		// Step 3: attach this node as the next sibling within whatever group is
		// now on top (its own parent's children group), if any.
		if len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.lastChild != NoIndex {
				fn.Nodes[top.lastChild].Next = idx
			}
			top.lastChild = idx
		}
	}
}
