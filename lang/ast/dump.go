package ast

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Dump renders a function's postorder node vector as an indented tree, for
// the parse and resolve CLI subcommands and lang/compiler's
// DumpASTParsed/DumpASTResolved debug flags (spec.md §6.2's debug_flags).
// It gives the flat
// node-vector representation a human-readable structural view, grounded in
// the same debug-dump idiom the teacher's AST printer provides.
func Dump(fn *Function) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("function %s", fn.Name))
	if root := fn.Root(); root != NoIndex {
		dumpNode(fn, root, tree)
	}
	return tree.String()
}

func dumpNode(fn *Function, i int32, parent treeprint.Tree) {
	n := fn.Nodes[i]
	label := fmt.Sprintf("#%d %s", i, n.Kind.KindName())
	switch n.Leaf {
	case LeafString:
		label += fmt.Sprintf(" %q", fn.Payloads[i].Str)
	case LeafNumber:
		label += fmt.Sprintf(" %g", fn.Payloads[i].Num)
	case LeafIndex:
		label += fmt.Sprintf(" [%d,%d]", fn.Payloads[i].Index, fn.Payloads[i].Index2)
	case LeafFunction:
		label += fmt.Sprintf(" -> %s", fn.Payloads[i].Func.Name)
	}

	branch := parent.AddBranch(label)
	for _, c := range Children(fn, i) {
		dumpNode(fn, c, branch)
	}
	if n.Leaf == LeafFunction {
		nested := fn.Payloads[i].Func
		if root := nested.Root(); root != NoIndex {
			dumpNode(nested, root, branch.AddBranch(fmt.Sprintf("(body of %s)", nested.Name)))
		}
	}
}
