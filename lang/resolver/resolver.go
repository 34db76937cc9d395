// Package resolver implements the compiler's name resolution pass
// (spec.md §4.3): it classifies every identifier reference as a local,
// upvalue (a captured local accessed by its own declaring function),
// outenv (a captured local accessed by an inner function) or global
// reference, rewriting each ast.Name node in place via ast.Builder, and
// computes the upstack layout (which locals move to heap-allocated cells
// because some inner closure captures them) and each function's outenv
// import list.
//
// The flat postorder AST groups all of a function's local declarations
// (parameters, var-decls, loop induction variables) into Function.Locals
// in declaration order, with no separate per-block scope structure; this
// resolver therefore treats locals as function-scoped rather than
// block-scoped (see DESIGN.md for the rationale). A name's visible binding
// is the last one declared with that spelling in the function, which
// approximates ordinary shadowing without needing a scope stack.
package resolver

import (
	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/source"
)

type resolver struct {
	buf  *source.Buffer
	errs *diag.Sink

	// outenvByName memoizes, per function, the OutEnv index already created
	// for a given captured name, so repeated references import it once.
	outenvByName map[*ast.Function]map[string]int32

	// nextUpstack tracks the next free upstack slot per function, assigned
	// the first time one of its locals is captured by a descendant.
	nextUpstack map[*ast.Function]int
}

// Resolve name-resolves every function reachable from top, in place.
func Resolve(buf *source.Buffer, errs *diag.Sink, top *ast.Function) {
	r := &resolver{
		buf:          buf,
		errs:         errs,
		outenvByName: make(map[*ast.Function]map[string]int32),
		nextUpstack:  make(map[*ast.Function]int),
	}
	r.resolveFunction(top)
}

func (r *resolver) resolveFunction(fn *ast.Function) {
	r.checkRedeclarations(fn)

	// Resolve every nested function first: only once all of them have run can
	// we know which of fn's own locals were captured, and therefore whether a
	// reference to one of fn's own locals becomes UpvalName or stays LocalName.
	for i := range fn.Nodes {
		if fn.Nodes[i].Leaf == ast.LeafFunction {
			r.resolveFunction(fn.Payloads[i].Func)
		}
	}
	fn.MaxUpstackSize = r.nextUpstack[fn]

	root := fn.Root()
	if root != ast.NoIndex {
		r.walk(fn, root, 0)
	}
}

// checkRedeclarations reports duplicate parameter names. Re-declaring a
// plain local with var is ordinary shadowing (the last declaration wins,
// see lastLocalIndex) and is not an error; only the parameter list, whose
// names must each denote a distinct argument slot, is checked here.
func (r *resolver) checkRedeclarations(fn *ast.Function) {
	seen := make(map[string]source.Pos)
	for _, l := range fn.Locals {
		if !l.IsParameter {
			continue
		}
		if _, ok := seen[l.Name]; ok {
			r.errs.Errorf(r.buf, l.Decl, "duplicate parameter %q", l.Name)
			continue
		}
		seen[l.Name] = l.Decl
	}
}

// walk performs the resolver's single structural pass over fn's own node
// tree (never descending into a nested Function's Nodes, since those belong
// to a separate slice already resolved by resolveFunction). loopDepth
// tracks loop nesting for break/continue validation.
func (r *resolver) walk(fn *ast.Function, idx int32, loopDepth int) {
	n := &fn.Nodes[idx]

	switch n.Kind {
	case ast.Name:
		r.resolveName(fn, idx)
		return // leaf, no children
	case ast.Break, ast.Continue:
		if loopDepth == 0 {
			word := "break"
			if n.Kind == ast.Continue {
				word = "continue"
			}
			r.errs.Errorf(r.buf, n.Pos, "invalid '%s' outside of loop", word)
		}
		return
	case ast.Assign:
		r.walkAssign(fn, idx, loopDepth)
		return
	case ast.OpAssign:
		r.walkOpAssign(fn, idx, loopDepth)
		return
	}

	childLoopDepth := loopDepth
	switch n.Kind {
	case ast.While, ast.Repeat, ast.ForStep, ast.ForEach:
		childLoopDepth = loopDepth + 1
	}

	if n.Kind == ast.LocalDecl {
		r.resolveLocalDecl(fn, idx)
	}

	for _, c := range ast.Children(fn, idx) {
		r.walk(fn, c, childLoopDepth)
	}
}

// walkAssign resolves an Assign node's children (irbuild.go's assign() splits
// them the same way: [lhs1..lhsN, rhs1..rhsM]) and checks every left-hand
// target once resolved, since only assignment position makes an undeclared
// identifier an error (a plain read of one is an ordinary global reference).
func (r *resolver) walkAssign(fn *ast.Function, idx int32, loopDepth int) {
	children := ast.Children(fn, idx)
	half := len(children) / 2
	lhs, rhs := children[:half], children[half:]
	for _, c := range lhs {
		r.walk(fn, c, loopDepth)
		r.checkAssignTarget(fn, c)
	}
	for _, c := range rhs {
		r.walk(fn, c, loopDepth)
	}
}

// walkOpAssign resolves an OpAssign node's [target, rhs] children (see
// irbuild.go's opAssign()), checking the target the same way walkAssign does.
func (r *resolver) walkOpAssign(fn *ast.Function, idx int32, loopDepth int) {
	children := ast.Children(fn, idx)
	if len(children) != 2 {
		return
	}
	r.walk(fn, children[0], loopDepth)
	r.checkAssignTarget(fn, children[0])
	r.walk(fn, children[1], loopDepth)
}

// checkAssignTarget reports an error if targetIdx resolved to a global: this
// language has no implicit global declaration, so assigning to an identifier
// that isn't a local, upvalue or outenv is invalid (a Key or
// Index target is always fine, since it assigns through an already-resolved
// object expression).
func (r *resolver) checkAssignTarget(fn *ast.Function, targetIdx int32) {
	n := &fn.Nodes[targetIdx]
	if n.Kind == ast.GlobalName {
		name := fn.Payloads[targetIdx].Str
		r.errs.Errorf(r.buf, n.Pos, "cannot assign to undeclared identifier '%s'", name)
	}
}

// resolveLocalDecl rewrites a LocalDecl leaf (a name, as parsed) into its
// resolved local slot index, so later passes don't need to re-look-up the
// binding by name.
func (r *resolver) resolveLocalDecl(fn *ast.Function, idx int32) {
	name := fn.Payloads[idx].Str
	slot, ok := lastLocalIndex(fn, name)
	if !ok {
		// parser always pre-declares the Local alongside the LocalDecl node;
		// reaching here would be an internal inconsistency.
		return
	}
	b := ast.NewBuilder(fn)
	b.RewriteName(idx, ast.LocalDecl, int32(slot), 0)
}

func lastLocalIndex(fn *ast.Function, name string) (int, bool) {
	for i := len(fn.Locals) - 1; i >= 0; i-- {
		if fn.Locals[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveName rewrites a Name leaf node to one of the resolved kinds.
// "super" resolves against the same storage slot as "self", distinguished
// only by the *Super node kind; lang/irbuild lowers both kinds to the same
// read as self. It is not itself a separate binding.
func (r *resolver) resolveName(fn *ast.Function, idx int32) {
	name := fn.Payloads[idx].Str
	isSuper := name == "super"
	lookup := name
	if isSuper {
		lookup = "self"
	}

	b := ast.NewBuilder(fn)

	if slot, ok := lastLocalIndex(fn, lookup); ok {
		loc := fn.Locals[slot]
		if loc.Captured {
			kind := ast.UpvalName
			if isSuper {
				kind = ast.UpvalNameSuper
			}
			b.RewriteName(idx, kind, int32(loc.UpstackIndex), 0)
		} else {
			kind := ast.LocalName
			if isSuper {
				kind = ast.LocalNameSuper
			}
			b.RewriteName(idx, kind, int32(slot), 0)
		}
		return
	}

	if outIdx, ok := r.importFromAncestor(fn, lookup); ok {
		// The *Super distinction is dropped once a captured self/super crosses
		// a function boundary: both become a plain OutenvName (see DESIGN.md).
		b.RewriteName(idx, ast.OutenvName, outIdx, 0)
		return
	}

	if fn.Parent == nil && lookup == "self" {
		r.errs.Errorf(r.buf, fn.Nodes[idx].Pos, "'self' used outside of a method")
		return
	}

	b.RewriteGlobal(idx)
}

// importFromAncestor finds or creates an OutEnv entry in fn importing name
// from the nearest enclosing function that binds it, marking every
// intermediate function's own capture chain along the way. It returns false
// if no enclosing function binds name (a global reference).
func (r *resolver) importFromAncestor(fn *ast.Function, name string) (int32, bool) {
	if fn.Parent == nil {
		return 0, false
	}
	if m, ok := r.outenvByName[fn]; ok {
		if idx, ok := m[name]; ok {
			return idx, true
		}
	}

	parent := fn.Parent
	if slot, ok := lastLocalIndex(parent, name); ok {
		loc := parent.Locals[slot]
		if !loc.Captured {
			loc.Captured = true
			loc.UpstackIndex = r.nextUpstack[parent]
			r.nextUpstack[parent]++
		}
		idx := r.addOutEnv(fn, ast.OutEnv{OuterIndex: loc.UpstackIndex, OuterIsOutEnv: false})
		r.remember(fn, name, idx)
		return idx, true
	}

	if parentOutIdx, ok := r.importFromAncestor(parent, name); ok {
		idx := r.addOutEnv(fn, ast.OutEnv{OuterIndex: int(parentOutIdx), OuterIsOutEnv: true})
		r.remember(fn, name, idx)
		return idx, true
	}

	return 0, false
}

func (r *resolver) addOutEnv(fn *ast.Function, oe ast.OutEnv) int32 {
	fn.OutEnvs = append(fn.OutEnvs, oe)
	return int32(len(fn.OutEnvs) - 1)
}

func (r *resolver) remember(fn *ast.Function, name string, idx int32) {
	m, ok := r.outenvByName[fn]
	if !ok {
		m = make(map[string]int32)
		r.outenvByName[fn] = m
	}
	m[name] = idx
}
