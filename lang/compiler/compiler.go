// Package compiler wires the whole pipeline together (spec.md §6.2): lex →
// parse → resolve → build IR → fold → constant-inline + register-allocate +
// emit, producing a CompilationResult from source text.
package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/bytecode"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/emitter"
	"github.com/mna/kenafgo/lang/fold"
	"github.com/mna/kenafgo/lang/ir"
	"github.com/mna/kenafgo/lang/irbuild"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/resolver"
	"github.com/mna/kenafgo/lang/source"
)

// DebugFlags selects which intermediate representations Compile writes to
// stdout as it runs, per spec.md §6.2.
type DebugFlags uint16

const (
	DumpASTParsed DebugFlags = 1 << iota
	DumpASTResolved
	DumpIRBuild
	DumpIRFold
	DumpIRCode
)

// CompilationResult is the outcome of one Compile call.
type CompilationResult struct {
	Success     bool
	Diagnostics []diag.Diagnostic
	Code        []byte
}

// Compile runs the full pipeline over text, named filename for diagnostics.
// text is taken as UTF-8; a leading BOM, if present, is not stripped.
func Compile(filename string, text []byte, flags DebugFlags) CompilationResult {
	buf := source.New(filename, text)
	errs := diag.NewSink(filename)

	top := parser.Parse(buf, errs)
	if flags&DumpASTParsed != 0 {
		dumpAST(os.Stdout, "parsed", top)
	}

	resolver.Resolve(buf, errs, top)
	if flags&DumpASTResolved != 0 {
		dumpAST(os.Stdout, "resolved", top)
	}

	if errs.HasErrors() {
		return CompilationResult{Diagnostics: errs.List()}
	}

	topIR := irbuild.Build(top)
	if flags&DumpIRBuild != 0 {
		dumpIRTree(os.Stdout, "build", topIR)
	}

	foldTree(buf, errs, topIR)
	if flags&DumpIRFold != 0 {
		dumpIRTree(os.Stdout, "fold", topIR)
	}

	if errs.HasErrors() {
		return CompilationResult{Diagnostics: errs.List()}
	}

	script := emitter.Run(buf, errs, filename, topIR)
	if errs.HasErrors() {
		return CompilationResult{Diagnostics: errs.List()}
	}

	var encoded bytes.Buffer
	if err := bytecode.Encode(&encoded, script); err != nil {
		errs.Errorf(buf, 0, "internal: %s", err)
		return CompilationResult{Diagnostics: errs.List()}
	}
	out := encoded.Bytes()

	if flags&DumpIRCode != 0 {
		dumpScript(os.Stdout, script)
	}

	return CompilationResult{Success: true, Diagnostics: errs.List(), Code: out}
}

// foldTree runs lang/fold over fn and every function nested within it.
func foldTree(buf *source.Buffer, errs *diag.Sink, fn *ir.Function) {
	fold.Run(buf, errs, fn)
	for _, blk := range fn.Blocks {
		if !blk.Reachable {
			continue
		}
		for _, op := range blk.Ops {
			if op.Code == ir.CONST_FUNCTION && op.ConstFunc != nil {
				foldTree(buf, errs, op.ConstFunc)
			}
		}
	}
}

func dumpAST(w io.Writer, label string, fn *ast.Function) {
	fmt.Fprintf(w, "=== ast (%s) ===\n%s\n", label, ast.Dump(fn))
}

func dumpIRTree(w io.Writer, label string, fn *ir.Function) {
	fmt.Fprintf(w, "=== ir (%s): %s ===\n", label, fn.Name)
	for bi, blk := range fn.Blocks {
		fmt.Fprintf(w, "block %d (reachable=%v succs=%v)\n", bi, blk.Reachable, blk.Succs)
		for oi, op := range blk.Ops {
			fmt.Fprintf(w, "  %3d:%-3d %v args=%v\n", bi, oi, op.Code, op.Args)
		}
	}
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == ir.CONST_FUNCTION && op.ConstFunc != nil {
				dumpIRTree(w, label, op.ConstFunc)
			}
		}
	}
}

func dumpScript(w io.Writer, s *bytecode.Script) {
	fmt.Fprintf(w, "=== code: %s ===\n", s.Name)
	for fi, f := range s.Functions {
		fmt.Fprintf(w, "function %d: %d ops, %d consts, %d selectors\n", fi, len(f.Ops), len(f.Constants), len(f.Selectors))
		for oi, op := range f.Ops {
			fmt.Fprintf(w, "  %4d: op=%d r=%d a=%d b=%d\n", oi, op.Code, op.R, op.A, op.B)
		}
	}
}
