package compiler_test

import (
	"bytes"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"

	"github.com/mna/kenafgo/lang/bytecode"
	"github.com/mna/kenafgo/lang/compiler"
)

// disassemble renders a compiled script's disassembly to a string, so two
// compilations can be compared at the instruction level rather than as an
// opaque byte blob.
func disassemble(t *testing.T, res compiler.CompilationResult) string {
	t.Helper()
	script := decode(t, res)
	var buf bytes.Buffer
	bytecode.Disassemble(&buf, script)
	return buf.String()
}

func decode(t *testing.T, res compiler.CompilationResult) *bytecode.Script {
	t.Helper()
	require.True(t, res.Success)
	script, err := bytecode.Decode(res.Code)
	require.NoError(t, err)
	return script
}

// TestEmptyProgram covers an empty source file: one top-level function with
// a single implicit vararg parameter, no constants, a single RETURN.
func TestEmptyProgram(t *testing.T) {
	res := compiler.Compile("empty.kf", []byte(""), 0)
	require.Empty(t, res.Diagnostics)
	script := decode(t, res)

	require.Len(t, script.Functions, 1)
	fn := script.Functions[0]
	require.EqualValues(t, 1, fn.ParamCount)
	require.NotZero(t, fn.Flags&bytecode.FlagVararg)
	require.Empty(t, fn.Constants)
	require.Empty(t, fn.Selectors)
	require.Len(t, fn.Ops, 1)
	require.Equal(t, bytecode.OpReturn, fn.Ops[0].Code)
}

// TestArithmeticConstantFolding covers 2 + 3 * 4 folding down to a single
// constant-load before the RETURN, with the constant pool holding the exact
// IEEE 754 bit pattern for 14.0.
func TestArithmeticConstantFolding(t *testing.T) {
	res := compiler.Compile("fold.kf", []byte("return 2 + 3 * 4"), 0)
	require.Empty(t, res.Diagnostics)
	script := decode(t, res)

	fn := script.Functions[0]
	require.Len(t, fn.Constants, 1)
	require.Equal(t, bytecode.ConstNumber, fn.Constants[0].Kind)
	require.Equal(t, 14.0, fn.Constants[0].Num)

	var loads, returns int
	for _, op := range fn.Ops {
		switch op.Code {
		case bytecode.OpLoadConst:
			loads++
		case bytecode.OpReturn:
			returns++
		case bytecode.OpAdd, bytecode.OpMul, bytecode.OpAddK, bytecode.OpAddI, bytecode.OpMulK, bytecode.OpMulI:
			t.Fatalf("arithmetic op %s survived folding", bytecode.OpName(op.Code))
		}
	}
	require.Equal(t, 1, loads)
	require.Equal(t, 1, returns)
}

// TestUndeclaredGlobalAssignment covers assignment to a bare identifier that
// never resolves to a local, upvalue or outenv: a resolve-time error, no
// bytecode produced.
func TestUndeclaredGlobalAssignment(t *testing.T) {
	res := compiler.Compile("badassign.kf", []byte("y = 1"), 0)
	require.False(t, res.Success)
	require.Empty(t, res.Code)
	require.Len(t, res.Diagnostics, 1)

	d := res.Diagnostics[0]
	require.Equal(t, 1, d.Line)
	require.Equal(t, 1, d.Column)
	require.Contains(t, d.Message, "cannot assign to undeclared identifier 'y'")
}

// TestBreakOutsideLoop covers a bare break statement with no enclosing loop.
func TestBreakOutsideLoop(t *testing.T) {
	res := compiler.Compile("badbreak.kf", []byte("break"), 0)
	require.False(t, res.Success)
	require.Len(t, res.Diagnostics, 1)
	require.Contains(t, res.Diagnostics[0].Message, "invalid 'break' outside of loop")
}

// TestContinueOutsideLoop mirrors TestBreakOutsideLoop for continue.
func TestContinueOutsideLoop(t *testing.T) {
	res := compiler.Compile("badcontinue.kf", []byte("continue"), 0)
	require.False(t, res.Success)
	require.Len(t, res.Diagnostics, 1)
	require.Contains(t, res.Diagnostics[0].Message, "invalid 'continue' outside of loop")
}

// TestStringConcatFolding covers "a" ~ "b" ~ "c" folding to a single "abc"
// constant load.
func TestStringConcatFolding(t *testing.T) {
	res := compiler.Compile("concat.kf", []byte(`return "a" ~ "b" ~ "c"`), 0)
	require.Empty(t, res.Diagnostics)
	script := decode(t, res)

	fn := script.Functions[0]
	require.Contains(t, constStrings(fn), "abc")

	for _, op := range fn.Ops {
		require.NotEqual(t, bytecode.OpConcat, op.Code)
		require.NotEqual(t, bytecode.OpConcatK, op.Code)
		require.NotEqual(t, bytecode.OpRConcatK, op.Code)
	}
}

func constStrings(fn bytecode.Function) []string {
	var out []string
	for _, c := range fn.Constants {
		if c.Kind == bytecode.ConstString {
			out = append(out, c.Str)
		}
	}
	return out
}

// TestDeterminism covers spec.md §8.1's determinism invariant: compiling the
// same input twice produces byte-identical bytecode. On mismatch it renders a
// unified diff of the two disassemblies rather than a raw byte dump, so a
// regression here points straight at the diverging instruction.
func TestDeterminism(t *testing.T) {
	text := []byte("var a = 1\nvar b = 2\nreturn a + b")
	r1 := compiler.Compile("det.kf", text, 0)
	r2 := compiler.Compile("det.kf", text, 0)
	require.True(t, r1.Success)
	require.True(t, r2.Success)

	if !bytes.Equal(r1.Code, r2.Code) {
		d1, d2 := disassemble(t, r1), disassemble(t, r2)
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(d1),
			B:        difflib.SplitLines(d2),
			FromFile: "compile 1",
			ToFile:   "compile 2",
			Context:  2,
		})
		require.NoError(t, err)
		t.Fatalf("non-deterministic compilation:\n%s", diff)
	}
}
