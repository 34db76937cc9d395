// Package bytecode implements the compiler's serialized image format
// (spec.md §6.3): a code_script header, nested code_function records (ops,
// constant pool, selector pool) and optional code_debug_function records,
// little-endian, with no pointers.
//
// One deviation from the literal spec layout: constants are tagged with a
// leading kind byte rather than packing the tag into the constant's own top
// bit, since a full IEEE-754 payload already uses that bit as its sign (see
// DESIGN.md). Everything else follows the field layout and ordering given in
// spec.md §6.3.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Magic identifies a kenafgo bytecode image.
var Magic = [4]byte{'K', 'B', 'C', '1'}

// ConstKind tags one entry of a Function's constant pool.
type ConstKind uint8

const (
	ConstNull ConstKind = iota
	ConstFalse
	ConstTrue
	ConstNumber
	ConstString
)

// Const is one constant pool entry.
type Const struct {
	Kind ConstKind
	Num  float64
	Str  string
}

// Op is one 32-bit packed instruction: opcode, r (destination), a, b (source
// operands); constant-inlined variants reuse a/b as an 8-bit immediate or
// pun two bytes together for a 16-bit pool index (see lang/emitter's
// emitOrdinary).
type Op struct {
	Code uint8
	R    uint8
	A    uint8
	B    uint8
}

// Opcode numbers, written into Op.Code by lang/emitter and read back by a
// disassembler. One entry per final (post constant-inlining) VM instruction;
// SSA-only IR constructs (PHI, REF, the B_* short-circuit quartet) have no
// opcode here because lang/emitter resolves them into MOVE/JUMP_TEST/nothing
// before an Op is ever produced (see lang/emitter's doc comment).
const (
	OpNop uint8 = iota
	OpLoadNull
	OpLoadBool
	OpLoadConst  // r <- constants[a..b] (16-bit index split across a,b)
	OpLoadFunc   // r <- nested function a (index into the script's function table), capturing b args from r+1..
	OpMove
	OpLocalGet
	OpLocalSet
	OpUpvalGet
	OpUpvalSet
	OpOutenvGet
	OpOutenvSet
	OpGlobalGet // r <- globals[selectors[a..b]]
	OpGlobalSet
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
	OpConcat
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLShift
	OpRShift
	OpAShift
	OpCmpLT
	OpCmpLE
	OpCmpGT
	OpCmpGE
	OpCmpEQ
	OpCmpNE
	OpCmpIs
	OpCmpIsNot
	OpNeg
	OpUnm
	OpBitNot
	OpLogicalNot
	OpLen
	OpNewArray
	OpNewTable
	OpNewObject
	OpAppend
	OpTableSet
	OpObjSet
	OpKeyGet
	OpKeySet
	OpIndexGet
	OpIndexSet
	OpUnpack
	OpCall
	OpYCall
	OpYield
	OpJump
	OpJumpTest
	OpReturn
	OpJumpForSgen
	OpJumpForEgen
	OpNewUpstack
	OpCloseUpstack
	OpAddK
	OpAddI
	OpSubK
	OpSubI
	OpMulK
	OpMulI
	OpConcatK
	OpRConcatK
	OpGetIndexK
	OpGetIndexI
	OpSetIndexK
	OpSetIndexI
	OpThrow
)

// DebugVariable names the local living in register R for VarSpans that
// reference it by index.
type DebugVariable struct {
	Name string
	Reg  uint8
}

// VarSpan records that DebugVariable VariableIndex holds a meaningful value
// for ops in [Lower, Upper).
type VarSpan struct {
	VariableIndex uint32
	Lower, Upper  uint32
}

// DebugFunction is a code_function's optional debug companion.
type DebugFunction struct {
	FunctionName string
	Slocs        []uint32 // one per op, a byte offset into the source text
	Variables    []DebugVariable
	VarSpans     []VarSpan
}

// Function is one code_function record.
type Function struct {
	Ops         []Op
	Constants   []Const
	Selectors   []string
	OutenvCount uint16
	ParamCount  uint8
	StackSize   uint8
	Flags       uint8
	Debug       *DebugFunction
}

// Function flag bits, packed into code_function.flags.
const (
	FlagVararg uint8 = 1 << iota
	FlagGenerator
	FlagImplicitSelf
)

// Script is the top-level code_script image: a name, its functions (function
// 0 is the script's top-level function) and the source's newline offsets
// (for the debug line table).
type Script struct {
	Name          string
	Functions     []Function
	DebugNewlines []uint32
}

// Encode serializes s into the code_script wire format.
func Encode(w io.Writer, s *Script) error {
	heap := newHeapBuilder()
	debugHeap := newHeapBuilder()

	var funcBuf bytes.Buffer
	for i := range s.Functions {
		if err := encodeFunction(&funcBuf, &s.Functions[i], heap, debugHeap); err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
	}
	// sentinel: a code_function with code_size == 0
	if err := binary.Write(&funcBuf, binary.LittleEndian, uint32(0)); err != nil {
		return err
	}

	scriptNameOff := debugHeap.intern(s.Name)

	var out bytes.Buffer
	out.Write(Magic[:])
	writeU32(&out, uint32(len(heap.buf)))
	writeU32(&out, uint32(funcBuf.Len()))
	writeU32(&out, uint32(len(s.DebugNewlines)))
	writeU32(&out, scriptNameOff)

	out.Write(funcBuf.Bytes())
	out.Write(heap.buf)
	for _, n := range s.DebugNewlines {
		writeU32(&out, n)
	}
	out.Write(debugHeap.buf)

	_, err := w.Write(out.Bytes())
	return err
}

func encodeFunction(w *bytes.Buffer, f *Function, heap, debugHeap *heapBuilder) error {
	var body bytes.Buffer
	writeU16(&body, uint16(len(f.Ops)))
	writeU16(&body, uint16(len(f.Constants)))
	writeU16(&body, uint16(len(f.Selectors)))
	writeU16(&body, f.OutenvCount)
	body.WriteByte(f.ParamCount)
	body.WriteByte(f.StackSize)
	body.WriteByte(f.Flags)

	for _, op := range f.Ops {
		body.WriteByte(op.Code)
		body.WriteByte(op.R)
		body.WriteByte(op.A)
		body.WriteByte(op.B)
	}
	for _, c := range f.Constants {
		body.WriteByte(byte(c.Kind))
		switch c.Kind {
		case ConstNumber:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.Num))
			body.Write(buf[:])
		case ConstString:
			writeU64(&body, uint64(heap.intern(c.Str)))
		default:
			writeU64(&body, 0)
		}
	}
	for _, sel := range f.Selectors {
		writeU32(&body, heap.intern(sel))
		writeU32(&body, 0) // reserved
	}

	if f.Debug != nil {
		if err := encodeDebug(&body, f.Debug, debugHeap); err != nil {
			return err
		}
	} else {
		writeU32(&body, 0)
	}

	writeU32(w, uint32(body.Len()))
	w.Write(body.Bytes())
	return nil
}

func encodeDebug(w *bytes.Buffer, d *DebugFunction, debugHeap *heapBuilder) error {
	var body bytes.Buffer
	writeU32(&body, debugHeap.intern(d.FunctionName))
	writeU32(&body, uint32(len(d.Slocs)))
	writeU32(&body, uint32(len(d.Variables)))
	writeU32(&body, uint32(len(d.VarSpans)))
	for _, s := range d.Slocs {
		writeU32(&body, s)
	}
	for _, v := range d.Variables {
		writeU32(&body, debugHeap.intern(v.Name))
		body.WriteByte(v.Reg)
		body.Write([]byte{0, 0, 0})
	}
	for _, sp := range d.VarSpans {
		writeU32(&body, sp.VariableIndex)
		writeU32(&body, sp.Lower)
		writeU32(&body, sp.Upper)
	}
	writeU32(w, uint32(body.Len()))
	w.Write(body.Bytes())
	return nil
}

func writeU16(w *bytes.Buffer, v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.Write(b[:]) }
func writeU32(w *bytes.Buffer, v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.Write(b[:]) }
func writeU64(w *bytes.Buffer, v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.Write(b[:]) }

type heapBuilder struct {
	buf     []byte
	offsets map[string]uint32
}

func newHeapBuilder() *heapBuilder {
	return &heapBuilder{offsets: make(map[string]uint32)}
}

func (h *heapBuilder) intern(s string) uint32 {
	if off, ok := h.offsets[s]; ok {
		return off
	}
	off := uint32(len(h.buf))
	h.buf = append(h.buf, s...)
	h.buf = append(h.buf, 0)
	h.offsets[s] = off
	return off
}
