package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Decode parses a code_script image produced by Encode.
func Decode(data []byte) (*Script, error) {
	if len(data) < 20 || [4]byte(data[:4]) != Magic {
		return nil, fmt.Errorf("bytecode: bad magic")
	}
	heapSize := binary.LittleEndian.Uint32(data[4:8])
	funcSize := binary.LittleEndian.Uint32(data[8:12])
	newlineCount := binary.LittleEndian.Uint32(data[12:16])
	scriptNameOff := binary.LittleEndian.Uint32(data[16:20])

	off := 20
	funcRegion := data[off : off+int(funcSize)]
	off += int(funcSize)
	heap := data[off : off+int(heapSize)]
	off += int(heapSize)

	newlines := make([]uint32, newlineCount)
	for i := range newlines {
		newlines[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}
	debugHeap := data[off:]

	s := &Script{Name: cString(debugHeap, scriptNameOff), DebugNewlines: newlines}

	fr := funcRegion
	for len(fr) > 0 {
		size := binary.LittleEndian.Uint32(fr[:4])
		fr = fr[4:]
		if size == 0 {
			break
		}
		fn, err := decodeFunction(fr[:size], heap, debugHeap)
		if err != nil {
			return nil, err
		}
		s.Functions = append(s.Functions, fn)
		fr = fr[size:]
	}
	return s, nil
}

func decodeFunction(body, heap, debugHeap []byte) (Function, error) {
	if len(body) < 11 {
		return Function{}, fmt.Errorf("bytecode: truncated function header")
	}
	var f Function
	opCount := binary.LittleEndian.Uint16(body[0:2])
	constCount := binary.LittleEndian.Uint16(body[2:4])
	selCount := binary.LittleEndian.Uint16(body[4:6])
	f.OutenvCount = binary.LittleEndian.Uint16(body[6:8])
	f.ParamCount = body[8]
	f.StackSize = body[9]
	f.Flags = body[10]
	p := 11

	if opCount > 0 {
		f.Ops = make([]Op, opCount)
	}
	for i := range f.Ops {
		f.Ops[i] = Op{Code: body[p], R: body[p+1], A: body[p+2], B: body[p+3]}
		p += 4
	}

	if constCount > 0 {
		f.Constants = make([]Const, constCount)
	}
	for i := range f.Constants {
		kind := ConstKind(body[p])
		p++
		switch kind {
		case ConstNumber:
			bits := binary.LittleEndian.Uint64(body[p : p+8])
			f.Constants[i] = Const{Kind: kind, Num: math.Float64frombits(bits)}
		case ConstString:
			heapOff := binary.LittleEndian.Uint64(body[p : p+8])
			f.Constants[i] = Const{Kind: kind, Str: cString(heap, uint32(heapOff))}
		default:
			f.Constants[i] = Const{Kind: kind}
		}
		p += 8
	}

	if selCount > 0 {
		f.Selectors = make([]string, selCount)
	}
	for i := range f.Selectors {
		keyOff := binary.LittleEndian.Uint32(body[p : p+4])
		f.Selectors[i] = cString(heap, keyOff)
		p += 8 // key offset + reserved
	}

	debugSize := binary.LittleEndian.Uint32(body[p : p+4])
	p += 4
	if debugSize > 0 {
		d, err := decodeDebug(body[p:p+int(debugSize)], debugHeap)
		if err != nil {
			return Function{}, err
		}
		f.Debug = d
	}
	return f, nil
}

func decodeDebug(body, debugHeap []byte) (*DebugFunction, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("bytecode: truncated debug function")
	}
	d := &DebugFunction{}
	nameOff := binary.LittleEndian.Uint32(body[0:4])
	slocCount := binary.LittleEndian.Uint32(body[4:8])
	varCount := binary.LittleEndian.Uint32(body[8:12])
	spanCount := binary.LittleEndian.Uint32(body[12:16])
	d.FunctionName = cString(debugHeap, nameOff)
	p := 16

	d.Slocs = make([]uint32, slocCount)
	for i := range d.Slocs {
		d.Slocs[i] = binary.LittleEndian.Uint32(body[p : p+4])
		p += 4
	}
	d.Variables = make([]DebugVariable, varCount)
	for i := range d.Variables {
		off := binary.LittleEndian.Uint32(body[p : p+4])
		reg := body[p+4]
		d.Variables[i] = DebugVariable{Name: cString(debugHeap, off), Reg: reg}
		p += 8
	}
	d.VarSpans = make([]VarSpan, spanCount)
	for i := range d.VarSpans {
		d.VarSpans[i] = VarSpan{
			VariableIndex: binary.LittleEndian.Uint32(body[p : p+4]),
			Lower:         binary.LittleEndian.Uint32(body[p+4 : p+8]),
			Upper:         binary.LittleEndian.Uint32(body[p+8 : p+12]),
		}
		p += 12
	}
	return d, nil
}

func cString(heap []byte, off uint32) string {
	end := off
	for end < uint32(len(heap)) && heap[end] != 0 {
		end++
	}
	return string(heap[off:end])
}

var opNames = [...]string{
	OpNop: "nop", OpLoadNull: "load_null", OpLoadBool: "load_bool", OpLoadConst: "load_const",
	OpLoadFunc: "load_func", OpMove: "move",
	OpLocalGet: "local_get", OpLocalSet: "local_set",
	OpUpvalGet: "upval_get", OpUpvalSet: "upval_set",
	OpOutenvGet: "outenv_get", OpOutenvSet: "outenv_set",
	OpGlobalGet: "global_get", OpGlobalSet: "global_set",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpIDiv: "idiv", OpMod: "mod",
	OpConcat: "concat", OpBitAnd: "bit_and", OpBitOr: "bit_or", OpBitXor: "bit_xor",
	OpLShift: "lshift", OpRShift: "rshift", OpAShift: "ashift",
	OpCmpLT: "cmp_lt", OpCmpLE: "cmp_le", OpCmpGT: "cmp_gt", OpCmpGE: "cmp_ge",
	OpCmpEQ: "cmp_eq", OpCmpNE: "cmp_ne", OpCmpIs: "cmp_is", OpCmpIsNot: "cmp_isnot",
	OpNeg: "neg", OpUnm: "unm", OpBitNot: "bit_not", OpLogicalNot: "logical_not", OpLen: "len",
	OpNewArray: "new_array", OpNewTable: "new_table", OpNewObject: "new_object",
	OpAppend: "append", OpTableSet: "table_set", OpObjSet: "obj_set",
	OpKeyGet: "key_get", OpKeySet: "key_set", OpIndexGet: "index_get", OpIndexSet: "index_set",
	OpUnpack: "unpack", OpCall: "call", OpYCall: "ycall", OpYield: "yield",
	OpJump: "jump", OpJumpTest: "jump_test", OpReturn: "return",
	OpJumpForSgen: "jump_for_sgen", OpJumpForEgen: "jump_for_egen",
	OpNewUpstack: "new_upstack", OpCloseUpstack: "close_upstack",
	OpAddK: "addk", OpAddI: "addi", OpSubK: "subk", OpSubI: "subi", OpMulK: "mulk", OpMulI: "muli",
	OpConcatK: "concatk", OpRConcatK: "rconcatk",
	OpGetIndexK: "get_indexk", OpGetIndexI: "get_indexi",
	OpSetIndexK: "set_indexk", OpSetIndexI: "set_indexi",
	OpThrow: "throw",
}

// OpName returns a short mnemonic for a wire opcode, used by Disassemble.
func OpName(code uint8) string {
	if int(code) < len(opNames) && opNames[code] != "" {
		return opNames[code]
	}
	return fmt.Sprintf("op%d", code)
}

// Disassemble writes a human-readable listing of every function in s to w.
func Disassemble(w io.Writer, s *Script) {
	fmt.Fprintf(w, "; script %s\n", s.Name)
	for fi, f := range s.Functions {
		fmt.Fprintf(w, "function %d: params=%d stack=%d flags=%#x\n", fi, f.ParamCount, f.StackSize, f.Flags)
		for oi, op := range f.Ops {
			fmt.Fprintf(w, "  %4d  %-12s r%d a%d b%d\n", oi, OpName(op.Code), op.R, op.A, op.B)
		}
		for ci, c := range f.Constants {
			switch c.Kind {
			case ConstNumber:
				fmt.Fprintf(w, "  const[%d] = %g\n", ci, c.Num)
			case ConstString:
				fmt.Fprintf(w, "  const[%d] = %q\n", ci, c.Str)
			default:
				fmt.Fprintf(w, "  const[%d] = <%d>\n", ci, c.Kind)
			}
		}
		for si, sel := range f.Selectors {
			fmt.Fprintf(w, "  selector[%d] = %s\n", si, sel)
		}
	}
}
