package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleScript() *Script {
	return &Script{
		Name: "main.kf",
		Functions: []Function{
			{
				Ops: []Op{
					{Code: OpLoadConst, R: 0, A: 0, B: 0},
					{Code: OpLoadConst, R: 1, A: 1, B: 0},
					{Code: OpAdd, R: 2, A: 0, B: 1},
					{Code: OpGlobalSet, R: 2, A: 0, B: 0},
					{Code: OpReturn, R: 0, A: 0, B: 0},
				},
				Constants: []Const{
					{Kind: ConstNumber, Num: 1.5},
					{Kind: ConstNumber, Num: -2},
				},
				Selectors:   []string{"x"},
				ParamCount:  0,
				StackSize:   3,
				OutenvCount: 0,
				Debug: &DebugFunction{
					FunctionName: "main",
					Slocs:        []uint32{0, 4, 9, 14, 20},
					Variables:    []DebugVariable{{Name: "x", Reg: 2}},
					VarSpans:     []VarSpan{{VariableIndex: 0, Lower: 2, Upper: 5}},
				},
			},
			{
				Ops:       []Op{{Code: OpLoadConst, R: 0, A: 0, B: 0}},
				Constants: []Const{{Kind: ConstString, Str: "hello"}},
			},
		},
		DebugNewlines: []uint32{10, 25, 40},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleScript()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, want))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)

	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.DebugNewlines, got.DebugNewlines)
	require.Len(t, got.Functions, len(want.Functions))

	for i, wf := range want.Functions {
		gf := got.Functions[i]
		require.Equal(t, wf.Ops, gf.Ops, "function %d ops", i)
		require.Equal(t, wf.Constants, gf.Constants, "function %d constants", i)
		require.Equal(t, wf.Selectors, gf.Selectors, "function %d selectors", i)
		require.Equal(t, wf.ParamCount, gf.ParamCount)
		require.Equal(t, wf.StackSize, gf.StackSize)
		require.Equal(t, wf.OutenvCount, gf.OutenvCount)
		if wf.Debug == nil {
			require.Nil(t, gf.Debug)
			continue
		}
		require.NotNil(t, gf.Debug)
		require.Equal(t, wf.Debug.FunctionName, gf.Debug.FunctionName)
		require.Equal(t, wf.Debug.Slocs, gf.Debug.Slocs)
		require.Equal(t, wf.Debug.Variables, gf.Debug.Variables)
		require.Equal(t, wf.Debug.VarSpans, gf.Debug.VarSpans)
	}
}

func TestEncodeDedupsStrings(t *testing.T) {
	s := &Script{
		Name: "dup.kf",
		Functions: []Function{{
			Constants: []Const{
				{Kind: ConstString, Str: "same"},
				{Kind: ConstString, Str: "same"},
			},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "same", got.Functions[0].Constants[0].Str)
	require.Equal(t, "same", got.Functions[0].Constants[1].Str)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := Decode([]byte("not a bytecode image"))
	require.Error(t, err)
}

func TestOpNameKnownAndUnknown(t *testing.T) {
	require.Equal(t, "add", OpName(OpAdd))
	require.Equal(t, "throw", OpName(OpThrow))
	require.Equal(t, "op255", OpName(255))
}

func TestDisassembleDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	Disassemble(&buf, sampleScript())
	require.NotEmpty(t, buf.String())
	require.Contains(t, buf.String(), "main.kf")
}
