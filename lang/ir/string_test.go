package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpCodeStringCoverage(t *testing.T) {
	for c := OpCode(0); int(c) < len(opCodeNames); c++ {
		require.NotEqual(t, "<invalid opcode>", c.String(), "opcode %d missing a name", c)
	}
}

func TestOpCodeStringUnknown(t *testing.T) {
	require.Equal(t, "<invalid opcode>", OpCode(-1).String())
}
