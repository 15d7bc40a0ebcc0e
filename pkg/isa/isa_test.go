package isa_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilvm/vigil/pkg/isa"
)

func TestDeoptimizeRoundTripsGenericOpcodesUnchanged(t *testing.T) {
	assert.Equal(t, isa.OpAdd, isa.Deoptimize(isa.OpAdd))
	assert.False(t, isa.IsIC(isa.OpAdd))
}

func TestDeoptimizeMapsEveryICVariantToAGenericOpcode(t *testing.T) {
	ics := []isa.Op{
		isa.OpCallObjFuncIC, isa.OpCallObjNativeFuncIC, isa.OpCallFuncIC,
		isa.OpCallNativeFuncIC, isa.OpFieldIC, isa.OpFieldRetainIC, isa.OpSetFieldReleaseIC,
	}
	for _, ic := range ics {
		assert.True(t, isa.IsIC(ic), ic.String())
		generic := isa.Deoptimize(ic)
		assert.False(t, isa.IsIC(generic), "%s should deoptimize to a generic opcode", ic)
	}
}

func TestAssembleSimpleArithmeticProgram(t *testing.T) {
	src := `
start:
	ConstI8Int r0, 2
	ConstI8Int r1, 3
	Add r2, r0, r1
	Ret1 r2
`
	var instrs []isa.Instr
	for ioe := range isa.StartAssembler(strings.NewReader(src)) {
		require.NoError(t, ioe.Error)
		instrs = append(instrs, ioe.Instr)
	}
	require.Len(t, instrs, 4)
	assert.Equal(t, isa.OpConstI8Int, instrs[0].Op)
	assert.Equal(t, uint8(0), instrs[0].A)
	assert.Equal(t, int32(2), instrs[0].Imm)
	assert.Equal(t, isa.OpAdd, instrs[2].Op)
	assert.Equal(t, uint8(2), instrs[2].A)
	assert.Equal(t, uint8(0), instrs[2].B)
	assert.Equal(t, uint8(1), instrs[2].C)
}

func TestAssembleResolvesForwardAndBackwardLabels(t *testing.T) {
	src := `
	Jump done
loop:
	AddInt r0, r0, r0
done:
	Jump loop
	Ret0
`
	var instrs []isa.Instr
	for ioe := range isa.StartAssembler(strings.NewReader(src)) {
		require.NoError(t, ioe.Error)
		instrs = append(instrs, ioe.Instr)
	}
	require.Len(t, instrs, 4)
	assert.Equal(t, int32(2), instrs[0].Imm, "Jump done is +2 instructions forward")
	assert.Equal(t, int32(-1), instrs[2].Imm, "Jump loop is -1 instruction backward")
}

func TestAssembleRejectsUnknownMnemonic(t *testing.T) {
	var last isa.InstructionOrError
	for ioe := range isa.StartAssembler(strings.NewReader("Bogus r0, r1")) {
		last = ioe
	}
	assert.Error(t, last.Error)
}

func TestAssembleRejectsWrongOperandCount(t *testing.T) {
	var last isa.InstructionOrError
	for ioe := range isa.StartAssembler(strings.NewReader("Add r0, r1")) {
		last = ioe
	}
	assert.Error(t, last.Error)
}

func TestAssembleRejectsMissingLabel(t *testing.T) {
	var last isa.InstructionOrError
	for ioe := range isa.StartAssembler(strings.NewReader("Jump nowhere")) {
		last = ioe
	}
	assert.Error(t, last.Error)
}

func TestDisassembleRendersMnemonicAndOperands(t *testing.T) {
	instr := isa.Instr{Op: isa.OpAdd, A: 2, B: 0, C: 1}
	text := isa.Disassemble(instr)
	assert.Contains(t, text, "Add")
	assert.Contains(t, text, "r2")
	assert.Contains(t, text, "r0")
	assert.Contains(t, text, "r1")
}

func TestDisassembleAnnotatesICCacheState(t *testing.T) {
	instr := isa.Instr{Op: isa.OpFieldIC, A: 1, B: 0, Imm: 5, CacheTypeID: 42, CacheAux: 8}
	text := isa.Disassemble(instr)
	assert.Contains(t, text, "cache: type=42 aux=8")
}
