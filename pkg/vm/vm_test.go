package vm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/value"
	"github.com/vigilvm/vigil/pkg/vm"
)

// newVM builds a VM over the given generic-dispatch-only instruction
// stream with an empty symbol table and a small register stack,
// matching the shape of the teacher's own table-driven opcode tests.
func newVM(t *testing.T, instrs []isa.Instr, stackSize int) *vm.VM {
	t.Helper()
	arena := heap.New(true)
	tables := symtab.NewTables(0, 0, 8)
	m, err := vm.New(arena, tables, instrs, nil, nil, stackSize)
	require.NoError(t, err)
	return m
}

func TestArithmeticAddsTwoNumbers(t *testing.T) {
	// r4 = 2, r5 = 3, r0 = r4 + r5, Ret1 r0
	instrs := []isa.Instr{
		{Op: isa.OpConstI8, A: 4, Imm: 2},
		{Op: isa.OpConstI8, A: 5, Imm: 3},
		{Op: isa.OpAdd, A: 0, B: 4, C: 5},
		{Op: isa.OpRet1, A: 0},
	}
	m := newVM(t, instrs, 16)
	res, info, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, res, info.Message)
}

func TestDivisionByZeroProducesInfNotPanic(t *testing.T) {
	// spec.md §8 boundary behavior: float division follows IEEE 754,
	// so 1/0 is +Inf rather than a panic.
	instrs := []isa.Instr{
		{Op: isa.OpConstI8, A: 4, Imm: 1},
		{Op: isa.OpConstI8, A: 5, Imm: 0},
		{Op: isa.OpDiv, A: 0, B: 4, C: 5},
		{Op: isa.OpRet1, A: 0},
	}
	m := newVM(t, instrs, 16)
	res, info, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, res, info.Message)
	got := m.GetTestReg(0)
	require.True(t, value.IsNumber(got))
	assert.True(t, math.IsInf(value.AsNumber(got), 1))
}

func TestCastOfExactTypeIsIdentityOtherwisePanics(t *testing.T) {
	arena := heap.New(true)
	tables := symtab.NewTables(0, 0, 8)
	boxed, err := arena.Alloc(&heap.Box{Val: value.None()}, 20)
	require.NoError(t, err)

	// r4 holds the boxed value (already populated before Run starts).
	instrs := []isa.Instr{
		{Op: isa.OpCast, A: 0, B: 4, Imm: 20},
		{Op: isa.OpRet0},
	}
	m, err := vm.New(arena, tables, instrs, nil, nil, 16)
	require.NoError(t, err)
	m.SetTestReg(4, boxed)

	res, info, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, res, info.Message)

	badInstrs := []isa.Instr{
		{Op: isa.OpCast, A: 0, B: 4, Imm: 21},
		{Op: isa.OpRet0},
	}
	m2, err := vm.New(arena, tables, badInstrs, nil, nil, 16)
	require.NoError(t, err)
	m2.SetTestReg(4, boxed)
	res2, info2, err := m2.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Panic, res2)
	assert.NotEmpty(t, info2.Message)
}

func TestThrowIsCaughtByEnclosingPushTry(t *testing.T) {
	// PushTry r2, catch  ; catch handler writes the error into r2
	// Throw r3            ; r3 holds an ERROR value, preset before Run
	// catch: Ret1 r2
	instrs := []isa.Instr{
		{Op: isa.OpPushTry, A: 2, Imm: 1}, // catch at pc 0+1+1=2
		{Op: isa.OpThrow, A: 3},
		{Op: isa.OpRet1, A: 2},
	}
	m := newVM(t, instrs, 16)
	m.SetTestReg(3, value.Error(0))

	res, info, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, res, info.Message)
}

func TestUncaughtPanicEscapesToRunResult(t *testing.T) {
	// r4 is explicitly None, not a number: mustNumber must panic, and
	// with no enclosing PushTry the panic escapes Run entirely.
	instrs := []isa.Instr{
		{Op: isa.OpDiv, A: 0, B: 4, C: 5},
		{Op: isa.OpRet1, A: 0},
	}
	m := newVM(t, instrs, 16)
	m.SetTestReg(4, value.None())
	m.SetTestReg(5, value.Integer(1))
	res, info, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Panic, res)
	assert.NotEmpty(t, info.Message)
}

func TestImplicitPanicIsCaughtByTryFrameTheSameAsThrow(t *testing.T) {
	// A bad-index access inside a try block must land in the catch
	// handler exactly like an explicit Throw would (spec.md §5 / §7).
	instrs := []isa.Instr{
		{Op: isa.OpPushTry, A: 2, Imm: 1}, // catch at pc 0+1+1=2
		{Op: isa.OpIndex, A: 6, B: 4, C: 5},
		{Op: isa.OpRet1, A: 2},
	}
	m := newVM(t, instrs, 16)
	listVal, err := m.Arena.Alloc(&heap.List{Items: []value.Value{}}, 20)
	require.NoError(t, err)
	m.SetTestReg(4, listVal)
	m.SetTestReg(5, value.Integer(5))

	res, info, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, res, info.Message)
}

func TestFiberRoundTripCoinitResumeYieldReturn(t *testing.T) {
	// Coinit inlines the fiber body immediately after itself and jumps
	// the current fiber past it; the body only runs once a Coresume
	// targets the new fiber. Resume results land in r6/r7, clear of the
	// frame header slots r0-r3.
	//   0: Coinit r0, argStart=8, numArgs=0, skip 4
	//   1: ConstI8 r4, 7     <- body
	//   2: Coyield r4        <- body
	//   3: ConstI8 r4, 9     <- body
	//   4: Coreturn r4       <- body
	//   5: Coresume r6, r0   <- main fiber resumes here; receives the yielded 7
	//   6: Coresume r7, r0   <- receives the returned 9
	//   7: Ret0
	instrs := []isa.Instr{
		{Op: isa.OpCoinit, A: 0, B: 8, C: 0, Imm: 4},
		{Op: isa.OpConstI8, A: 4, Imm: 7},
		{Op: isa.OpCoyield, A: 4},
		{Op: isa.OpConstI8, A: 4, Imm: 9},
		{Op: isa.OpCoreturn, A: 4},
		{Op: isa.OpCoresume, A: 6, B: 0},
		{Op: isa.OpCoresume, A: 7, B: 0},
		{Op: isa.OpRet0},
	}
	m := newVM(t, instrs, 16)
	res, info, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, res, info.Message)
	assert.Equal(t, value.Number(7), m.GetTestReg(6))
	assert.Equal(t, value.Number(9), m.GetTestReg(7))
}

func TestFieldAccessRewritesToICOnFirstHit(t *testing.T) {
	arena := heap.New(true)
	tables := symtab.NewTables(1, 0, 8)
	tables.Fields[0].NameID = 0 // field offset 0

	obj, err := arena.Alloc(&heap.Object{Fields: []value.Value{value.Integer(42)}}, 20)
	require.NoError(t, err)

	instrs := []isa.Instr{
		{Op: isa.OpField, A: 5, B: 4, Imm: 0},
		{Op: isa.OpRet1, A: 5},
	}
	m, err := vm.New(arena, tables, instrs, nil, nil, 16)
	require.NoError(t, err)
	m.SetTestReg(4, obj)

	res, info, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, res, info.Message)
	assert.Equal(t, isa.OpFieldIC, instrs[0].Op)
}

func TestCallBytecodeRoundTripLandsResultAtCallersStartLocal(t *testing.T) {
	// The call/return core: Call a lambda with a non-zero startLocal, so
	// a bug that writes the returned value to the caller's absolute
	// slot 0 instead of its own register window (calls.go's execReturn)
	// would be caught here but invisible at startLocal == 0.
	//   pc0: Call r2 (lambda), numArgs=0, startLocal=5, numRet=1
	//   pc1: Ret0                                  <- caller resumes here
	//   pc2: ConstI8Int r0, 42                      <- callee body (funcPC=2)
	//   pc3: Ret1 r0
	arena := heap.New(true)
	tables := symtab.NewTables(0, 0, 8)
	instrs := []isa.Instr{
		{Op: isa.OpCall, A: 2, B: 0, C: 5, D: 1},
		{Op: isa.OpRet0},
		{Op: isa.OpConstI8Int, A: 0, Imm: 42},
		{Op: isa.OpRet1, A: 0},
	}
	m, err := vm.New(arena, tables, instrs, nil, nil, 16)
	require.NoError(t, err)

	lambdaVal, err := arena.Alloc(&heap.Lambda{FuncPC: 2, NumParams: 0, StackSize: 4}, 20)
	require.NoError(t, err)
	m.SetTestReg(2, lambdaVal)

	res, info, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, res, info.Message)

	// startLocal(5) + slotRetVal(0): the callee's own frame-0 landing
	// site, which coincides with the caller's register 5.
	got := m.GetTestReg(5)
	require.True(t, value.IsInteger(got))
	assert.Equal(t, int32(42), value.AsInteger(got))
}

func TestCallTypeCheckAcceptsCompatibleArgsAndRejectsIncompatible(t *testing.T) {
	// spec.md §8 scenario #6: CallTypeCheck validates arity and
	// per-argument sema-type compatibility before a sym call proceeds.
	arena := heap.New(true)
	tables := symtab.NewTables(0, 0, 8)
	tables.Signatures = []symtab.FuncSignature{
		{Params: []symtab.SemaType{symtab.SemaAny, symtab.SemaString}},
	}

	okInstrs := []isa.Instr{
		{Op: isa.OpCallTypeCheck, A: 0, B: 2, Imm: 0},
		{Op: isa.OpRet0},
	}
	mOK, err := vm.New(arena, tables, okInstrs, nil, nil, 16)
	require.NoError(t, err)
	mOK.SetTestReg(4, value.Number(1))
	mOK.SetTestReg(5, value.StaticAString(0, 1))
	res, info, err := mOK.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Success, res, info.Message)

	badInstrs := []isa.Instr{
		{Op: isa.OpCallTypeCheck, A: 0, B: 2, Imm: 0},
		{Op: isa.OpRet0},
	}
	mBad, err := vm.New(arena, tables, badInstrs, nil, nil, 16)
	require.NoError(t, err)
	mBad.SetTestReg(4, value.Number(1))
	mBad.SetTestReg(5, value.Number(2)) // not a static string: incompatible with SemaString
	res2, info2, err := mBad.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.Panic, res2)
	assert.NotEmpty(t, info2.Message)
}

func TestRetainReleaseBalanceAcrossCallBoundary(t *testing.T) {
	// A closure retains its captured box on Closure, is called (its body
	// returns straight away), and is released by the caller after the
	// call returns, which releases the box in turn; global RC must return
	// to its value from just before Run (spec.md §8's "Universal
	// invariant" on balanced retain/release).
	//   pc0: Closure r0, captures [r4], funcPC=4, sigId 0, stackSize 4
	//   pc1: Call r0, numArgs=0, startLocal=8, numRet=0
	//   pc2: Release r0                          <- caller resumes here
	//   pc3: Ret0
	//   pc4: Ret0                                <- closure body (funcPC=4)
	arena := heap.New(true)
	tables := symtab.NewTables(0, 0, 8)
	tables.Signatures = []symtab.FuncSignature{{}} // sigId 0: no params
	boxVal, err := heap.NewBoxValue(arena, 20, value.Integer(1))
	require.NoError(t, err)

	instrs := []isa.Instr{
		{Op: isa.OpClosure, A: 0, B: 4, C: 1, D: 4, Imm: 0, Imm2: 4 << 16},
		{Op: isa.OpCall, A: 0, B: 0, C: 8, D: 0},
		{Op: isa.OpRelease, A: 0},
		{Op: isa.OpRet0},
		{Op: isa.OpRet0},
	}
	m, err := vm.New(arena, tables, instrs, nil, nil, 16)
	require.NoError(t, err)
	m.SetTestReg(4, boxVal)
	before := arena.GlobalRC()

	res, info, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, vm.Success, res, info.Message)
	assert.Equal(t, before, arena.GlobalRC())
}
