package vm

import (
	"fmt"

	"github.com/petermattis/goid"
	"github.com/pkg/errors"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/value"
)

// internalTypeID is the placeholder typeId for every object the core
// itself allocates rather than the compiler's type table (fibers, and
// the boxes, lists, maps, strings, lambdas and closures it builds).
// Real embeddings reserve low typeIds for these the same way.
const internalTypeID = 1

// VM is one execution core instance: an instruction stream, its
// constant pool and static string buffer, the symbol tables the
// compiler produced, and the live fiber/heap state. A VM is not
// goroutine-safe; only the goroutine that called New may call Run on
// it, which Run asserts via goid (spec.md §5's single-threaded
// scheduling model).
type VM struct {
	Arena  *heap.Arena
	Tables *symtab.Tables

	Instrs  []isa.Instr
	Consts  []value.Value
	Statics []byte

	mainFiber value.Value
	current   value.Value
	fiber     *heap.Fiber
	pc        int
	fp        int
	stackSize int

	fieldCacheHits uint64
	callCacheHits  uint64

	// messages backs panicToError's payload indirection: a try-frame
	// that catches an implicit panic (as opposed to an explicit Throw
	// of a user ERROR value) needs some Value to write into the
	// handler's register, and an ERROR Value's payload is just an
	// opaque uint32 (spec.md §3), so the formatted text lives here.
	messages []string

	ownerGoid int64
}

// Message returns the formatted panic text behind an ERROR value a
// try-handler caught from an implicit (non-Throw) panic.
func (vm *VM) Message(idx uint32) string {
	if int(idx) >= len(vm.messages) {
		return ""
	}
	return vm.messages[idx]
}

// New constructs a VM with a fresh main fiber of the given stack
// capacity (register slots), ready to execute from pc 0.
func New(arena *heap.Arena, tables *symtab.Tables, instrs []isa.Instr, consts []value.Value, statics []byte, stackSize int) (*VM, error) {
	mainVal, err := arena.Alloc(&heap.Fiber{ID: heap.NewFiberID(), Stack: make([]value.Value, stackSize)}, internalTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "vm: allocate main fiber")
	}
	vm := &VM{
		Arena:     arena,
		Tables:    tables,
		Instrs:    instrs,
		Consts:    consts,
		Statics:   statics,
		mainFiber: mainVal,
		current:   mainVal,
		stackSize: stackSize,
		ownerGoid: goid.Get(),
	}
	vm.fiber = arena.Deref(mainVal).(*heap.Fiber)
	// the outermost frame's retInfo carries retFlag=1, so a top-level
	// Ret0/Ret1 stops Run instead of popping into frame slots that were
	// never written (spec.md §4.4's "a fiber's outermost call behaves
	// as if retFlag were set").
	vm.fiber.Stack[slotRetInfo] = packRetInfo(retInfo{retFlag: 1})
	return vm, nil
}

// assertAffinity enforces the single-goroutine invariant the spec's
// cooperative scheduling model depends on: fibers are not OS threads,
// and nothing about this VM is safe to touch concurrently.
func (vm *VM) assertAffinity() {
	if g := goid.Get(); g != vm.ownerGoid {
		panic(fmt.Sprintf("vm: called from goroutine %d, owned by %d", g, vm.ownerGoid))
	}
}

func (vm *VM) reg(i uint8) value.Value      { return vm.fiber.Stack[vm.fp+int(i)] }
func (vm *VM) setReg(i uint8, v value.Value) { vm.fiber.Stack[vm.fp+int(i)] = v }

// Run executes until the loop completes, panics past the outermost
// try-frame, or a fault occurs. It is the only entry point callers
// need: the same loop handles bytecode frames, native calls and fiber
// switches without any Go-level recursion (spec.md §9's "return via
// register window" design note).
func (vm *VM) Run() (res Result, info PanicInfo, err error) {
	vm.assertAffinity()
	defer func() {
		if r := recover(); r != nil {
			if vp, ok := r.(vmPanic); ok {
				res, info = Panic, PanicInfo{Message: vp.msg, Kind: vp.kind}
				return
			}
			if f, ok := r.(*Fault); ok {
				res, err = f.Result, f
				return
			}
			panic(r)
		}
	}()

	for {
		if vm.pc < 0 || vm.pc >= len(vm.Instrs) {
			return Unknown, PanicInfo{}, errors.Errorf("vm: pc %d out of range", vm.pc)
		}
		// Take the address of the live slice element, not a copy: IC
		// opcode rewrites and the for-range direction/bound cache
		// (forrange.go) mutate *isa.Instr in place and must persist
		// across fetches, the same way a real self-modifying dispatch
		// loop would overwrite its own instruction stream.
		instr := &vm.Instrs[vm.pc]
		done, result := vm.step(instr)
		if done {
			return result, PanicInfo{}, nil
		}
	}
}

// step executes one instruction and, if it panics, tries to unwind
// the panic into a try-frame (searching the current fiber's try-stack
// first, then escalating across the parent-fiber chain per spec.md
// §5's "Throw ... when it crosses a fiber boundary via panic
// propagation"). If no try-frame anywhere in the chain catches it, the
// panic is re-raised for Run's own recover to turn into a Panic result.
func (vm *VM) step(instr *isa.Instr) (done bool, result Result) {
	defer func() {
		if r := recover(); r != nil {
			vp, ok := r.(vmPanic)
			if !ok {
				panic(r)
			}
			if !vm.handlePanic(vp) {
				panic(r)
			}
			done, result = false, Success
		}
	}()
	return vm.dispatch(instr)
}

// dispatch executes one instruction, returning (done, result) when
// execution should stop (End, or a top-level Ret0/Ret1). It may raise
// a vmPanic, which step's deferred recover hands to handlePanic
// (trycatch.go) to search the try-stacks of the current fiber and its
// parents; one that no try-frame catches becomes Run's Panic result.
func (vm *VM) dispatch(i *isa.Instr) (done bool, result Result) {
	switch i.Op {
	case isa.OpAdd, isa.OpSub, isa.OpMul, isa.OpDiv, isa.OpPow, isa.OpMod,
		isa.OpLess, isa.OpGreater, isa.OpLessEqual, isa.OpGreaterEqual:
		vm.execArith(i)
	case isa.OpNeg:
		vm.execNeg(i)
	case isa.OpCompare, isa.OpCompareNot:
		vm.execCompare(i)
	case isa.OpBitwiseAnd, isa.OpBitwiseOr, isa.OpBitwiseXor, isa.OpLeftShift, isa.OpRightShift:
		vm.execBitwise(i)
	case isa.OpBitwiseNot:
		vm.execBitwiseNot(i)
	case isa.OpAddInt, isa.OpSubInt, isa.OpLessInt:
		vm.execIntFast(i)

	case isa.OpConstOp:
		vm.setReg(i.A, vm.Consts[i.Imm])
	case isa.OpConstI8:
		vm.setReg(i.A, value.Number(float64(i.Imm)))
	case isa.OpConstI8Int:
		vm.setReg(i.A, value.Integer(i.Imm))
	case isa.OpTrue:
		vm.setReg(i.A, value.Bool(true))
	case isa.OpFalse:
		vm.setReg(i.A, value.Bool(false))
	case isa.OpNone:
		vm.setReg(i.A, value.None())

	case isa.OpCopy:
		vm.setReg(i.A, vm.reg(i.B))
	case isa.OpCopyRetainSrc:
		v := vm.reg(i.B)
		vm.Arena.Retain(v)
		vm.setReg(i.A, v)
	case isa.OpCopyReleaseDst:
		vm.Arena.Release(vm.reg(i.A))
		vm.setReg(i.A, vm.reg(i.B))
	case isa.OpCopyRetainRelease:
		v := vm.reg(i.B)
		vm.Arena.Retain(v)
		vm.Arena.Release(vm.reg(i.A))
		vm.setReg(i.A, v)
	case isa.OpRetain:
		vm.Arena.Retain(vm.reg(i.A))
	case isa.OpRelease:
		vm.Arena.Release(vm.reg(i.A))
	case isa.OpReleaseN:
		n := i.B
		for k := uint8(0); k < n; k++ {
			vm.Arena.Release(vm.reg(i.A + k))
		}

	case isa.OpJump:
		vm.pc += 1 + int(i.Imm)
		return false, Success
	case isa.OpJumpCond:
		if coerceBool(vm.reg(i.A)) {
			vm.pc += 1 + int(i.Imm)
			return false, Success
		}
	case isa.OpJumpNotCond:
		if !coerceBool(vm.reg(i.A)) {
			vm.pc += 1 + int(i.Imm)
			return false, Success
		}
	case isa.OpJumpNotNone:
		if !value.IsNone(vm.reg(i.A)) {
			vm.pc += 1 + int(i.Imm)
			return false, Success
		}

	case isa.OpCall, isa.OpCallSym, isa.OpCallObjSym, isa.OpCallTypeCheck,
		isa.OpCallObjFuncIC, isa.OpCallObjNativeFuncIC, isa.OpCallFuncIC, isa.OpCallNativeFuncIC:
		return vm.execCall(i)
	case isa.OpRet0, isa.OpRet1:
		return vm.execReturn(i)

	case isa.OpObjectSmall, isa.OpObject:
		vm.execObject(i)
	case isa.OpList:
		vm.execList(i)
	case isa.OpMap:
		vm.execMap(i)
	case isa.OpMapEmpty:
		mv, err := vm.Arena.Alloc(&heap.Map{}, internalTypeID)
		if err != nil {
			vm.raiseOOM()
		}
		vm.setReg(i.A, mv)
	case isa.OpLambda:
		vm.execLambda(i)
	case isa.OpClosure:
		vm.execClosure(i)
	case isa.OpBox:
		bv, err := heap.NewBoxValue(vm.Arena, internalTypeID, vm.reg(i.B))
		if err != nil {
			vm.raiseOOM()
		}
		vm.setReg(i.A, bv)
	case isa.OpStaticFunc:
		vm.setReg(i.A, vm.Tables.StaticFns[i.Imm])
	case isa.OpSym:
		vm.setReg(i.A, value.Symbol(uint32(i.Imm)))

	case isa.OpField, isa.OpFieldRetain, isa.OpFieldIC, isa.OpFieldRetainIC:
		vm.execField(i)
	case isa.OpSetField, isa.OpSetFieldRelease, isa.OpSetFieldReleaseIC:
		vm.execSetField(i)
	case isa.OpSetCheckFieldRelease:
		vm.execSetCheckFieldRelease(i)

	case isa.OpPushTry:
		vm.execPushTry(i)
	case isa.OpPopTry:
		vm.execPopTry(i)
		return false, Success
	case isa.OpThrow:
		vm.execThrow(i)
		return false, Success

	case isa.OpCoinit:
		vm.execCoinit(i)
		return false, Success
	case isa.OpCoyield:
		return vm.execCoyield(i)
	case isa.OpCoresume:
		return vm.execCoresume(i)
	case isa.OpCoreturn:
		return vm.execCoreturn(i)

	case isa.OpForRangeInit:
		vm.execForRangeInit(i)
		return false, Success
	case isa.OpForRange, isa.OpForRangeReverse:
		if vm.execForRangeStep(i) {
			vm.pc += 1 + int(i.Imm)
			return false, Success
		}

	case isa.OpCast:
		vm.execCast(i)
	case isa.OpCastAbstract:
		vm.execCastAbstract(i)

	case isa.OpTag, isa.OpTagLiteral:
		// Imm packs (tagId<<8 | val), matching ENUM's own payload split.
		vm.setReg(i.A, value.Enum(uint8(i.Imm>>8), uint8(i.Imm)))
	case isa.OpStaticVar:
		vm.setReg(i.A, vm.Tables.Statics[i.Imm])
	case isa.OpSetStaticVar:
		vm.Tables.Statics[i.Imm] = vm.reg(i.A)
	case isa.OpSetStaticFunc:
		vm.Tables.StaticFns[i.Imm] = vm.reg(i.A)
	case isa.OpSlice:
		vm.execSlice(i)
	case isa.OpIndex, isa.OpReverseIndex:
		vm.execIndex(i)
	case isa.OpSetIndex, isa.OpSetIndexRelease:
		vm.execSetIndex(i)
	case isa.OpStringTemplate:
		vm.execStringTemplate(i)
	case isa.OpMatch:
		vm.execMatch(i)
	case isa.OpInit:
		for k := uint8(0); k < i.B; k++ {
			vm.setReg(i.A+k, value.None())
		}

	case isa.OpEnd:
		return true, Success

	default:
		panic(fmt.Sprintf("vm: unimplemented opcode %s", i.Op))
	}
	vm.pc++
	return false, Success
}

func (vm *VM) raiseOOM() {
	panic(newFault(OOM, ErrOOM.Error()))
}

func coerceBool(v value.Value) bool {
	if value.IsNone(v) {
		return false
	}
	if value.IsBool(v) {
		return value.AsBool(v)
	}
	return true
}
