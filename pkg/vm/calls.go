package vm

import (
	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/value"
)

// execCall dispatches every call-tier opcode. All four tiers
// eventually either build a bytecode frame (callBytecode) or invoke a
// native function in place (callNative); the speculative opcodes
// additionally rewrite their own opcode byte to a cached variant on a
// successful resolution and deoptimize on a miss (spec.md §4.3's
// "Inline caching").
func (vm *VM) execCall(i *isa.Instr) (bool, Result) {
	switch i.Op {
	case isa.OpCall:
		return vm.callGeneric(i, vm.reg(i.A), int(i.C), int(i.B), int(i.D), 1)
	case isa.OpCallSym:
		sym := &vm.Tables.Funcs[i.Imm]
		return vm.callSym(i, sym, int(i.A), int(i.B), int(i.C), 1)
	case isa.OpCallTypeCheck:
		sig := vm.Tables.Signatures[i.Imm]
		numArgs := int(i.B)
		startLocal := int(i.A)
		if numArgs != len(sig.Params) {
			panic(panicFormatted("wrong number of arguments for type-checked call"))
		}
		for k, want := range sig.Params {
			arg := vm.fiber.Stack[vm.fp+startLocal+firstArgSlot+k]
			if !symtab.IsCompat(runtimeSemaType(arg), want) {
				panic(panicFormatted("incompatible argument type"))
			}
		}
		vm.pc++
		return false, Success
	case isa.OpCallObjSym:
		return vm.callObjSym(i)
	case isa.OpCallObjFuncIC, isa.OpCallObjNativeFuncIC:
		return vm.callObjSym(i)
	case isa.OpCallFuncIC, isa.OpCallNativeFuncIC:
		sym := &vm.Tables.Funcs[i.Imm]
		return vm.callSym(i, sym, int(i.A), int(i.B), int(i.C), 1)
	}
	panic("vm: unreachable call opcode")
}

// callSym dispatches a statically-known function symbol (spec.md
// §4.3's CallSym), rewriting to CallFuncIC/CallNativeFuncIC on first
// resolution the same way CallObjSym does, purely so a disassembly
// dump shows which kind of target a call site settled on.
func (vm *VM) callSym(i *isa.Instr, sym *symtab.FuncSymbol, startLocal, numArgs, numRet int, _ int) (bool, Result) {
	switch sym.Kind {
	case symtab.FuncNative1:
		if i.Op == isa.OpCallSym {
			i.Op = isa.OpCallNativeFuncIC
		}
		return vm.callNative(sym.Native, startLocal, numArgs, numRet)
	case symtab.FuncBytecode:
		if i.Op == isa.OpCallSym {
			i.Op = isa.OpCallFuncIC
		}
		return vm.callBytecode(sym.PC, uint32(sym.NumParams), sym.StackSize, startLocal, numArgs, numRet)
	case symtab.FuncBoundClosure:
		return vm.callClosureValue(sym.ClosureVal, startLocal, numArgs, numRet)
	}
	panic("vm: unknown func symbol kind")
}

// callGeneric dispatches Call: a value sitting in a register, which
// may be a Lambda, Closure or NativeFunc1.
func (vm *VM) callGeneric(i *isa.Instr, callee value.Value, startLocal, numArgs, numRet int, _ int) (bool, Result) {
	if !value.IsPointer(callee) {
		panic(panicStatic("value is not callable"))
	}
	switch obj := vm.Arena.Deref(callee).(type) {
	case *heap.Lambda:
		return vm.callBytecode(obj.FuncPC, uint32(obj.NumParams), obj.StackSize, startLocal, numArgs, numRet)
	case *heap.Closure:
		return vm.callClosureValue(callee, startLocal, numArgs, numRet)
	case *heap.NativeFunc1:
		return vm.callNative(symtab.NativeFn(obj.FnPtr), startLocal, numArgs, numRet)
	default:
		panic(panicStatic("value is not callable"))
	}
}

func (vm *VM) callClosureValue(closureVal value.Value, startLocal, numArgs, numRet int) (bool, Result) {
	c := vm.Arena.Deref(closureVal).(*heap.Closure)
	done, result := vm.callBytecode(c.FuncPC, uint32(c.NumParams), c.StackSize, startLocal, numArgs, numRet)
	if !done {
		// the callee's locals begin after its captures (LocalSlot); captures
		// themselves are reachable through the closure value rather than
		// copied into the frame, matching spec.md §3's Closure shape.
		_ = c.LocalSlot
	}
	return done, result
}

// callObjSym implements CallObjSym/CallObjFuncIC/CallObjNativeFuncIC:
// dynamic method dispatch by (typeId, methodSymId) through the call
// site's two-tier polymorphic inline cache (symtab.ObjSiteCache).
func (vm *VM) callObjSym(i *isa.Instr) (bool, Result) {
	recvReg, numArgs, startLocal, numRet := int(i.A), int(i.B), int(i.C), int(i.D)
	recv := vm.fiber.Stack[vm.fp+recvReg]
	// spec.md §9's open question: CallObjFuncIC must read the full
	// recv Value to compute typeId, not a narrower field (the source's
	// u8 read is a documented bug we deliberately do not reproduce).
	typeID := vm.typeIDOf(recv)

	site := vm.Tables.ObjSites[i.Imm2]
	target, hit := site.Lookup(typeID)
	if hit {
		vm.callCacheHits++
	} else {
		target = uint32(i.Imm) // the generic path's methodSymId acts as the initial symbol to resolve from
		site.Update(typeID, target)
		if !isa.IsIC(i.Op) {
			sym := &vm.Tables.Funcs[target]
			if sym.Kind == symtab.FuncNative1 {
				i.Op = isa.OpCallObjNativeFuncIC
			} else {
				i.Op = isa.OpCallObjFuncIC
			}
			i.CacheTypeID = typeID
			i.CacheAux = target
		}
	}
	if isa.IsIC(i.Op) && i.CacheTypeID != typeID {
		i.Op = isa.Deoptimize(i.Op)
	}

	sym := &vm.Tables.Funcs[target]
	return vm.callSym(i, sym, startLocal, numArgs, numRet, 1)
}

// typeIDOf returns the runtime type id of any Value, heap or not
// (spec.md §4.1's getTypeId, extended to read the heap header for
// pointers since value.GetTypeID only covers non-pointer values).
func (vm *VM) typeIDOf(v value.Value) uint32 {
	if value.IsPointer(v) {
		return vm.Arena.Deref(v).Hdr().TypeID
	}
	return value.GetTypeID(v)
}

// callBytecode builds a new register window at fp+startLocal and
// jumps to funcPC, after validating stack headroom (invariant S1).
func (vm *VM) callBytecode(funcPC, numParams, stackSize uint32, startLocal, numArgs, numRet int) (bool, Result) {
	newFP := vm.fp + startLocal
	if newFP+firstArgSlot+int(stackSize) > len(vm.fiber.Stack) {
		panic(newFault(StackOverflow, ErrStackOverflow.Error()))
	}
	callInstOffset := uint8(1)
	vm.fiber.Stack[newFP+slotRetVal] = value.None()
	vm.fiber.Stack[newFP+slotRetInfo] = packRetInfo(retInfo{numRetVals: uint8(numRet), retFlag: 0, callInstOffset: callInstOffset})
	vm.fiber.Stack[newFP+slotRetPC] = value.Integer(int32(vm.pc + 1))
	vm.fiber.Stack[newFP+slotRetFP] = value.Integer(int32(vm.fp))

	vm.fp = newFP
	vm.pc = int(funcPC)
	return false, Success
}

// callNative invokes a native function in place: no frame is pushed,
// the published argument window is handed directly to the Go
// function, and its result (or the interrupt sentinel signalling a
// pending panic) lands in the destination slot (spec.md §4.4).
func (vm *VM) callNative(fn symtab.NativeFn, startLocal, numArgs, numRet int) (bool, Result) {
	base := vm.fp + startLocal + firstArgSlot
	args := vm.fiber.Stack[base : base+numArgs]
	ret := fn(args)
	if value.IsInterruptSentinel(ret) {
		panic(panicFormatted("native call raised a panic"))
	}
	if numRet == 1 {
		vm.fiber.Stack[vm.fp+startLocal] = ret
	} else if value.IsPointer(ret) {
		vm.Arena.Release(ret)
	}
	vm.pc++
	return false, Success
}

// execReturn handles Ret0/Ret1: pops the current frame, honoring the
// open question in spec.md §9 by defining reqNumArgs > 1 as a fatal
// internal error (dead in a correct compiler's output) rather than
// silently mishandling it.
func (vm *VM) execReturn(i *isa.Instr) (bool, Result) {
	ri := unpackRetInfo(vm.fiber.Stack[vm.fp+slotRetInfo])
	retPC := int(value.AsInteger(vm.fiber.Stack[vm.fp+slotRetPC]))
	retFP := int(value.AsInteger(vm.fiber.Stack[vm.fp+slotRetFP]))

	var result value.Value
	haveResult := i.Op == isa.OpRet1
	if haveResult {
		result = vm.reg(i.A)
	}

	switch ri.numRetVals {
	case 0:
		if haveResult && value.IsPointer(result) {
			vm.Arena.Release(result)
		}
	case 1:
		if !haveResult {
			result = value.None()
		}
		// The landing site is the returning frame's own slot 0
		// (vm.fp+slotRetVal, still the callee window at this point),
		// not the caller's slot 0 — the caller reads the result back
		// at its pre-call startLocal offset, which is exactly this
		// frame's base (spec.md §3/§4.4).
		vm.fiber.Stack[vm.fp+slotRetVal] = result
	default:
		panic("vm: retInfo.numRetVals > 1 is not a valid caller request")
	}

	if ri.retFlag == 1 {
		return true, Success
	}
	vm.fp = retFP
	vm.pc = retPC
	return false, Success
}
