package vm

import (
	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

// execCoinit implements Coinit (spec.md §4.3's "Fibers" paragraph): it
// allocates a new fiber with its own register stack, copies numArgs
// arguments starting at argStart into the new fiber's argument slots,
// records the instruction right after Coinit as the new fiber's saved
// pc, and yields the fiber value into the destination register. The
// current fiber does not switch; it jumps past the inlined coroutine
// body using the trailing label operand.
func (vm *VM) execCoinit(i *isa.Instr) {
	dst, argStart, numArgs := i.A, int(i.B), int(i.C)

	stack := make([]value.Value, vm.stackSize)
	for k := 0; k < numArgs; k++ {
		stack[firstArgSlot+k] = vm.fiber.Stack[vm.fp+argStart+k]
	}
	fiber := &heap.Fiber{
		ID:       heap.NewFiberID(),
		Stack:    stack,
		PCOffset: uint32(vm.pc + 1),
	}
	fiber.Stack[slotRetInfo] = packRetInfo(retInfo{retFlag: 1})

	fv, err := vm.Arena.Alloc(fiber, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(dst, fv)
	vm.pc += 1 + int(i.Imm)
}

// execCoyield implements Coyield: a nop on the main fiber, otherwise a
// switch back to the parent fiber with the operand register's value
// becoming the result of the Coresume call that is currently
// suspended waiting on this fiber (spec.md §4.3, §4.5).
func (vm *VM) execCoyield(i *isa.Instr) (bool, Result) {
	if !vm.fiber.HasParent {
		vm.pc++
		return false, Success
	}
	vm.switchToParent(vm.reg(i.A), false)
	return false, Success
}

// execCoresume implements Coresume: switches execution to the target
// fiber, which must not be the current fiber and must not already be
// finished. Resuming a finished fiber is defined as a no-op that
// releases the handle and yields None (spec.md §8's boundary
// behaviors).
func (vm *VM) execCoresume(i *isa.Instr) (bool, Result) {
	fv := vm.reg(i.B)
	target, ok := vm.Arena.Deref(fv).(*heap.Fiber)
	if !ok {
		panic(panicStatic("Coresume operand is not a fiber"))
	}
	if target.PCOffset == heap.FiberFinished {
		vm.Arena.Release(fv)
		vm.setReg(i.A, value.None())
		vm.pc++
		return false, Success
	}
	if fv == vm.current {
		panic(panicStatic("cannot resume the currently running fiber"))
	}

	vm.fiber.PCOffset = uint32(vm.pc + 1)
	vm.fiber.SavedFP = uint32(vm.fp)

	parentHandle := heap.Handle(value.AsPointer(vm.current))
	target.Parent = parentHandle
	target.HasParent = true
	target.ResumerDst = i.A
	vm.Arena.Retain(vm.current)

	vm.current = fv
	vm.fiber = target
	vm.pc = int(target.PCOffset)
	vm.fp = int(target.SavedFP)
	return false, Success
}

// execCoreturn implements Coreturn: on the main fiber this ends the
// whole program (there is no parent to resume into, so it behaves
// like End); otherwise the fiber is marked finished and the operand
// register's value becomes the suspended Coresume's result.
func (vm *VM) execCoreturn(i *isa.Instr) (bool, Result) {
	val := vm.reg(i.A)
	if !vm.fiber.HasParent {
		return true, Success
	}
	vm.switchToParent(val, true)
	return false, Success
}

// switchToParent is shared by Coyield (suspend, resumable) and
// Coreturn (suspend, terminal): it saves the child's continuation (or
// marks it finished), restores the parent's saved (pc, fp), and writes
// val into the register the parent's Coresume call designated.
func (vm *VM) switchToParent(val value.Value, terminal bool) {
	child := vm.fiber
	if terminal {
		child.PCOffset = heap.FiberFinished
	} else {
		child.PCOffset = uint32(vm.pc + 1)
		child.SavedFP = uint32(vm.fp)
	}

	parentHandle := child.Parent
	parent := vm.Arena.DerefHandle(parentHandle).(*heap.Fiber)

	vm.current = value.Pointer(uint64(parentHandle))
	vm.fiber = parent
	vm.pc = int(parent.PCOffset)
	vm.fp = int(parent.SavedFP)
	vm.fiber.Stack[vm.fp+int(child.ResumerDst)] = val
}
