package vm

import (
	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

// execPushTry pushes a try-frame onto the current fiber's try-stack
// (spec.md §3's "Try frame"): the frame records the handler's fp, the
// pc to resume at on a caught throw, and the register the caught
// error lands in.
func (vm *VM) execPushTry(i *isa.Instr) {
	catchPC := vm.pc + 1 + int(i.Imm)
	vm.fiber.TryStack = append(vm.fiber.TryStack, heap.TryFrame{
		FP:          uint32(vm.fp),
		CatchPC:     uint32(catchPC),
		CatchErrDst: i.A,
	})
}

// execPopTry pops the innermost try-frame and jumps past the handler
// (spec.md's Open Question #1: the source increments tryStack.len on
// PopTry, which SPEC_FULL.md §6 resolves as a bug — pop-the-frame is
// a decrement, matching both the opcode's name and its documented
// behavior "pops one and jumps past the handler").
func (vm *VM) execPopTry(i *isa.Instr) {
	n := len(vm.fiber.TryStack)
	if n == 0 {
		panic("vm: PopTry with an empty try-stack")
	}
	vm.fiber.TryStack = vm.fiber.TryStack[:n-1]
	vm.pc += 1 + int(i.Imm)
}

// execThrow implements Throw (spec.md §4.3's "Try/throw" paragraph):
// the operand must be an ERROR value. It pops try-frames from the
// current fiber's try-stack until one is found (there is always at
// most one candidate per throw: the innermost frame), restores fp to
// the handler's frame, writes the error into the handler's register,
// and resumes at the handler's pc. An empty try-stack escalates to a
// panic that unwinds past this fiber entirely.
func (vm *VM) execThrow(i *isa.Instr) {
	errVal := vm.reg(i.A)
	if !value.IsError(errVal) {
		panic(panicStatic("Not an error."))
	}
	n := len(vm.fiber.TryStack)
	if n == 0 {
		panic(panicFormatted("uncaught throw: try-stack underflow"))
	}
	frame := vm.fiber.TryStack[n-1]
	vm.fiber.TryStack = vm.fiber.TryStack[:n-1]
	vm.fp = int(frame.FP)
	vm.fiber.Stack[vm.fp+int(frame.CatchErrDst)] = errVal
	vm.pc = int(frame.CatchPC)
}

// handlePanic searches for a try-frame to catch an implicit panic
// (spec.md §7's Panic class, distinct from an explicit Throw of a
// user ERROR value, but caught through the same try-stack machinery).
// It first searches the current fiber; if that fiber's try-stack is
// empty and it was itself resumed from a parent, the fiber is marked
// finished and the search continues in the parent (a panic crossing a
// fiber boundary, spec.md §5). Returns false when no frame anywhere in
// the chain catches it, meaning the panic must reach the embedder.
func (vm *VM) handlePanic(vp vmPanic) bool {
	for {
		if n := len(vm.fiber.TryStack); n > 0 {
			frame := vm.fiber.TryStack[n-1]
			vm.fiber.TryStack = vm.fiber.TryStack[:n-1]
			vm.fp = int(frame.FP)
			vm.fiber.Stack[vm.fp+int(frame.CatchErrDst)] = vm.panicToError(vp)
			vm.pc = int(frame.CatchPC)
			return true
		}
		if !vm.fiber.HasParent {
			return false
		}
		child := vm.fiber
		child.PCOffset = heap.FiberFinished
		parent := vm.Arena.DerefHandle(child.Parent).(*heap.Fiber)
		vm.current = value.Pointer(uint64(child.Parent))
		vm.fiber = parent
		vm.pc = int(parent.PCOffset)
		vm.fp = int(parent.SavedFP)
	}
}

// panicToError boxes an implicit panic's formatted message as an
// ERROR value a catch handler can inspect, indexing into the VM's own
// message table since an ERROR payload is just a uint32 (spec.md §3).
func (vm *VM) panicToError(vp vmPanic) value.Value {
	idx := uint32(len(vm.messages))
	vm.messages = append(vm.messages, vp.msg)
	return value.Error(idx)
}
