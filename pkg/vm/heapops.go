package vm

import (
	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

// execObject handles ObjectSmall/Object: allocate a composite object
// whose fields are copied from a contiguous register span starting at
// i.B, i.C registers wide, tagged with the type id the compiler
// resolved (spec.md §4.3's "Heap constructors").
func (vm *VM) execObject(i *isa.Instr) {
	n := int(i.C)
	fields := make([]value.Value, n)
	for k := 0; k < n; k++ {
		fields[k] = vm.reg(i.B + uint8(k))
	}
	typeSymID := uint32(i.Imm)
	v, err := vm.Arena.Alloc(&heap.Object{Fields: fields}, typeSymID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}

func (vm *VM) execList(i *isa.Instr) {
	n := int(i.C)
	items := make([]value.Value, n)
	for k := 0; k < n; k++ {
		items[k] = vm.reg(i.B + uint8(k))
	}
	v, err := vm.Arena.Alloc(&heap.List{Items: items}, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}

// execMap handles Map: i.C pairs of (key, value) registers starting
// at i.B, where the key register must hold a static string.
func (vm *VM) execMap(i *isa.Instr) {
	n := int(i.C)
	m := &heap.Map{}
	for k := 0; k < n; k++ {
		keyVal := vm.reg(i.B + uint8(2*k))
		valVal := vm.reg(i.B + uint8(2*k+1))
		m.Set(vm.stringOf(keyVal), valVal)
	}
	v, err := vm.Arena.Alloc(m, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}

// stringOf extracts the Go string backing a static-string Value,
// reading the shared static string buffer.
func (vm *VM) stringOf(v value.Value) string {
	start, length := value.AsStaticString(v)
	return string(vm.Statics[start : start+length])
}

// execLambda handles Lambda: dst=i.A, funcPc=i.B, sigId=i.Imm,
// stackSize=i.Imm2 (the callee's own register-window headroom, spec.md
// §4.3/§4.4's invariant S1 — without it every call through this lambda
// would pass calls.go's stack-overflow check vacuously).
func (vm *VM) execLambda(i *isa.Instr) {
	sig := vm.Tables.Signatures[i.Imm]
	v, err := vm.Arena.Alloc(&heap.Lambda{
		FuncPC:    uint32(i.B),
		NumParams: uint8(len(sig.Params)),
		StackSize: i.Imm2,
		FuncSigID: uint32(i.Imm),
	}, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}

// execClosure handles Closure: i.C captured boxes starting at i.B,
// each retained as it is written into the capture slot (spec.md
// §4.3's "Closure retains each captured box as it writes the capture
// slot"), plus the function metadata a Closure needs to actually be
// callable (spec.md §3's Closure shape: funcPc, numParams, stackSize,
// localSlot). numParams is derived from the resolved signature, the
// same way execLambda does it; funcPc rides the otherwise-unused i.D
// narrow slot, and stackSize/localSlot share i.Imm2's 32 bits (high
// 16 / low 16) since every other operand slot is already spoken for.
func (vm *VM) execClosure(i *isa.Instr) {
	n := int(i.C)
	captured := make([]value.Value, n)
	for k := 0; k < n; k++ {
		box := vm.reg(i.B + uint8(k))
		vm.Arena.Retain(box)
		captured[k] = box
	}
	sig := vm.Tables.Signatures[i.Imm]
	v, err := vm.Arena.Alloc(&heap.Closure{
		FuncPC:    uint32(i.D),
		NumParams: uint8(len(sig.Params)),
		StackSize: uint32(i.Imm2 >> 16),
		LocalSlot: uint32(i.Imm2 & 0xffff),
		FuncSigID: uint32(i.Imm),
		Captured:  captured,
	}, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}
