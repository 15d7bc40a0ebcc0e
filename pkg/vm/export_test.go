package vm

import "github.com/vigilvm/vigil/pkg/value"

// SetTestReg pokes a register in the main fiber's frame directly, for
// tests that need to seed an argument register before Run without
// going through a real call sequence.
func (vm *VM) SetTestReg(i uint8, v value.Value) {
	vm.setReg(i, v)
}

// GetTestReg reads back a register in the main fiber's current frame,
// for tests asserting where a call's return value landed.
func (vm *VM) GetTestReg(i uint8) value.Value {
	return vm.reg(i)
}
