package vm

import (
	"math"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

const panicNotANumber = "Expected number operand."

func mustNumber(v value.Value) float64 {
	if !value.IsNumber(v) {
		panic(panicStatic(panicNotANumber))
	}
	return value.AsNumber(v)
}

// execArith handles Add/Sub/Mul/Div/Pow/Mod/Less/Greater/LessEqual/
// GreaterEqual: two number operands, numeric or boolean result
// (spec.md §4.3).
func (vm *VM) execArith(i *isa.Instr) {
	a, b := mustNumber(vm.reg(i.B)), mustNumber(vm.reg(i.C))
	switch i.Op {
	case isa.OpAdd:
		vm.setReg(i.A, value.Number(a+b))
	case isa.OpSub:
		vm.setReg(i.A, value.Number(a-b))
	case isa.OpMul:
		vm.setReg(i.A, value.Number(a*b))
	case isa.OpDiv:
		vm.setReg(i.A, value.Number(a/b))
	case isa.OpPow:
		vm.setReg(i.A, value.Number(math.Pow(a, b)))
	case isa.OpMod:
		vm.setReg(i.A, value.Number(math.Mod(a, b)))
	case isa.OpLess:
		vm.setReg(i.A, value.Bool(a < b))
	case isa.OpGreater:
		vm.setReg(i.A, value.Bool(a > b))
	case isa.OpLessEqual:
		vm.setReg(i.A, value.Bool(a <= b))
	case isa.OpGreaterEqual:
		vm.setReg(i.A, value.Bool(a >= b))
	}
}

func (vm *VM) execNeg(i *isa.Instr) {
	a := mustNumber(vm.reg(i.B))
	vm.setReg(i.A, value.Number(-a))
}

// execCompare implements Compare/CompareNot: raw bit-equality is
// tested first so identity-true cases are branchless; only on bit
// inequality does it fall back to the external deep-compare helper
// (spec.md §4.3's "Equality" paragraph).
func (vm *VM) execCompare(i *isa.Instr) {
	va, vb := vm.reg(i.B), vm.reg(i.C)
	eq := va == vb
	if !eq {
		eq = vm.deepEqual(va, vb)
	}
	if i.Op == isa.OpCompareNot {
		eq = !eq
	}
	vm.setReg(i.A, value.Bool(eq))
}

// deepEqual is the external deep-compare helper spec.md §4.3 defers
// to when the fast bit-equality test misses: numbers compare by
// value, lists/maps compare structurally, everything else (distinct
// pointers to non-container kinds, distinct tags) is unequal since it
// already failed the bit-identity test.
func (vm *VM) deepEqual(a, b value.Value) bool {
	if a == b {
		return true
	}
	if value.IsNumber(a) && value.IsNumber(b) {
		return value.AsNumber(a) == value.AsNumber(b)
	}
	if !value.IsPointer(a) || !value.IsPointer(b) {
		return false
	}
	oa, ob := vm.Arena.Deref(a), vm.Arena.Deref(b)
	switch la := oa.(type) {
	case *heap.List:
		lb, ok := ob.(*heap.List)
		if !ok || len(la.Items) != len(lb.Items) {
			return false
		}
		for k := range la.Items {
			if !vm.deepEqual(la.Items[k], lb.Items[k]) {
				return false
			}
		}
		return true
	case *heap.Map:
		mb, ok := ob.(*heap.Map)
		if !ok || len(la.Keys) != len(mb.Keys) {
			return false
		}
		for k, key := range la.Keys {
			v, found := mb.Get(key)
			if !found || !vm.deepEqual(la.Values[k], v) {
				return false
			}
		}
		return true
	}
	return false
}

func (vm *VM) execBitwise(i *isa.Instr) {
	a := toI32(mustNumber(vm.reg(i.B)))
	b := toI32(mustNumber(vm.reg(i.C)))
	var r int32
	switch i.Op {
	case isa.OpBitwiseAnd:
		r = a & b
	case isa.OpBitwiseOr:
		r = a | b
	case isa.OpBitwiseXor:
		r = a ^ b
	case isa.OpLeftShift:
		r = a << (uint32(b) & 31)
	case isa.OpRightShift:
		r = a >> (uint32(b) & 31)
	}
	vm.setReg(i.A, value.Number(float64(r)))
}

func (vm *VM) execBitwiseNot(i *isa.Instr) {
	a := toI32(mustNumber(vm.reg(i.B)))
	vm.setReg(i.A, value.Number(float64(^a)))
}

// execIntFast handles AddInt/SubInt/LessInt: both operands are
// assumed to already be tagged integers (spec.md §4.3's "integer fast
// paths"); no type check is performed, matching the source's
// documented speculative-tier behavior.
func (vm *VM) execIntFast(i *isa.Instr) {
	a, b := value.AsInteger(vm.reg(i.B)), value.AsInteger(vm.reg(i.C))
	switch i.Op {
	case isa.OpAddInt:
		vm.setReg(i.A, value.Integer(a+b))
	case isa.OpSubInt:
		vm.setReg(i.A, value.Integer(a-b))
	case isa.OpLessInt:
		vm.setReg(i.A, value.Bool(a < b))
	}
}

// toI32 performs the C-style double->i32 truncation spec.md §4.3
// prescribes for the bitwise ops.
func toI32(f float64) int32 {
	return int32(int64(f))
}
