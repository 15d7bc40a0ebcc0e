package vm

import (
	"strconv"
	"strings"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

const panicBadIndex = "index out of range"
const panicBadKey = "key not found"

// execIndex implements Index/ReverseIndex (spec.md §4.3's "Misc"
// group): (recv, idx) -> dst. Lists index by integer position,
// ReverseIndex counting from the end; maps index by a static-string
// key.
func (vm *VM) execIndex(i *isa.Instr) {
	recv, idx := vm.reg(i.B), vm.reg(i.C)
	switch obj := vm.Arena.Deref(recv).(type) {
	case *heap.List:
		n := value.AsInteger(idx)
		pos := int(n)
		if i.Op == isa.OpReverseIndex {
			pos = len(obj.Items) - 1 - pos
		}
		if pos < 0 || pos >= len(obj.Items) {
			panic(panicStatic(panicBadIndex))
		}
		vm.setReg(i.A, obj.Items[pos])
	case *heap.Map:
		v, ok := obj.Get(vm.stringOf(idx))
		if !ok {
			panic(panicStatic(panicBadKey))
		}
		vm.setReg(i.A, v)
	default:
		panic(panicStatic("value is not indexable"))
	}
}

// execSetIndex implements SetIndex/SetIndexRelease: (recv, idx, val).
// SetIndexRelease releases the prior occupant before overwriting it.
func (vm *VM) execSetIndex(i *isa.Instr) {
	recv, idx, val := vm.reg(i.A), vm.reg(i.B), vm.reg(i.C)
	switch obj := vm.Arena.Deref(recv).(type) {
	case *heap.List:
		pos := int(value.AsInteger(idx))
		if pos < 0 || pos >= len(obj.Items) {
			panic(panicStatic(panicBadIndex))
		}
		if i.Op == isa.OpSetIndexRelease {
			vm.Arena.Release(obj.Items[pos])
		}
		obj.Items[pos] = val
	case *heap.Map:
		prev, existed := obj.Set(vm.stringOf(idx), val)
		if i.Op == isa.OpSetIndexRelease && existed {
			vm.Arena.Release(prev)
		}
	default:
		panic(panicStatic("value is not indexable"))
	}
}

// execSlice implements Slice: (dst, recv, start, end) over a List,
// producing a fresh List containing the shallow-copied (and
// retained) sub-range.
func (vm *VM) execSlice(i *isa.Instr) {
	recv := vm.reg(i.B)
	start := int(value.AsInteger(vm.reg(i.C)))
	end := int(value.AsInteger(vm.reg(i.D)))
	obj, ok := vm.Arena.Deref(recv).(*heap.List)
	if !ok {
		panic(panicStatic("value is not sliceable"))
	}
	if start < 0 || end > len(obj.Items) || start > end {
		panic(panicStatic(panicBadIndex))
	}
	items := make([]value.Value, end-start)
	copy(items, obj.Items[start:end])
	for _, v := range items {
		vm.Arena.Retain(v)
	}
	out, err := vm.Arena.Alloc(&heap.List{Items: items}, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, out)
}

// execStringTemplate implements StringTemplate: (dst, startReg,
// count) concatenates count consecutive registers, coercing each to
// its display text, into a fresh mutable AString.
func (vm *VM) execStringTemplate(i *isa.Instr) {
	startReg, count := i.B, int(i.C)
	var sb strings.Builder
	for k := 0; k < count; k++ {
		sb.WriteString(vm.displayString(vm.reg(startReg + uint8(k))))
	}
	v, err := vm.Arena.Alloc(&heap.AString{Bytes: []byte(sb.String())}, internalTypeID)
	if err != nil {
		vm.raiseOOM()
	}
	vm.setReg(i.A, v)
}

// displayString renders a Value for string-template interpolation:
// numbers and booleans get their literal textual form, strings are
// unwrapped to their raw bytes, everything else falls back to its
// type name (the stdlib's real native toString is out of scope per
// spec.md §1).
func (vm *VM) displayString(v value.Value) string {
	switch {
	case value.IsNumber(v):
		return strconv.FormatFloat(value.AsNumber(v), 'g', -1, 64)
	case value.IsInteger(v):
		return strconv.FormatInt(int64(value.AsInteger(v)), 10)
	case value.IsBool(v):
		return strconv.FormatBool(value.AsBool(v))
	case value.IsNone(v):
		return "none"
	case value.IsStaticString(v):
		return vm.stringOf(v)
	case value.IsPointer(v):
		switch obj := vm.Arena.Deref(v).(type) {
		case *heap.AString:
			return string(obj.Bytes)
		case *heap.UString:
			return string(obj.Runes)
		case *heap.RawString:
			return string(obj.Bytes)
		default:
			return vm.typeName(vm.typeIDOf(v))
		}
	default:
		return vm.typeName(vm.typeIDOf(v))
	}
}

// execMatch implements Match: (dst, subject, pattern) for literal
// pattern matching (e.g. a switch/match arm against an enum or
// constant), reusing the same bit-equality-first/deep-compare-fallback
// rule as Compare (spec.md §4.3's "Equality" paragraph applies here
// too, since a match arm is structurally an equality test).
func (vm *VM) execMatch(i *isa.Instr) {
	subject, pattern := vm.reg(i.B), vm.reg(i.C)
	eq := subject == pattern
	if !eq {
		eq = vm.deepEqual(subject, pattern)
	}
	vm.setReg(i.A, value.Bool(eq))
}
