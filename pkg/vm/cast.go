package vm

import (
	"fmt"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/value"
)

// execCast implements Cast: concrete type id equality, identity on
// match, a formatted panic naming both types on mismatch (spec.md
// §4.3's "Casts" paragraph; spec.md §8's boundary behavior "Cast of
// the exact type is identity; any other concrete type panics").
func (vm *VM) execCast(i *isa.Instr) {
	src := vm.reg(i.B)
	want := uint32(i.Imm)
	got := vm.typeIDOf(src)
	if got != want {
		panic(panicFormatted(fmt.Sprintf("cannot cast value of type %s to %s", vm.typeName(got), vm.typeName(want))))
	}
	vm.setReg(i.A, src)
}

// execCastAbstract implements CastAbstract: the abstract sema-type
// families ANY (always ok), STRING (any string-shaped value) and
// RAWSTRING (the raw string family). CallTypeCheck's isCompat
// special-cases ANY, DYNAMIC and STRING, but not RAWSTRING.
func (vm *VM) execCastAbstract(i *isa.Instr) {
	src := vm.reg(i.B)
	want := symtab.SemaType(i.Imm)

	ok := false
	switch want {
	case symtab.SemaAny, symtab.SemaDynamic:
		ok = true
	case symtab.SemaString:
		ok = vm.isStringShaped(src)
	case symtab.SemaRawString:
		ok = vm.isRawStringShaped(src)
	}
	if !ok {
		panic(panicFormatted(fmt.Sprintf("cannot cast value of type %s to %s", vm.typeName(vm.typeIDOf(src)), semaTypeName(want))))
	}
	vm.setReg(i.A, src)
}

func (vm *VM) isStringShaped(v value.Value) bool {
	if value.IsStaticString(v) {
		return true
	}
	if !value.IsPointer(v) {
		return false
	}
	switch vm.Arena.Deref(v).(type) {
	case *heap.AString, *heap.UString, *heap.StringSlice:
		return true
	}
	return false
}

func (vm *VM) isRawStringShaped(v value.Value) bool {
	if !value.IsPointer(v) {
		return false
	}
	switch vm.Arena.Deref(v).(type) {
	case *heap.RawString, *heap.RawStringSlice:
		return true
	}
	return false
}

func semaTypeName(t symtab.SemaType) string {
	switch t {
	case symtab.SemaAny:
		return "any"
	case symtab.SemaDynamic:
		return "dynamic"
	case symtab.SemaString:
		return "String"
	case symtab.SemaStaticString:
		return "staticstring"
	case symtab.SemaRawString:
		return "RawString"
	default:
		return "unknown-sema-type"
	}
}

var pseudoTypeNames = map[uint32]string{
	value.TypeNumber:         "number",
	value.TypeNone:           "none",
	value.TypeBoolean:        "boolean",
	value.TypeInteger:        "integer",
	value.TypeSymbol:         "symbol",
	value.TypeEnum:           "enum",
	value.TypeStaticAString:  "staticstring",
	value.TypeStaticUString:  "staticstring",
	value.TypeError:          "error",
}

// typeName resolves a runtime type id to a display name, consulting
// the compiler's type table for heap type ids and a small pseudo-type
// table for the tagged primitive kinds (spec.md §3's VmType / §4.1's
// pseudo-type ids).
func (vm *VM) typeName(typeID uint32) string {
	if n, ok := pseudoTypeNames[typeID]; ok {
		return n
	}
	if int(typeID) < len(vm.Tables.Types) {
		return vm.Tables.Types[typeID].Name
	}
	return fmt.Sprintf("type#%d", typeID)
}
