package vm

import (
	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/value"
)

// resolveFieldOffset is the "runtime offset table" fallback spec.md
// §4.3 says a Field/SetField miss consults. The compiler (out of
// scope) is the real owner of the (typeId, fieldSymId) -> offset
// mapping; this core's FieldSymbol carries that canonical offset in
// its NameID slot, since NameID is otherwise just an opaque interned
// name id the core never itself interprets.
func (vm *VM) resolveFieldOffset(fieldSymID uint32) (offset, fieldTypeSymID uint32) {
	fs := &vm.Tables.Fields[fieldSymID]
	return fs.NameID, 0
}

// execField handles Field/FieldRetain/FieldIC/FieldRetainIC: reads a
// field by (recv, fieldSymId) -> dst, consulting the field symbol's
// mru-type inline cache and rewriting the instruction to its IC
// variant on a cold hit (spec.md §4.3's "Fields" paragraph).
func (vm *VM) execField(i *isa.Instr) {
	recv := vm.reg(i.B)
	obj := vm.Arena.Deref(recv).(*heap.Object)
	typeID := obj.Hdr().TypeID
	fieldSymID := uint32(i.Imm)
	fs := &vm.Tables.Fields[fieldSymID]

	offset, _, hit := fs.Lookup(typeID)
	if hit {
		vm.fieldCacheHits++
	} else {
		offset, _ = vm.resolveFieldOffset(fieldSymID)
		fs.Update(typeID, offset, 0)
		if !isa.IsIC(i.Op) {
			i.Op = icFieldVariant(i.Op)
			i.CacheTypeID = typeID
			i.CacheAux = offset
		}
	}
	if isa.IsIC(i.Op) && i.CacheTypeID != typeID {
		// polymorphic miss: deoptimize back to the generic form.
		i.Op = isa.Deoptimize(i.Op)
	}

	dst := obj.Fields[offset]
	if i.Op == isa.OpFieldRetain || i.Op == isa.OpFieldRetainIC {
		vm.Arena.Retain(dst)
	}
	vm.setReg(i.A, dst)
}

func icFieldVariant(op isa.Op) isa.Op {
	if op == isa.OpFieldRetain {
		return isa.OpFieldRetainIC
	}
	return isa.OpFieldIC
}

// execSetField handles SetField/SetFieldRelease/SetFieldReleaseIC:
// (recv, src) -> field at fieldSymId. SetFieldRelease releases the
// prior field value before overwriting it.
func (vm *VM) execSetField(i *isa.Instr) {
	recv := vm.reg(i.A)
	obj := vm.Arena.Deref(recv).(*heap.Object)
	typeID := obj.Hdr().TypeID
	fieldSymID := uint32(i.Imm)
	fs := &vm.Tables.Fields[fieldSymID]

	offset, _, hit := fs.Lookup(typeID)
	if !hit {
		offset, _ = vm.resolveFieldOffset(fieldSymID)
		fs.Update(typeID, offset, 0)
		if i.Op == isa.OpSetFieldRelease {
			i.Op = isa.OpSetFieldReleaseIC
			i.CacheTypeID = typeID
			i.CacheAux = offset
		}
	}
	if isa.IsIC(i.Op) && i.CacheTypeID != typeID {
		i.Op = isa.Deoptimize(i.Op)
	}

	if i.Op == isa.OpSetFieldRelease || i.Op == isa.OpSetFieldReleaseIC {
		vm.Arena.Release(obj.Fields[offset])
	}
	obj.Fields[offset] = vm.reg(i.B)
}

// execSetCheckFieldRelease additionally enforces a sema-type
// constraint on the assigned value before writing it (spec.md §4.3).
func (vm *VM) execSetCheckFieldRelease(i *isa.Instr) {
	recv := vm.reg(i.A)
	obj := vm.Arena.Deref(recv).(*heap.Object)
	fieldSymID := uint32(i.Imm)
	cstr := symtab.SemaType(i.Imm2)

	src := vm.reg(i.B)
	if !symtab.IsCompat(runtimeSemaType(src), cstr) {
		panic(panicFormatted("incompatible value assigned to field"))
	}

	offset, _ := vm.resolveFieldOffset(fieldSymID)
	vm.Arena.Release(obj.Fields[offset])
	obj.Fields[offset] = src
}

// runtimeSemaType approximates the sema type a concrete runtime Value
// belongs to, for the purposes of isCompat. Real sema types for
// user-defined object types are compiler-assigned (out of scope); we
// only resolve the handful symtab.IsCompat special-cases by name.
func runtimeSemaType(v value.Value) symtab.SemaType {
	if value.IsStaticString(v) {
		return symtab.SemaStaticString
	}
	return symtab.SemaDynamic
}
