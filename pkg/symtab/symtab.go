// Package symtab holds the read-only symbol tables the execution
// core consumes (spec.md §3, §6): field symbols with their
// most-recently-used inline-cache slot, function symbols, the type
// table, name interning, resolved sema symbols, resolved function
// signatures, and static variable slots.
//
// Everything here is produced by the bytecode compiler (out of scope
// per spec.md §1) and is only ever read by pkg/vm, except for the
// single mru cache field on FieldSymbol and the CallObjSym call-site
// caches in Tables.ObjSites (with their megamorphic LRU overflow),
// which the execution loop
// mutates in place as inline caches witness call sites (spec.md
// §4.3).
package symtab

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vigilvm/vigil/pkg/value"
)

// SemaType is a compile-time type identifier, distinct from a runtime
// heap typeId (spec.md glossary).
type SemaType uint32

// The abstract sema types CallTypeCheck/CastAbstract special-case.
const (
	SemaAny SemaType = iota
	SemaDynamic
	SemaString
	SemaStaticString
	SemaRawString
	// SemaFirstConcrete is the smallest SemaType that names one
	// concrete runtime type rather than an abstract family.
	SemaFirstConcrete
)

// IsCompat implements spec.md §4.3's isCompat(arg, cstr):
// arg == cstr, or cstr is one of the universally-accepting abstract
// types, or cstr == STRING and arg is a static string.
func IsCompat(arg, cstr SemaType) bool {
	if arg == cstr {
		return true
	}
	switch cstr {
	case SemaAny, SemaDynamic:
		return true
	case SemaString:
		return arg == SemaStaticString
	}
	return false
}

// FieldSymbol is a field symbol with its mru-type inline cache slot
// (spec.md §3, §4.3). The core rewrites MRUTypeID/MRUOffset/
// MRUFieldTypeSymID in place on a cache miss; the compiler only
// ever populates NameID initially.
type FieldSymbol struct {
	NameID           uint32
	MRUTypeID        uint32
	MRUOffset        uint32
	MRUFieldTypeSymID uint32
	valid            bool // whether the mru slot has ever been populated
}

// Lookup returns the cached (offset, fieldTypeSymId) for typeID, and
// whether the cache currently witnesses that type.
func (f *FieldSymbol) Lookup(typeID uint32) (offset, fieldTypeSymID uint32, ok bool) {
	if !f.valid || f.MRUTypeID != typeID {
		return 0, 0, false
	}
	return f.MRUOffset, f.MRUFieldTypeSymID, true
}

// Update rewrites the mru slot after a successful runtime-offset-table
// fallback lookup (spec.md §4.3's Field/FieldIC miss path).
func (f *FieldSymbol) Update(typeID, offset, fieldTypeSymID uint32) {
	f.MRUTypeID, f.MRUOffset, f.MRUFieldTypeSymID = typeID, offset, fieldTypeSymID
	f.valid = true
}

// FuncKind discriminates the tagged union of function symbol shapes
// (spec.md §3).
type FuncKind uint8

const (
	FuncNative1 FuncKind = iota
	FuncBytecode
	FuncBoundClosure
)

// FuncSymbol is a statically-known function symbol (the target of
// CallSym/CallFuncIC/CallNativeFuncIC).
type FuncSymbol struct {
	Kind FuncKind

	// FuncBytecode
	PC        uint32
	NumParams uint8
	StackSize uint32

	// FuncNative1
	Native NativeFn

	// FuncBoundClosure
	ClosureVal value.Value

	SigID uint32
}

// NativeFn mirrors heap.NativeFn without importing pkg/heap, so
// pkg/symtab stays a leaf package (spec.md §2's dependency order:
// value repr -> heap/RC -> call frames -> execution loop -> fibers;
// symtab sits alongside value repr as a leaf the rest depend on).
type NativeFn func(args []value.Value) value.Value

// ObjSiteCache is the polymorphic inline cache state for a single
// CallObjSym/CallObjFuncIC call site (spec.md §4.3). It holds one
// fast mru slot for the monomorphic case and falls back to a bounded
// LRU for megamorphic call sites (SPEC_FULL.md §3's enrichment over
// the single-slot design spec.md describes) before giving up and
// deoptimizing back to the generic dispatch path.
type ObjSiteCache struct {
	mruTypeID uint32
	mruTarget uint32 // resolved function symbol index
	mruValid  bool

	overflow *lru.Cache[uint32, uint32]
}

// NewObjSiteCache constructs a cache whose megamorphic overflow tier
// holds at most overflowSize entries.
func NewObjSiteCache(overflowSize int) *ObjSiteCache {
	c, _ := lru.New[uint32, uint32](overflowSize)
	return &ObjSiteCache{overflow: c}
}

// Lookup returns the cached function symbol index for typeID.
func (c *ObjSiteCache) Lookup(typeID uint32) (target uint32, ok bool) {
	if c.mruValid && c.mruTypeID == typeID {
		return c.mruTarget, true
	}
	if v, ok := c.overflow.Get(typeID); ok {
		return v, true
	}
	return 0, false
}

// Update records a witnessed (typeID -> target) resolution. The first
// miss promotes into the mru slot; a second distinct type demotes the
// old mru entry into the overflow LRU and promotes the new one,
// matching how real two-tier ICs degrade under polymorphism.
func (c *ObjSiteCache) Update(typeID, target uint32) {
	if !c.mruValid {
		c.mruTypeID, c.mruTarget, c.mruValid = typeID, target, true
		return
	}
	if c.mruTypeID == typeID {
		c.mruTarget = target
		return
	}
	c.overflow.Add(c.mruTypeID, c.mruTarget)
	c.mruTypeID, c.mruTarget = typeID, target
}

// VmType is an entry in the type table (spec.md §3, §6): a runtime
// typeId maps to the sema type symbol and display name the compiler
// assigned it.
type VmType struct {
	TypeSymID uint32
	Name      string
}

// FuncSignature is a resolved function signature (spec.md §6):
// the parameter sema-type vector plus its length and return type.
type FuncSignature struct {
	Params  []SemaType
	RetType SemaType
}

// Tables is the full read-only symbol environment the execution loop
// is handed at VM construction time. A real embedder populates this
// from the compiler's output; tests construct it by hand.
type Tables struct {
	Fields     []FieldSymbol
	Funcs      []FuncSymbol
	Types      []VmType
	Names      []string
	Signatures []FuncSignature
	Statics    []value.Value
	StaticFns  []value.Value

	ObjSites []*ObjSiteCache // one per CallObjSym/CallObjFuncIC call site
}

// NewTables allocates a Tables with nFields field symbols, nSites
// object-dispatch call sites (each given its own ObjSiteCache with
// the given megamorphic overflow size), and otherwise-empty slices
// ready for a test or loader to fill in.
func NewTables(nFields, nSites, overflowSize int) *Tables {
	t := &Tables{Fields: make([]FieldSymbol, nFields)}
	t.ObjSites = make([]*ObjSiteCache, nSites)
	for i := range t.ObjSites {
		t.ObjSites[i] = NewObjSiteCache(overflowSize)
	}
	return t
}
