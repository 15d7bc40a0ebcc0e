// Package heap implements the heap object family and the manual
// reference-counted memory management scheme described in spec.md
// §3-4.2: typed HeapObjects with a (typeId, rc) header, retain/release,
// and the pool/external allocator split.
//
// Go's own garbage collector keeps every HeapObject reachable while an
// Arena references it (so a use-after-free bug here corrupts program
// state the same way it would in an unsafe language, it just cannot
// crash the host process). We do not hand out raw *HeapObject
// pointers as Values, though: per the design notes in spec.md §9, a
// Value's pointer payload is an index (Handle) into the Arena's slab,
// not a raw memory address, so the object graph can be walked and
// cycle-broken without unsafe.Pointer arithmetic.
package heap

import "github.com/vigilvm/vigil/pkg/value"

// Handle identifies a live HeapObject inside an Arena. It occupies the
// low 48 bits of a pointer Value.
type Handle uint32

// Kind discriminates the concrete HeapObject shapes from spec.md §3.
type Kind uint8

const (
	KindObject Kind = iota
	KindClosure
	KindLambda
	KindBox
	KindNativeFunc1
	KindMetaType
	KindFiber
	KindMap
	KindList
	KindAString
	KindUString
	KindStringSlice
	KindRawString
	KindRawStringSlice
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "Object"
	case KindClosure:
		return "Closure"
	case KindLambda:
		return "Lambda"
	case KindBox:
		return "Box"
	case KindNativeFunc1:
		return "NativeFunc1"
	case KindMetaType:
		return "MetaType"
	case KindFiber:
		return "Fiber"
	case KindMap:
		return "Map"
	case KindList:
		return "List"
	case KindAString:
		return "AString"
	case KindUString:
		return "UString"
	case KindStringSlice:
		return "StringSlice"
	case KindRawString:
		return "RawString"
	case KindRawStringSlice:
		return "RawStringSlice"
	default:
		return "UnknownKind"
	}
}

// SizeClass records which allocator a HeapObject came from (spec.md
// §4.2): Pool for small fixed-size shapes, External for variable-size
// ones. It is tracked so tests and trace dumps can assert the
// allocation-site rule ("Closures always allocate externally when
// numCaptured > 2; otherwise pool"), not because Go's allocator
// itself needs the distinction.
type SizeClass uint8

const (
	Pool SizeClass = iota
	External
)

// Header is embedded in every concrete HeapObject and is the only
// part the allocator and the refcounting machinery touch directly.
type Header struct {
	TypeID uint32
	RC     uint32
	Kind   Kind
	Class  SizeClass
	handle Handle
}

// Hdr implements HeapObject.
func (h *Header) Hdr() *Header { return h }

// Handle returns the handle this object is currently registered
// under. Only valid while the object is live in some Arena.
func (h *Header) Handle() Handle { return h.handle }

// HeapObject is implemented by every concrete heap shape. releaseFields
// is called exactly once, when RC transitions from 1 to 0, and must
// release (not deep-free) every Value the object directly contains;
// the arena's own Release then recurses into those.
type HeapObject interface {
	Hdr() *Header
	// releaseFields releases every Value directly owned by this
	// object via the supplied release callback. It must not itself
	// mutate RC of the receiver.
	releaseFields(release func(value.Value))
}

// --- concrete shapes ----------------------------------------------

// Object is a user-defined composite: a typeId plus a flat field list.
type Object struct {
	Header
	Fields []value.Value
}

func (o *Object) releaseFields(release func(value.Value)) {
	for _, f := range o.Fields {
		release(f)
	}
}

// Closure is a captureful function value. Captured slots are always
// Box pointers (spec.md §4.2 invariant): this is how the language
// avoids tracing cyclic data without a cycle collector.
type Closure struct {
	Header
	FuncPC    uint32
	NumParams uint8
	StackSize uint32
	LocalSlot uint32
	FuncSigID uint32
	Captured  []value.Value // each element must be a Box pointer
}

func (c *Closure) releaseFields(release func(value.Value)) {
	for _, f := range c.Captured {
		release(f)
	}
}

// Lambda is a captureless function value.
type Lambda struct {
	Header
	FuncPC    uint32
	NumParams uint8
	StackSize uint32
	FuncSigID uint32
}

func (l *Lambda) releaseFields(func(value.Value)) {}

// Box is a single mutable cell, used to desugar captured locals so
// closures can share and mutate them after capture.
type Box struct {
	Header
	Val value.Value
}

func (b *Box) releaseFields(release func(value.Value)) {
	release(b.Val)
}

// NativeFunc1 wraps a single native-call entry point.
type NativeFunc1 struct {
	Header
	FnPtr       NativeFn
	NumParams   uint8
	FuncSigID   uint32
	HasTCCState bool
}

// NativeFn is the signature every native method call goes through
// (spec.md §4.4): it receives the published argument window and
// returns either a result Value or the interrupt sentinel.
type NativeFn func(args []value.Value) value.Value

func (n *NativeFunc1) releaseFields(func(value.Value)) {}

// MetaType reifies a type as a first-class value.
type MetaType struct {
	Header
	SymType uint32
	SymID   uint32
}

func (m *MetaType) releaseFields(func(value.Value)) {}

// TryFrame is a single entry in a Fiber's try-stack (spec.md §3).
type TryFrame struct {
	FP          uint32
	CatchPC     uint32
	CatchErrDst uint8
}

// PanicKind enumerates the per-fiber panic-payload kinds (spec.md §7).
type PanicKind uint8

const (
	PanicNone PanicKind = iota
	PanicStaticMsg
	PanicMsg
	PanicInflightOOM
)

// Fiber owns an independent value stack and try-frame stack.
// PCOffset == FiberFinished means the fiber has already returned.
type Fiber struct {
	Header
	ID         FiberID
	Stack      []value.Value
	PCOffset   uint32
	StackBase  uint32
	SavedFP    uint32 // register-window base within Stack at the moment this fiber was suspended
	Parent     Handle // meaningful only when HasParent is set; mainFiber never has a parent
	HasParent  bool
	ResumerDst uint8 // register in the parent's frame a Coyield/Coreturn value lands in
	TryStack   []TryFrame
	PanicKind  PanicKind
	PanicValue value.Value // for PanicMsg/PanicStaticMsg, an index into a message table
}

// FiberID is a stable identifier independent of handle reuse, minted
// by NewFiberID for every fiber the VM allocates.
type FiberID = [16]byte

// FiberFinished is the saved-pc sentinel meaning "this fiber has
// already returned and cannot be resumed again" (spec.md §3, §4.3).
const FiberFinished = ^uint32(0)

func (f *Fiber) releaseFields(release func(value.Value)) {
	for _, v := range f.Stack {
		release(v)
	}
}

// Map, List and the string family are delegated to external
// collaborators per spec.md §1 (out of scope); we still give them a
// real, minimally functional shape here so the execution loop's
// container opcodes (List, Map, MapEmpty, Slice, Index, SetIndex, …)
// have something concrete to operate on and so their contained Values
// participate correctly in refcounting.

// List is a growable array of Values.
type List struct {
	Header
	Items []value.Value
}

func (l *List) releaseFields(release func(value.Value)) {
	for _, v := range l.Items {
		release(v)
	}
}

// Map is an insertion-ordered string-keyed map of Values.
type Map struct {
	Header
	Keys   []string
	Values []value.Value
}

func (m *Map) releaseFields(release func(value.Value)) {
	for _, v := range m.Values {
		release(v)
	}
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (value.Value, bool) {
	for i, k := range m.Keys {
		if k == key {
			return m.Values[i], true
		}
	}
	return 0, false
}

// Set inserts or overwrites key, returning the previous value (if
// any) so the caller can release it.
func (m *Map) Set(key string, v value.Value) (prev value.Value, existed bool) {
	for i, k := range m.Keys {
		if k == key {
			prev = m.Values[i]
			m.Values[i] = v
			return prev, true
		}
	}
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, v)
	return 0, false
}

// AString is a mutable ASCII string buffer.
type AString struct {
	Header
	Bytes []byte
}

func (a *AString) releaseFields(func(value.Value)) {}

// UString is a mutable Unicode (rune-backed) string buffer.
type UString struct {
	Header
	Runes []rune
}

func (u *UString) releaseFields(func(value.Value)) {}

// StringSlice is a view into another string object.
type StringSlice struct {
	Header
	Owner      Handle
	Start, Len uint32
}

// releaseFields is a no-op here: Owner is a Handle, not a Value, so
// it cannot be released through the Value-based callback. The Arena
// releases slice owners directly via releaseHandle (arena.go) after
// calling releaseFields.
func (s *StringSlice) releaseFields(func(value.Value)) {}

// RawString is an immutable byte string with no ownership semantics
// of its own beyond the bytes it carries.
type RawString struct {
	Header
	Bytes []byte
}

func (r *RawString) releaseFields(func(value.Value)) {}

// RawStringSlice is a view into a RawString.
type RawStringSlice struct {
	Header
	Owner      Handle
	Start, Len uint32
}

func (r *RawStringSlice) releaseFields(func(value.Value)) {}

var (
	_ HeapObject = (*Object)(nil)
	_ HeapObject = (*Closure)(nil)
	_ HeapObject = (*Lambda)(nil)
	_ HeapObject = (*Box)(nil)
	_ HeapObject = (*NativeFunc1)(nil)
	_ HeapObject = (*MetaType)(nil)
	_ HeapObject = (*Fiber)(nil)
	_ HeapObject = (*List)(nil)
	_ HeapObject = (*Map)(nil)
	_ HeapObject = (*AString)(nil)
	_ HeapObject = (*UString)(nil)
	_ HeapObject = (*StringSlice)(nil)
	_ HeapObject = (*RawString)(nil)
	_ HeapObject = (*RawStringSlice)(nil)
)
