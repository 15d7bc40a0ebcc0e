package heap

import (
	"fmt"

	"github.com/vigilvm/vigil/pkg/value"
)

// Result is the allocator's own result code, distinct from the VM's
// result codes (pkg/vm), so pkg/heap has no dependency on pkg/vm.
type Result uint8

const (
	OK Result = iota
	OOM
)

// Error implements error for a non-OK Result when callers want to
// propagate it as a Go error.
type Error struct{ Result Result }

func (e Error) Error() string { return "heap: out of memory" }

// maxPoolObjects/maxExternalObjects bound the two size classes so a
// runaway program faults with OOM instead of growing forever; a real
// embedder would size these from configuration.
const (
	maxPoolObjects     = 1 << 20
	maxExternalObjects = 1 << 24
)

// Arena owns every live HeapObject and implements retain/release.
// Handles are slab indices, never raw pointers: per spec.md §9's
// design notes, this lets the object graph be walked and debugged
// without unsafe.Pointer arithmetic, at the cost of one extra
// indirection per dereference (identical in spirit to how a
// slab/generational-index allocator in Rust would represent the same
// thing).
//
// An Arena is not safe for concurrent use; exactly one fiber's
// execution loop touches it at a time (spec.md §5).
type Arena struct {
	pool     []slot
	poolFree []Handle

	external     []slot
	externalFree []Handle

	// totalRC, when non-zero tracking is enabled, mirrors invariant H1
	// ("the global counter equals the sum of all object rcs") for
	// cheap whole-arena assertions in tests.
	trackGlobalRC bool
	totalRC       int64
}

type slot struct {
	obj  HeapObject
	live bool
}

// New returns an empty Arena. trackGlobalRC enables the O(1) global
// refcount counter used by invariant tests (spec.md §8); production
// embedding can leave it off.
func New(trackGlobalRC bool) *Arena {
	return &Arena{trackGlobalRC: trackGlobalRC}
}

// poolHandleBit marks a Handle as belonging to the pool slab so
// Deref/Release can route to the right backing slice without storing
// a second discriminant in the Value itself. This mirrors how a real
// allocator's low pointer bits often encode the size class.
const poolHandleBit = Handle(1) << 31

func (a *Arena) allocPool(obj HeapObject, typeID uint32, kind Kind) (Handle, error) {
	var h Handle
	if n := len(a.poolFree); n > 0 {
		h = a.poolFree[n-1]
		a.poolFree = a.poolFree[:n-1]
		idx := h &^ poolHandleBit
		a.pool[idx] = slot{obj: obj, live: true}
	} else {
		if len(a.pool) >= maxPoolObjects {
			return 0, Error{OOM}
		}
		h = Handle(len(a.pool)) | poolHandleBit
		a.pool = append(a.pool, slot{obj: obj, live: true})
	}
	hdr := obj.Hdr()
	hdr.TypeID, hdr.RC, hdr.Kind, hdr.Class, hdr.handle = typeID, 1, kind, Pool, h
	a.bumpGlobalRC(1)
	return h, nil
}

func (a *Arena) allocExternal(obj HeapObject, typeID uint32, kind Kind) (Handle, error) {
	var h Handle
	if n := len(a.externalFree); n > 0 {
		h = a.externalFree[n-1]
		a.externalFree = a.externalFree[:n-1]
		a.external[h] = slot{obj: obj, live: true}
	} else {
		if len(a.external) >= maxExternalObjects {
			return 0, Error{OOM}
		}
		h = Handle(len(a.external))
		a.external = append(a.external, slot{obj: obj, live: true})
	}
	hdr := obj.Hdr()
	hdr.TypeID, hdr.RC, hdr.Kind, hdr.Class, hdr.handle = typeID, 1, kind, External, h
	a.bumpGlobalRC(1)
	return h, nil
}

// Alloc allocates obj in the size class its Kind dictates (spec.md
// §4.2: "Closures always allocate externally when numCaptured > 2;
// otherwise pool"; the other fixed-shape, small objects — Box,
// Lambda, NativeFunc1, MetaType — are always pool; the rest are
// always external) and returns the pointer Value referencing it.
func (a *Arena) Alloc(obj HeapObject, typeID uint32) (value.Value, error) {
	kind := classify(obj)
	var h Handle
	var err error
	if sizeClassFor(obj, kind) == Pool {
		h, err = a.allocPool(obj, typeID, kind)
	} else {
		h, err = a.allocExternal(obj, typeID, kind)
	}
	if err != nil {
		return 0, err
	}
	return a.valueOf(h), nil
}

func classify(obj HeapObject) Kind {
	switch obj.(type) {
	case *Object:
		return KindObject
	case *Closure:
		return KindClosure
	case *Lambda:
		return KindLambda
	case *Box:
		return KindBox
	case *NativeFunc1:
		return KindNativeFunc1
	case *MetaType:
		return KindMetaType
	case *Fiber:
		return KindFiber
	case *Map:
		return KindMap
	case *List:
		return KindList
	case *AString:
		return KindAString
	case *UString:
		return KindUString
	case *StringSlice:
		return KindStringSlice
	case *RawString:
		return KindRawString
	case *RawStringSlice:
		return KindRawStringSlice
	default:
		panic(fmt.Sprintf("heap: unclassifiable object %T", obj))
	}
}

func sizeClassFor(obj HeapObject, kind Kind) SizeClass {
	switch kind {
	case KindBox, KindLambda, KindNativeFunc1, KindMetaType:
		return Pool
	case KindClosure:
		if len(obj.(*Closure).Captured) > 2 {
			return External
		}
		return Pool
	default:
		return External
	}
}

func (a *Arena) valueOf(h Handle) value.Value {
	return value.Pointer(uint64(h))
}

func (a *Arena) slotFor(h Handle) *slot {
	if h&poolHandleBit != 0 {
		idx := h &^ poolHandleBit
		return &a.pool[idx]
	}
	return &a.external[h]
}

// Deref resolves a pointer Value to its live HeapObject. Callers must
// have checked value.IsPointer(v) first.
func (a *Arena) Deref(v value.Value) HeapObject {
	h := Handle(value.AsPointer(v))
	s := a.slotFor(h)
	if !s.live {
		panic("heap: use-after-free: dereferenced a freed handle")
	}
	return s.obj
}

// DerefHandle resolves a raw Handle directly (used for Fiber.Parent
// and StringSlice/RawStringSlice owners, which are not encoded as
// Values).
func (a *Arena) DerefHandle(h Handle) HeapObject {
	s := a.slotFor(h)
	if !s.live {
		panic("heap: use-after-free: dereferenced a freed handle")
	}
	return s.obj
}

func (a *Arena) bumpGlobalRC(delta int64) {
	if a.trackGlobalRC {
		a.totalRC += delta
	}
}

// GlobalRC returns the live sum of every object's rc, when tracking is
// enabled (New(true)). It is used by invariant tests (spec.md §8,
// invariant H1).
func (a *Arena) GlobalRC() int64 { return a.totalRC }

// Retain implements spec.md §4.2: a no-op for non-pointer values,
// otherwise rc += 1.
func (a *Arena) Retain(v value.Value) {
	if !value.IsPointer(v) {
		return
	}
	h := Handle(value.AsPointer(v))
	hdr := a.slotFor(h).obj.Hdr()
	hdr.RC++
	a.bumpGlobalRC(1)
}

// Release implements spec.md §4.2: a no-op for non-pointer values;
// otherwise rc -= 1, and when rc reaches 0 the object's fields are
// recursively released and its slot returns to the originating
// allocator's free list (invariant H2). After free, the slot is
// marked dead so a later Deref panics loudly instead of reading
// stale data.
func (a *Arena) Release(v value.Value) {
	if !value.IsPointer(v) {
		return
	}
	h := Handle(value.AsPointer(v))
	a.releaseHandle(h)
}

func (a *Arena) releaseHandle(h Handle) {
	s := a.slotFor(h)
	if !s.live {
		panic("heap: double release of a freed handle")
	}
	hdr := s.obj.Hdr()
	if hdr.RC == 0 {
		panic("heap: release of an object with rc already 0")
	}
	hdr.RC--
	a.bumpGlobalRC(-1)
	if hdr.RC != 0 {
		return
	}
	// finalize: release every contained Value, then the object's own
	// non-Value handle references, then return the slot.
	s.obj.releaseFields(a.Release)
	switch o := s.obj.(type) {
	case *StringSlice:
		a.releaseHandle(o.Owner)
	case *RawStringSlice:
		a.releaseHandle(o.Owner)
	case *Fiber:
		if o.HasParent {
			a.releaseHandle(o.Parent)
		}
	}
	hdr.TypeID = 0 // debug-detectable: a freed object's type id is cleared
	s.live = false
	if hdr.Class == Pool {
		a.poolFree = append(a.poolFree, h)
	} else {
		a.externalFree = append(a.externalFree, h)
	}
}

// NewBoxValue constructs and allocates a Box in one step, since boxes
// are created constantly to desugar every capturable local.
func NewBoxValue(a *Arena, typeID uint32, v value.Value) (value.Value, error) {
	return a.Alloc(&Box{Val: v}, typeID)
}
