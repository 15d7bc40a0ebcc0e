// Package vm implements the bytecode execution core: the register
// dispatch loop, the call/return protocol with its inline caches, and
// the cooperative fiber scheduler with try/throw unwinding. It is the
// component everything else in this module exists to serve.
package vm

import "github.com/pkg/errors"

// Result is the outcome of a Run, mirroring the result codes a C-style
// execution core would return to its embedder.
type Result uint8

const (
	Success Result = iota
	Panic
	StackOverflow
	OOM
	Unknown
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Panic:
		return "PANIC"
	case StackOverflow:
		return "STACK_OVERFLOW"
	case OOM:
		return "OOM"
	default:
		return "UNKNOWN"
	}
}

// Fault is a Go error wrapping an unrecoverable VM failure (OOM or
// stack overflow). Faults bypass try/catch entirely and are returned
// straight to the embedder (spec.md §7).
type Fault struct {
	Result Result
	cause  error
}

func (f *Fault) Error() string { return f.cause.Error() }
func (f *Fault) Unwrap() error { return f.cause }

func newFault(result Result, msg string) *Fault {
	return &Fault{Result: result, cause: errors.New(msg)}
}

// ErrStackOverflow and ErrOOM carry the messages of the two Fault kinds
// the core can raise on its own. newFault builds a fresh cause error
// from that text, so a Fault does not wrap these values themselves.
var (
	ErrStackOverflow = errors.New("vm: stack headroom exhausted")
	ErrOOM           = errors.New("vm: allocator out of memory")
)

// PanicInfo describes an in-language panic once Run returns Panic (no
// try-frame remained to catch it): the payload message and its payload
// kind. spec.md §7's three panic payload
// kinds (STATIC_MSG, MSG, INFLIGHT_OOM) collapse to a formatted string
// here since Go strings already own their storage.
type PanicInfo struct {
	Message string
	Kind    PanicPayloadKind
}

// PanicPayloadKind mirrors heap.PanicKind, exported at the vm API
// boundary under vm's own naming.
type PanicPayloadKind uint8

const (
	PanicPayloadNone PanicPayloadKind = iota
	PanicPayloadStaticMsg
	PanicPayloadMsg
	PanicPayloadInflightOOM
)

// vmPanic is the internal control-transfer signal the dispatch loop
// uses to unwind out of a deeply nested helper back to the loop's
// try-stack search, without plumbing an error return through every
// opcode handler. It is only ever caught inside Run.
type vmPanic struct {
	kind PanicPayloadKind
	msg  string
}

func (p vmPanic) Error() string { return p.msg }

func panicStatic(msg string) vmPanic { return vmPanic{kind: PanicPayloadStaticMsg, msg: msg} }
func panicFormatted(msg string) vmPanic { return vmPanic{kind: PanicPayloadMsg, msg: msg} }
