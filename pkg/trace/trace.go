// Package trace implements the debug dump hooks spec.md §1 carves out
// as "opcode dumping hooks" rather than a full source-level debugging
// protocol: register/heap snapshots for postmortem inspection, and a
// colorized disassembly dump for interactive stepping. Both are
// ambient tooling around the execution core, not part of its
// contract, so nothing in pkg/vm imports this package.
package trace

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"

	"github.com/vigilvm/vigil/pkg/isa"
)

// RegisterWindow is a minimal, trace-only view of one frame's live
// registers, independent of pkg/vm's internal Fiber/Arena types so
// this package stays a leaf the embedding CLI can import without
// pulling in the whole execution core.
type RegisterWindow struct {
	FP      int
	PC      int
	Regs    []fmt.Stringer
}

// DumpRegisters writes a spew-formatted snapshot of w to out, matching
// go-probeum's own use of davecgh/go-spew for structured state dumps.
func DumpRegisters(out io.Writer, w RegisterWindow) {
	fmt.Fprintf(out, "pc=%d fp=%d\n", w.PC, w.FP)
	cfg := spew.ConfigState{Indent: "  ", DisableMethods: false}
	for i, r := range w.Regs {
		fmt.Fprintf(out, "  r%d = %s\n", i, cfg.Sprint(r))
	}
}

// opcodeClass buckets an opcode for colorization purposes; it mirrors
// the groupings opcode.go's own comments use (arithmetic, calls,
// fields, fibers, ...).
type opcodeClass int

const (
	classArith opcodeClass = iota
	classControl
	classCall
	classHeap
	classField
	classFiber
	classMisc
)

func classify(op isa.Op) opcodeClass {
	switch {
	case op >= isa.OpAdd && op <= isa.OpLessInt:
		return classArith
	case op == isa.OpJump || op == isa.OpJumpCond || op == isa.OpJumpNotCond || op == isa.OpJumpNotNone:
		return classControl
	case op == isa.OpCall || op == isa.OpCallSym || op == isa.OpCallObjSym || op == isa.OpCallTypeCheck ||
		op == isa.OpCallObjFuncIC || op == isa.OpCallObjNativeFuncIC || op == isa.OpCallFuncIC || op == isa.OpCallNativeFuncIC ||
		op == isa.OpRet0 || op == isa.OpRet1:
		return classCall
	case op == isa.OpField || op == isa.OpFieldRetain || op == isa.OpSetField || op == isa.OpSetFieldRelease ||
		op == isa.OpSetCheckFieldRelease || op == isa.OpFieldIC || op == isa.OpFieldRetainIC || op == isa.OpSetFieldReleaseIC:
		return classField
	case op == isa.OpCoinit || op == isa.OpCoyield || op == isa.OpCoresume || op == isa.OpCoreturn:
		return classFiber
	case op == isa.OpObjectSmall || op == isa.OpObject || op == isa.OpList || op == isa.OpMap ||
		op == isa.OpMapEmpty || op == isa.OpLambda || op == isa.OpClosure || op == isa.OpBox:
		return classHeap
	default:
		return classMisc
	}
}

var paintFor = map[opcodeClass]func(a ...interface{}) string{
	classArith:   color.New(color.FgCyan).SprintFunc(),
	classControl: color.New(color.FgYellow).SprintFunc(),
	classCall:    color.New(color.FgGreen).SprintFunc(),
	classHeap:    color.New(color.FgMagenta).SprintFunc(),
	classField:   color.New(color.FgBlue).SprintFunc(),
	classFiber:   color.New(color.FgRed).SprintFunc(),
	classMisc:    color.New(color.FgWhite).SprintFunc(),
}

// ColorizeDisasm renders one instruction's disassembly text with its
// opcode class's color, for `vigilc disasm`'s terminal output.
func ColorizeDisasm(i isa.Instr) string {
	text := isa.Disassemble(i)
	paint := paintFor[classify(i.Op)]
	return paint(text)
}
