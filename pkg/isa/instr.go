package isa

// Instr is the in-memory, decode-once representation of a single
// instruction. Every opcode uses the same struct shape; which fields
// are meaningful depends on Op (see the per-opcode comments in
// opcode.go). A, B, C, D are register indices or small operands; Imm
// is the primary signed immediate (jump offsets, 8-bit constants,
// etc.); Imm2 carries a second unsigned operand slot (symbol/constant
// indices, call-site indices, argument counts packed by the caller).
// CacheTypeID/CacheAux are the reserved inline-cache bytes spec.md
// §6 describes trailing an IC instruction: the witnessed typeId and
// either a resolved field offset or a resolved call target index.
//
// Because every Instr is this one fixed-size struct, rewriting Op
// in place (spec.md §4.3's "rewrite their own opcode byte") can never
// change the slot's size — the invariant in spec.md §8 ("the
// opcode-to-length table has a single entry per instruction
// regardless of IC variant") holds by construction rather than by a
// table lookup.
type Instr struct {
	Op Op

	A, B, C, D uint8

	Imm  int32
	Imm2 uint32

	CacheTypeID uint32
	CacheAux    uint32

	// Line is the source line this instruction was assembled from,
	// purely for diagnostics; it plays no role in execution.
	Line int
}

// Len returns the number of Instr slots this opcode's dispatch occupies
// in the stream, which is always 1: a jump target or a saved pc is
// simply an index into the []Instr slice, not a byte offset. The
// method exists so callers that think in terms of "instruction length"
// (per the wire-format description in spec.md §6) have a single place
// documenting why that concept collapses to a constant here.
func (i Instr) Len() int { return 1 }
