// Package isa defines the Vigil instruction set: opcode constants, the
// in-memory instruction representation the execution loop dispatches
// on, a small textual assembler, a disassembler, and the on-disk image
// format (constant pool + static string buffer + instruction stream).
//
// spec.md §6 describes the wire format as a byte-addressed stream with
// per-opcode little-endian operand fields. We decode that wire format
// once, at load time, into a fixed-size Instr struct per instruction
// (see instr.go) rather than re-decoding a raw byte stream on every
// dispatch — the same "decode once, execute a struct array" trade a
// great many bytecode interpreters make. Because every Instr is the
// same Go struct regardless of opcode, self-modification (inline
// caching, spec.md §4.3) trivially satisfies the "single entry per
// instruction length regardless of IC variant" invariant: rewriting
// Op never changes the slot's size.
package isa

// Op is a single opcode. Values below ICGenericBoundary are the
// generic, un-cached forms the compiler emits; values at or above it
// are the "IC" variants the execution loop rewrites an instruction to
// after a successful dispatch witnesses a type (spec.md §4.3).
type Op uint8

const (
	// --- arithmetic and logic (operate on two number operands;
	// mismatched types PANIC with "Expected number operand.") ---
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMod
	OpNeg
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpCompare
	OpCompareNot

	// --- bitwise (coerce both operands double->i32, compute in i32) ---
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseXor
	OpBitwiseNot
	OpLeftShift
	OpRightShift

	// --- integer fast paths (operands assumed already tagged ints) ---
	OpAddInt
	OpSubInt
	OpLessInt

	// --- constants and literals ---
	OpConstOp
	OpConstI8
	OpConstI8Int
	OpTrue
	OpFalse
	OpNone

	// --- moves and refcount ---
	OpCopy
	OpCopyRetainSrc
	OpCopyReleaseDst
	OpCopyRetainRelease
	OpRetain
	OpRelease
	OpReleaseN

	// --- control flow ---
	OpJump
	OpJumpCond
	OpJumpNotCond
	OpJumpNotNone

	// --- calls (speculative tier; generic forms) ---
	OpCall
	OpCallSym
	OpCallObjSym
	OpCallTypeCheck

	// --- returns ---
	OpRet0
	OpRet1

	// --- heap constructors ---
	OpObjectSmall
	OpObject
	OpList
	OpMap
	OpMapEmpty
	OpLambda
	OpClosure
	OpBox
	OpStaticFunc
	OpSym

	// --- fields (generic forms) ---
	OpField
	OpFieldRetain
	OpSetField
	OpSetFieldRelease
	OpSetCheckFieldRelease

	// --- try/throw ---
	OpPushTry
	OpPopTry
	OpThrow

	// --- fibers ---
	OpCoinit
	OpCoyield
	OpCoresume
	OpCoreturn

	// --- for ranges ---
	OpForRangeInit
	OpForRange
	OpForRangeReverse

	// --- casts ---
	OpCast
	OpCastAbstract

	// --- misc ---
	OpTag
	OpTagLiteral
	OpStaticVar
	OpSetStaticVar
	OpSetStaticFunc
	OpSlice
	OpIndex
	OpReverseIndex
	OpSetIndex
	OpSetIndexRelease
	OpStringTemplate
	OpMatch
	OpInit
	OpEnd

	// ICGenericBoundary: every opcode before this point is a generic,
	// un-cached form; every opcode from here on is an inline-cache
	// variant that a generic form self-rewrites itself to on a
	// successful dispatch, and that deoptimizes back to its generic
	// counterpart on a cache miss (spec.md §4.3).
	ICGenericBoundary
)

// The IC opcodes are declared in their own block so their generic
// counterpart is obvious from naming alone.
const (
	OpCallObjFuncIC Op = ICGenericBoundary + iota
	opCallObjNativeFuncIC
	opCallFuncIC
	opCallNativeFuncIC
	opFieldIC
	opFieldRetainIC
	opSetFieldReleaseIC

	opCount
)

// Exported names for the IC opcode block.
const (
	OpCallObjNativeFuncIC = opCallObjNativeFuncIC
	OpCallFuncIC          = opCallFuncIC
	OpCallNativeFuncIC    = opCallNativeFuncIC
	OpFieldIC             = opFieldIC
	OpFieldRetainIC       = opFieldRetainIC
	OpSetFieldReleaseIC   = opSetFieldReleaseIC
)

// Deoptimize maps an IC opcode back to its generic counterpart
// (spec.md §4.3: "On a miss, the IC variant rewrites its opcode byte
// back to the generic form and retries").
func Deoptimize(op Op) Op {
	switch op {
	case OpCallObjFuncIC:
		return OpCallObjSym
	case opCallObjNativeFuncIC:
		return OpCallObjSym
	case opCallFuncIC:
		return OpCallSym
	case opCallNativeFuncIC:
		return OpCallSym
	case opFieldIC:
		return OpField
	case opFieldRetainIC:
		return OpFieldRetain
	case opSetFieldReleaseIC:
		return OpSetFieldRelease
	default:
		return op
	}
}

// IsIC reports whether op is one of the cached variants.
func IsIC(op Op) bool { return op >= ICGenericBoundary }

var names = map[Op]string{
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpDiv: "Div", OpPow: "Pow", OpMod: "Mod",
	OpNeg: "Neg", OpLess: "Less", OpGreater: "Greater", OpLessEqual: "LessEqual",
	OpGreaterEqual: "GreaterEqual", OpCompare: "Compare", OpCompareNot: "CompareNot",
	OpBitwiseAnd: "BitwiseAnd", OpBitwiseOr: "BitwiseOr", OpBitwiseXor: "BitwiseXor",
	OpBitwiseNot: "BitwiseNot", OpLeftShift: "LeftShift", OpRightShift: "RightShift",
	OpAddInt: "AddInt", OpSubInt: "SubInt", OpLessInt: "LessInt",
	OpConstOp: "ConstOp", OpConstI8: "ConstI8", OpConstI8Int: "ConstI8Int",
	OpTrue: "True", OpFalse: "False", OpNone: "None",
	OpCopy: "Copy", OpCopyRetainSrc: "CopyRetainSrc", OpCopyReleaseDst: "CopyReleaseDst",
	OpCopyRetainRelease: "CopyRetainRelease", OpRetain: "Retain", OpRelease: "Release",
	OpReleaseN: "ReleaseN",
	OpJump: "Jump", OpJumpCond: "JumpCond", OpJumpNotCond: "JumpNotCond", OpJumpNotNone: "JumpNotNone",
	OpCall: "Call", OpCallSym: "CallSym", OpCallObjSym: "CallObjSym", OpCallTypeCheck: "CallTypeCheck",
	OpRet0: "Ret0", OpRet1: "Ret1",
	OpObjectSmall: "ObjectSmall", OpObject: "Object", OpList: "List", OpMap: "Map",
	OpMapEmpty: "MapEmpty", OpLambda: "Lambda", OpClosure: "Closure", OpBox: "Box",
	OpStaticFunc: "StaticFunc", OpSym: "Sym",
	OpField: "Field", OpFieldRetain: "FieldRetain", OpSetField: "SetField",
	OpSetFieldRelease: "SetFieldRelease", OpSetCheckFieldRelease: "SetCheckFieldRelease",
	OpPushTry: "PushTry", OpPopTry: "PopTry", OpThrow: "Throw",
	OpCoinit: "Coinit", OpCoyield: "Coyield", OpCoresume: "Coresume", OpCoreturn: "Coreturn",
	OpForRangeInit: "ForRangeInit", OpForRange: "ForRange", OpForRangeReverse: "ForRangeReverse",
	OpCast: "Cast", OpCastAbstract: "CastAbstract",
	OpTag: "Tag", OpTagLiteral: "TagLiteral", OpStaticVar: "StaticVar", OpSetStaticVar: "SetStaticVar",
	OpSetStaticFunc: "SetStaticFunc", OpSlice: "Slice", OpIndex: "Index", OpReverseIndex: "ReverseIndex",
	OpSetIndex: "SetIndex", OpSetIndexRelease: "SetIndexRelease", OpStringTemplate: "StringTemplate",
	OpMatch: "Match", OpInit: "Init", OpEnd: "End",
	OpCallObjFuncIC: "CallObjFuncIC", opCallObjNativeFuncIC: "CallObjNativeFuncIC",
	opCallFuncIC: "CallFuncIC", opCallNativeFuncIC: "CallNativeFuncIC",
	opFieldIC: "FieldIC", opFieldRetainIC: "FieldRetainIC", opSetFieldReleaseIC: "SetFieldReleaseIC",
}

func (op Op) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "UnknownOp"
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(names))
	for op, n := range names {
		m[n] = op
	}
	return m
}()

// Lookup resolves a mnemonic to its opcode, for the assembler.
func Lookup(mnemonic string) (Op, bool) {
	op, ok := byName[mnemonic]
	return op, ok
}
