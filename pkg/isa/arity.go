package isa

// operandSpec describes a mnemonic's textual operand shape: narrow
// operands are small registers/counts that fit into Instr's A/B/C/D
// uint8 slots (in source order); wide operands are symbol/constant
// ids or jump targets that go into Instr's Imm then Imm2 (in source
// order, after the narrow ones). When isLabel is true the lone wide
// operand names a label rather than a literal, and is resolved to a
// relative offset into Imm at assembly time (spec.md §4.3: Jump,
// PushTry, PopTry, Coinit, and the for-range family all patch an
// offset this way).
//
// Most of the ~80 opcodes in spec.md §4.3 fall into a handful of
// shapes, so this table is built by grouping opcodes rather than
// spelling out one entry per opcode.
type operandSpec struct {
	narrow  int
	wide    int
	isLabel bool
}

func (s operandSpec) arity() int { return s.narrow + s.wide }

var specs = buildSpecs()

func buildSpecs() map[Op]operandSpec {
	m := map[Op]operandSpec{}
	set := func(s operandSpec, ops ...Op) {
		for _, op := range ops {
			m[op] = s
		}
	}

	// 3-register arithmetic/logic/bitwise/integer-fast-path/indexing: dst,a,b
	set(operandSpec{narrow: 3}, OpAdd, OpSub, OpMul, OpDiv, OpPow, OpMod,
		OpLess, OpGreater, OpLessEqual, OpGreaterEqual, OpCompare, OpCompareNot,
		OpBitwiseAnd, OpBitwiseOr, OpBitwiseXor, OpLeftShift, OpRightShift,
		OpAddInt, OpSubInt, OpLessInt,
		OpSetIndex, OpSetIndexRelease, OpIndex, OpReverseIndex, OpMatch,
		OpList, OpMap, OpStringTemplate,
	)
	// dst,startReg,numCaptured,funcPC + wide (funcSigId, stackSize<<16|localSlot)
	set(operandSpec{narrow: 4, wide: 2}, OpClosure)
	// dst,src (unary move/rc/cast forms)
	set(operandSpec{narrow: 2}, OpNeg, OpBitwiseNot, OpCopy, OpCopyRetainSrc,
		OpCopyReleaseDst, OpCopyRetainRelease, OpBox, OpInit)
	// single register operand
	set(operandSpec{narrow: 1}, OpRetain, OpRelease, OpThrow, OpCoyield, OpCoreturn, OpMapEmpty)
	// reg,count
	set(operandSpec{narrow: 2}, OpReleaseN)
	// dst only
	set(operandSpec{narrow: 1}, OpTrue, OpFalse, OpNone)
	// dst + wide literal/id
	set(operandSpec{narrow: 1, wide: 1}, OpConstOp, OpConstI8, OpConstI8Int,
		OpStaticFunc, OpSym, OpTag, OpTagLiteral)
	// dst,funcPC + wide (funcSigId, stackSize)
	set(operandSpec{narrow: 2, wide: 2}, OpLambda)
	// reg + wide slot id
	set(operandSpec{narrow: 1, wide: 1}, OpStaticVar, OpSetStaticVar, OpSetStaticFunc)
	// dst,src + wide type id
	set(operandSpec{narrow: 2, wide: 1}, OpCast, OpCastAbstract)
	// dst/recv,src/recv + wide field symbol id
	set(operandSpec{narrow: 2, wide: 1}, OpField, OpFieldRetain, OpSetField, OpSetFieldRelease)
	// recv,src + wide (fieldSymId, semaType)
	set(operandSpec{narrow: 2, wide: 2}, OpSetCheckFieldRelease)
	// jumps: a single label, optionally preceded by a cond/err register
	set(operandSpec{wide: 1, isLabel: true}, OpJump, OpPopTry)
	set(operandSpec{narrow: 1, wide: 1, isLabel: true}, OpJumpCond, OpJumpNotCond, OpJumpNotNone, OpPushTry)
	// calls
	set(operandSpec{narrow: 4}, OpCall)
	set(operandSpec{narrow: 3, wide: 1}, OpCallSym, OpCallTypeCheck)
	set(operandSpec{narrow: 4, wide: 2}, OpCallObjSym)
	set(operandSpec{}, OpRet0, OpEnd)
	// Ret1's lone narrow operand names the register holding the return value.
	set(operandSpec{narrow: 1}, OpRet1)
	// heap constructors needing a wide typeId alongside narrow regs
	set(operandSpec{narrow: 3, wide: 1}, OpObjectSmall, OpObject)
	// fibers
	set(operandSpec{narrow: 3, wide: 1, isLabel: true}, OpCoinit)
	set(operandSpec{narrow: 2}, OpCoresume)
	// for ranges
	set(operandSpec{narrow: 3, wide: 1, isLabel: true}, OpForRangeInit, OpForRange, OpForRangeReverse)
	// misc
	set(operandSpec{narrow: 4}, OpSlice)

	return m
}

func specFor(op Op) (operandSpec, bool) {
	s, ok := specs[op]
	return s, ok
}
