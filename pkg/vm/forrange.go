package vm

import (
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

// execForRangeInit implements ForRangeInit (spec.md §4.3's "For
// ranges" paragraph): it computes the loop bound, skips the body
// entirely when start == end (spec.md §8's boundary behavior), and
// otherwise patches the loop-top instruction (always emitted
// generically as ForRange by the compiler) to ForRangeReverse when
// the step is negative — the same self-modification technique the
// inline caches use, just for direction instead of a witnessed type.
// The loop bound itself has nowhere to live in the loop-top
// instruction's own register operands (all three narrow slots are
// spoken for), so it is cached into that instruction's reserved
// CacheTypeID/CacheAux bytes, split across the two 32-bit halves of
// the 64-bit end Value.
func (vm *VM) execForRangeInit(i *isa.Instr) {
	start := mustNumber(vm.reg(i.A))
	end := vm.reg(i.B)
	step := mustNumber(vm.reg(i.C))
	if start == mustNumber(end) {
		vm.pc += 1 + int(i.Imm)
		return
	}
	body := &vm.Instrs[vm.pc+1]
	if step < 0 {
		body.Op = isa.OpForRangeReverse
	} else {
		body.Op = isa.OpForRange
	}
	cacheRangeEnd(body, end)
	vm.pc++
}

func cacheRangeEnd(i *isa.Instr, end value.Value) {
	bits := uint64(end)
	i.CacheTypeID = uint32(bits >> 32)
	i.CacheAux = uint32(bits)
}

func readRangeEnd(i *isa.Instr) value.Value {
	return value.Value(uint64(i.CacheTypeID)<<32 | uint64(i.CacheAux))
}

// execForRangeStep implements the ForRange/ForRangeReverse loop-top
// test+bind+advance: it reads the cached bound, and either reports
// "crossed" (so the caller takes the forward exit jump) or binds the
// user-visible register to the current value, advances the internal
// counter by step, and reports "continue" (so the caller falls
// through into the loop body).
func (vm *VM) execForRangeStep(i *isa.Instr) bool {
	cur := mustNumber(vm.reg(i.A))
	end := mustNumber(readRangeEnd(i))
	step := mustNumber(vm.reg(i.C))

	var crossed bool
	if i.Op == isa.OpForRange {
		crossed = cur >= end
	} else {
		crossed = cur <= end
	}
	if crossed {
		return true
	}
	vm.setReg(i.B, value.Number(cur))
	vm.setReg(i.A, value.Number(cur+step))
	return false
}
