package isa

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InstructionOrError carries one assembled Instr, or the error that
// occurred assembling it, out of the assembler pipeline. Mirrors the
// shape of a conventional multi-stage assembler: the caller ranges
// over a channel and stops at the first error.
type InstructionOrError struct {
	Instr Instr
	Error error
}

// StartAssembler starts the assembler in a background goroutine and
// returns a channel of InstructionOrError, one per source line that
// produced (or failed to produce) an instruction.
func StartAssembler(r io.Reader) <-chan InstructionOrError {
	out := make(chan InstructionOrError)
	go AssemblerAsync(r, out)
	return out
}

// rawLine is one non-empty, comment-stripped line of source together
// with its 1-based line number.
type rawLine struct {
	text   string
	lineno int
}

// startLexing strips comments (# or ; to end of line) and blank lines,
// and reports each remaining line over the returned channel.
func startLexing(r io.Reader) <-chan rawLine {
	out := make(chan rawLine)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		lineno := 0
		for sc.Scan() {
			lineno++
			line := sc.Text()
			if i := strings.IndexAny(line, "#;"); i >= 0 {
				line = line[:i]
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			out <- rawLine{text: line, lineno: lineno}
		}
	}()
	return out
}

// parsedInstr is one line parsed into a mnemonic plus raw operand
// tokens, before label resolution.
type parsedInstr struct {
	label     string // "" if this line defines no label
	labelOnly bool   // true if the line was only a label, no instruction
	op        Op
	opSpec    operandSpec
	tokens    []string
	lineno    int
	err       error
}

// startParsing consumes lexed lines and splits an optional leading
// "label:" off the mnemonic and its operands, resolving the mnemonic
// to an Op and checking its operand count against arity.go's table.
// It does not resolve register numbers or labels yet: that happens in
// AssemblerAsync's second pass, once every label's pc is known.
func startParsing(in <-chan rawLine) <-chan parsedInstr {
	out := make(chan parsedInstr)
	go func() {
		defer close(out)
		for rl := range in {
			text := rl.text
			label := ""
			if i := strings.Index(text, ":"); i >= 0 && !strings.ContainsAny(text[:i], " \t") {
				label = text[:i]
				text = strings.TrimSpace(text[i+1:])
				if text == "" {
					out <- parsedInstr{label: label, labelOnly: true, lineno: rl.lineno}
					continue
				}
			}
			fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
			mnemonic, operands := fields[0], fields[1:]
			op, ok := Lookup(mnemonic)
			if !ok {
				out <- parsedInstr{err: errors.Wrapf(ErrUnknownMnemonic, "line %d: %q", rl.lineno, mnemonic), lineno: rl.lineno}
				continue
			}
			spec, ok := specFor(op)
			if !ok {
				out <- parsedInstr{err: errors.Wrapf(ErrUnknownMnemonic, "line %d: %q has no operand spec", rl.lineno, mnemonic), lineno: rl.lineno}
				continue
			}
			if len(operands) != spec.arity() {
				out <- parsedInstr{err: errors.Wrapf(ErrWrongOperandCount, "line %d: %s wants %d operands, got %d", rl.lineno, mnemonic, spec.arity(), len(operands)), lineno: rl.lineno}
				continue
			}
			out <- parsedInstr{label: label, op: op, opSpec: spec, tokens: operands, lineno: rl.lineno}
		}
	}()
	return out
}

// AssemblerAsync runs the full two-pass assembler: it drains the
// lex/parse pipeline once to record every label's pc, then walks the
// buffered instructions a second time to resolve registers, literals
// and label references into a concrete Instr, writing results to out.
func AssemblerAsync(r io.Reader, out chan<- InstructionOrError) {
	defer close(out)

	var parsed []parsedInstr
	labels := make(map[string]int)
	pc := 0
	for p := range startParsing(startLexing(r)) {
		if p.err != nil {
			out <- InstructionOrError{Error: p.err}
			return
		}
		if p.label != "" {
			labels[p.label] = pc
		}
		if p.labelOnly {
			continue
		}
		parsed = append(parsed, p)
		pc++
	}

	for pc, p := range parsed {
		instr, err := encode(p, labels, pc)
		if err != nil {
			out <- InstructionOrError{Error: err}
			continue
		}
		out <- InstructionOrError{Instr: instr}
	}
}

// encode resolves one parsedInstr's operand tokens into an Instr,
// filling narrow operands into A,B,C,D in source order and wide
// operands into Imm then Imm2, per operandSpec's contract.
func encode(p parsedInstr, labels map[string]int, pc int) (Instr, error) {
	instr := Instr{Op: p.op, Line: p.lineno}
	narrowSlots := []*uint8{&instr.A, &instr.B, &instr.C, &instr.D}

	for i := 0; i < p.opSpec.narrow; i++ {
		n, err := resolveRegister(p.tokens[i], p.lineno)
		if err != nil {
			return Instr{}, err
		}
		*narrowSlots[i] = n
	}

	wideTokens := p.tokens[p.opSpec.narrow:]
	for i, tok := range wideTokens {
		if p.opSpec.isLabel && i == len(wideTokens)-1 {
			target, ok := labels[tok]
			if !ok {
				return Instr{}, errors.Wrapf(ErrMissingLabel, "line %d: %q", p.lineno, tok)
			}
			instr.Imm = int32(target - pc)
			continue
		}
		v, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return Instr{}, errors.Wrapf(ErrBadOperand, "line %d: %q", p.lineno, tok)
		}
		if i == 0 {
			if v < -(1<<31) || v > (1<<31-1) {
				return Instr{}, errors.Wrapf(ErrOutOfRange, "line %d: %q", p.lineno, tok)
			}
			instr.Imm = int32(v)
		} else {
			instr.Imm2 = uint32(v)
		}
	}
	return instr, nil
}

// resolveRegister accepts either a bare "r<n>" register token or a
// plain small integer (several opcodes use a narrow slot for a count
// rather than a register, e.g. ReleaseN's second operand).
func resolveRegister(tok string, lineno int) (uint8, error) {
	t := strings.TrimPrefix(tok, "r")
	v, err := strconv.ParseInt(t, 0, 16)
	if err != nil {
		return 0, errors.Wrapf(ErrBadOperand, "line %d: %q", lineno, tok)
	}
	if v < 0 || v > 255 {
		return 0, errors.Wrapf(ErrOutOfRange, "line %d: %q", lineno, tok)
	}
	return uint8(v), nil
}

// Disassemble renders a single Instr back to assembler text, matching
// the mnemonic table in opcode.go. CacheTypeID/CacheAux are appended
// as a trailing comment when the instruction is an IC variant that has
// witnessed a type, so a disassembly dump shows cache state the way
// spec.md §8's Field IC scenario describes observing it.
func Disassemble(i Instr) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s", i.Op.String())
	if spec, ok := specFor(Deoptimize(i.Op)); ok {
		narrowSlots := []uint8{i.A, i.B, i.C, i.D}
		for n := 0; n < spec.narrow; n++ {
			fmt.Fprintf(&b, " r%d", narrowSlots[n])
		}
		if spec.wide >= 1 {
			fmt.Fprintf(&b, " %d", i.Imm)
		}
		if spec.wide >= 2 {
			fmt.Fprintf(&b, " %d", i.Imm2)
		}
	}
	if IsIC(i.Op) {
		fmt.Fprintf(&b, "\t# cache: type=%d aux=%d", i.CacheTypeID, i.CacheAux)
	}
	return b.String()
}
