package isa

import "github.com/pkg/errors"

// Sentinel errors the assembler and loader wrap with source-location
// context via github.com/pkg/errors (spec.md §7's UserError class
// covers malformed programs; these are its assembly-time instances).
var (
	ErrUnknownMnemonic  = errors.New("isa: unknown mnemonic")
	ErrWrongOperandCount = errors.New("isa: wrong operand count for mnemonic")
	ErrBadOperand       = errors.New("isa: operand is neither a register/immediate nor a known label")
	ErrMissingLabel     = errors.New("isa: branch target label is never defined")
	ErrOutOfRange       = errors.New("isa: operand out of range for its field width")
	ErrTooManyInstructions = errors.New("isa: program exceeds the maximum instruction count")
)
