package isa

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/vigilvm/vigil/pkg/value"
)

// Image is an assembled program ready to load into a VM: the decoded
// instruction stream plus the constant pool and static string buffer
// the wire format (spec.md §6) packages alongside it. A real compiler
// emits this; LoadImage reads it back from the binary form SaveImage
// writes, playing the role the teacher's LoadBytecode plays for the
// RiSC-32 word stream.
type Image struct {
	Instrs  []Instr
	Consts  []value.Value
	Statics []byte // the static string buffer StaticAString/StaticUString values index into
}

// magic identifies the image format on disk; bumped whenever the
// encoding below changes incompatibly.
const magic = "VIGILIMG1"

// SaveImage writes img to w in a simple length-prefixed binary form:
// a magic header, the instruction count and each Instr verbatim, the
// constant count and each constant as its raw NaN-boxed bits, and the
// static string buffer length and bytes.
func SaveImage(w io.Writer, img *Image) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return errors.Wrap(err, "isa: write magic")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(img.Instrs))); err != nil {
		return errors.Wrap(err, "isa: write instr count")
	}
	for _, in := range img.Instrs {
		if err := writeInstr(bw, in); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(img.Consts))); err != nil {
		return errors.Wrap(err, "isa: write const count")
	}
	for _, c := range img.Consts {
		if err := binary.Write(bw, binary.LittleEndian, uint64(c)); err != nil {
			return errors.Wrap(err, "isa: write constant")
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(img.Statics))); err != nil {
		return errors.Wrap(err, "isa: write statics length")
	}
	if _, err := bw.Write(img.Statics); err != nil {
		return errors.Wrap(err, "isa: write statics")
	}
	return bw.Flush()
}

func writeInstr(w io.Writer, in Instr) error {
	fields := []interface{}{
		in.Op, in.A, in.B, in.C, in.D, in.Imm, in.Imm2,
		in.CacheTypeID, in.CacheAux, int32(in.Line),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "isa: write instruction field")
		}
	}
	return nil
}

func readInstr(r io.Reader) (Instr, error) {
	var in Instr
	var line int32
	fields := []interface{}{
		&in.Op, &in.A, &in.B, &in.C, &in.D, &in.Imm, &in.Imm2,
		&in.CacheTypeID, &in.CacheAux, &line,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Instr{}, errors.Wrap(err, "isa: read instruction field")
		}
	}
	in.Line = int(line)
	return in, nil
}

// LoadImage reads an Image previously written by SaveImage.
func LoadImage(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, errors.Wrap(err, "isa: read magic")
	}
	if string(hdr) != magic {
		return nil, errors.Errorf("isa: not a vigil image (got magic %q)", hdr)
	}

	var nInstrs uint32
	if err := binary.Read(br, binary.LittleEndian, &nInstrs); err != nil {
		return nil, errors.Wrap(err, "isa: read instr count")
	}
	img := &Image{Instrs: make([]Instr, nInstrs)}
	for i := range img.Instrs {
		in, err := readInstr(br)
		if err != nil {
			return nil, err
		}
		img.Instrs[i] = in
	}

	var nConsts uint32
	if err := binary.Read(br, binary.LittleEndian, &nConsts); err != nil {
		return nil, errors.Wrap(err, "isa: read const count")
	}
	img.Consts = make([]value.Value, nConsts)
	for i := range img.Consts {
		var bits uint64
		if err := binary.Read(br, binary.LittleEndian, &bits); err != nil {
			return nil, errors.Wrap(err, "isa: read constant")
		}
		img.Consts[i] = value.Value(bits)
	}

	var nStatics uint32
	if err := binary.Read(br, binary.LittleEndian, &nStatics); err != nil {
		return nil, errors.Wrap(err, "isa: read statics length")
	}
	img.Statics = make([]byte, nStatics)
	if _, err := io.ReadFull(br, img.Statics); err != nil {
		return nil, errors.Wrap(err, "isa: read statics")
	}
	return img, nil
}
