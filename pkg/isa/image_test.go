package isa_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/value"
)

func TestSaveLoadImageRoundTrip(t *testing.T) {
	img := &isa.Image{
		Instrs: []isa.Instr{
			{Op: isa.OpConstI8Int, A: 0, Imm: 2, Line: 1},
			{Op: isa.OpFieldIC, A: 1, B: 0, Imm: 3, CacheTypeID: 7, CacheAux: 2, Line: 2},
		},
		Consts:  []value.Value{value.Integer(42), value.Bool(true)},
		Statics: []byte("hello world"),
	}

	var buf bytes.Buffer
	require.NoError(t, isa.SaveImage(&buf, img))

	got, err := isa.LoadImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Instrs, got.Instrs)
	assert.Equal(t, img.Consts, got.Consts)
	assert.Equal(t, img.Statics, got.Statics)
}

func TestLoadImageRejectsBadMagic(t *testing.T) {
	_, err := isa.LoadImage(bytes.NewReader([]byte("not an image at all")))
	assert.Error(t, err)
}
