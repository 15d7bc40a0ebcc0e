package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilvm/vigil/pkg/value"
)

func TestNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.5, math.MaxFloat64, -math.MaxFloat64, 1e-300} {
		v := value.Number(f)
		require.True(t, value.IsNumber(v))
		assert.Equal(t, f, value.AsNumber(v))
	}
}

func TestExactlyOneClassHolds(t *testing.T) {
	vals := []value.Value{
		value.Number(42),
		value.None(),
		value.Bool(true),
		value.Integer(-7),
		value.Symbol(3),
		value.Enum(1, 2),
		value.StaticAString(0, 5),
		value.Error(value.InterruptSentinel),
		value.Pointer(0xdeadbeef),
	}
	for _, v := range vals {
		classes := 0
		if value.IsNumber(v) {
			classes++
		}
		if value.IsPointer(v) {
			classes++
		}
		if !value.IsNumber(v) && !value.IsPointer(v) {
			classes++
		}
		assert.Equal(t, 1, classes, "value %#x must fall into exactly one class", uint64(v))
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, math.MinInt32, math.MaxInt32} {
		v := value.Integer(n)
		require.True(t, value.IsInteger(v))
		assert.Equal(t, n, value.AsInteger(v))
	}
}

func TestBooleanRoundTrip(t *testing.T) {
	assert.True(t, value.AsBool(value.Bool(true)))
	assert.False(t, value.AsBool(value.Bool(false)))
}

func TestStaticStringRoundTrip(t *testing.T) {
	v := value.StaticAString(1234, 56)
	require.True(t, value.IsStaticString(v))
	start, length := value.AsStaticString(v)
	assert.Equal(t, uint32(1234), start)
	assert.Equal(t, uint32(56), length)
}

func TestStaticStringMaxLength(t *testing.T) {
	assert.NotPanics(t, func() {
		value.StaticAString(0, value.MaxStaticStringLen)
	})
	assert.Panics(t, func() {
		value.StaticAString(0, value.MaxStaticStringLen+1)
	})
}

func TestInterruptSentinel(t *testing.T) {
	v := value.InterruptSentinelValue()
	assert.True(t, value.IsError(v))
	assert.True(t, value.IsInterruptSentinel(v))
	assert.False(t, value.IsInterruptSentinel(value.Error(0)))
}

func TestPointerRoundTrip(t *testing.T) {
	v := value.Pointer(0x0000aabbccddeeff & ((1 << 48) - 1))
	require.True(t, value.IsPointer(v))
	assert.False(t, value.IsNumber(v))
	assert.Equal(t, uint64(0x0000aabbccddeeff), value.AsPointer(v))
}

func TestGetTypeIDNeverPanics(t *testing.T) {
	vals := []value.Value{value.Number(1), value.None(), value.Bool(true), value.Integer(1), value.Pointer(1)}
	for _, v := range vals {
		assert.NotPanics(t, func() { value.GetTypeID(v) })
	}
}
