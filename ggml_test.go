package llmk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHalfToFloat32KnownValues(t *testing.T) {
	require.Equal(t, float32(1.0), HalfToFloat32(0x3C00))
	require.Equal(t, float32(-2.0), HalfToFloat32(0xC000))
	require.Equal(t, float32(0.0), HalfToFloat32(0x0000))
}

func TestHalfToFloat32Infinity(t *testing.T) {
	require.True(t, math.IsInf(float64(HalfToFloat32(0x7C00)), 1))
	require.True(t, math.IsInf(float64(HalfToFloat32(0xFC00)), -1))
}

func TestHalfToFloat32NaN(t *testing.T) {
	require.True(t, math.IsNaN(float64(HalfToFloat32(0x7E00))))
}

func TestHalfToFloat32Subnormal(t *testing.T) {
	// Smallest positive half subnormal, 2^-24.
	got := HalfToFloat32(0x0001)
	want := float32(math.Pow(2, -24))
	require.InDelta(t, want, got, 1e-12)
}

func f16Bits(v float32) uint16 {
	// Minimal round-trip encoder for exact powers of two and small integers,
	// enough for these tests; not a general-purpose float32->float16 path.
	bits := math.Float32bits(v)
	sign := uint16((bits >> 31) & 1)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := uint16((bits >> 13) & 0x3ff)
	return sign<<15 | uint16(exp)<<10 | mant
}

func TestDequantizeRowF32PassesThroughBitExact(t *testing.T) {
	src := make([]byte, 32*4)
	want := make([]float32, 32)
	for i := 0; i < 32; i++ {
		v := float32(i) - 16.5
		want[i] = v
		bits := math.Float32bits(v)
		src[i*4] = byte(bits)
		src[i*4+1] = byte(bits >> 8)
		src[i*4+2] = byte(bits >> 16)
		src[i*4+3] = byte(bits >> 24)
	}
	dst := make([]float32, 32)
	require.NoError(t, DequantizeRow(GGMLTypeF32, src, dst, 32))
	require.Equal(t, want, dst)
}

func TestDequantizeRowQ8_0MatchesScaleTimesCode(t *testing.T) {
	blk := make([]byte, 34)
	d := f16Bits(2.0)
	blk[0], blk[1] = byte(d), byte(d>>8)
	for i := 0; i < 32; i++ {
		blk[2+i] = byte(int8(i - 16))
	}
	dst := make([]float32, 32)
	require.NoError(t, DequantizeRow(GGMLTypeQ8_0, blk, dst, 32))
	for i := 0; i < 32; i++ {
		require.InDelta(t, float32(i-16)*2.0, dst[i], 1e-4)
	}
}

func TestDequantizeRowQ4_0CentersAt8(t *testing.T) {
	blk := make([]byte, 18)
	d := f16Bits(1.0)
	blk[0], blk[1] = byte(d), byte(d>>8)
	// Every nibble 0 decodes to -8 * scale.
	for i := 2; i < 18; i++ {
		blk[i] = 0x00
	}
	dst := make([]float32, 32)
	require.NoError(t, DequantizeRow(GGMLTypeQ4_0, blk, dst, 32))
	for _, v := range dst {
		require.InDelta(t, float32(-8), v, 1e-6)
	}
}

func TestDequantizeRowRejectsNonMultipleOf32ForQuantized(t *testing.T) {
	blk := make([]byte, 18)
	dst := make([]float32, 31)
	err := DequantizeRow(GGMLTypeQ4_0, blk, dst, 31)
	require.Error(t, err)
}

func TestDequantizeRowUnsupportedTypeIsError(t *testing.T) {
	err := DequantizeRow(GGMLType(4), make([]byte, 32), make([]float32, 32), 32)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindUnsupportedType, lerr.Kind)
}

func TestGGMLPaddingRoundsUpToAlignment(t *testing.T) {
	require.Equal(t, uint64(32), GGMLPadding(17, 32))
	require.Equal(t, uint64(32), GGMLPadding(32, 32))
	require.Equal(t, uint64(64), GGMLPadding(33, 32))
}

func TestRowSizeOfQuantizedDividesByBlockSize(t *testing.T) {
	// Q8_0: 34 bytes per 32 values, so a 64-wide row is 2 blocks = 68 bytes.
	require.Equal(t, uint64(68), GGMLTypeQ8_0.RowSizeOf([]uint64{64}))
	require.Equal(t, uint64(64*4), GGMLTypeF32.RowSizeOf([]uint64{64}))
}

func TestGGMLTypeStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "Q8_0", GGMLTypeQ8_0.String())
	require.Equal(t, "Unknown", GGMLType(99).String())
}

func TestIsQuantizedDistinguishesF32FromQ4_0(t *testing.T) {
	require.False(t, GGMLTypeF32.IsQuantized())
	require.True(t, GGMLTypeQ4_0.IsQuantized())
}
