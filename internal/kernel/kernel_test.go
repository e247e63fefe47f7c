package kernel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func randVec(n int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func TestDotAgreesWithGonum(t *testing.T) {
	a := randVec(257, 1)
	b := randVec(257, 2)

	want := floats.Dot(toFloat64(a), toFloat64(b))
	got := Dot(PathNarrow, a, b, len(a))
	require.InDelta(t, want, float64(got), 1e-2)
}

func TestNarrowAndWideAgree(t *testing.T) {
	for _, n := range []int{1, 4, 7, 8, 32, 4096} {
		a := randVec(n, int64(n)+1)
		b := randVec(n, int64(n)+2)

		narrow := Dot(PathNarrow, a, b, n)
		wide := Dot(PathWide, a, b, n)

		denom := math.Max(1, math.Abs(float64(narrow)))
		require.Less(t, math.Abs(float64(wide-narrow))/denom, 1e-5)
	}
}

func TestAxpyNarrowAndWideAgree(t *testing.T) {
	n := 4096
	src := randVec(n, 10)
	dstA := make([]float32, n)
	dstB := make([]float32, n)

	Axpy(PathNarrow, dstA, src, 0.5, n)
	Axpy(PathWide, dstB, src, 0.5, n)

	for i := range dstA {
		require.InDelta(t, dstA[i], dstB[i], 1e-4)
	}
}

func TestResolveForcedSelectors(t *testing.T) {
	require.Equal(t, PathNarrow, Resolve(SelectorForceNarrow))
	require.Equal(t, PathWide, Resolve(SelectorForceWide))
}

func TestDotQ8_0RowMatchesDequantizedDot(t *testing.T) {
	// One block of 32 values, scale 1.0 (f16 1.0 = 0x3C00), values 0..31-16.
	row := make([]byte, Q8_0BlockBytes)
	row[0], row[1] = 0x00, 0x3C
	for i := 0; i < 32; i++ {
		row[2+i] = byte(int8(i - 16))
	}
	act := make([]float32, 32)
	for i := range act {
		act[i] = 1
	}

	got := DotQ8_0Row(row, act, 32)

	var want float32
	for i := 0; i < 32; i++ {
		want += float32(i-16) * 1.0
	}
	require.InDelta(t, want, got, 1e-4)
}
