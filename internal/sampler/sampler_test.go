package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleDeterministic(t *testing.T) {
	logits := []float32{0.1, 2.0, 0.3, 1.5, 0.05}
	k := Knobs{Temperature: 0.8, TopK: 3}

	a := Sample(append([]float32(nil), logits...), k, NewRNG(42))
	b := Sample(append([]float32(nil), logits...), k, NewRNG(42))
	require.Equal(t, a, b)
}

func TestSampleArgmaxAtZeroTemperature(t *testing.T) {
	logits := []float32{0.1, 2.0, 0.3, 1.5, 0.05}
	id := Sample(logits, Knobs{Temperature: 0}, NewRNG(1))
	require.Equal(t, 1, id)
}

func TestApplyNoRepeatNgramMasksRepeat(t *testing.T) {
	// history: ... 5 6 7 5 6  -> trailing bigram/unigram "6" repeats the
	// occurrence at index 1, so token 7 (the one that followed it) should
	// be masked for n=2.
	history := []int{5, 6, 7, 5, 6}
	logits := []float32{0, 0, 0, 0, 0, 0, 0, 1}
	ApplyNoRepeatNgram(logits, history, 2)
	require.Less(t, logits[7], float32(-1e8))
}

func TestApplyNoRepeatNgramNoopBelowMinN(t *testing.T) {
	logits := []float32{1, 2, 3}
	before := append([]float32(nil), logits...)
	ApplyNoRepeatNgram(logits, []int{0, 1, 2}, 1)
	require.Equal(t, before, logits)
}

func TestHasSuffixRepeat(t *testing.T) {
	require.True(t, HasSuffixRepeat([]int{1, 2, 3, 1, 2, 3}, 3))
	require.False(t, HasSuffixRepeat([]int{1, 2, 3, 4, 5, 6}, 3))
	require.False(t, HasSuffixRepeat([]int{1, 2}, 3))
}

func TestTempFromMilliClamps(t *testing.T) {
	require.Equal(t, float32(0.7), TempFromMilli(700))
	require.Equal(t, float32(2.0), TempFromMilli(5000))
	require.Equal(t, float32(0), TempFromMilli(-100))
}

func TestRNGFloat64InRange(t *testing.T) {
	r := NewRNG(7)
	for i := 0; i < 1000; i++ {
		v := r.Float64()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}
