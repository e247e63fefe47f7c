package engine

import (
	"math"
	"testing"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/kernel"
	"github.com/stretchr/testify/require"
)

func TestRMSNormIdentity(t *testing.T) {
	x := []float32{1, 1, 1, 1}
	w := []float32{1, 1, 1, 1}
	dst := make([]float32, 4)
	rmsNorm(dst, x, w)
	// mean(x^2) is 1, so each output is 1/sqrt(1+eps), about 0.999995.
	want := float32(1 / math.Sqrt(1+rmsEps))
	for _, v := range dst {
		require.InDelta(t, want, v, 1e-6)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	softmaxInPlace(v)
	var sum float32
	for _, x := range v {
		sum += x
	}
	require.InDelta(t, 1.0, sum, 1e-6)
}

// tinyWeights builds a minimal model of the shape p describes, with F32
// weights set to small constants, enough to exercise every stage of Step
// without needing a real GGUF fixture.
func tinyWeights(p llmk.HyperParams) *Weights {
	dim := int(p.Dim)
	hidden := int(p.HiddenDim)
	kvDim := int(p.KVDim())
	vocab := int(p.VocabSize)

	ident := func(rows, cols int) F32Matrix {
		d := make([]float32, rows*cols)
		for i := 0; i < rows && i < cols; i++ {
			d[i*cols+i] = 0.1
		}
		return F32Matrix{Data: d, NRows: rows, NCols: cols}
	}
	ones := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = 1
		}
		return v
	}

	layers := make([]LayerWeights, p.NLayers)
	for i := range layers {
		layers[i] = LayerWeights{
			AttnNorm: ones(dim),
			WQ:       ident(dim, dim),
			WK:       ident(kvDim, dim),
			WV:       ident(kvDim, dim),
			WO:       ident(dim, dim),
			FFNNorm:  ones(dim),
			FFNGate:  ident(hidden, dim),
			FFNUp:    ident(hidden, dim),
			FFNDown:  ident(dim, hidden),
		}
	}

	return &Weights{
		TokEmbd:  ident(vocab, dim),
		Layers:   layers,
		RMSFinal: ones(dim),
	}
}

func TestEngineStepDeterministic(t *testing.T) {
	p := llmk.HyperParams{Dim: 4, HiddenDim: 8, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 6, SeqLen: 8}
	w := tinyWeights(p)

	e1 := New(p, w, kernel.PathNarrow)
	e2 := New(p, w, kernel.PathNarrow)

	for _, e := range []*Engine{e1, e2} {
		e.Step(1, 0)
		e.Step(2, 1)
	}

	for i := range e1.Logits {
		require.Equal(t, e1.Logits[i], e2.Logits[i])
	}
}

func TestEngineResetClearsKVCache(t *testing.T) {
	p := llmk.HyperParams{Dim: 4, HiddenDim: 8, NLayers: 1, NHeads: 2, NKVHeads: 2, VocabSize: 6, SeqLen: 8}
	w := tinyWeights(p)
	e := New(p, w, kernel.PathNarrow)
	e.Step(1, 0)

	var nonZero bool
	for _, v := range e.KCache {
		if v != 0 {
			nonZero = true
			break
		}
	}
	require.True(t, nonZero)

	e.Reset()
	for _, v := range e.KCache {
		require.Zero(t, v)
	}
}
