package engine

import (
	"math"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/kernel"
)

const ropeBase = 10000.0
const rmsEps = 1e-5

// LayerWeights holds one decoder block's seven weight matrices plus its
// two RMSNorm weight vectors, per spec.md §3's per-layer arrays.
type LayerWeights struct {
	AttnNorm []float32
	WQ, WK, WV, WO Matrix
	FFNNorm []float32
	FFNGate, FFNUp, FFNDown Matrix
}

// Weights is every tensor the forward pass reads, already materialized
// into one of the two layouts spec.md §3/§4.D describe.
type Weights struct {
	TokEmbd  Matrix // [vocab, dim]
	Layers   []LayerWeights
	RMSFinal []float32
	Classifier Matrix // nil iff SharedClassifier

	// RopeReal/RopeImag are the two zero-filled legacy RoPE tables spec.md
	// §3/§9 asks the materializer to reserve even though Step recomputes
	// RoPE from position; kept for layout fidelity, never read by Step.
	RopeReal, RopeImag []float32
}

// Engine executes the decoder stack one token at a time, per spec.md §4.E.
type Engine struct {
	Params llmk.HyperParams
	W      *Weights
	Path   kernel.Path

	// KV cache: [layers][seq_len][kv_dim], flattened.
	KCache, VCache []float32

	// Scratch, reused across tokens within one turn.
	x, xb, xb2 []float32
	hb, hb2    []float32
	q          []float32
	att        []float32
	Logits     []float32
}

// New allocates the KV cache and scratch buffers for one turn's worth of
// state. The weight buffer itself is owned by the caller (the session
// driver) and is never mutated here.
func New(p llmk.HyperParams, w *Weights, path kernel.Path) *Engine {
	kvDim := int(p.KVDim())
	seqLen := int(p.SeqLen)
	dim := int(p.Dim)
	hidden := int(p.HiddenDim)

	return &Engine{
		Params: p,
		W:      w,
		Path:   path,
		KCache: make([]float32, int(p.NLayers)*seqLen*kvDim),
		VCache: make([]float32, int(p.NLayers)*seqLen*kvDim),
		x:      make([]float32, dim),
		xb:     make([]float32, dim),
		xb2:    make([]float32, dim),
		hb:     make([]float32, hidden),
		hb2:    make([]float32, hidden),
		q:      make([]float32, dim),
		att:    make([]float32, int(p.NHeads)*seqLen),
		Logits: make([]float32, p.VocabSize),
	}
}

// CurrentLogits returns the result of the most recent Step call,
// satisfying the decoder loop's Stepper contract without exposing the
// Logits field itself as part of an interface.
func (e *Engine) CurrentLogits() []float32 { return e.Logits }

// Reset clears the KV cache, the behavior of the REPL's /reset command
// (spec.md §3 "Lifecycle").
func (e *Engine) Reset() {
	for i := range e.KCache {
		e.KCache[i] = 0
	}
	for i := range e.VCache {
		e.VCache[i] = 0
	}
}

func rmsNorm(dst, x, w []float32) {
	var ss float32
	for _, v := range x {
		ss += v * v
	}
	ss = ss/float32(len(x)) + rmsEps
	inv := float32(1.0 / math.Sqrt(float64(ss)))
	for i := range x {
		dst[i] = x[i] * inv * w[i]
	}
}

func softmaxInPlace(v []float32) {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	var sum float32
	for i, x := range v {
		e := float32(math.Exp(float64(x - max)))
		v[i] = e
		sum += e
	}
	for i := range v {
		v[i] /= sum
	}
}

func silu(z float32) float32 {
	return z / (1 + float32(math.Exp(float64(-z))))
}

// embed copies the token embedding row for t into e.x, dequantizing on the
// fly when the weight buffer is the Q8_0 blob layout.
func (e *Engine) embed(t int) {
	switch m := e.W.TokEmbd.(type) {
	case F32Matrix:
		copy(e.x, m.Row(t))
	case Q8_0Matrix:
		m.RowF32(t, e.x)
	default:
		panic("engine: unknown token-embedding matrix type")
	}
}

// ropeRotate applies RoPE to vec (length headSize*nHeadsInVec) in place,
// per spec.md §4.E step 2.c: rotate each consecutive dimension pair by an
// angle that depends on position and the pair's index within the head.
func ropeRotate(vec []float32, headSize, nHeads, pos int) {
	for h := 0; h < nHeads; h++ {
		base := h * headSize
		for i := 0; i < headSize; i += 2 {
			freq := 1.0 / math.Pow(ropeBase, float64(i)/float64(headSize))
			theta := float64(pos) * freq
			cosT, sinT := float32(math.Cos(theta)), float32(math.Sin(theta))
			v0, v1 := vec[base+i], vec[base+i+1]
			vec[base+i] = v0*cosT - v1*sinT
			vec[base+i+1] = v0*sinT + v1*cosT
		}
	}
}

// Step runs one decoder pass for token t at position pos, leaving the
// result in e.Logits. The KV cache is written at index pos for every
// layer before any read at a later position occurs, matching spec.md §5's
// ordering guarantee.
func (e *Engine) Step(t, pos int) {
	p := e.Params
	dim := int(p.Dim)
	headSize := int(p.HeadSize())
	nHeads := int(p.NHeads)
	nKVHeads := int(p.NKVHeads)
	kvDim := int(p.KVDim())
	seqLen := int(p.SeqLen)

	e.embed(t)

	for l, lw := range e.W.Layers {
		rmsNorm(e.xb, e.x, lw.AttnNorm)

		lw.WQ.MulVec(e.q, e.xb, e.Path)
		kBase := (l*seqLen + pos) * kvDim
		lw.WK.MulVec(e.KCache[kBase:kBase+kvDim], e.xb, e.Path)
		lw.WV.MulVec(e.VCache[kBase:kBase+kvDim], e.xb, e.Path)

		ropeRotate(e.q, headSize, nHeads, pos)
		ropeRotate(e.KCache[kBase:kBase+kvDim], headSize, nKVHeads, pos)

		// Grouped-query attention: query head h reads KV head h*nKVHeads/nHeads.
		for h := 0; h < nHeads; h++ {
			hk := h * nKVHeads / nHeads
			qh := e.q[h*headSize : (h+1)*headSize]
			scores := e.att[h*seqLen : h*seqLen+pos+1]
			scale := float32(1.0 / math.Sqrt(float64(headSize)))
			for tp := 0; tp <= pos; tp++ {
				kOff := (l*seqLen+tp)*kvDim + hk*headSize
				scores[tp] = kernel.Dot(e.Path, qh, e.KCache[kOff:kOff+headSize], headSize) * scale
			}
			softmaxInPlace(scores)

			out := e.xb2[h*headSize : (h+1)*headSize]
			for i := range out {
				out[i] = 0
			}
			for tp := 0; tp <= pos; tp++ {
				vOff := (l*seqLen+tp)*kvDim + hk*headSize
				kernel.Axpy(e.Path, out, e.VCache[vOff:vOff+headSize], scores[tp], headSize)
			}
		}

		lw.WO.MulVec(e.xb, e.xb2, e.Path)
		for i := 0; i < dim; i++ {
			e.x[i] += e.xb[i]
		}

		rmsNorm(e.xb, e.x, lw.FFNNorm)
		lw.FFNGate.MulVec(e.hb, e.xb, e.Path)
		lw.FFNUp.MulVec(e.hb2, e.xb, e.Path)
		for i := range e.hb {
			e.hb[i] = silu(e.hb[i]) * e.hb2[i]
		}
		lw.FFNDown.MulVec(e.xb, e.hb, e.Path)
		for i := 0; i < dim; i++ {
			e.x[i] += e.xb[i]
		}
	}

	rmsNorm(e.x, e.x, e.W.RMSFinal)
	if e.W.Classifier != nil {
		e.W.Classifier.MulVec(e.Logits, e.x, e.Path)
	} else {
		e.W.TokEmbd.MulVec(e.Logits, e.x, e.Path)
	}
}
