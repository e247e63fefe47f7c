package llmk

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// BytesScalar is a byte count that renders with humanize's decimal (SI,
// base-1000) prefix table, the same presentation idiom the teacher's own scalar.go builds by
// hand; here it is delegated to the library directly.
type BytesScalar uint64

func (s BytesScalar) String() string { return humanize.Bytes(uint64(s)) }

// ParametersScalar is a parameter count, rendered with humanize's
// SI-prefix comma-free short form (e.g. "15.2 M").
type ParametersScalar uint64

func (s ParametersScalar) String() string {
	return humanize.SIWithDigits(float64(s), 2, "")
}

// BitsPerWeightScalar is the average bits-per-weight of a materialized
// model, rendered to two decimal places.
type BitsPerWeightScalar float64

func (s BitsPerWeightScalar) String() string {
	return strconv.FormatFloat(float64(s), 'f', 2, 64) + " bpw"
}

// ModelSize returns the materialized byte size of the plan's weights under
// the given mode (F32 always; Q8_0 only when SupportsQ8_0Blob).
func (p *Plan) ModelSize(q8 bool) BytesScalar {
	var total uint64
	dim, hid, vocab, layers := p.Params.Dim, p.Params.HiddenDim, p.Params.VocabSize, p.Params.NLayers
	kvDim := p.Params.KVDim()

	addMatrix := func(rows, cols uint64) {
		if q8 {
			blocks := (cols + 31) / 32
			total += rows * blocks * 34
		} else {
			total += rows * cols * 4
		}
	}
	addVec := func(n uint64) { total += n * 4 }

	addMatrix(vocab, dim) // token_embd
	for i := uint64(0); i < layers; i++ {
		addVec(dim)           // attn_norm
		addMatrix(dim, dim)   // wq
		addMatrix(kvDim, dim) // wk
		addMatrix(kvDim, dim) // wv
		addMatrix(dim, dim)   // wo
		addVec(dim)           // ffn_norm
		addMatrix(hid, dim)   // w1/gate
		addMatrix(dim, hid)   // w2/down
		addMatrix(hid, dim)   // w3/up
	}
	addVec(dim)                                                  // rms_final
	total += 2 * (p.Params.SeqLen * p.Params.HeadSize() / 2) * 4 // legacy RoPE tables
	if !p.SharedClassifier {
		addMatrix(vocab, dim) // wcls
	}
	return BytesScalar(total)
}

// ModelParameters returns the logical parameter count (independent of
// storage mode).
func (p *Plan) ModelParameters() ParametersScalar {
	dim, hid, vocab, layers := p.Params.Dim, p.Params.HiddenDim, p.Params.VocabSize, p.Params.NLayers
	kvDim := p.Params.KVDim()
	n := vocab * dim
	n += layers * (dim + dim*dim + 2*kvDim*dim + dim*dim + dim + 3*hid*dim)
	n += dim
	if !p.SharedClassifier {
		n += vocab * dim
	}
	return ParametersScalar(n)
}

// ModelBitsPerWeight returns the average encoded bits per logical
// parameter for the given storage mode.
func (p *Plan) ModelBitsPerWeight(q8 bool) BitsPerWeightScalar {
	params := p.ModelParameters()
	if params == 0 {
		return 0
	}
	return BitsPerWeightScalar(float64(p.ModelSize(q8)) * 8 / float64(params))
}
