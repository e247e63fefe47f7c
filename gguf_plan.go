package llmk

import (
	"fmt"
	"io"
)

// TensorRef is a resolved pointer to one tensor's bytes in the data
// section, plus enough shape information for the materializer to size its
// row buffer, per spec.md §3's "Tensor reference" record.
type TensorRef struct {
	Offset  uint64
	Type    GGMLType
	NDims   uint32
	Dims    [4]uint64
	Present bool
}

// LayerRefs groups the nine per-layer tensor references spec.md §4.C
// requires to be present for every layer.
type LayerRefs struct {
	AttnNorm, WQ, WK, WV, WO TensorRef
	FFNNorm, FFNGate, FFNUp, FFNDown TensorRef
}

func (l LayerRefs) allPresent() bool {
	return l.AttnNorm.Present && l.WQ.Present && l.WK.Present && l.WV.Present &&
		l.WO.Present && l.FFNNorm.Present && l.FFNGate.Present && l.FFNUp.Present && l.FFNDown.Present
}

// HyperParams are the immutable-after-load model dimensions, per spec.md §3.
type HyperParams struct {
	Dim        uint64
	HiddenDim  uint64
	NLayers    uint64
	NHeads     uint64
	NKVHeads   uint64
	VocabSize  uint64
	SeqLen     uint64
}

// HeadSize returns dim / n_heads.
func (h HyperParams) HeadSize() uint64 { return h.Dim / h.NHeads }

// KVDim returns dim * n_kv_heads / n_heads.
func (h HyperParams) KVDim() uint64 { return h.Dim * h.NKVHeads / h.NHeads }

// maxHyperparam bounds n_layers/n_heads/n_kv_heads, the sanity ceiling
// lifted from gguf_infer.c's llmk_gguf_build_plan (SPEC_FULL.md feature 2):
// the original rejects anything above 512 as corrupt rather than letting a
// garbage KV value drive an unbounded allocation later.
const maxHyperparam = 512

// Plan is the output of the GGUF Plan Builder (spec.md §4.C): everything
// the materializer needs to stream tensors into a weight layout without
// re-scanning the file.
type Plan struct {
	Version     GGUFVersion
	TensorCount uint64
	KVCount     uint64
	DataStart   int64

	Params HyperParams

	TokEmbd  TensorRef
	Output   TensorRef
	RMSFinal TensorRef
	Layers   []LayerRefs

	MaxSrcCols     uint64
	MaxRowRawBytes uint64

	SharedClassifier bool
}

// BuildPlan runs the full GGUF Plan Builder over f, positioned at offset 0.
func BuildPlan(f io.ReadSeeker) (*Plan, error) {
	h, err := readHeader(f)
	if err != nil {
		return nil, err
	}

	p := &Plan{Version: h.Version, TensorCount: h.TensorCount, KVCount: h.MetadataKVCount}

	arch := "llama"
	if v, ok := h.MetadataKV.Get("general.architecture"); ok {
		arch = v.ValueString()
	}
	get := func(suffix string) (GGUFMetadataKV, bool) { return h.MetadataKV.Get(arch + "." + suffix) }

	if v, ok := get("embedding_length"); ok {
		p.Params.Dim = ValueNumeric[uint64](v)
	}
	if v, ok := get("feed_forward_length"); ok {
		p.Params.HiddenDim = ValueNumeric[uint64](v)
	}
	if v, ok := get("block_count"); ok {
		p.Params.NLayers = ValueNumeric[uint64](v)
	}
	if v, ok := get("attention.head_count"); ok {
		p.Params.NHeads = ValueNumeric[uint64](v)
	}
	if v, ok := get("attention.head_count_kv"); ok {
		p.Params.NKVHeads = ValueNumeric[uint64](v)
	} else {
		p.Params.NKVHeads = p.Params.NHeads
	}
	if v, ok := get("vocab_size"); ok {
		p.Params.VocabSize = ValueNumeric[uint64](v)
	}
	if v, ok := get("context_length"); ok {
		p.Params.SeqLen = ValueNumeric[uint64](v)
	}

	if p.Params.Dim == 0 || p.Params.HiddenDim == 0 || p.Params.NLayers == 0 ||
		p.Params.NHeads == 0 || p.Params.SeqLen == 0 {
		return nil, newErr(KindMissingHyperparam, "plan", -1, fmt.Errorf("zero hyperparameter after KV scan"))
	}
	if p.Params.NLayers > maxHyperparam || p.Params.NHeads > maxHyperparam || p.Params.NKVHeads > maxHyperparam {
		return nil, newErr(KindCorrupt, "plan", -1, fmt.Errorf("hyperparameter exceeds sanity ceiling %d", maxHyperparam))
	}
	if p.Params.Dim%p.Params.NHeads != 0 {
		return nil, newErr(KindCorrupt, "plan", -1, fmt.Errorf("dim %d not divisible by n_heads %d", p.Params.Dim, p.Params.NHeads))
	}

	tensors, err := readTensorTable(f, h.Version, h.TensorCount)
	if err != nil {
		return nil, err
	}
	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, newErr(KindIoShort, "plan", -1, err)
	}
	p.DataStart = dataStart

	p.Layers = make([]LayerRefs, p.Params.NLayers)
	allSupported := true

	toRef := func(ti GGUFTensorInfo) TensorRef {
		var ref TensorRef
		ref.Offset = ti.Offset
		ref.Type = ti.Type
		ref.NDims = ti.NDims
		for i := 0; i < len(ti.Dims) && i < 4; i++ {
			ref.Dims[i] = ti.Dims[i]
		}
		ref.Present = true
		return ref
	}

	for _, ti := range tensors {
		if ti.Dims[0] > p.MaxSrcCols {
			p.MaxSrcCols = ti.Dims[0]
		}
		if rb := ti.Type.RowSizeOf(ti.Dims[:1]); rb > p.MaxRowRawBytes {
			p.MaxRowRawBytes = rb
		}

		role, layer, ok := ParseRole(ti.Name)
		if !ok {
			continue // unrecognized name: ignored, not fatal
		}
		if _, supported := ti.Type.Trait(); !supported {
			// The plan-wide latch from gguf_infer.c: this tensor's ref is not
			// recorded, scanning continues over the remaining tensors, and
			// the overall build fails once the scan ends.
			allSupported = false
			continue
		}

		switch role {
		case RoleTokenEmbd:
			p.TokEmbd = toRef(ti)
		case RoleOutput:
			p.Output = toRef(ti)
		case RoleOutputNorm:
			p.RMSFinal = toRef(ti)
		case RoleAttnNorm:
			p.Layers[layer].AttnNorm = toRef(ti)
		case RoleAttnQ:
			p.Layers[layer].WQ = toRef(ti)
		case RoleAttnK:
			p.Layers[layer].WK = toRef(ti)
		case RoleAttnV:
			p.Layers[layer].WV = toRef(ti)
		case RoleAttnOutput:
			p.Layers[layer].WO = toRef(ti)
		case RoleFFNNorm:
			p.Layers[layer].FFNNorm = toRef(ti)
		case RoleFFNGate:
			p.Layers[layer].FFNGate = toRef(ti)
		case RoleFFNUp:
			p.Layers[layer].FFNUp = toRef(ti)
		case RoleFFNDown:
			p.Layers[layer].FFNDown = toRef(ti)
		}
	}

	if !allSupported {
		return nil, newErr(KindUnsupportedType, "plan", -1, fmt.Errorf("unsupported ggml type on a role-classified tensor"))
	}

	if p.Params.VocabSize == 0 {
		if !p.TokEmbd.Present {
			return nil, newErr(KindMissingTensor, "plan", -1, fmt.Errorf("token_embd.weight missing, cannot infer vocab"))
		}
		d0, d1 := p.TokEmbd.Dims[0], p.TokEmbd.Dims[1]
		switch {
		case d0 == p.Params.Dim && d1 == p.Params.Dim:
			// A symmetric [dim,dim] matrix can't tell us which axis is
			// vocab; asserting here beats silently picking dims[1].
			return nil, newErr(KindCorrupt, "plan", -1, fmt.Errorf("token_embd dims %v are symmetric with dim %d, vocab size is ambiguous", p.TokEmbd.Dims, p.Params.Dim))
		case d0 == p.Params.Dim:
			p.Params.VocabSize = d1
		case d1 == p.Params.Dim:
			p.Params.VocabSize = d0
		default:
			return nil, newErr(KindCorrupt, "plan", -1, fmt.Errorf("token_embd dims %v do not contain dim %d", p.TokEmbd.Dims, p.Params.Dim))
		}
	}

	if !p.TokEmbd.Present {
		return nil, newErr(KindMissingTensor, "plan", -1, fmt.Errorf("token_embd.weight missing"))
	}
	if !p.RMSFinal.Present {
		return nil, newErr(KindMissingTensor, "plan", -1, fmt.Errorf("output_norm.weight missing"))
	}
	for i, l := range p.Layers {
		if !l.allPresent() {
			return nil, newErr(KindMissingTensor, "plan", -1, fmt.Errorf("layer %d missing one or more of the nine required tensors", i))
		}
	}
	if p.Params.VocabSize == 0 {
		return nil, newErr(KindMissingHyperparam, "plan", -1, fmt.Errorf("vocab size is zero"))
	}

	// Shared classifier iff no distinct output.weight tensor was present;
	// per the open-question resolution in DESIGN.md this is accepted as-is,
	// not upgraded to a byte comparison of both tensors.
	p.SharedClassifier = !p.Output.Present

	return p, nil
}

// SupportsQ8_0Blob reports whether every 2-D tensor in the plan is Q8_0,
// the precondition for the Q8_0 materialization path (spec.md §3, §4.D).
func (p *Plan) SupportsQ8_0Blob() bool {
	check := func(r TensorRef) bool {
		if r.NDims != 2 {
			return true // 1-D norm vectors are promoted to F32 regardless
		}
		return r.Type == GGMLTypeQ8_0
	}
	if !check(p.TokEmbd) || (p.Output.Present && !check(p.Output)) {
		return false
	}
	for _, l := range p.Layers {
		if !check(l.WQ) || !check(l.WK) || !check(l.WV) || !check(l.WO) ||
			!check(l.FFNGate) || !check(l.FFNUp) || !check(l.FFNDown) {
			return false
		}
	}
	return true
}
