package llmk

// BuildLegacyPlan synthesizes a Plan for the headerless ".bin" layout
// spec.md §4.H's load_model accepts when the first four bytes are not the
// GGUF magic: one contiguous F32 dump with the field order line 37's layout
// enumerates (token embeddings; every layer's attention RMS weight, then
// every layer's Wq/Wk/Wv/Wo; every layer's FFN RMS weight, then every
// layer's W1/W2/W3; the final RMS weight; the two legacy RoPE tables;
// an optional untied classifier), the same grouped-by-field ordering the
// original small-transformer ".bin" checkpoints use. dims must be agreed
// out-of-band by the caller; there is no header to read them from.
func BuildLegacyPlan(dims HyperParams, sharedClassifier bool) *Plan {
	dim, hidden, nLayers := dims.Dim, dims.HiddenDim, dims.NLayers
	kvDim := dims.KVDim()
	vocab := dims.VocabSize

	var off uint64
	alloc := func(n uint64) uint64 {
		o := off
		off += n * 4 // all legacy weights are F32
		return o
	}

	ref2D := func(o, cols, rows uint64) TensorRef {
		return TensorRef{Offset: o, Type: GGMLTypeF32, NDims: 2, Dims: [4]uint64{cols, rows}, Present: true}
	}
	ref1D := func(o, n uint64) TensorRef {
		return TensorRef{Offset: o, Type: GGMLTypeF32, NDims: 1, Dims: [4]uint64{n}, Present: true}
	}

	p := &Plan{Params: dims, Layers: make([]LayerRefs, nLayers), SharedClassifier: sharedClassifier}

	p.TokEmbd = ref2D(alloc(vocab*dim), dim, vocab)

	attnNormOff := make([]uint64, nLayers)
	for i := range attnNormOff {
		attnNormOff[i] = alloc(dim)
	}
	wqOff := make([]uint64, nLayers)
	for i := range wqOff {
		wqOff[i] = alloc(dim * dim)
	}
	wkOff := make([]uint64, nLayers)
	for i := range wkOff {
		wkOff[i] = alloc(kvDim * dim)
	}
	wvOff := make([]uint64, nLayers)
	for i := range wvOff {
		wvOff[i] = alloc(kvDim * dim)
	}
	woOff := make([]uint64, nLayers)
	for i := range woOff {
		woOff[i] = alloc(dim * dim)
	}
	ffnNormOff := make([]uint64, nLayers)
	for i := range ffnNormOff {
		ffnNormOff[i] = alloc(dim)
	}
	gateOff := make([]uint64, nLayers)
	for i := range gateOff {
		gateOff[i] = alloc(hidden * dim)
	}
	downOff := make([]uint64, nLayers)
	for i := range downOff {
		downOff[i] = alloc(dim * hidden)
	}
	upOff := make([]uint64, nLayers)
	for i := range upOff {
		upOff[i] = alloc(hidden * dim)
	}

	for i := uint64(0); i < nLayers; i++ {
		p.Layers[i] = LayerRefs{
			AttnNorm: ref1D(attnNormOff[i], dim),
			WQ:       ref2D(wqOff[i], dim, dim),
			WK:       ref2D(wkOff[i], dim, kvDim),
			WV:       ref2D(wvOff[i], dim, kvDim),
			WO:       ref2D(woOff[i], dim, dim),
			FFNNorm:  ref1D(ffnNormOff[i], dim),
			FFNGate:  ref2D(gateOff[i], dim, hidden),
			FFNUp:    ref2D(upOff[i], dim, hidden),
			FFNDown:  ref2D(downOff[i], hidden, dim),
		}
	}

	p.RMSFinal = ref1D(alloc(dim), dim)

	ropeLen := dims.SeqLen * dims.HeadSize() / 2
	alloc(ropeLen) // freq_cis_real, discarded: the engine recomputes RoPE
	alloc(ropeLen) // freq_cis_imag, discarded

	if !sharedClassifier {
		p.Output = ref2D(alloc(vocab*dim), dim, vocab)
	}

	p.MaxSrcCols = dim
	if hidden > p.MaxSrcCols {
		p.MaxSrcCols = hidden
	}
	p.MaxRowRawBytes = p.MaxSrcCols * 4

	return p
}
