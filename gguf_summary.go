package llmk

import "io"

// Summary is the lightweight, KV-only view of a GGUF file used for display
// and diagnostics (SPEC_FULL.md supplemented feature 4, grounded on
// gguf_loader.c's GgufSummary). Unlike Plan, it never scans the tensor
// table for shapes — only enough of it to report a byte count — so it is
// cheap enough for a REPL "/info" command or a CLI "--summary" flag.
type Summary struct {
	Architecture   string
	Name           string
	ContextLength  uint64
	EmbeddingLength uint64
	BlockCount     uint64
	HeadCount      uint64
	HeadCountKV    uint64
	VocabSize      uint64
	TokenizerModel string
	FileType       uint64
	HeaderBytes    int64
}

// ReadSummary reads just the header KV table and the tensor table's
// lengths (to compute HeaderBytes), without resolving tensor roles or
// validating hyperparameters the way BuildPlan does.
func ReadSummary(f io.ReadSeeker) (Summary, error) {
	var s Summary
	h, err := readHeader(f)
	if err != nil {
		return s, err
	}

	arch := "llama"
	if v, ok := h.MetadataKV.Get("general.architecture"); ok {
		arch = v.ValueString()
	}
	s.Architecture = arch
	if v, ok := h.MetadataKV.Get("general.name"); ok {
		s.Name = v.ValueString()
	}
	if v, ok := h.MetadataKV.Get("general.file_type"); ok {
		s.FileType = ValueNumeric[uint64](v)
	}
	get := func(suffix string) (GGUFMetadataKV, bool) { return h.MetadataKV.Get(arch + "." + suffix) }
	if v, ok := get("context_length"); ok {
		s.ContextLength = ValueNumeric[uint64](v)
	}
	if v, ok := get("embedding_length"); ok {
		s.EmbeddingLength = ValueNumeric[uint64](v)
	}
	if v, ok := get("block_count"); ok {
		s.BlockCount = ValueNumeric[uint64](v)
	}
	if v, ok := get("attention.head_count"); ok {
		s.HeadCount = ValueNumeric[uint64](v)
	}
	if v, ok := get("attention.head_count_kv"); ok {
		s.HeadCountKV = ValueNumeric[uint64](v)
	} else {
		s.HeadCountKV = s.HeadCount
	}
	if v, ok := h.MetadataKV.Get("llama.vocab_size"); ok {
		s.VocabSize = ValueNumeric[uint64](v)
	}
	if v, ok := h.MetadataKV.Get("tokenizer.ggml.model"); ok {
		s.TokenizerModel = v.ValueString()
	}

	// Skip the tensor table (names/dims/type/offset only, no byte counting)
	// purely to compute where the data section would begin.
	if _, err := readTensorTable(f, h.Version, h.TensorCount); err != nil {
		return s, err
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return s, newErr(KindIoShort, "summary", -1, err)
	}
	s.HeaderBytes = pos
	return s, nil
}
