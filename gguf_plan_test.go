package llmk

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// ggufBuilder assembles a minimal, well-formed GGUF v3 byte stream for
// testing BuildPlan without needing a real model file.
type ggufBuilder struct {
	buf bytes.Buffer
	kvs []func(*bytes.Buffer)
	ts  []func(*bytes.Buffer)
}

func newGGUFBuilder() *ggufBuilder { return &ggufBuilder{} }

func (b *ggufBuilder) u32(v uint32) { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *ggufBuilder) u64(v uint64) { _ = binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *ggufBuilder) str(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

func (b *ggufBuilder) kvString(key, val string) *ggufBuilder {
	b.kvs = append(b.kvs, func(buf *bytes.Buffer) {
		b.str(buf, key)
		_ = binary.Write(buf, binary.LittleEndian, uint32(GGUFMetadataValueTypeString))
		b.str(buf, val)
	})
	return b
}

func (b *ggufBuilder) kvUint64(key string, val uint64) *ggufBuilder {
	b.kvs = append(b.kvs, func(buf *bytes.Buffer) {
		b.str(buf, key)
		_ = binary.Write(buf, binary.LittleEndian, uint32(GGUFMetadataValueTypeUint64))
		_ = binary.Write(buf, binary.LittleEndian, val)
	})
	return b
}

// tensor registers a tensor descriptor; offset is relative to the data
// section and is the caller's responsibility to keep consistent.
func (b *ggufBuilder) tensor(name string, dims []uint64, typ GGMLType, offset uint64) *ggufBuilder {
	b.ts = append(b.ts, func(buf *bytes.Buffer) {
		b.str(buf, name)
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(dims)))
		for _, d := range dims {
			_ = binary.Write(buf, binary.LittleEndian, d)
		}
		_ = binary.Write(buf, binary.LittleEndian, uint32(typ))
		_ = binary.Write(buf, binary.LittleEndian, offset)
	})
	return b
}

func (b *ggufBuilder) build() []byte {
	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, uint32(GGUFMagicGGUFLe))
	_ = binary.Write(&out, binary.LittleEndian, uint32(GGUFVersionV3))
	_ = binary.Write(&out, binary.LittleEndian, uint64(len(b.ts)))
	_ = binary.Write(&out, binary.LittleEndian, uint64(len(b.kvs)))
	for _, f := range b.kvs {
		f(&out)
	}
	for _, f := range b.ts {
		f(&out)
	}
	return out.Bytes()
}

// tinyArchKVs seeds the hyperparameters a minimal one-layer llama-shaped
// plan needs, dim=4, hidden=8, 1 layer, 2 heads, 2 kv heads, seq_len=8.
func tinyArchKVs(b *ggufBuilder) *ggufBuilder {
	return b.kvString("general.architecture", "llama").
		kvUint64("llama.embedding_length", 4).
		kvUint64("llama.feed_forward_length", 8).
		kvUint64("llama.block_count", 1).
		kvUint64("llama.attention.head_count", 2).
		kvUint64("llama.attention.head_count_kv", 2).
		kvUint64("llama.context_length", 8)
}

func layerTensors(b *ggufBuilder) *ggufBuilder {
	return b.
		tensor("blk.0.attn_norm.weight", []uint64{4}, GGMLTypeF32, 0).
		tensor("blk.0.attn_q.weight", []uint64{4, 4}, GGMLTypeF32, 0).
		tensor("blk.0.attn_k.weight", []uint64{4, 4}, GGMLTypeF32, 0).
		tensor("blk.0.attn_v.weight", []uint64{4, 4}, GGMLTypeF32, 0).
		tensor("blk.0.attn_output.weight", []uint64{4, 4}, GGMLTypeF32, 0).
		tensor("blk.0.ffn_norm.weight", []uint64{4}, GGMLTypeF32, 0).
		tensor("blk.0.ffn_gate.weight", []uint64{4, 8}, GGMLTypeF32, 0).
		tensor("blk.0.ffn_up.weight", []uint64{4, 8}, GGMLTypeF32, 0).
		tensor("blk.0.ffn_down.weight", []uint64{8, 4}, GGMLTypeF32, 0)
}

func TestBuildPlanWellFormedModel(t *testing.T) {
	b := tinyArchKVs(newGGUFBuilder())
	layerTensors(b)
	b.tensor("token_embd.weight", []uint64{4, 6}, GGMLTypeF32, 0)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)
	b.tensor("output.weight", []uint64{4, 6}, GGMLTypeF32, 0)

	p, err := BuildPlan(bytes.NewReader(b.build()))
	require.NoError(t, err)
	require.Equal(t, uint64(4), p.Params.Dim)
	require.Equal(t, uint64(1), p.Params.NLayers)
	require.Equal(t, uint64(6), p.Params.VocabSize)
	require.False(t, p.SharedClassifier)
	require.True(t, p.Layers[0].allPresent())
}

func TestBuildPlanInfersVocabFromTokEmbdDims(t *testing.T) {
	b := tinyArchKVs(newGGUFBuilder())
	layerTensors(b)
	// token_embd.weight dims [dim=4, vocab=9]: no explicit vocab_size KV.
	b.tensor("token_embd.weight", []uint64{4, 9}, GGMLTypeF32, 0)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)

	p, err := BuildPlan(bytes.NewReader(b.build()))
	require.NoError(t, err)
	require.Equal(t, uint64(9), p.Params.VocabSize)
	// No distinct output.weight tensor: the classifier is shared with the
	// embedding table.
	require.True(t, p.SharedClassifier)
}

func TestBuildPlanSymmetricTokEmbdDimsIsAmbiguousError(t *testing.T) {
	b := tinyArchKVs(newGGUFBuilder())
	layerTensors(b)
	// token_embd.weight dims [4,4]: both axes equal dim, vocab is ambiguous.
	b.tensor("token_embd.weight", []uint64{4, 4}, GGMLTypeF32, 0)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindCorrupt, lerr.Kind)
}

func TestBuildPlanMissingTokEmbdCannotInferVocab(t *testing.T) {
	b := tinyArchKVs(newGGUFBuilder())
	layerTensors(b)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindMissingTensor, lerr.Kind)
}

func TestBuildPlanZeroHyperparamIsMissingHyperparam(t *testing.T) {
	b := newGGUFBuilder().
		kvString("general.architecture", "llama").
		kvUint64("llama.embedding_length", 4).
		kvUint64("llama.feed_forward_length", 8).
		kvUint64("llama.block_count", 1).
		kvUint64("llama.attention.head_count", 2)
	// context_length deliberately omitted.

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindMissingHyperparam, lerr.Kind)
}

func TestBuildPlanHyperparamExceedsSanityCeiling(t *testing.T) {
	b := newGGUFBuilder().
		kvString("general.architecture", "llama").
		kvUint64("llama.embedding_length", 4).
		kvUint64("llama.feed_forward_length", 8).
		kvUint64("llama.block_count", uint64(maxHyperparam+1)).
		kvUint64("llama.attention.head_count", 2).
		kvUint64("llama.context_length", 8)

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindCorrupt, lerr.Kind)
}

func TestBuildPlanUnsupportedTypeOnClassifiedTensorFailsWholePlan(t *testing.T) {
	b := tinyArchKVs(newGGUFBuilder())
	layerTensors(b)
	b.tensor("token_embd.weight", []uint64{4, 6}, GGMLTypeF32, 0)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)
	// GGMLType(4) is the deprecated Q4_2 gap in the enum: recognized as a
	// value but absent from the trait table, so it must fail the plan.
	b.tensor("blk.0.attn_q.weight", []uint64{4, 4}, GGMLType(4), 0)

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindUnsupportedType, lerr.Kind)
}

func TestBuildPlanDimNotDivisibleByHeadsIsCorrupt(t *testing.T) {
	b := newGGUFBuilder().
		kvString("general.architecture", "llama").
		kvUint64("llama.embedding_length", 5).
		kvUint64("llama.feed_forward_length", 8).
		kvUint64("llama.block_count", 1).
		kvUint64("llama.attention.head_count", 2).
		kvUint64("llama.context_length", 8)

	_, err := BuildPlan(bytes.NewReader(b.build()))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindCorrupt, lerr.Kind)
}

func TestBuildPlanBadMagicIsUnsupportedFormat(t *testing.T) {
	data := []byte{'B', 'A', 'D', '!', 3, 0, 0, 0}
	_, err := BuildPlan(bytes.NewReader(data))
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, KindUnsupportedFormat, lerr.Kind)
}

func TestBuildPlanKVHeadsDefaultToHeadsWhenAbsent(t *testing.T) {
	b := newGGUFBuilder().
		kvString("general.architecture", "llama").
		kvUint64("llama.embedding_length", 4).
		kvUint64("llama.feed_forward_length", 8).
		kvUint64("llama.block_count", 1).
		kvUint64("llama.attention.head_count", 2).
		kvUint64("llama.context_length", 8)
	layerTensors(b)
	b.tensor("token_embd.weight", []uint64{4, 6}, GGMLTypeF32, 0)
	b.tensor("output_norm.weight", []uint64{4}, GGMLTypeF32, 0)

	p, err := BuildPlan(bytes.NewReader(b.build()))
	require.NoError(t, err)
	require.Equal(t, p.Params.NHeads, p.Params.NKVHeads)
}
