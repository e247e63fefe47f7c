package session

import (
	"bytes"
	"encoding/binary"
	"testing"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/djibion"
	"github.com/llmk/gguf-engine/internal/firmware"
	"github.com/stretchr/testify/require"
)

// memHandle adapts a bytes.Reader to firmware.Handle for tests that never
// touch the real filesystem.
type memHandle struct{ *bytes.Reader }

func (memHandle) Close() error { return nil }

// memCapability hands out a single in-memory file regardless of the
// requested path, ignoring the 8.3 fallback entirely (that behavior is
// covered in the firmware package's own tests).
type memCapability struct{ data []byte }

func (c memCapability) Open(string) (firmware.Handle, error) {
	return memHandle{bytes.NewReader(c.data)}, nil
}
func (memCapability) WallMicros() int64           { return 0 }
func (memCapability) SerialPutc(byte)              {}
func (memCapability) Features() firmware.Features  { return firmware.Features{} }
func (memCapability) MemoryTier() firmware.MemoryTier { return firmware.MemoryMed }

// stubTokenizer is a minimal fixed-vocabulary tokenizer for tests: every
// piece is a single rune derived from the token id.
type stubTokenizer struct{ vocab int }

func (t stubTokenizer) Encode(s string) []int {
	ids := make([]int, len(s))
	for i := range s {
		ids[i] = 3 + i%(t.vocab-3)
	}
	return ids
}
func (t stubTokenizer) Piece(id int) string {
	if id == sampleEOS {
		return ""
	}
	return string(rune('a' + id%26))
}
func (t stubTokenizer) VocabSize() int { return t.vocab }

const sampleEOS = 2

func buildLegacyBinary(dims llmk.HyperParams) []byte {
	var buf bytes.Buffer
	dim, hidden, layers := int(dims.Dim), int(dims.HiddenDim), int(dims.NLayers)
	kvDim := int(dims.KVDim())
	vocab := int(dims.VocabSize)

	writeN := func(n int, start float32) {
		for i := 0; i < n; i++ {
			_ = binary.Write(&buf, binary.LittleEndian, start+float32(i))
		}
	}

	writeN(vocab*dim, 1)
	for i := 0; i < layers; i++ {
		writeN(dim, 10)
	}
	for i := 0; i < layers; i++ {
		writeN(dim*dim, 20)
	}
	for i := 0; i < layers; i++ {
		writeN(kvDim*dim, 30)
	}
	for i := 0; i < layers; i++ {
		writeN(kvDim*dim, 40)
	}
	for i := 0; i < layers; i++ {
		writeN(dim*dim, 50)
	}
	for i := 0; i < layers; i++ {
		writeN(dim, 60)
	}
	for i := 0; i < layers; i++ {
		writeN(hidden*dim, 70)
	}
	for i := 0; i < layers; i++ {
		writeN(dim*hidden, 80)
	}
	for i := 0; i < layers; i++ {
		writeN(hidden*dim, 90)
	}
	writeN(dim, 100)

	ropeLen := int(dims.SeqLen) * int(dims.HeadSize()) / 2
	writeN(ropeLen, 0)
	writeN(ropeLen, 0)

	return buf.Bytes()
}

func tinyDims() llmk.HyperParams {
	return llmk.HyperParams{Dim: 4, HiddenDim: 8, NLayers: 1, NHeads: 2, NKVHeads: 2, VocabSize: 6, SeqLen: 4}
}

func TestLoadModelLegacyBinSucceedsWithAgreedDims(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)

	s := New(memCapability{data: data}, stubTokenizer{vocab: 6}, nil)
	s.LegacyDims = &dims
	s.LegacySharedClassifier = true

	require.NoError(t, s.LoadModel("ignored.bin"))
	require.True(t, s.Loaded())
	require.NotNil(t, s.Engine)
	require.Equal(t, uint64(4), s.Plan.Params.Dim)
}

func TestLoadModelLegacyWithoutDimsFailsMissingHyperparam(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)

	s := New(memCapability{data: data}, stubTokenizer{vocab: 6}, nil)
	err := s.LoadModel("ignored.bin")
	require.Error(t, err)
	require.False(t, s.Loaded())
	var lerr *llmk.Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, llmk.KindMissingHyperparam, lerr.Kind)
}

func TestLoadModelVocabMismatchFails(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)

	s := New(memCapability{data: data}, stubTokenizer{vocab: 99}, nil)
	s.LegacyDims = &dims
	s.LegacySharedClassifier = true

	err := s.LoadModel("ignored.bin")
	require.Error(t, err)
	var lerr *llmk.Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, llmk.KindInvalidArgument, lerr.Kind)
}

func TestGenerateWithoutLoadedModelIsError(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	_, err := s.Generate("hi", nil)
	require.Error(t, err)
}

func TestGenerateRunsATurnAfterLoad(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)

	s := New(memCapability{data: data}, stubTokenizer{vocab: 6}, nil)
	s.LegacyDims = &dims
	s.LegacySharedClassifier = true
	require.NoError(t, s.LoadModel("ignored.bin"))

	s.Cfg.MaxTokens = 3
	res, err := s.Generate("ab", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens)
}

func TestApplyReplConfigSeedsDefaultBurst(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	s.ApplyReplConfig(llmk.ReplConfig{
		Fat83Force:            true,
		DiopionBurstTurns:     2,
		DiopionBurstMaxTokens: 16,
		DiopionBurstTopK:      4,
		DiopionBurstTempMilli: 900,
	})
	require.Equal(t, 2, s.DefaultBurst.Turns)
	require.Equal(t, 16, s.DefaultBurst.MaxTokens)
	require.Equal(t, 4, s.DefaultBurst.TopK)
	require.Equal(t, 900, s.DefaultBurst.TempMilli)
}

func TestApplyReplConfigSetsFat83ForceOnOSCapability(t *testing.T) {
	fw := &firmware.OSCapability{}
	s := New(fw, stubTokenizer{vocab: 6}, nil)
	s.ApplyReplConfig(llmk.ReplConfig{Fat83Force: true})
	require.True(t, fw.Fat83Force)
}

func TestUnloadModelClearsState(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)
	s := New(memCapability{data: data}, stubTokenizer{vocab: 6}, nil)
	s.LegacyDims = &dims
	s.LegacySharedClassifier = true
	require.NoError(t, s.LoadModel("ignored.bin"))

	s.UnloadModel()
	require.False(t, s.Loaded())
	require.Nil(t, s.Engine)
}

func TestApplyBurstAndAutoFinish(t *testing.T) {
	dims := tinyDims()
	data := buildLegacyBinary(dims)

	s := New(memCapability{data: data}, stubTokenizer{vocab: 6}, nil)
	s.LegacyDims = &dims
	s.LegacySharedClassifier = true
	require.NoError(t, s.LoadModel("ignored.bin"))

	s.Cfg.MaxTokens = 256
	s.ApplyBurst(BurstOverride{Turns: 1, MaxTokens: 3, TopK: 1, TempMilli: 0})
	require.Equal(t, 3, s.Cfg.MaxTokens)

	// The burst's single turn is used up by Generate, which restores the
	// prior config on its own.
	_, err := s.Generate("ab", nil)
	require.NoError(t, err)
	require.Equal(t, 256, s.Cfg.MaxTokens)
	require.Nil(t, s.burst)
}

func TestDoSkipsActionOnRejectInEnforceMode(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	s.Governance.Laws.AllowFSDelete = false
	s.SetDjibionMode(djibion.ModeEnforce)
	ran := false
	_, err := s.Do(djibion.ActionFSRm, "x.txt", 0, func(string) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, ran)
}

func TestDoRunsActionOnRejectInOffMode(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	s.Governance.Laws.AllowFSDelete = false
	ran := false
	_, err := s.Do(djibion.ActionFSRm, "x.txt", 0, func(string) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestDoRunsActionOnRejectInObserveMode(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	s.Governance.Laws.AllowFSDelete = false
	s.SetDjibionMode(djibion.ModeObserve)
	ran := false
	_, err := s.Do(djibion.ActionFSRm, "x.txt", 0, func(string) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestDoRunsActionOnAllow(t *testing.T) {
	s := New(memCapability{}, stubTokenizer{vocab: 6}, nil)
	s.Governance.Laws.AllowFSWrite = true
	s.Governance.Laws.MaxFSWriteBytes = 1 << 20
	ran := false
	_, err := s.Do(djibion.ActionFSWrite, "ok.txt", 10, func(string) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}
