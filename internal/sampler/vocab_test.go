package sampler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVocabFilePieceAndVocabSize(t *testing.T) {
	v := NewVocabFile([]string{"<bos>", "<eos>", "he", "llo", " world"})
	require.Equal(t, 5, v.VocabSize())
	require.Equal(t, "llo", v.Piece(3))
	require.Equal(t, "", v.Piece(99))
}

func TestVocabFileEncodeGreedyLongestMatch(t *testing.T) {
	v := NewVocabFile([]string{"<bos>", "<eos>", "he", "llo", " world", "hello"})
	ids := v.Encode("hello world")
	require.Equal(t, []int{5, 4}, ids)
}

func TestVocabFileEncodeFallsBackToByteIDs(t *testing.T) {
	v := NewVocabFile([]string{"a", "b"})
	ids := v.Encode("ax")
	require.Equal(t, []int{0, int('x')}, ids)
}

func TestParseVocabFileOnePiecePerLine(t *testing.T) {
	v, err := ParseVocabFile(strings.NewReader("<bos>\n<eos>\nhi\n"))
	require.NoError(t, err)
	require.Equal(t, 3, v.VocabSize())
	require.Equal(t, "hi", v.Piece(2))
}
