package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAliasForUsesFirstSixAlnumChars(t *testing.T) {
	require.Equal(t, "LLAMA2~1.GGU", aliasFor("llama2-7b-chat.ggu", 1))
	require.Equal(t, "LLAMA2~2.GGU", aliasFor("llama2-7b-chat.ggu", 2))
}

func TestResolveAliasPrefersExactMatch(t *testing.T) {
	entries := []string{"model.gguf", "MODEL~1.GGU"}
	got, usedAlias := ResolveAlias(entries, "model.gguf", false)
	require.Equal(t, "model.gguf", got)
	require.False(t, usedAlias)
}

func TestResolveAliasFallsBackWhenExactMissing(t *testing.T) {
	entries := []string{"MODEL~1.GGU", "other.txt"}
	got, usedAlias := ResolveAlias(entries, "model.gguf", false)
	require.Equal(t, "MODEL~1.GGU", got)
	require.True(t, usedAlias)
}

func TestResolveAliasForcePrefersAliasEvenWhenExactPresent(t *testing.T) {
	entries := []string{"model.gguf", "MODEL~1.GGU"}
	got, usedAlias := ResolveAlias(entries, "model.gguf", true)
	require.Equal(t, "MODEL~1.GGU", got)
	require.True(t, usedAlias)
}

func TestResolveAliasNoCandidateReturnsEmpty(t *testing.T) {
	got, usedAlias := ResolveAlias([]string{"unrelated.txt"}, "model.gguf", false)
	require.Empty(t, got)
	require.False(t, usedAlias)
}

func TestOpen83FallbackOpensDirectMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	f, err := Open83Fallback(path, false)
	require.NoError(t, err)
	defer f.Close()
}

func TestOpen83FallbackUsesAliasWhenLongNameAbsent(t *testing.T) {
	dir := t.TempDir()
	alias := filepath.Join(dir, aliasFor("model.gguf", 1))
	require.NoError(t, os.WriteFile(alias, []byte("x"), 0o600))

	f, err := Open83Fallback(filepath.Join(dir, "model.gguf"), false)
	require.NoError(t, err)
	defer f.Close()
}

func TestOpen83FallbackMissingFileReturnsHonestError(t *testing.T) {
	dir := t.TempDir()
	_, err := Open83Fallback(filepath.Join(dir, "missing.gguf"), false)
	require.Error(t, err)
}
