package llmk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReplConfigRecognizedKeys(t *testing.T) {
	src := `
# a comment
fat83_force = 1
diopion_mode=observe
diopion_profile = conservative
diopion_burst_turns=4
diopion_burst_max_tokens=64
diopion_burst_topk=8
diopion_burst_temp_milli=500
`
	cfg, err := ParseReplConfig(strings.NewReader(src))
	require.NoError(t, err)
	require.True(t, cfg.Fat83Force)
	require.Equal(t, "observe", cfg.DiopionMode)
	require.Equal(t, "conservative", cfg.DiopionProfile)
	require.Equal(t, 4, cfg.DiopionBurstTurns)
	require.Equal(t, 64, cfg.DiopionBurstMaxTokens)
	require.Equal(t, 8, cfg.DiopionBurstTopK)
	require.Equal(t, 500, cfg.DiopionBurstTempMilli)
}

func TestParseReplConfigIgnoresUnrecognizedKeys(t *testing.T) {
	src := "splash_ms=1500\noverlay=1\noo_enable=1\n"
	cfg, err := ParseReplConfig(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, "1500", cfg.Raw["splash_ms"])
	require.False(t, cfg.Fat83Force)
}

func TestParseReplConfigSkipsBlankAndCommentLines(t *testing.T) {
	src := "\n  \n# nothing here\nfat83_force=0\n"
	cfg, err := ParseReplConfig(strings.NewReader(src))
	require.NoError(t, err)
	require.False(t, cfg.Fat83Force)
	require.Len(t, cfg.Raw, 1)
}

func TestParseReplConfigIgnoresLinesWithoutEquals(t *testing.T) {
	src := "not-a-kv-line\nfat83_force=1\n"
	cfg, err := ParseReplConfig(strings.NewReader(src))
	require.NoError(t, err)
	require.True(t, cfg.Fat83Force)
	require.Len(t, cfg.Raw, 1)
}
