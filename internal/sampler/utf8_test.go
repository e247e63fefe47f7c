package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoderReassemblesSplitRune(t *testing.T) {
	// "café" = 63 61 66 C3 A9; split the 2-byte é across two pushes.
	full := []byte{0x63, 0x61, 0x66, 0xC3, 0xA9}

	d := NewDecoder()
	var got []byte
	got = append(got, d.Push(full[:4])...)
	got = append(got, d.Push(full[4:])...)
	got = append(got, d.Flush()...)

	require.Equal(t, full, got)
}

func TestDecoderFlushEmitsIncompleteTailVerbatim(t *testing.T) {
	d := NewDecoder()
	lead := []byte{0x63, 0xC3} // ASCII + a lone 2-byte lead with no continuation ever arriving
	got := d.Push(lead)
	require.Equal(t, []byte{0x63}, got)

	tail := d.Flush()
	require.Equal(t, []byte{0xC3}, tail)
}

func TestDecoderTailEmptyAfterFlush(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte{0xE2, 0x82}) // partial 3-byte sequence
	d.Flush()
	require.Equal(t, 0, d.tail.Length())
}

func TestDecoderNoDropOrDuplicateAcrossArbitraryPartition(t *testing.T) {
	full := []byte("hello, world — café test …")
	for split := 0; split <= len(full); split++ {
		d := NewDecoder()
		var got []byte
		got = append(got, d.Push(full[:split])...)
		got = append(got, d.Push(full[split:])...)
		got = append(got, d.Flush()...)
		require.Equal(t, full, got, "split at %d", split)
	}
}

func TestMojibakeTableRewritesKnownPattern(t *testing.T) {
	d := NewDecoder()
	in := []byte{0xC3, 0x94, 0xC3, 0x87, 0xC3, 0x96}
	got := append(d.Push(in), d.Flush()...)
	require.Equal(t, []byte{0xE2, 0x80, 0x99}, got)
}
