package sampler

import (
	"bufio"
	"io"
)

// VocabFile is a minimal Tokenizer backed by a flat, newline-delimited
// piece list agreed out-of-band with the model, per spec.md §6's "fixed
// vocabulary the tokenizer and model must agree on out-of-band": line n
// holds token id n's piece, the same convention llama2.c's own
// tokenizer.bin export reduces to once its length-prefixed header and
// per-piece scores are stripped away.
type VocabFile struct {
	pieces []string
	ids    map[string]int
}

// NewVocabFile builds a VocabFile from an in-memory piece list, id == index.
func NewVocabFile(pieces []string) *VocabFile {
	ids := make(map[string]int, len(pieces))
	for id, p := range pieces {
		if _, exists := ids[p]; !exists {
			ids[p] = id
		}
	}
	return &VocabFile{pieces: pieces, ids: ids}
}

// ParseVocabFile reads one piece per line. Blank lines are kept as empty
// pieces so line numbers still line up with token ids.
func ParseVocabFile(r io.Reader) (*VocabFile, error) {
	var pieces []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		pieces = append(pieces, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewVocabFile(pieces), nil
}

func (v *VocabFile) VocabSize() int { return len(v.pieces) }

func (v *VocabFile) Piece(id int) string {
	if id < 0 || id >= len(v.pieces) {
		return ""
	}
	return v.pieces[id]
}

// Encode greedily matches the longest known piece starting at each byte
// position, the simplest possible strategy that still respects a
// multi-byte vocabulary; a position with no matching piece falls back to
// the byte's own value (0-255) as its id, whether or not that id names a
// piece, so encoding never fails outright — it degrades to one id per byte instead.
func (v *VocabFile) Encode(s string) []int {
	var ids []int
	b := []byte(s)
	for i := 0; i < len(b); {
		matchLen, matchID := 0, -1
		for piece, id := range v.ids {
			n := len(piece)
			if n == 0 || n <= matchLen || i+n > len(b) {
				continue
			}
			if string(b[i:i+n]) == piece {
				matchLen, matchID = n, id
			}
		}
		if matchID < 0 {
			ids = append(ids, int(b[i]))
			i++
			continue
		}
		ids = append(ids, matchID)
		i += matchLen
	}
	return ids
}
