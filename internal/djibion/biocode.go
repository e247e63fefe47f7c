package djibion

import "errors"

// IntentType classifies the first codon of a bio-code string.
type IntentType int

const (
	IntentNone IntentType = iota
	IntentMemoryBind
	IntentIoWrite
	IntentIoDelete
	IntentResume
	IntentPlan
)

// Intent is what BiocodeToIntent extracts from a bio-code string.
type Intent struct {
	Type  IntentType
	TTL   uint8 // 0..100, best-effort
	Scope uint8 // 0=local 1=global, best-effort
	Hash  uint32
}

// ErrInvalidBiocode is returned when the string contains a character
// outside {A,T,C,G,-,whitespace} or yields fewer than three bases.
var ErrInvalidBiocode = errors.New("djibion: invalid biocode")

func djb2(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) ^ uint32(s[i])
	}
	return h
}

func isBase(c byte) bool {
	return c == 'A' || c == 'T' || c == 'C' || c == 'G'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func codonToIntent(codon [3]byte) IntentType {
	switch codon {
	case [3]byte{'A', 'T', 'G'}:
		return IntentMemoryBind
	case [3]byte{'C', 'G', 'A'}:
		return IntentIoWrite
	case [3]byte{'T', 'A', 'T'}:
		return IntentIoDelete
	case [3]byte{'G', 'A', 'G'}:
		return IntentResume
	case [3]byte{'A', 'G', 'A'}:
		return IntentPlan
	default:
		return IntentNone
	}
}

// BiocodeToIntent parses a string like "ATG-CGA-TTA", ignoring '-' and
// whitespace, and maps its first codon to an Intent, per spec.md §4.G.
// Any non-base character, or fewer than three bases total, is invalid.
func BiocodeToIntent(biocode string) (Intent, error) {
	intent := Intent{Hash: djb2(biocode)}

	var codon [3]byte
	n := 0
	for i := 0; i < len(biocode); i++ {
		c := biocode[i]
		if c == '-' || isSpace(c) {
			continue
		}
		if !isBase(c) {
			return intent, ErrInvalidBiocode
		}
		if n < 3 {
			codon[n] = c
			n++
		}
	}
	if n != 3 {
		return intent, ErrInvalidBiocode
	}

	intent.Type = codonToIntent(codon)
	intent.TTL = 50
	intent.Scope = 0
	return intent, nil
}
