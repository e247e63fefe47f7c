package sampler

import (
	"unicode/utf8"

	"github.com/smallnest/ringbuffer"
)

// maxUTF8Tail is the longest an incomplete UTF-8 sequence can be held
// before either completing or being flushed as replacement bytes, per
// spec.md §4.F's token-boundary repair rule (a 4-byte sequence needs at
// most 3 held bytes; two extra slots of headroom keep the ring buffer's
// read/write cursors from ever colliding at exactly full).
const maxUTF8Tail = 5

// mojibakeRule is one entry of the CP437/UTF-8 double-encoding table: a
// detokenizer emitting Latin-1-as-UTF-8 punctuation produces these exact
// byte runs in place of the single rune the model intended.
type mojibakeRule struct {
	from []byte
	to   []byte
}

// mojibakeTable is the fixed 6-entry pattern list spec.md §4.F names for
// the most common curly-quote and dash mis-encodings.
var mojibakeTable = []mojibakeRule{
	{[]byte{0xC3, 0x94, 0xC3, 0x87, 0xC3, 0x96}, []byte{0xE2, 0x80, 0x99}}, // '
	{[]byte{0xC3, 0x94, 0xC3, 0x87, 0xD6}, []byte{0xE2, 0x80, 0x98}},      // '
	{[]byte{0xC3, 0x94, 0xC3, 0x87, 0xD3}, []byte{0xE2, 0x80, 0x9C}},      // "
	{[]byte{0xC3, 0x94, 0xC3, 0x87, 0xD4}, []byte{0xE2, 0x80, 0x9D}},      // "
	{[]byte{0xC3, 0x94, 0xC3, 0x87, 0xD5}, []byte{0xE2, 0x80, 0x94}},      // —
	{[]byte{0xC3, 0xA2, 0xE2, 0x82, 0xAC, 0xC2, 0xA6}, []byte{0xE2, 0x80, 0xA6}}, // …
}

// Decoder repairs a byte stream that may split multi-byte UTF-8 runes (or
// legacy codepage mojibake) across token emission boundaries. Bytes that
// cannot yet be classified as a complete rune are held in a small ring
// buffer rather than emitted immediately, and are flushed verbatim if the
// stream ends before they complete, per spec.md §4.F.
type Decoder struct {
	tail *ringbuffer.RingBuffer
}

// NewDecoder returns a Decoder ready to accept token text.
func NewDecoder() *Decoder {
	return &Decoder{tail: ringbuffer.New(maxUTF8Tail)}
}

// Push feeds newly detokenized text through the repair pipeline and
// returns the bytes now safe to emit downstream. Incomplete trailing
// sequences are retained internally and prefixed onto the next call.
func (d *Decoder) Push(chunk []byte) []byte {
	buf := d.drainTail()
	buf = append(buf, chunk...)
	buf = applyMojibakeTable(buf)

	safe, pending := splitCompleteRunes(buf)
	if len(pending) > 0 {
		d.tail.Write(pending)
	}
	return safe
}

// Flush returns any bytes still held at end of stream, emitting them
// verbatim since no further continuation bytes will ever arrive.
func (d *Decoder) Flush() []byte {
	return d.drainTail()
}

func (d *Decoder) drainTail() []byte {
	n := d.tail.Length()
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	got, _ := d.tail.Read(out)
	return out[:got]
}

// applyMojibakeTable rewrites any recognized mis-encoded byte run in buf.
func applyMojibakeTable(buf []byte) []byte {
	for _, rule := range mojibakeTable {
		buf = replaceAll(buf, rule.from, rule.to)
	}
	return buf
}

func replaceAll(buf, from, to []byte) []byte {
	if len(from) == 0 {
		return buf
	}
	var out []byte
	for i := 0; i < len(buf); {
		if i+len(from) <= len(buf) && bytesEqual(buf[i:i+len(from)], from) {
			out = append(out, to...)
			i += len(from)
			continue
		}
		out = append(out, buf[i])
		i++
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitCompleteRunes walks buf from the end, looking for the start of a
// UTF-8 sequence that utf8.DecodeRune cannot yet resolve because it's
// truncated mid-rune. Everything before that point is safe to emit now;
// the tail (at most maxUTF8Tail-1 bytes) is held for the next Push.
func splitCompleteRunes(buf []byte) (safe, pending []byte) {
	if len(buf) == 0 {
		return nil, nil
	}
	cut := len(buf)
	for back := 1; back < maxUTF8Tail && back <= len(buf); back++ {
		start := len(buf) - back
		b := buf[start]
		if b < 0x80 {
			break // ASCII byte can never start a truncated sequence
		}
		if utf8.RuneStart(b) {
			want := runeLenFromLead(b)
			if want > back {
				cut = start
			}
			break
		}
	}
	return buf[:cut], buf[cut:]
}

func runeLenFromLead(b byte) int {
	switch {
	case b&0x80 == 0x00:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
