package sampler

// Tokenizer is the minimal contract the decoder loop needs from the
// external tokenizer collaborator spec.md §6 describes: id<->piece lookup
// with a fixed vocabulary agreed out-of-band with the model.
type Tokenizer interface {
	Encode(text string) []int
	Piece(id int) string
	VocabSize() int
}

// Stepper is the part of the engine the loop drives: one forward pass per
// call, leaving logits ready to read until the next call.
type Stepper interface {
	Step(token, pos int)
	CurrentLogits() []float32
}

// Turn carries the per-generation inputs spec.md §4.F lists.
type Turn struct {
	Prompt        string
	MaxGenTokens  int
	Temperature   float32
	TopK          int
	NoRepeatNgram int
	Seed          uint64
}

// Result is what one generate() call produces: the full token history
// (including the BOS and prompt tokens the caller warmed the cache with)
// and the repaired UTF-8 text streamed during the turn.
type Result struct {
	Tokens []int
	Text   string
	Stopped string // "eos" or "budget"
}

// Run executes one full turn: prompt warmup, then sampling until EOS or
// the token budget, per spec.md §4.F steps 1-4. textOut, if non-nil, is
// called once per emitted chunk (already repaired) so a caller can stream
// to a console as generation proceeds; it may be nil to only accumulate.
func Run(tz Tokenizer, eng Stepper, t Turn, textOut func(string)) Result {
	tokens := append([]int{BOSTokenID}, tz.Encode(t.Prompt)...)

	for p := 0; p < len(tokens)-1; p++ {
		eng.Step(tokens[p], p)
	}

	rng := NewRNG(t.Seed)
	dec := NewDecoder()
	var text []byte
	stopped := "budget"

	pos := len(tokens) - 1
	for step := len(tokens); ; step++ {
		eng.Step(tokens[pos], pos)
		logits := append([]float32(nil), eng.CurrentLogits()...)

		if t.NoRepeatNgram >= 2 {
			ApplyNoRepeatNgram(logits, tokens, t.NoRepeatNgram)
		}

		id := Sample(logits, Knobs{Temperature: t.Temperature, TopK: t.TopK}, rng)

		if id == EOSTokenID || step >= t.MaxGenTokens {
			stopped = "budget"
			if id == EOSTokenID {
				stopped = "eos"
			}
			break
		}

		tokens = append(tokens, id)
		pos++

		chunk := dec.Push([]byte(tz.Piece(id)))
		if len(chunk) > 0 {
			text = append(text, chunk...)
			if textOut != nil {
				textOut(string(chunk))
			}
		}
	}

	tail := dec.Flush()
	if len(tail) > 0 {
		text = append(text, tail...)
		if textOut != nil {
			textOut(string(tail))
		}
	}

	return Result{Tokens: tokens, Text: string(text), Stopped: stopped}
}
