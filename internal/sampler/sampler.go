// Package sampler implements the decoder loop spec.md §4.F describes:
// repetition control, temperature/top-k sampling against a deterministic
// PRNG, and the streaming UTF-8 mojibake repair pipeline that flushes
// reliably across token boundaries.
package sampler

import (
	"math"
	"sort"

	"github.com/llmk/gguf-engine/util/slicex"
)

const (
	BOSTokenID = 1
	EOSTokenID = 2
)

// RNG is a small deterministic pseudo-random source so that, per spec.md
// §8's sampling-determinism property, two runs with the same seed, prompt,
// and knobs produce identical token sequences. A splitmix64-style
// generator is used instead of math/rand so the sequence is pinned by this
// file alone and does not drift if the standard library's algorithm ever
// changes between Go versions.
type RNG struct{ state uint64 }

// NewRNG seeds a generator. Seeding with 0 is remapped to a fixed nonzero
// constant so the stream is never degenerate.
func NewRNG(seed uint64) *RNG {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	return &RNG{state: seed}
}

// Float64 returns a uniform value in [0, 1).
func (r *RNG) Float64() float64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z = z ^ (z >> 31)
	return float64(z>>11) / float64(1<<53)
}

// Knobs are the per-turn sampling parameters spec.md §4.F lists.
type Knobs struct {
	Temperature   float32 // milli/1000.0, clamped by the caller to [0, 2]
	TopK          int
	NoRepeatNgram int // 0/1 disables the repetition check
}

// ApplyNoRepeatNgram masks logits for tokens that would repeat the
// trailing (n-1)-gram already seen in history, per spec.md §4.F step 3.a.
func ApplyNoRepeatNgram(logits []float32, history []int, n int) {
	if n < 2 || len(history) < n-1 {
		return
	}
	tail := history[len(history)-(n-1):]
	for i := 0; i+n-1 <= len(history)-1; i++ {
		match := true
		for j := 0; j < n-1; j++ {
			if history[i+j] != tail[j] {
				match = false
				break
			}
		}
		if match && i+n-1 < len(history) {
			next := history[i+n-1]
			if next >= 0 && next < len(logits) {
				logits[next] = -1e9
			}
		}
	}
}

// Sample picks the next token id from logits under the given knobs and
// RNG, per spec.md §4.F step 3.b.
func Sample(logits []float32, k Knobs, rng *RNG) int {
	if k.Temperature == 0 {
		return argmax(logits)
	}

	scaled := make([]float32, len(logits))
	for i, v := range logits {
		scaled[i] = v / k.Temperature
	}

	topK := k.TopK
	if topK <= 0 || topK > len(scaled) {
		topK = len(scaled)
	}

	type idxVal struct {
		idx int
		val float32
	}
	candidates := make([]idxVal, len(scaled))
	for i, v := range scaled {
		candidates[i] = idxVal{i, v}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].val > candidates[j].val })
	candidates = candidates[:topK]

	probs := make([]float32, topK)
	max := candidates[0].val
	var sum float32
	for i, c := range candidates {
		e := float32(math.Exp(float64(c.val - max)))
		probs[i] = e
		sum += e
	}

	// cum[i] is the inclusive prefix sum of probs[0..i], strictly
	// increasing, so the inverse-CDF draw is a binary search rather than a
	// linear scan over up to vocab_size candidates.
	cum := make([]float32, topK)
	var running float32
	for i, p := range probs {
		running += p / sum
		cum[i] = running
	}

	r := float32(rng.Float64())
	i := slicex.UpperBound(cum, r)
	if i >= len(candidates) {
		i = len(candidates) - 1
	}
	return candidates[i].idx
}

func argmax(v []float32) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// TempFromMilli converts a milli-temperature config value to the float
// knob, clamped to [0, 2], per llama2_efi_final.c's llmk_temp_from_milli.
func TempFromMilli(milli int) float32 {
	t := float32(milli) / 1000.0
	if t > 2.0 {
		t = 2.0
	}
	if t < 0 {
		t = 0
	}
	return t
}

// HasSuffixRepeat reports whether the trailing span tokens of history
// equal the span tokens immediately preceding them — the repetition
// heuristic spec.md §4.F calls out as informational only, used by the
// telemetry layer rather than the sampler itself.
func HasSuffixRepeat(history []int, span int) bool {
	if span <= 0 || len(history) < 2*span {
		return false
	}
	a := history[len(history)-span:]
	b := history[len(history)-2*span : len(history)-span]
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
