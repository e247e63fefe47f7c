package kernel

import llmk "github.com/llmk/gguf-engine"

// Q8_0BlockBytes is the packed size of one Q8_0 block (d half-float scale
// plus 32 signed bytes), matching llmk's GGMLTypeQ8_0 trait.
const Q8_0BlockBytes = 34

// DotQ8_0Row computes the dot product of a Q8_0-encoded weight row
// (packed blocks) against a dequantized F32 activation row of the same
// logical length, per spec.md §4.B's Q8_0 matmul: dequantize the
// activation row into groups of 32, multiply group-wise against qs[],
// scale by d, accumulate.
//
// This is the code path that lets the materializer skip dequantizing
// weights at load time — only the activation row, which is already F32,
// needs no conversion; the weight block's scale is applied once per group
// of 32 rather than once per element.
func DotQ8_0Row(row []byte, act []float32, n int) float32 {
	var sum float32
	blocks := n / 32
	for b := 0; b < blocks; b++ {
		blk := row[b*Q8_0BlockBytes : b*Q8_0BlockBytes+Q8_0BlockBytes]
		d := llmk.HalfToFloat32(uint16(blk[0]) | uint16(blk[1])<<8)
		qs := blk[2:]
		var group float32
		for i := 0; i < 32; i++ {
			group += float32(int8(qs[i])) * act[b*32+i]
		}
		sum += group * d
	}
	return sum
}
