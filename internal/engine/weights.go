// Package engine runs the per-token transformer forward pass: RMSNorm,
// grouped-query attention over a per-layer KV cache, RoPE, SwiGLU, and the
// final classifier projection, against either weight layout the
// materializer can produce.
package engine

import (
	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/kernel"
)

// Matrix is a row-major [rows, cols] weight matrix in whichever storage
// the materializer chose — an F32 matmul walks a contiguous slice, a Q8_0
// matmul walks packed blocks without ever dequantizing the weight.
type Matrix interface {
	Rows() int
	Cols() int
	// MulVec computes dst = W * src (dst has length Rows(), src has length
	// Cols()) using the given kernel path for each row's reduction.
	MulVec(dst, src []float32, path kernel.Path)
}

// F32Matrix is a contiguous, already-dequantized row-major matrix.
type F32Matrix struct {
	Data       []float32
	NRows, NCols int
}

func (m F32Matrix) Rows() int { return m.NRows }
func (m F32Matrix) Cols() int { return m.NCols }

func (m F32Matrix) MulVec(dst, src []float32, path kernel.Path) {
	for r := 0; r < m.NRows; r++ {
		row := m.Data[r*m.NCols : (r+1)*m.NCols]
		dst[r] = kernel.Dot(path, row, src, m.NCols)
	}
}

// Row returns the r'th row as a slice view (used for the token-embedding
// lookup, which needs one row rather than a matmul).
func (m F32Matrix) Row(r int) []float32 {
	return m.Data[r*m.NCols : (r+1)*m.NCols]
}

// Q8_0Matrix is a row-major matrix whose rows are packed Q8_0 blocks; it
// never dequantizes into a parallel F32 buffer, per spec.md §3's Q8_0
// weight layout.
type Q8_0Matrix struct {
	Data         []byte
	NRows, NCols int
	RowBytes     int // bytes per row = (cols/32) * 34
}

func (m Q8_0Matrix) Rows() int { return m.NRows }
func (m Q8_0Matrix) Cols() int { return m.NCols }

func (m Q8_0Matrix) MulVec(dst, src []float32, _ kernel.Path) {
	for r := 0; r < m.NRows; r++ {
		row := m.Data[r*m.RowBytes : (r+1)*m.RowBytes]
		dst[r] = kernel.DotQ8_0Row(row, src, m.NCols)
	}
}

// RowF32 dequantizes row r into dst (len dst >= Cols()), used for the
// token-embedding lookup which needs a single row, not a reduction.
func (m Q8_0Matrix) RowF32(r int, dst []float32) {
	row := m.Data[r*m.RowBytes : (r+1)*m.RowBytes]
	blocks := m.NCols / 32
	for b := 0; b < blocks; b++ {
		blk := row[b*kernel.Q8_0BlockBytes : (b+1)*kernel.Q8_0BlockBytes]
		d := llmk.HalfToFloat32(uint16(blk[0]) | uint16(blk[1])<<8)
		qs := blk[2:]
		for i := 0; i < 32; i++ {
			dst[b*32+i] = float32(int8(qs[i])) * d
		}
	}
}
