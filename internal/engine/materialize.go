package engine

import (
	"fmt"
	"io"
	"runtime"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/kernel"
	"golang.org/x/sync/errgroup"
)

// readerAtSeeker gives one goroutine its own independent read cursor over
// a shared io.ReaderAt, so concurrent layer loaders never race on a single
// file's seek position. Every loadVector/loadMatrix call already seeks to
// an absolute offset before reading, so this is the only state a goroutine
// needs of its own.
type readerAtSeeker struct {
	ra  io.ReaderAt
	pos int64
}

func (s *readerAtSeeker) Read(p []byte) (int, error) {
	n, err := s.ra.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *readerAtSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	default:
		return 0, fmt.Errorf("readerAtSeeker: unsupported seek whence %d", whence)
	}
	return s.pos, nil
}

// rowBuf is a reusable scratch buffer sized once per Materialize call to
// the largest raw encoded row any tensor in the plan can produce, per
// spec.md §4.D's materialization protocol ("a row buffer sized to
// max(max_src_cols*4, max_row_raw_bytes)"). Reusing one buffer across every
// tensor avoids an allocation per row for models with many layers.
type rowBuf struct {
	raw []byte
	f32 []float32
}

func newRowBuf(plan *llmk.Plan) *rowBuf {
	size := plan.MaxSrcCols * 4
	if plan.MaxRowRawBytes > size {
		size = plan.MaxRowRawBytes
	}
	return &rowBuf{
		raw: make([]byte, size),
		f32: make([]float32, plan.MaxSrcCols),
	}
}

// Materialize streams every tensor named by plan out of f into a Weights
// value, dequantizing on the fly for the F32 path or preserving Q8_0 block
// structure for the blob path, per spec.md §4.D. f must be positioned
// anywhere; every read seeks explicitly from plan.DataStart.
func Materialize(f io.ReadSeeker, plan *llmk.Plan, useQ8_0 bool) (*Weights, error) {
	if useQ8_0 && !plan.SupportsQ8_0Blob() {
		return nil, &llmk.Error{Kind: llmk.KindUnsupportedType, Stage: "materialize", Offset: -1,
			Cause: fmt.Errorf("Q8_0 blob path requested but plan has non-Q8_0 2-D tensors")}
	}

	p := plan.Params
	dim, hidden, vocab := int(p.Dim), int(p.HiddenDim), int(p.VocabSize)
	kvDim := int(p.KVDim())

	buf := newRowBuf(plan)

	w := &Weights{Layers: make([]LayerWeights, len(plan.Layers))}

	var err error
	if w.TokEmbd, err = loadMatrix(f, plan, plan.TokEmbd, vocab, dim, useQ8_0, buf); err != nil {
		return nil, annotate(err, "token_embd")
	}

	// Every layer's tensors live at offsets fixed by the plan, so once
	// token_embd is in hand the layers have no cross-section dependency on
	// each other; when f also satisfies io.ReaderAt, fan the layer loop out
	// across goroutines instead of streaming it one layer at a time.
	if ra, ok := f.(io.ReaderAt); ok && len(plan.Layers) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(max(1, runtime.GOMAXPROCS(0)))
		for i, l := range plan.Layers {
			i, l := i, l
			g.Go(func() error {
				lf := &readerAtSeeker{ra: ra}
				lw, err := loadLayer(lf, plan, l, dim, hidden, kvDim, useQ8_0, newRowBuf(plan))
				if err != nil {
					return annotate(err, fmt.Sprintf("blk.%d", i))
				}
				w.Layers[i] = lw
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, l := range plan.Layers {
			lw, err := loadLayer(f, plan, l, dim, hidden, kvDim, useQ8_0, buf)
			if err != nil {
				return nil, annotate(err, fmt.Sprintf("blk.%d", i))
			}
			w.Layers[i] = lw
		}
	}

	if w.RMSFinal, err = loadVector(f, plan, plan.RMSFinal, dim, buf); err != nil {
		return nil, annotate(err, "output_norm")
	}

	// The legacy RoPE tables are zero-filled per spec.md §3/§9: the engine
	// recomputes RoPE from position, but the layout slot is reserved so a
	// consumer that expects it finds a stable (if unused) shape.
	ropeLen := int(p.SeqLen * p.HeadSize() / 2)
	w.RopeReal = make([]float32, ropeLen)
	w.RopeImag = make([]float32, ropeLen)

	if !plan.SharedClassifier {
		if w.Classifier, err = loadMatrix(f, plan, plan.Output, vocab, dim, useQ8_0, buf); err != nil {
			return nil, annotate(err, "output")
		}
	}

	return w, nil
}

// loadLayer reads one transformer block's nine tensors. It is the unit of
// concurrency Materialize fans out over: f and buf are never shared across
// two concurrent calls.
func loadLayer(f io.ReadSeeker, plan *llmk.Plan, l llmk.LayerRefs, dim, hidden, kvDim int, useQ8_0 bool, buf *rowBuf) (LayerWeights, error) {
	var lw LayerWeights
	var err error
	if lw.AttnNorm, err = loadVector(f, plan, l.AttnNorm, dim, buf); err != nil {
		return lw, annotate(err, "attn_norm")
	}
	if lw.WQ, err = loadMatrix(f, plan, l.WQ, dim, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "attn_q")
	}
	if lw.WK, err = loadMatrix(f, plan, l.WK, kvDim, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "attn_k")
	}
	if lw.WV, err = loadMatrix(f, plan, l.WV, kvDim, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "attn_v")
	}
	if lw.WO, err = loadMatrix(f, plan, l.WO, dim, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "attn_output")
	}
	if lw.FFNNorm, err = loadVector(f, plan, l.FFNNorm, dim, buf); err != nil {
		return lw, annotate(err, "ffn_norm")
	}
	if lw.FFNGate, err = loadMatrix(f, plan, l.FFNGate, hidden, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "ffn_gate")
	}
	if lw.FFNUp, err = loadMatrix(f, plan, l.FFNUp, hidden, dim, useQ8_0, buf); err != nil {
		return lw, annotate(err, "ffn_up")
	}
	if lw.FFNDown, err = loadMatrix(f, plan, l.FFNDown, dim, hidden, useQ8_0, buf); err != nil {
		return lw, annotate(err, "ffn_down")
	}
	return lw, nil
}

func annotate(err error, stage string) error {
	if e, ok := err.(*llmk.Error); ok {
		e.Stage = stage
		return e
	}
	return err
}

// loadVector reads a 1-D tensor of n elements, promoting F16 to F32 if
// necessary; norm vectors remain F32 regardless of the weight mode, per
// spec.md §3.
func loadVector(f io.ReadSeeker, plan *llmk.Plan, ref llmk.TensorRef, n int, buf *rowBuf) ([]float32, error) {
	if !ref.Present {
		return nil, &llmk.Error{Kind: llmk.KindMissingTensor, Offset: -1, Cause: fmt.Errorf("required vector tensor missing")}
	}
	if int(ref.Dims[0]) != n {
		return nil, &llmk.Error{Kind: llmk.KindShapeMismatch, Offset: -1,
			Cause: fmt.Errorf("vector dims[0]=%d does not match expected length %d", ref.Dims[0], n)}
	}
	if _, err := f.Seek(plan.DataStart+int64(ref.Offset), io.SeekStart); err != nil {
		return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: err}
	}
	raw := ref.Type.RowSizeOf([]uint64{uint64(n)})
	rawBuf := buf.raw[:raw]
	if _, err := io.ReadFull(f, rawBuf); err != nil {
		return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: fmt.Errorf("short read on vector tensor: %w", err)}
	}
	dst := make([]float32, n)
	if err := llmk.DequantizeRow(ref.Type, rawBuf, dst, n); err != nil {
		return nil, err
	}
	return dst, nil
}

// loadMatrix reads a 2-D tensor into a [rows, cols] Matrix, per spec.md
// §4.D's dimension-match rule: direct (dims[0]=cols, dims[1]=rows) streams
// row-by-row; transposed (dims[0]=rows, dims[1]=cols) is only legal on the
// F32 path, where each source row becomes a destination column instead.
func loadMatrix(f io.ReadSeeker, plan *llmk.Plan, ref llmk.TensorRef, rows, cols int, useQ8_0 bool, buf *rowBuf) (Matrix, error) {
	if !ref.Present {
		return nil, &llmk.Error{Kind: llmk.KindMissingTensor, Offset: -1, Cause: fmt.Errorf("required matrix tensor missing")}
	}
	d0, d1 := int(ref.Dims[0]), int(ref.Dims[1])

	direct := d0 == cols && d1 == rows
	transposed := d0 == rows && d1 == cols
	if !direct && !transposed {
		return nil, &llmk.Error{Kind: llmk.KindShapeMismatch, Offset: -1,
			Cause: fmt.Errorf("dims [%d,%d] match neither [rows=%d,cols=%d] nor its transpose", d0, d1, rows, cols)}
	}

	if useQ8_0 {
		if !direct || ref.Type != llmk.GGMLTypeQ8_0 {
			return nil, &llmk.Error{Kind: llmk.KindShapeMismatch, Offset: -1,
				Cause: fmt.Errorf("Q8_0 blob path requires a direct, Q8_0-typed tensor")}
		}
		return loadQ8_0Direct(f, plan, ref, rows, cols)
	}

	return loadF32(f, plan, ref, rows, cols, direct, buf)
}

func loadQ8_0Direct(f io.ReadSeeker, plan *llmk.Plan, ref llmk.TensorRef, rows, cols int) (Matrix, error) {
	if cols%32 != 0 {
		return nil, &llmk.Error{Kind: llmk.KindCorrupt, Offset: -1, Cause: fmt.Errorf("Q8_0 cols %d not divisible by 32", cols)}
	}
	rowBytes := (cols / 32) * kernel.Q8_0BlockBytes
	total := rowBytes * rows
	if _, err := f.Seek(plan.DataStart+int64(ref.Offset), io.SeekStart); err != nil {
		return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: err}
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: fmt.Errorf("short read on Q8_0 tensor: %w", err)}
	}
	return Q8_0Matrix{Data: data, NRows: rows, NCols: cols, RowBytes: rowBytes}, nil
}

func loadF32(f io.ReadSeeker, plan *llmk.Plan, ref llmk.TensorRef, rows, cols int, direct bool, buf *rowBuf) (Matrix, error) {
	if _, err := f.Seek(plan.DataStart+int64(ref.Offset), io.SeekStart); err != nil {
		return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: err}
	}

	data := make([]float32, rows*cols)

	// Source rows are always dims[1] rows of dims[0] elements (dims[0] is
	// GGUF's fastest-changing axis); direct/transposed only decides which
	// logical axis of the destination each source row lands on.
	srcRows := int(ref.Dims[1])
	srcRowLen := int(ref.Dims[0])
	rawRowBytes := ref.Type.RowSizeOf([]uint64{uint64(srcRowLen)})

	for i := 0; i < srcRows; i++ {
		rawBuf := buf.raw[:rawRowBytes]
		if _, err := io.ReadFull(f, rawBuf); err != nil {
			return nil, &llmk.Error{Kind: llmk.KindIoShort, Offset: -1, Cause: fmt.Errorf("short read on row %d: %w", i, err)}
		}
		tmp := buf.f32[:srcRowLen]
		if err := llmk.DequantizeRow(ref.Type, rawBuf, tmp, srcRowLen); err != nil {
			return nil, err
		}
		if direct {
			copy(data[i*cols:(i+1)*cols], tmp)
		} else {
			// Transposed: source row i (length rows) is destination column i.
			for j := 0; j < srcRowLen; j++ {
				data[j*cols+i] = tmp[j]
			}
		}
	}

	return F32Matrix{Data: data, NRows: rows, NCols: cols}, nil
}
