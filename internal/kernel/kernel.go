// Package kernel implements the dispatched float32 math primitives the
// transformer engine calls for every matmul and attention reduction: dot
// product, scaled accumulate (axpy), and the Q8_0 block matmul that lets
// the weight materializer skip dequantization entirely.
//
// A freestanding CPUID/XCR0 probe has no portable Go equivalent, so feature
// detection here is delegated to golang.org/x/sys/cpu (see Selector), and
// the two code paths named by spec.md §4.B ("SSE2" and "AVX2") become two
// portable Go implementations distinguished by vector width rather than by
// actual SIMD intrinsics — Go gives the compiler no portable way to emit
// AVX2 directly, so the width split alone is the idiomatic stand-in the
// teacher's corpus reaches for (see gonum's floats package, which keeps a
// single portable loop and lets the runtime auto-vectorize it).
package kernel

import "golang.org/x/sys/cpu"

// Selector is the tri-state runtime choice spec.md §4.B describes: auto
// resolves to the wide path iff the host's feature probe confirms support,
// the other two states force a specific path (used by the REPL's /attn
// command and by the AVX2/SSE2 agreement test).
type Selector uint8

const (
	SelectorAuto Selector = iota
	SelectorForceNarrow
	SelectorForceWide
)

// Path names which kernel implementation actually ran, returned by
// Resolve so callers (and tests) can record which path produced a result.
type Path uint8

const (
	PathNarrow Path = iota // the spec's "SSE2" path: 4-wide accumulation
	PathWide                // the spec's "AVX2" path: 8-wide accumulation
)

// wideSupported reports whether the host CPU exposes the feature set the
// spec's AVX2 path requires (AVX2 + FMA), via the portable cpu.X86 feature
// table rather than a hand-rolled CPUID/XCR0 sequence.
func wideSupported() bool {
	return cpu.X86.HasAVX2 && cpu.X86.HasFMA
}

// Resolve turns a Selector into the concrete Path to run. The choice is
// made once by the caller and passed back in; Dot and Axpy still switch on
// that Path on every call rather than holding a function pointer.
func Resolve(sel Selector) Path {
	switch sel {
	case SelectorForceWide:
		return PathWide
	case SelectorForceNarrow:
		return PathNarrow
	default:
		if wideSupported() {
			return PathWide
		}
		return PathNarrow
	}
}

// Dot returns the dot product of a and b over their first n elements.
// Both code paths accumulate into a single float32 scalar the same way;
// the width only changes how many partial sums run independently before
// being folded together, which is what keeps the two paths within 1 ULP
// of each other for non-pathological inputs.
func Dot(path Path, a, b []float32, n int) float32 {
	switch path {
	case PathWide:
		return dotWide(a, b, n)
	default:
		return dotNarrow(a, b, n)
	}
}

// Axpy computes dst[i] += alpha*src[i] for i in [0,n), in place.
func Axpy(path Path, dst, src []float32, alpha float32, n int) {
	switch path {
	case PathWide:
		axpyWide(dst, src, alpha, n)
	default:
		axpyNarrow(dst, src, alpha, n)
	}
}

func dotNarrow(a, b []float32, n int) float32 {
	const w = 4
	var acc [w]float32
	i := 0
	for ; i+w <= n; i += w {
		acc[0] += a[i] * b[i]
		acc[1] += a[i+1] * b[i+1]
		acc[2] += a[i+2] * b[i+2]
		acc[3] += a[i+3] * b[i+3]
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3]
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func dotWide(a, b []float32, n int) float32 {
	const w = 8
	var acc [w]float32
	i := 0
	for ; i+w <= n; i += w {
		for j := 0; j < w; j++ {
			acc[j] += a[i+j] * b[i+j]
		}
	}
	var sum float32
	for j := 0; j < w; j++ {
		sum += acc[j]
	}
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func axpyNarrow(dst, src []float32, alpha float32, n int) {
	const w = 4
	i := 0
	for ; i+w <= n; i += w {
		dst[i] += alpha * src[i]
		dst[i+1] += alpha * src[i+1]
		dst[i+2] += alpha * src[i+2]
		dst[i+3] += alpha * src[i+3]
	}
	for ; i < n; i++ {
		dst[i] += alpha * src[i]
	}
}

func axpyWide(dst, src []float32, alpha float32, n int) {
	const w = 8
	i := 0
	for ; i+w <= n; i += w {
		for j := 0; j < w; j++ {
			dst[i+j] += alpha * src[i+j]
		}
	}
	for ; i < n; i++ {
		dst[i] += alpha * src[i]
	}
}
