// Package firmware is the capability interface spec.md §4.A ("Firmware
// Shim") describes: file I/O, pool allocation, wall-clock time, serial
// output, and CPU/memory capability probes. A freestanding UEFI binary
// acquires every one of these from firmware protocol tables; this port
// keeps the same thin-interface shape (spec.md §9's "Freestanding
// execution" note) and satisfies it with an OS-backed implementation, so
// the session driver above it never references os/time/cpu directly.
package firmware

import (
	"io"
	"time"

	"golang.org/x/sys/cpu"
)

// Features mirrors the CPUID/XCR0 probe spec.md §4.A lists, reported
// through the portable golang.org/x/sys/cpu tables rather than a hand-
// rolled leaf-0/1/7 CPUID sequence, which has no meaning on a non-x86 host.
type Features struct {
	SSE2    bool
	SSE41   bool
	AVX     bool
	AVX2    bool
	FMA     bool
	AVX512F bool
}

// ProbeFeatures reads the host's CPU feature bits. On amd64 this reflects
// genuine CPUID state (cpu.X86 already encodes the OSXSAVE/XCR0 gating
// spec.md §4.A calls for — the library does not report AVX support unless
// the OS has enabled the extended save state). On any other architecture
// every field is false. Resolve (internal/kernel) does not read these
// Features; it checks the same cpu.X86 table itself, so it likewise falls
// back to the narrow path there.
func ProbeFeatures() Features {
	return Features{
		SSE2:    cpu.X86.HasSSE2,
		SSE41:   cpu.X86.HasSSE41,
		AVX:     cpu.X86.HasAVX,
		AVX2:    cpu.X86.HasAVX2,
		FMA:     cpu.X86.HasFMA,
		AVX512F: cpu.X86.HasAVX512F,
	}
}

// MemoryTier buckets total conventional memory into the four bands spec.md
// §4.A names, derived from an EFI memory-map sum in the original and from
// a host memory-info query here.
type MemoryTier int

const (
	MemoryLow MemoryTier = iota
	MemoryMed
	MemoryHigh
	MemoryUltra
)

func (t MemoryTier) String() string {
	switch t {
	case MemoryLow:
		return "LOW"
	case MemoryMed:
		return "MED"
	case MemoryHigh:
		return "HIGH"
	case MemoryUltra:
		return "ULTRA"
	default:
		return "UNKNOWN"
	}
}

// ClassifyMemory applies spec.md §4.A's fixed thresholds to a byte count:
// LOW < 256 MiB, MED < 1 GiB, HIGH < 4 GiB, ULTRA >= 4 GiB.
func ClassifyMemory(totalBytes uint64) MemoryTier {
	const (
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case totalBytes < 256*mib:
		return MemoryLow
	case totalBytes < 1*gib:
		return MemoryMed
	case totalBytes < 4*gib:
		return MemoryHigh
	default:
		return MemoryUltra
	}
}

// Handle is an open file, the freestanding equivalent of an EFI_FILE_PROTOCOL
// instance: bounded reads and explicit seeks, nothing buffered beyond what
// the caller asks for.
type Handle interface {
	io.ReadSeeker
	io.Closer
}

// ReadExact reads exactly n bytes from h or reports IoShort-shaped
// information via the returned error, matching spec.md §4.A's
// read_exact(handle, n) -> bytes | short contract. A short read on a GGUF
// body is never retried — per spec.md §7, offsets are authoritative, so a
// partial read is treated as corrupt by the caller, not retried here.
func ReadExact(h Handle, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(h, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Capability is the full firmware services surface the session driver and
// loader depend on, satisfying spec.md §4.A's responsibility list without
// either side referencing an OS or architecture package directly.
type Capability interface {
	// Open opens path for reading, applying the 8.3 alias fallback
	// (spec.md §4.A) when the direct open fails.
	Open(path string) (Handle, error)

	// WallMicros returns microseconds-of-day, the freestanding wall-clock
	// read spec.md §4.A names.
	WallMicros() int64

	// SerialPutc emits one byte to the mirrored serial debug stream
	// (spec.md §6: "serial (COM1 at 0x3F8) receives a mirrored ASCII
	// debug stream").
	SerialPutc(b byte)

	// Features reports the CPU capability probe.
	Features() Features

	// MemoryTier reports the host's conventional-memory tier.
	MemoryTier() MemoryTier
}

// OSCapability is the host-backed Capability implementation: an arena-free
// stand-in for the firmware pool allocator (Go's allocator already owns
// that concern, per spec.md §9's "bump allocator... faithful replacement"
// note — there is nothing left for AllocPool/FreePool to do on a hosted
// target beyond what the runtime already provides).
type OSCapability struct {
	// Serial receives the mirrored debug byte stream; nil discards it.
	Serial io.Writer
	// Fat83Force prefers the 8.3 alias over a direct open when both
	// succeed, the diagnostic mode spec.md §4.A's fat83_force config key
	// names.
	Fat83Force bool
	// TotalMemoryBytes overrides the host memory query (used by tests);
	// a nil func falls back to totalMemoryBytes().
	TotalMemoryBytes func() uint64
}

func (c *OSCapability) Open(path string) (Handle, error) {
	return Open83Fallback(path, c.Fat83Force)
}

func (c *OSCapability) WallMicros() int64 {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return now.Sub(midnight).Microseconds()
}

func (c *OSCapability) SerialPutc(b byte) {
	if c.Serial == nil {
		return
	}
	_, _ = c.Serial.Write([]byte{b})
}

func (c *OSCapability) Features() Features {
	return ProbeFeatures()
}

func (c *OSCapability) MemoryTier() MemoryTier {
	f := c.TotalMemoryBytes
	if f == nil {
		f = totalMemoryBytes
	}
	return ClassifyMemory(f())
}
