//go:build !linux

package firmware

// totalMemoryBytes has no portable sysinfo(2) equivalent outside Linux;
// report MemoryMed's floor so a non-Linux host degrades to the
// conservative middle tier rather than claiming LOW or ULTRA from nothing.
func totalMemoryBytes() uint64 {
	return 256 << 20
}
