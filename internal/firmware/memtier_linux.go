//go:build linux

package firmware

import "golang.org/x/sys/unix"

// totalMemoryBytes queries the host's total RAM via sysinfo(2), the closest
// hosted equivalent to summing the EFI_MEMORY_DESCRIPTOR conventional-memory
// entries spec.md §4.A's memory-tier derivation is grounded on.
func totalMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
