package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/llmk/gguf-engine/util/osx"
)

// ResolveAlias implements the 8.3 alias fallback spec.md §4.A describes:
// some FAT drivers only expose a long file name's short alias, so a direct
// open of the long name fails even though the file is present under
// "FIRST6~N.EXT". entries is the directory listing, target the long name
// the caller asked for. It returns the entry that should actually be
// opened and whether that entry is an alias rather than an exact match.
//
// When force is true the alias is preferred over an exact match whenever
// one exists, the fat83_force diagnostic mode spec.md §4.A names for
// exercising the fallback path on filesystems that support both forms.
func ResolveAlias(entries []string, target string, force bool) (resolved string, usedAlias bool) {
	var exact, alias string
	for _, e := range entries {
		if strings.EqualFold(e, target) {
			exact = e
		}
	}
	for n := 1; n <= 9 && alias == ""; n++ {
		want := aliasFor(target, n)
		for _, e := range entries {
			if strings.EqualFold(e, want) {
				alias = e
				break
			}
		}
	}

	switch {
	case exact != "" && (!force || alias == ""):
		return exact, false
	case alias != "":
		return alias, true
	case exact != "":
		return exact, false
	default:
		return "", false
	}
}

// aliasFor builds the Nth 8.3 short-name candidate for name: the first six
// alphanumeric characters of the base, uppercased, a "~N" tie-breaker, and
// the uppercased three-character extension, matching the scheme FAT's
// long-file-name driver generates.
func aliasFor(name string, n int) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	base := strings.TrimSuffix(name, filepath.Ext(name))

	var alnum []byte
	for i := 0; i < len(base) && len(alnum) < 6; i++ {
		c := base[i]
		switch {
		case c >= 'a' && c <= 'z':
			alnum = append(alnum, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			alnum = append(alnum, c)
		}
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	alias := fmt.Sprintf("%s~%d", string(alnum), n)
	if ext != "" {
		alias = alias + "." + strings.ToUpper(ext)
	}
	return strings.ToUpper(alias)
}

// Open83Fallback opens path, retrying through ResolveAlias against the
// containing directory's listing when the direct open fails (or
// unconditionally, when force requests the alias be preferred). It
// returns a plain *os.File, which already satisfies Handle.
func Open83Fallback(path string, force bool) (*os.File, error) {
	path = osx.InlineTilde(path)
	if !force {
		if f, err := os.Open(path); err == nil {
			return f, nil
		}
	}

	dir, leaf := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name()
	}

	resolved, _ := ResolveAlias(names, leaf, force)
	if resolved == "" {
		return os.Open(path) // surface the original, honest not-found error
	}
	return os.Open(filepath.Join(dir, resolved))
}
