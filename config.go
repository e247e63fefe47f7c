package llmk

import (
	"bufio"
	"io"
	"strings"

	"github.com/llmk/gguf-engine/util/anyx"
)

// ReplConfig is the parsed form of repl.cfg, spec.md §4.H's ASCII
// key=value config file. Every key=value line is kept verbatim in Raw, so a
// caller that owns the splash/overlay/oo_* surface (spec.md names those
// keys as external collaborators') can still read them. The recognized
// keys are additionally surfaced as typed fields; any other key has no
// effect beyond its Raw entry.
type ReplConfig struct {
	Raw map[string]string

	Fat83Force bool

	DiopionMode    string
	DiopionProfile string

	DiopionBurstTurns     int
	DiopionBurstMaxTokens int
	DiopionBurstTopK      int
	DiopionBurstTempMilli int
}

// ParseReplConfig reads repl.cfg's key=value lines, skipping blank lines
// and '#' comments. Type coercion for the recognized integer/boolean keys
// goes through anyx, the teacher corpus's generic any->T coercion helper;
// boolean keys follow anyx.Bool's string rule, where only "0" is falsy, so
// repl.cfg's flags are written the same 0/1 way the original ASCII config
// file does.
func ParseReplConfig(r io.Reader) (ReplConfig, error) {
	cfg := ReplConfig{Raw: map[string]string{}}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		cfg.Raw[key] = val

		switch key {
		case "fat83_force":
			cfg.Fat83Force = anyx.Bool(val)
		case "diopion_mode":
			cfg.DiopionMode = val
		case "diopion_profile":
			cfg.DiopionProfile = val
		case "diopion_burst_turns":
			cfg.DiopionBurstTurns = anyx.Number[int](val)
		case "diopion_burst_max_tokens":
			cfg.DiopionBurstMaxTokens = anyx.Number[int](val)
		case "diopion_burst_topk":
			cfg.DiopionBurstTopK = anyx.Number[int](val)
		case "diopion_burst_temp_milli":
			cfg.DiopionBurstTempMilli = anyx.Number[int](val)
		}
	}
	if err := sc.Err(); err != nil {
		return cfg, newErr(KindIoShort, "config", -1, err)
	}
	return cfg, nil
}
