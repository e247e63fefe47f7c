// Package djibion is the governance gate spec.md §4.G describes: a pure
// decision function that gates every side-effecting REPL action behind an
// ordered set of rules, plus an ancillary bio-code parser that maps short
// ATCG strings to an intent classification.
package djibion

import (
	"strings"
)

// Mode selects how the caller must treat a non-ALLOW verdict.
type Mode int

const (
	ModeOff Mode = iota
	ModeObserve
	ModeEnforce
)

// Action enumerates every side-effecting operation the gate covers,
// numbered to match the original engine's wire values so serialized
// config/telemetry stays stable.
type Action int

const (
	ActionNone Action = 0

	ActionFSWrite  Action = 10
	ActionFSAppend Action = 11
	ActionFSRm     Action = 12
	ActionFSCp     Action = 13
	ActionFSMv     Action = 14

	ActionSnapLoad Action = 20
	ActionSnapSave Action = 21

	ActionOOExec Action = 30
	ActionOOAuto Action = 31
	ActionOOSave Action = 32
	ActionOOLoad Action = 33

	ActionAutorun Action = 40

	ActionCfgWrite Action = 50
)

// Verdict is the outcome of one Decide call.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictTransform
	VerdictReject
	VerdictFreeze
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "Allow"
	case VerdictTransform:
		return "Transform"
	case VerdictReject:
		return "Reject"
	case VerdictFreeze:
		return "Freeze"
	default:
		return "Unknown"
	}
}

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionFSWrite:
		return "FSWrite"
	case ActionFSAppend:
		return "FSAppend"
	case ActionFSRm:
		return "FSRm"
	case ActionFSCp:
		return "FSCp"
	case ActionFSMv:
		return "FSMv"
	case ActionSnapLoad:
		return "SnapLoad"
	case ActionSnapSave:
		return "SnapSave"
	case ActionOOExec:
		return "OOExec"
	case ActionOOAuto:
		return "OOAuto"
	case ActionOOSave:
		return "OOSave"
	case ActionOOLoad:
		return "OOLoad"
	case ActionAutorun:
		return "Autorun"
	case ActionCfgWrite:
		return "CfgWrite"
	default:
		return "Unknown"
	}
}

// Check is one leg of the triangulated validation.
type Check struct {
	OK    bool
	Score uint8 // 0..100
}

// Triangle bundles the three checks every decision reports, per spec.md
// §4.G's "structure-check fail" / "sense fail" / "reality fail" language.
type Triangle struct {
	Sense     Check
	Structure Check
	Reality   Check
}

func passingTriangle() Triangle {
	ok := Check{OK: true, Score: 100}
	return Triangle{Sense: ok, Structure: ok, Reality: ok}
}

// Laws are the policy knobs an operator sets via repl.cfg, mirrored
// field-for-field from the original DjibionLaws struct.
type Laws struct {
	MaxFSWriteBytes uint32
	MaxSnapBytes    uint32
	MaxOOCycles     uint32

	AllowFSDelete bool
	AllowFSWrite  bool

	AllowSnapLoad bool
	AllowSnapSave bool

	AllowCfgWrite bool

	AllowAutorun  bool
	AllowOOExec   bool
	AllowOOAuto   bool
	AllowOOPersist bool

	// FSMutPrefix restricts FS-mutating actions to paths under this
	// prefix. Empty means no restriction.
	FSMutPrefix string
}

// DefaultLaws mirrors djibion_init's conservative-but-permissive defaults.
func DefaultLaws() Laws {
	return Laws{
		MaxFSWriteBytes: 64 * 1024,
		MaxSnapBytes:    256 * 1024 * 1024,
		MaxOOCycles:     16,
		AllowFSDelete:   false,
		AllowFSWrite:    true,
		AllowSnapLoad:   true,
		AllowSnapSave:   true,
		AllowCfgWrite:   true,
		AllowAutorun:    true,
		AllowOOExec:     true,
		AllowOOAuto:     true,
		AllowOOPersist:  true,
		FSMutPrefix:     "",
	}
}

// Engine owns the current mode, the active laws, and the monotonic
// decision counters spec.md §8's governance-monotonicity property covers.
type Engine struct {
	Mode Mode
	Laws Laws

	Total       uint32
	Rejected    uint32
	Transformed uint32
}

// NewEngine returns an engine in ModeOff with DefaultLaws, matching
// djibion_init.
func NewEngine() *Engine {
	return &Engine{Mode: ModeOff, Laws: DefaultLaws()}
}

// SetMode changes the enforcement mode without touching laws or counters.
func (e *Engine) SetMode(m Mode) { e.Mode = m }

// Decision is the full result of one Decide call.
type Decision struct {
	Verdict         Verdict
	Tri             Triangle
	Risk            uint8
	Reason          string
	TransformedArg0 string
}

func hasDotDot(s string) bool { return strings.Contains(s, "..") }

func startsWithCI(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

func basename(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func buildPrefixedPath(prefix, path string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "\\") && !strings.HasSuffix(prefix, "/") {
		prefix += "\\"
	}
	base := basename(path)
	return prefix + base
}

func tri(d *Decision, which int, score uint8) {
	c := Check{OK: false, Score: score}
	switch which {
	case 0:
		d.Tri.Sense = c
	case 1:
		d.Tri.Structure = c
	case 2:
		d.Tri.Reality = c
	}
}

// Decide evaluates one action against the engine's current laws, updating
// the monotonic counters and returning a Decision. The rule order matches
// spec.md §4.G exactly: path traversal, then the action's master flag,
// then its byte/cycle budget, then the mutation-prefix transform, then a
// baseline allow.
func Decide(e *Engine, act Action, arg0 string, arg1 uint32) Decision {
	d := Decision{Verdict: VerdictAllow, Tri: passingTriangle()}
	e.Total++

	switch act {
	case ActionFSWrite, ActionFSAppend:
		d.Risk = 35
		switch {
		case hasDotDot(arg0):
			d.Risk = 80
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowFSWrite:
			d.Risk = 70
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "fs write disabled by laws"
		case e.Laws.MaxFSWriteBytes != 0 && arg1 > e.Laws.MaxFSWriteBytes:
			d.Risk = 60
			d.Verdict = VerdictReject
			tri(&d, 1, 15)
			d.Reason = "fs write exceeds max bytes"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 55
			d.Verdict = VerdictTransform
			d.Reason = "fs write outside allowed prefix"
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionFSRm:
		d.Risk = 70
		switch {
		case hasDotDot(arg0):
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowFSDelete:
			d.Verdict = VerdictReject
			tri(&d, 0, 5)
			d.Reason = "fs delete disabled by laws"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			// No silent redirection of deletes: unlike writes, an
			// out-of-prefix remove is rejected outright.
			d.Verdict = VerdictReject
			tri(&d, 1, 10)
			d.Reason = "fs delete outside allowed prefix"
		}

	case ActionFSCp, ActionFSMv:
		d.Risk = 45
		switch {
		case hasDotDot(arg0):
			d.Risk = 80
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowFSWrite:
			d.Risk = 70
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "fs copy/move disabled by laws"
		case act == ActionFSMv && !e.Laws.AllowFSDelete:
			d.Risk = 75
			d.Verdict = VerdictReject
			tri(&d, 0, 5)
			d.Reason = "fs move disabled (delete not allowed)"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 55
			d.Verdict = VerdictTransform
			if act == ActionFSMv {
				d.Reason = "fs move outside allowed prefix"
			} else {
				d.Reason = "fs copy outside allowed prefix"
			}
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionSnapLoad:
		d.Risk = 25
		switch {
		case hasDotDot(arg0):
			d.Risk = 80
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowSnapLoad:
			d.Risk = 65
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "snapshot load disabled by laws"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 50
			d.Verdict = VerdictTransform
			d.Reason = "snapshot load outside allowed prefix"
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionSnapSave:
		d.Risk = 40
		switch {
		case hasDotDot(arg0):
			d.Risk = 85
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowSnapSave:
			d.Risk = 70
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "snapshot save disabled by laws"
		case e.Laws.MaxSnapBytes != 0 && arg1 > e.Laws.MaxSnapBytes:
			d.Risk = 65
			d.Verdict = VerdictReject
			tri(&d, 1, 15)
			d.Reason = "snapshot save exceeds max_snap_bytes"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 55
			d.Verdict = VerdictTransform
			d.Reason = "snapshot save outside allowed prefix"
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionOOExec, ActionOOAuto:
		d.Risk = 30
		switch {
		case act == ActionOOExec && !e.Laws.AllowOOExec, act == ActionOOAuto && !e.Laws.AllowOOAuto:
			d.Risk = 65
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "oo execution disabled by laws"
		case e.Laws.MaxOOCycles != 0 && arg1 > e.Laws.MaxOOCycles:
			d.Risk = 55
			d.Verdict = VerdictReject
			tri(&d, 2, 20)
			d.Reason = "oo cycles exceed max_oo_cycles"
		}

	case ActionOOSave, ActionOOLoad:
		if act == ActionOOLoad {
			d.Risk = 40
		} else {
			d.Risk = 35
		}
		switch {
		case hasDotDot(arg0):
			d.Risk = 85
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowOOPersist:
			d.Risk = 70
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "oo persist disabled by laws"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 55
			d.Verdict = VerdictTransform
			if act == ActionOOLoad {
				d.Reason = "oo load outside allowed prefix"
			} else {
				d.Reason = "oo save outside allowed prefix"
			}
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionAutorun:
		d.Risk = 35
		switch {
		case hasDotDot(arg0):
			d.Risk = 80
			d.Verdict = VerdictReject
			tri(&d, 1, 5)
			d.Reason = "path contains '..'"
		case !e.Laws.AllowAutorun:
			d.Risk = 65
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "autorun disabled by laws"
		case !startsWithCI(arg0, e.Laws.FSMutPrefix):
			d.Risk = 50
			d.Verdict = VerdictTransform
			d.Reason = "autorun file outside allowed prefix"
			d.TransformedArg0 = buildPrefixedPath(e.Laws.FSMutPrefix, arg0)
		}

	case ActionCfgWrite:
		d.Risk = 40
		if !e.Laws.AllowCfgWrite {
			d.Risk = 75
			d.Verdict = VerdictReject
			tri(&d, 0, 10)
			d.Reason = "config write disabled by laws"
		}

	default:
		d.Risk = 5
	}

	switch d.Verdict {
	case VerdictReject:
		e.Rejected++
	case VerdictTransform:
		e.Transformed++
	}

	return d
}
