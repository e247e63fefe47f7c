// Package session implements the Session Driver spec.md §4.H describes:
// model lifecycle, sampling configuration, the governance gate, and the
// burst/override stack, orchestrating one REPL turn at a time.
//
// It cannot live in the root llmk package: internal/engine already imports
// llmk for Plan/HyperParams/Error, so llmk importing internal/engine back
// would be a cycle. Placing the driver here, one level further from the
// root than SPEC_FULL.md's module sketch originally drew it, keeps the
// same ownership shape (DESIGN.md records the deviation) while avoiding
// the cycle the same way materialize.go's placement does.
package session

import (
	"encoding/binary"
	"fmt"
	"io"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/djibion"
	"github.com/llmk/gguf-engine/internal/engine"
	"github.com/llmk/gguf-engine/internal/firmware"
	"github.com/llmk/gguf-engine/internal/kernel"
	"github.com/llmk/gguf-engine/internal/sampler"
	"github.com/sirupsen/logrus"
)

// Config is the single mutable record the REPL's /temp, /topk,
// /max_tokens, /attn and /djibion commands touch without ever reaching
// into the weight buffer, per spec.md §4.H.
type Config struct {
	TempMilli     int
	TopK          int
	MaxTokens     int
	NoRepeatNgram int
	Attn          kernel.Selector
	Seed          uint64
	UseQ8_0       bool
}

// BurstOverride is Diopion's external parameter surface (spec.md §6,
// SUPPLEMENTED FEATURES item 5): a handful of turns run with a
// temporarily different sampling configuration, after which the prior
// knobs are restored automatically.
type BurstOverride struct {
	Turns     int
	MaxTokens int
	TopK      int
	TempMilli int
}

// Session owns the model instance, the governance engine, and the
// sampling configuration across REPL turns, per spec.md §4.H.
type Session struct {
	FW  firmware.Capability
	Tok sampler.Tokenizer
	Log *logrus.Logger

	Governance *djibion.Engine
	Cfg        Config

	// LegacyDims/LegacySharedClassifier must be set before LoadModel when
	// the target file is not GGUF-magic'd; the headerless ".bin" layout
	// carries no hyperparameters of its own (spec.md §9 edge case 1).
	LegacyDims             *llmk.HyperParams
	LegacySharedClassifier bool

	Plan    *llmk.Plan
	Weights *engine.Weights
	Engine  *engine.Engine

	burst    *BurstOverride
	savedCfg Config
	loaded   bool

	// DefaultBurst is the burst shape a bare "diopion_burst" REPL command
	// (no arguments) applies, seeded from repl.cfg's diopion_burst_* keys.
	DefaultBurst BurstOverride
}

// New returns a Session in governance-off mode with default sampling
// knobs, matching the REPL's startup state before repl.cfg is applied.
func New(fw firmware.Capability, tok sampler.Tokenizer, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.New()
	}
	return &Session{
		FW:         fw,
		Tok:        tok,
		Log:        log,
		Governance: djibion.NewEngine(),
		Cfg: Config{
			TempMilli: 800,
			TopK:      40,
			MaxTokens: 256,
			Seed:      1,
		},
	}
}

// Loaded reports whether a model is currently resident.
func (s *Session) Loaded() bool { return s.loaded }

// ApplyReplConfig seeds the session's fat83_force and default-burst
// knobs from a parsed repl.cfg, per spec.md §4.H. Keys it does not
// recognize (splash/overlay/oo_*) are left for whichever external
// collaborator owns that surface; this session driver never reads them.
func (s *Session) ApplyReplConfig(cfg llmk.ReplConfig) {
	if c, ok := s.FW.(*firmware.OSCapability); ok {
		c.Fat83Force = cfg.Fat83Force
	}
	if cfg.DiopionBurstTurns > 0 {
		s.DefaultBurst = BurstOverride{
			Turns:     cfg.DiopionBurstTurns,
			MaxTokens: cfg.DiopionBurstMaxTokens,
			TopK:      cfg.DiopionBurstTopK,
			TempMilli: cfg.DiopionBurstTempMilli,
		}
	}
}

// LoadModel picks the file format by magic ("GGUF" ⇒ GGUF, otherwise
// legacy ".bin"), builds the plan, materializes the weight buffer, and
// allocates a fresh KV cache, per spec.md §4.H. Any error leaves the
// session unloaded and is logged with stage/offset/kind, matching the
// propagation policy spec.md §7 describes.
func (s *Session) LoadModel(path string) error {
	h, err := s.FW.Open(path)
	if err != nil {
		s.logLoadError("open", -1, llmk.KindFirmwareService, err)
		return err
	}
	defer h.Close()

	magic, err := firmware.ReadExact(h, 4)
	if err != nil {
		s.logLoadError("magic", 0, llmk.KindIoShort, err)
		return err
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		s.logLoadError("magic", 0, llmk.KindIoShort, err)
		return err
	}

	isGGUF := binary.LittleEndian.Uint32(magic) == uint32(llmk.GGUFMagicGGUFLe)

	var plan *llmk.Plan
	if isGGUF {
		plan, err = llmk.BuildPlan(h)
		if err != nil {
			s.logLoadErr(err)
			return err
		}
	} else {
		if s.LegacyDims == nil {
			err := &llmk.Error{Kind: llmk.KindMissingHyperparam, Stage: "legacy-load", Offset: -1,
				Cause: fmt.Errorf("legacy .bin format requires dimensions agreed out-of-band, none set")}
			s.logLoadErr(err)
			return err
		}
		plan = llmk.BuildLegacyPlan(*s.LegacyDims, s.LegacySharedClassifier)
	}

	if s.Tok != nil && s.Tok.VocabSize() != int(plan.Params.VocabSize) {
		err := &llmk.Error{Kind: llmk.KindInvalidArgument, Stage: "load", Offset: -1,
			Cause: fmt.Errorf("tokenizer vocab size %d does not match model vocab size %d", s.Tok.VocabSize(), plan.Params.VocabSize)}
		s.logLoadErr(err)
		return err
	}

	useQ8_0 := s.Cfg.UseQ8_0 && plan.SupportsQ8_0Blob()
	w, err := engine.Materialize(h, plan, useQ8_0)
	if err != nil {
		s.logLoadErr(err)
		return err
	}

	s.Plan = plan
	s.Weights = w
	s.Engine = engine.New(plan.Params, w, kernel.Resolve(s.Cfg.Attn))
	s.loaded = true

	s.Log.WithFields(logrus.Fields{
		"dim": plan.Params.Dim, "layers": plan.Params.NLayers, "vocab": plan.Params.VocabSize,
		"q8_0": useQ8_0, "legacy": !isGGUF,
	}).Info("model loaded")
	return nil
}

func (s *Session) logLoadErr(err error) {
	var lerr *llmk.Error
	if e, ok := err.(*llmk.Error); ok {
		lerr = e
	} else {
		lerr = &llmk.Error{Kind: llmk.KindCorrupt, Offset: -1, Cause: err}
	}
	s.logLoadError(lerr.Stage, lerr.Offset, lerr.Kind, lerr.Cause)
	s.loaded = false
}

func (s *Session) logLoadError(stage string, offset int64, kind llmk.ErrorKind, cause error) {
	s.Log.WithFields(logrus.Fields{"stage": stage, "offset": offset, "kind": kind.String()}).
		Error(cause)
	s.loaded = false
}

// UnloadModel frees the weight buffer and KV cache, the hosted stand-in
// for the firmware free_pool call spec.md §4.H names; a bump allocator
// would simply reset here (spec.md §9), which Go's GC already subsumes
// once the last reference is dropped.
func (s *Session) UnloadModel() {
	s.Plan = nil
	s.Weights = nil
	s.Engine = nil
	s.loaded = false
	s.Log.Info("model unloaded")
}

// SetTemp mutates the temperature knob (milli-units, clamped at sample
// time by sampler.TempFromMilli), per the /temp REPL command.
func (s *Session) SetTemp(milli int) { s.Cfg.TempMilli = milli }

// SetTopK mutates the top-k knob, per the /topk REPL command.
func (s *Session) SetTopK(k int) { s.Cfg.TopK = k }

// SetMaxTokens mutates the per-turn generation budget, per the
// /max_tokens REPL command.
func (s *Session) SetMaxTokens(n int) { s.Cfg.MaxTokens = n }

// SetAttn changes the dispatched kernel path live, per the /attn REPL
// command ({auto|sse2|avx2}); an already-loaded engine picks it up on its
// next Step since Path is read fresh every call.
func (s *Session) SetAttn(sel kernel.Selector) {
	s.Cfg.Attn = sel
	if s.Engine != nil {
		s.Engine.Path = kernel.Resolve(sel)
	}
}

// SetDjibionMode changes the governance engine's enforcement mode, per
// the /djibion REPL command ({off|observe|enforce}).
func (s *Session) SetDjibionMode(m djibion.Mode) { s.Governance.SetMode(m) }

// ApplyBurst pushes a temporary sampling override, saving the current
// config so FinishBurst (or the automatic turn countdown in Generate) can
// restore it, grounded on llama2_efi_final.c's apply/finish pair.
func (s *Session) ApplyBurst(o BurstOverride) {
	if s.burst != nil {
		return // a burst is already active; nested bursts are not supported
	}
	saved := s.Cfg
	s.savedCfg = saved
	s.burst = &o
	s.Cfg.MaxTokens = o.MaxTokens
	s.Cfg.TopK = o.TopK
	s.Cfg.TempMilli = o.TempMilli
}

// FinishBurst restores the sampling config saved by ApplyBurst, a no-op
// if no burst is active.
func (s *Session) FinishBurst() {
	if s.burst == nil {
		return
	}
	s.Cfg = s.savedCfg
	s.burst = nil
}

// Reset clears the engine's KV cache, per the REPL's /reset command.
func (s *Session) Reset() {
	if s.Engine != nil {
		s.Engine.Reset()
	}
}

// Generate runs one full turn through the decoder loop, decrementing an
// active burst's turn counter and auto-restoring the prior config once it
// runs out, per spec.md §4.F/§4.H and SUPPLEMENTED FEATURES item 5.
func (s *Session) Generate(prompt string, textOut func(string)) (sampler.Result, error) {
	if !s.loaded {
		return sampler.Result{}, &llmk.Error{Kind: llmk.KindInvalidArgument, Offset: -1,
			Cause: fmt.Errorf("generate called with no model loaded")}
	}

	turn := sampler.Turn{
		Prompt:        prompt,
		MaxGenTokens:  s.Cfg.MaxTokens,
		Temperature:   sampler.TempFromMilli(s.Cfg.TempMilli),
		TopK:          s.Cfg.TopK,
		NoRepeatNgram: s.Cfg.NoRepeatNgram,
		Seed:          s.Cfg.Seed,
	}
	res := sampler.Run(s.Tok, s.Engine, turn, textOut)

	if s.burst != nil {
		s.burst.Turns--
		if s.burst.Turns <= 0 {
			s.FinishBurst()
		}
	}
	return res, nil
}

// Do runs a governance-gated side-effecting action. Decide's verdict is
// only enforced when the engine is in ModeEnforce, per spec.md §4.G: "In
// OBSERVE mode the caller ignores the verdict (logs only); in ENFORCE mode
// REJECT/FREEZE must block the action." ModeOff and ModeObserve therefore
// both log the decision and run fn with the original arg0 regardless of
// verdict; only ModeEnforce blocks Reject/Freeze, and only in ModeEnforce
// does a Transform verdict pass TransformedArg0 to fn in place of the
// caller's original arg0.
func (s *Session) Do(act djibion.Action, arg0 string, arg1 uint32, fn func(arg0 string) error) (djibion.Decision, error) {
	d := djibion.Decide(s.Governance, act, arg0, arg1)
	s.Log.WithFields(logrus.Fields{"action": act.String(), "verdict": d.Verdict.String(), "risk": d.Risk, "mode": s.Governance.Mode}).Debug("governance decision")

	blocking := d.Verdict == djibion.VerdictReject || d.Verdict == djibion.VerdictFreeze
	if blocking && s.Governance.Mode == djibion.ModeEnforce {
		return d, nil
	}

	target := arg0
	if d.Verdict == djibion.VerdictTransform && s.Governance.Mode == djibion.ModeEnforce {
		target = d.TransformedArg0
	}
	return d, fn(target)
}
