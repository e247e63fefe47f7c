package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/internal/djibion"
	"github.com/llmk/gguf-engine/internal/firmware"
	"github.com/llmk/gguf-engine/internal/kernel"
	"github.com/llmk/gguf-engine/internal/sampler"
	"github.com/llmk/gguf-engine/internal/session"
	"github.com/llmk/gguf-engine/util/signalx"
)

var (
	modelPath  string
	vocabPath  string
	cfgPath    string
	legacyDim  int
	legacyHid  int
	legacyLay  int
	legacyHead int
	legacyKV   int
	legacyVoc  int
	legacySeq  int
)

func main() {
	app := &cli.App{
		Name:  "llmk-repl",
		Usage: "Interactive REPL front-end for the session driver.",
		Flags: []cli.Flag{
			&cli.StringFlag{Destination: &modelPath, Name: "model", Aliases: []string{"m"}, Required: true,
				Usage: "GGUF file, or a headerless legacy .bin (requires the legacy-* dimension flags)."},
			&cli.StringFlag{Destination: &vocabPath, Name: "vocab", Required: true,
				Usage: "Newline-delimited vocabulary file, line N is token id N's piece."},
			&cli.StringFlag{Destination: &cfgPath, Name: "config", Value: "repl.cfg",
				Usage: "Path to repl.cfg; missing file is not an error."},
			&cli.IntFlag{Destination: &legacyDim, Name: "legacy-dim"},
			&cli.IntFlag{Destination: &legacyHid, Name: "legacy-hidden-dim"},
			&cli.IntFlag{Destination: &legacyLay, Name: "legacy-n-layers"},
			&cli.IntFlag{Destination: &legacyHead, Name: "legacy-n-heads"},
			&cli.IntFlag{Destination: &legacyKV, Name: "legacy-n-kv-heads"},
			&cli.IntFlag{Destination: &legacyVoc, Name: "legacy-vocab-size"},
			&cli.IntFlag{Destination: &legacySeq, Name: "legacy-seq-len"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cli.Context) error {
	ctx := signalx.Handler()

	log := logrus.New()

	vf, err := os.Open(vocabPath)
	if err != nil {
		return err
	}
	tok, err := sampler.ParseVocabFile(vf)
	_ = vf.Close()
	if err != nil {
		return err
	}

	s := session.New(&firmware.OSCapability{Serial: os.Stderr}, tok, log)

	if cfgFile, err := os.Open(cfgPath); err == nil {
		cfg, err := llmk.ParseReplConfig(cfgFile)
		_ = cfgFile.Close()
		if err != nil {
			return err
		}
		s.ApplyReplConfig(cfg)
	}

	if legacyDim > 0 {
		dims := llmk.HyperParams{
			Dim: uint64(legacyDim), HiddenDim: uint64(legacyHid), NLayers: uint64(legacyLay),
			NHeads: uint64(legacyHead), NKVHeads: uint64(legacyKV), VocabSize: uint64(legacyVoc),
			SeqLen: uint64(legacySeq),
		}
		s.LegacyDims = &dims
		s.LegacySharedClassifier = true
	}

	if err := s.LoadModel(modelPath); err != nil {
		return err
	}
	fmt.Printf("loaded: dim=%d layers=%d vocab=%d\n", s.Plan.Params.Dim, s.Plan.Params.NLayers, s.Plan.Params.VocabSize)

	return repl(ctx, s)
}

func repl(ctx context.Context, s *session.Session) error {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if strings.HasPrefix(line, "/") {
			if !dispatchCommand(s, line) {
				return nil
			}
			fmt.Print("> ")
			continue
		}

		res, err := s.Generate(line, func(chunk string) { fmt.Print(chunk) })
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Printf("\n[%s, %d tokens]\n", res.Stopped, len(res.Tokens))
		}
		fmt.Print("> ")
	}
	return sc.Err()
}

// dispatchCommand runs one REPL slash-command, returning false on /quit.
func dispatchCommand(s *session.Session, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return false
	case "/reset":
		s.Reset()
	case "/info":
		fmt.Printf("loaded=%v dim=%d layers=%d vocab=%d\n", s.Loaded(), s.Plan.Params.Dim, s.Plan.Params.NLayers, s.Plan.Params.VocabSize)
	case "/temp":
		if n, err := strconv.Atoi(arg0(args)); err == nil {
			s.SetTemp(n)
		}
	case "/topk":
		if n, err := strconv.Atoi(arg0(args)); err == nil {
			s.SetTopK(n)
		}
	case "/max_tokens":
		if n, err := strconv.Atoi(arg0(args)); err == nil {
			s.SetMaxTokens(n)
		}
	case "/attn":
		switch arg0(args) {
		case "sse2":
			s.SetAttn(kernel.SelectorForceNarrow)
		case "avx2":
			s.SetAttn(kernel.SelectorForceWide)
		default:
			s.SetAttn(kernel.SelectorAuto)
		}
	case "/djibion":
		switch arg0(args) {
		case "observe":
			s.SetDjibionMode(djibion.ModeObserve)
		case "enforce":
			s.SetDjibionMode(djibion.ModeEnforce)
		default:
			s.SetDjibionMode(djibion.ModeOff)
		}
	case "/diopion_burst":
		b := s.DefaultBurst
		if len(args) >= 1 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				b.Turns = n
			}
		}
		s.ApplyBurst(b)
	default:
		fmt.Fprintf(os.Stderr, "unrecognized command %q\n", cmd)
	}
	return true
}

func arg0(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
