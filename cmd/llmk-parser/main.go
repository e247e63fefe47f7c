package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/util/json"
)

var (
	path       string
	summary    bool
	jsonOutput bool
)

var Version = "v0.0.0"

func main() {
	name := filepath.Base(os.Args[0])
	app := &cli.App{
		Name:                   name,
		Usage:                  "Inspect a GGUF file's metadata, tensor plan, and size/parameter estimate.",
		UsageText:              name + " [global options] --path <file>",
		Version:                Version,
		UseShortOptionHandling: true,
		HideVersion:            true,
		Reader:                 os.Stdin,
		Writer:                 os.Stdout,
		ErrWriter:              os.Stderr,
		OnUsageError: func(c *cli.Context, _ error, _ bool) error {
			return cli.ShowAppHelp(c)
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Destination: &path,
				Name:        "path",
				Aliases:     []string{"m", "model"},
				Required:    true,
				Usage:       "Path to the GGUF file to inspect.",
			},
			&cli.BoolFlag{
				Destination: &summary,
				Name:        "summary",
				Usage:       "Only read the cheap KV-only summary, skipping the tensor plan.",
			},
			&cli.BoolFlag{
				Destination: &jsonOutput,
				Name:        "json",
				Usage:       "Print as JSON instead of a table.",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(*cli.Context) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if summary {
		s, err := llmk.ReadSummary(f)
		if err != nil {
			return err
		}
		return printSummary(&s)
	}

	p, err := llmk.BuildPlan(f)
	if err != nil {
		return err
	}
	return printPlan(p)
}

func printSummary(s *llmk.Summary) error {
	if jsonOutput {
		b, err := json.Marshal(s)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Key", "Value"})
	t.AppendRow(table.Row{"Architecture", s.Architecture})
	t.AppendRow(table.Row{"Name", s.Name})
	t.AppendRow(table.Row{"Context Length", s.ContextLength})
	t.AppendRow(table.Row{"Embedding Length", s.EmbeddingLength})
	t.AppendRow(table.Row{"Block Count", s.BlockCount})
	t.AppendRow(table.Row{"Head Count", s.HeadCount})
	t.AppendRow(table.Row{"Head Count (KV)", s.HeadCountKV})
	t.AppendRow(table.Row{"Vocab Size", s.VocabSize})
	t.AppendRow(table.Row{"Tokenizer Model", s.TokenizerModel})
	t.AppendRow(table.Row{"File Type", s.FileType})
	t.Render()
	return nil
}

func printPlan(p *llmk.Plan) error {
	if jsonOutput {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Key", "Value"})
	t.AppendRow(table.Row{"GGUF Version", p.Version})
	t.AppendRow(table.Row{"Tensor Count", p.TensorCount})
	t.AppendRow(table.Row{"KV Count", p.KVCount})
	t.AppendRow(table.Row{"Dim", p.Params.Dim})
	t.AppendRow(table.Row{"Hidden Dim", p.Params.HiddenDim})
	t.AppendRow(table.Row{"Layers", p.Params.NLayers})
	t.AppendRow(table.Row{"Heads", p.Params.NHeads})
	t.AppendRow(table.Row{"KV Heads", p.Params.NKVHeads})
	t.AppendRow(table.Row{"Vocab Size", p.Params.VocabSize})
	t.AppendRow(table.Row{"Seq Len", p.Params.SeqLen})
	t.AppendRow(table.Row{"Shared Classifier", p.SharedClassifier})
	t.AppendRow(table.Row{"Size (F32)", p.ModelSize(false)})
	if p.SupportsQ8_0Blob() {
		t.AppendRow(table.Row{"Size (Q8_0)", p.ModelSize(true)})
	}
	t.AppendRow(table.Row{"Parameters", p.ModelParameters()})
	t.AppendRow(table.Row{"Bits Per Weight (F32)", p.ModelBitsPerWeight(false)})
	t.Render()
	return nil
}
