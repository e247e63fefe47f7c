package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	llmk "github.com/llmk/gguf-engine"
	"github.com/llmk/gguf-engine/util/httpx"
	"github.com/llmk/gguf-engine/util/signalx"
)

var (
	url      string
	token    string
	outPath  string
	cacheDir string
	expiry   time.Duration
	debug    bool
)

func main() {
	app := &cli.App{
		Name:  "llmk-fetch",
		Usage: "Fetch a GGUF file from a URL and write it to disk, caching by URL so repeat runs skip the download.",
		Flags: []cli.Flag{
			&cli.StringFlag{Destination: &url, Name: "url", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Destination: &token, Name: "token", Usage: "Bearer token for authenticated hosts."},
			&cli.StringFlag{Destination: &outPath, Name: "out", Aliases: []string{"o"}, Required: true},
			&cli.StringFlag{Destination: &cacheDir, Name: "cache-dir", Usage: "Content-addressed cache directory; empty disables caching."},
			&cli.DurationFlag{Destination: &expiry, Name: "cache-ttl", Value: 24 * time.Hour},
			&cli.BoolFlag{Destination: &debug, Name: "debug", Usage: "Log request/response via httpretty."},
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
	cache := llmk.FetchCache(cacheDir)

	if p, err := cache.Path(url, expiry); err == nil {
		return copyFile(p, outPath)
	}

	body, err := fetch(ctx, url, token, debug)
	if err != nil {
		return err
	}

	if cacheDir != "" {
		if _, err := cache.Put(url, body); err != nil {
			fmt.Fprintln(os.Stderr, "warning: fetch cache put:", err)
		}
	}
	return os.WriteFile(outPath, body, 0o644)
}

func fetch(ctx context.Context, url, token string, debug bool) ([]byte, error) {
	opt := httpx.ClientOptions()
	if debug {
		opt = opt.WithDebug()
	}
	if token != "" {
		opt = opt.WithBearerAuth(token)
	}
	httpCli := httpx.Client(opt)

	req, err := httpx.NewGetRequestWithContext(ctx, url)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = httpx.Do(httpCli, req, func(resp *http.Response) error {
		body = httpx.BodyBytes(resp)
		return nil
	})
	return body, err
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}
