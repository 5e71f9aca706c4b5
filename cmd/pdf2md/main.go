// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	pdf2md "github.com/nicholasgasior/pdf2md-go"
)

var version = "dev"

func main() {
	var (
		output          string
		provider        string
		model           string
		pages           string
		separator       string
		password        string
		fidelity        int
		dpi             int
		concurrency     int
		maxRetries      int
		maintainFormat  bool
		includeMeta     bool
		jpegImages      bool
		inspectOnly     bool
		downloadTimeout int
		apiTimeout      int
		verbose         bool
		showVersion     bool
	)

	flag.StringVar(&output, "o", "", "Output file (default: stdout)")
	flag.StringVar(&output, "output", "", "Output file (default: stdout)")
	flag.StringVar(&provider, "provider", "", "LLM provider (openai, anthropic, mistral, ollama; default: auto-detect)")
	flag.StringVar(&model, "model", "", "Model identifier (default: provider's vision model)")
	flag.StringVar(&pages, "pages", "all", `Pages to convert: "all", "5", "3-15", "1,3,5"`)
	flag.StringVar(&separator, "separator", "none", "Page separator: none, rule, comment")
	flag.StringVar(&password, "password", "", "Password for encrypted PDFs")
	flag.IntVar(&fidelity, "fidelity", 2, "Fidelity tier 1-3 (3 adds LaTeX math)")
	flag.IntVar(&dpi, "dpi", 150, "Rendering resolution (72-400)")
	flag.IntVar(&concurrency, "concurrency", 10, "Concurrent VLM calls")
	flag.IntVar(&maxRetries, "max-retries", 3, "Retries per page after the first attempt")
	flag.BoolVar(&maintainFormat, "maintain-format", false, "Sequential mode with cross-page format continuity")
	flag.BoolVar(&includeMeta, "metadata", false, "Prepend document metadata front-matter")
	flag.BoolVar(&jpegImages, "jpeg", false, "Encode pages as JPEG instead of PNG")
	flag.BoolVar(&inspectOnly, "inspect", false, "Print document metadata and exit (no VLM calls)")
	flag.IntVar(&downloadTimeout, "download-timeout", 120, "URL download timeout in seconds")
	flag.IntVar(&apiTimeout, "api-timeout", 60, "Per-VLM-call timeout in seconds")
	flag.BoolVar(&verbose, "verbose", false, "Debug logging")
	flag.BoolVar(&showVersion, "v", false, "Show version")
	flag.BoolVar(&showVersion, "version", false, "Show version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pdf2md [flags] <source>\n\n")
		fmt.Fprintf(os.Stderr, "Convert a PDF (file path or URL) to Markdown using a vision LLM.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("pdf2md %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	source := flag.Arg(0)

	// API keys commonly live in a local .env during development.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	pdf2md.SetLogger(logger)

	sel, err := pdf2md.ParsePageSelection(pages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	sep := pdf2md.NoSeparator()
	switch separator {
	case "none", "":
	case "rule":
		sep = pdf2md.HorizontalRule()
	case "comment":
		sep = pdf2md.CommentSeparator()
	default:
		sep = pdf2md.CustomSeparator(separator)
	}

	tier := pdf2md.Tier2
	switch fidelity {
	case 1:
		tier = pdf2md.Tier1
	case 3:
		tier = pdf2md.Tier3
	}

	format := pdf2md.ImagePNG
	if jpegImages {
		format = pdf2md.ImageJPEG
	}

	opts := []pdf2md.Option{
		pdf2md.WithDPI(dpi),
		pdf2md.WithConcurrency(concurrency),
		pdf2md.WithMaxRetries(maxRetries),
		pdf2md.WithPages(sel),
		pdf2md.WithSeparator(sep),
		pdf2md.WithFidelity(tier),
		pdf2md.WithMaintainFormat(maintainFormat),
		pdf2md.WithMetadata(includeMeta),
		pdf2md.WithImageFormat(format),
		pdf2md.WithDownloadTimeout(time.Duration(downloadTimeout) * time.Second),
		pdf2md.WithAPITimeout(time.Duration(apiTimeout) * time.Second),
	}
	if provider != "" {
		opts = append(opts, pdf2md.WithProviderName(provider))
	}
	if model != "" {
		opts = append(opts, pdf2md.WithModel(model))
	}
	if password != "" {
		opts = append(opts, pdf2md.WithPassword(password))
	}
	if !verbose && output != "" {
		opts = append(opts, pdf2md.WithProgress(newBarObserver()))
	}

	converter := pdf2md.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if inspectOnly {
		meta, err := converter.Inspect(ctx, source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printMetadata(meta)
		return
	}

	if output != "" {
		stats, err := converter.ConvertToFile(ctx, source, output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s: %d/%d pages in %s (%d input / %d output tokens)\n",
			output, stats.ProcessedPages, stats.ProcessedPages+stats.FailedPages,
			stats.TotalDuration.Round(time.Millisecond),
			stats.TotalInputTokens, stats.TotalOutputTokens)
		if stats.FailedPages > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d pages failed\n", stats.FailedPages)
			os.Exit(3)
		}
		return
	}

	result, err := converter.Convert(ctx, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(result.Markdown)
	if result.Stats.FailedPages > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d pages failed\n", result.Stats.FailedPages)
		os.Exit(3)
	}
}

func printMetadata(meta *pdf2md.DocumentMetadata) {
	row := func(key, value string) {
		if value != "" {
			fmt.Printf("%-12s %s\n", key+":", value)
		}
	}
	row("Title", meta.Title)
	row("Author", meta.Author)
	row("Subject", meta.Subject)
	row("Creator", meta.Creator)
	row("Producer", meta.Producer)
	row("Created", meta.CreationDate)
	row("Modified", meta.ModDate)
	fmt.Printf("%-12s %d\n", "Pages:", meta.PageCount)
	row("Version", meta.PDFVersion)
	fmt.Printf("%-12s %t\n", "Encrypted:", meta.Encrypted)
	fmt.Printf("%-12s %t\n", "Linearized:", meta.Linearized)
}

// barObserver renders conversion progress as a terminal bar.
type barObserver struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newBarObserver() *barObserver {
	return &barObserver{}
}

func (b *barObserver) ConversionStarted(selected int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar = progressbar.NewOptions(selected,
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (b *barObserver) PageStarted(int, int) {}

func (b *barObserver) PageCompleted(int, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Add(1)
	}
}

func (b *barObserver) PageFailed(pageNum, _ int, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Add(1)
	}
	fmt.Fprintf(os.Stderr, "page %d failed: %s\n", pageNum, errMsg)
}

func (b *barObserver) ConversionCompleted(int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		b.bar.Finish()
	}
}
