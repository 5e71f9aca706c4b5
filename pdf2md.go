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

// Package pdf2md converts PDF documents to Markdown by rasterising each page
// and asking a vision-capable language model to transcribe what it sees.
// Tables, multi-column layouts, scanned pages and exotic font encodings all
// come through because the model reads the page the way a human does, not
// through the PDF's coordinate-level text primitives.
package pdf2md

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Converter runs PDF-to-Markdown conversions with a fixed configuration.
// It is safe for concurrent use; each conversion owns its own document
// handle and temp files.
type Converter struct {
	cfg Config
}

// New creates a Converter. See the With* options for the available knobs.
func New(opts ...Option) *Converter {
	return &Converter{cfg: NewConfig(opts...)}
}

// Config returns a copy of the converter's configuration.
func (c *Converter) Config() Config {
	return c.cfg
}

// Convert converts a PDF (local path or HTTP/HTTPS URL) to Markdown.
//
// A non-nil error is always fatal (bad input, wrong password, no provider,
// every page failed). Individual page failures do not error: they are
// recorded in the output's Pages and Stats, and callers that need strict
// success call IntoResult on the output.
func (c *Converter) Convert(ctx context.Context, input string) (*ConversionOutput, error) {
	start := time.Now()
	cfg := &c.cfg
	log.WithField("input", input).Info("starting conversion")

	path, cleanup, err := resolveInput(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prov, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}

	doc, err := openDocument(path, cfg.Password)
	if err != nil {
		return nil, err
	}
	defer doc.close()

	meta := doc.metadata()
	selected, err := cfg.Pages.resolve(meta.PageCount)
	if err != nil {
		return nil, err
	}

	if len(selected) == 0 {
		return &ConversionOutput{
			Metadata: meta,
			Stats: ConversionStats{
				TotalPages:    meta.PageCount,
				SkippedPages:  meta.PageCount,
				TotalDuration: time.Since(start),
			},
		}, nil
	}

	obs := cfg.observer()
	obs.ConversionStarted(len(selected))

	pipelineStart := time.Now()
	pages, renderDur := c.runPipeline(ctx, prov, doc, selected, nil)
	llmDur := time.Since(pipelineStart)

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })

	var processed, failed, inTokens, outTokens int
	firstErr := ""
	for _, p := range pages {
		if p.Err != nil {
			failed++
			if firstErr == "" {
				firstErr = p.Err.Error()
			}
		} else {
			processed++
		}
		inTokens += p.InputTokens
		outTokens += p.OutputTokens
	}

	obs.ConversionCompleted(len(selected), processed)

	if processed == 0 {
		return nil, &AllPagesFailedError{
			Total:      len(pages),
			Retries:    cfg.MaxRetries,
			FirstError: firstErr,
		}
	}

	modelID := prov.modelName
	if prov.providerName != "" {
		modelID = prov.providerName + "/" + prov.modelName
	}

	output := &ConversionOutput{
		Markdown: assembleDocument(pages, cfg, meta, input, modelID),
		Pages:    pages,
		Metadata: meta,
		Stats: ConversionStats{
			TotalPages:        meta.PageCount,
			ProcessedPages:    processed,
			FailedPages:       failed,
			SkippedPages:      meta.PageCount - len(selected),
			TotalInputTokens:  inTokens,
			TotalOutputTokens: outTokens,
			TotalDuration:     time.Since(start),
			RenderDuration:    renderDur,
			LLMDuration:       llmDur,
		},
	}

	log.WithFields(logrus.Fields{
		"processed": processed,
		"failed":    failed,
		"duration":  output.Stats.TotalDuration,
	}).Info("conversion complete")

	return output, nil
}

// ConvertFromBytes converts raw PDF bytes by staging them in a scoped temp
// file and delegating to Convert. Use it when the PDF comes from a database
// or network stream rather than disk.
func (c *Converter) ConvertFromBytes(ctx context.Context, data []byte) (*ConversionOutput, error) {
	tmp, err := os.CreateTemp("", "pdf2md-bytes-*.pdf")
	if err != nil {
		return nil, &InvalidInputError{Input: "<bytes>"}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &InvalidInputError{Input: "<bytes>"}
	}
	if err := tmp.Close(); err != nil {
		return nil, &InvalidInputError{Input: "<bytes>"}
	}

	return c.Convert(ctx, tmp.Name())
}

// ConvertToFile converts a PDF and writes the assembled markdown to path.
// The write is atomic: content goes to a sibling temp file which is then
// renamed over the target, so readers never observe a partial document.
func (c *Converter) ConvertToFile(ctx context.Context, input, path string) (*ConversionStats, error) {
	output, err := c.Convert(ctx, input)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &OutputWriteError{Path: path, Err: err}
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(output.Markdown), 0o644); err != nil {
		return nil, &OutputWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, &OutputWriteError{Path: path, Err: err}
	}

	return &output.Stats, nil
}

// Inspect resolves and opens the input and returns its document metadata.
// No page is rendered and no VLM call is made, so it needs no provider.
func (c *Converter) Inspect(ctx context.Context, input string) (*DocumentMetadata, error) {
	path, cleanup, err := resolveInput(ctx, input, &c.cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc, err := openDocument(path, c.cfg.Password)
	if err != nil {
		return nil, err
	}
	defer doc.close()

	meta := doc.metadata()
	return &meta, nil
}

// runPipeline renders, encodes and dispatches the selected pages. A single
// render worker owns the pdfium handle and feeds encoded pages through a
// channel bounded at the concurrency limit, so peak in-flight memory is
// roughly concurrency x encoded page size regardless of document length.
// The optional emit is invoked (from dispatcher goroutines) with each
// cleaned PageResult as it completes.
func (c *Converter) runPipeline(ctx context.Context, prov resolvedProvider, doc *document, selected []int, emit func(*PageResult)) ([]PageResult, time.Duration) {
	cfg := &c.cfg
	jobs := make(chan pageJob, cfg.effectiveConcurrency())

	go func() {
		defer close(jobs)
		for _, pageNum := range selected {
			if ctx.Err() != nil {
				return
			}
			renderStart := time.Now()
			job := pageJob{pageNum: pageNum}
			img, err := doc.render(pageNum-1, cfg.DPI, cfg.MaxRenderedPixels)
			if err != nil {
				job.renderErr = err
			} else {
				enc, encErr := encodeImage(img, cfg.Format)
				if encErr != nil {
					job.renderErr = encErr
				} else {
					job.image = enc
				}
			}
			job.renderDur = time.Since(renderStart)
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.MaintainFormat {
		return c.dispatchSequential(ctx, prov, jobs, len(selected), emit)
	}
	return c.dispatchConcurrent(ctx, prov, jobs, len(selected), emit)
}

// dispatchConcurrent fans pages out to the VLM, at most Concurrency in
// flight. Results arrive in completion order; the caller sorts.
func (c *Converter) dispatchConcurrent(ctx context.Context, prov resolvedProvider, jobs <-chan pageJob, total int, emit func(*PageResult)) ([]PageResult, time.Duration) {
	cfg := &c.cfg
	obs := cfg.observer()
	results := make(chan *PageResult, total)
	var renderNanos atomic.Int64

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for job := range jobs {
		job := job
		renderNanos.Add(int64(job.renderDur))
		g.Go(func() error {
			obs.PageStarted(job.pageNum, total)
			pr := processPage(ctx, prov, cfg, job, nil)
			finishPage(pr, obs, total, emit)
			results <- pr
			return nil
		})
	}
	g.Wait()
	close(results)

	pages := make([]PageResult, 0, total)
	for pr := range results {
		pages = append(pages, *pr)
	}
	return pages, time.Duration(renderNanos.Load())
}

// dispatchSequential processes pages strictly in ascending order, feeding
// each call the previous page's image and cleaned markdown so the model
// keeps numbering and heading style consistent across page boundaries.
func (c *Converter) dispatchSequential(ctx context.Context, prov resolvedProvider, jobs <-chan pageJob, total int, emit func(*PageResult)) ([]PageResult, time.Duration) {
	cfg := &c.cfg
	obs := cfg.observer()
	var pages []PageResult
	var renderDur time.Duration
	var prior *priorPage

	for job := range jobs {
		renderDur += job.renderDur
		obs.PageStarted(job.pageNum, total)
		pr := processPage(ctx, prov, cfg, job, prior)
		finishPage(pr, obs, total, emit)
		if pr.Err == nil {
			prior = &priorPage{image: job.image, markdown: pr.Markdown}
		}
		pages = append(pages, *pr)
	}
	return pages, renderDur
}

// finishPage cleans a successful result, fires the observer, and forwards
// the result to the streaming emitter if one is attached.
func finishPage(pr *PageResult, obs ProgressObserver, total int, emit func(*PageResult)) {
	if pr.Err == nil {
		pr.Markdown = cleanMarkdown(pr.Markdown)
		obs.PageCompleted(pr.PageNum, total, len(pr.Markdown))
	} else {
		obs.PageFailed(pr.PageNum, total, pr.Err.Error())
	}
	if emit != nil {
		emit(pr)
	}
}
