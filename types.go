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

package pdf2md

import "time"

// FidelityTier selects how structurally ambitious the system prompt asks the
// model to be. Higher tiers cost more prompt tokens and may confuse models
// that are weak at LaTeX or HTML tables, so callers pick the lowest tier
// that satisfies their downstream needs.
type FidelityTier int

const (
	// Tier1 extracts text, headings and lists only.
	Tier1 FidelityTier = iota + 1
	// Tier2 adds GFM pipe tables and inline emphasis. The default.
	Tier2
	// Tier3 adds LaTeX math, HTML table fallback and figure captions.
	Tier3
)

func (t FidelityTier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier3:
		return "tier3"
	default:
		return "tier2"
	}
}

// DocumentMetadata describes a PDF at the document level. Produced by the
// rasteriser from the info dictionary without rendering any page.
type DocumentMetadata struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate string
	ModDate      string
	PageCount    int
	PDFVersion   string // e.g. "1.7"
	Encrypted    bool
	Linearized   bool
}

// PageResult is the outcome of converting one page. When Err is set,
// Markdown is empty and the token/retry fields describe the failed attempts.
type PageResult struct {
	PageNum      int // 1-indexed
	Markdown     string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Retries      int
	Err          *PageError
}

// ConversionStats aggregates per-page outcomes and timings.
//
// ProcessedPages + FailedPages + SkippedPages always equals TotalPages,
// where SkippedPages counts pages the selection excluded.
type ConversionStats struct {
	TotalPages        int
	ProcessedPages    int
	FailedPages       int
	SkippedPages      int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalDuration     time.Duration
	RenderDuration    time.Duration
	LLMDuration       time.Duration
}

// ConversionOutput is the result of a whole-document conversion. Pages are
// sorted by PageNum ascending and include failed pages (with Err set).
type ConversionOutput struct {
	Markdown string
	Pages    []PageResult
	Metadata DocumentMetadata
	Stats    ConversionStats
}

// IntoResult promotes partial failure to an error. It returns nil when every
// selected page converted, and a *PartialFailureError otherwise. Use it when
// a best-effort document is not acceptable.
func (o *ConversionOutput) IntoResult() error {
	if o.Stats.FailedPages > 0 {
		return &PartialFailureError{
			Succeeded: o.Stats.ProcessedPages,
			Failed:    o.Stats.FailedPages,
			Total:     o.Stats.ProcessedPages + o.Stats.FailedPages,
		}
	}
	return nil
}

// StreamEvent is emitted by ConvertStream as each page completes. Exactly
// one of Page or Err is set; PageNum is always set.
type StreamEvent struct {
	PageNum int
	Page    *PageResult
	Err     *PageError
}
