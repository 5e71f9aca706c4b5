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

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
)

// userTurnPrompt is the text part accompanying each page image. The system
// prompt carries the full instructions; this just anchors the user turn.
const userTurnPrompt = "Convert this page to Markdown."

// downgradeFactor is the resolution reduction applied once when a provider
// reports the request exceeded its context window.
const downgradeFactor = 0.75

// pageJob is one page travelling from the render worker to the dispatcher.
// renderErr short-circuits dispatch into a RenderFailed page result.
type pageJob struct {
	pageNum   int
	image     encodedImage
	renderDur time.Duration
	renderErr error
}

// priorPage carries the previous page's image and cleaned markdown in
// maintain-format mode.
type priorPage struct {
	image    encodedImage
	markdown string
}

// imagePart attaches an encoded page in the format the provider family
// expects: data-URI image_url parts for OpenAI-compatible APIs, raw binary
// parts otherwise. The "high" detail hint makes tiled-vision models read
// the full image rather than a single overview tile.
func imagePart(prov resolvedProvider, img encodedImage) llms.ContentPart {
	if prov.usesImageURLs() {
		return llms.ImageURLWithDetailPart(img.dataURI(), "high")
	}
	raw, err := img.raw()
	if err != nil {
		return llms.ImageURLWithDetailPart(img.dataURI(), "high")
	}
	return llms.BinaryPart(img.mediaType, raw)
}

// buildMessages assembles the chat transcript for one page.
//
// Layout: the system prompt; in maintain-format mode a human turn carrying
// the previous page image followed by an AI turn carrying the previous
// page's cleaned markdown (so the model sees a worked example of its own
// expected style); then the human turn for the current page.
func buildMessages(cfg *Config, prov resolvedProvider, img encodedImage, prior *priorPage) []llms.MessageContent {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(cfg.systemPrompt())},
		},
	}

	if prior != nil && prior.markdown != "" {
		messages = append(messages,
			llms.MessageContent{
				Role: llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{
					llms.TextPart(userTurnPrompt),
					imagePart(prov, prior.image),
				},
			},
			llms.MessageContent{
				Role:  llms.ChatMessageTypeAI,
				Parts: []llms.ContentPart{llms.TextPart(prior.markdown)},
			},
		)
	}

	messages = append(messages, llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(userTurnPrompt),
			imagePart(prov, img),
		},
	})

	return messages
}

// processPage converts one rendered page through the VLM, retrying
// transient failures with exponential backoff. It always returns a
// PageResult; failures are embedded, never propagated, so one bad page
// cannot abort the document.
func processPage(ctx context.Context, prov resolvedProvider, cfg *Config, job pageJob, prior *priorPage) *PageResult {
	start := time.Now()
	logger := log.WithFields(logrus.Fields{"page": job.pageNum, "provider": prov.providerName})

	if job.renderErr != nil {
		return &PageResult{
			PageNum: job.pageNum,
			Err: &PageError{
				Kind:   RenderFailed,
				Page:   job.pageNum,
				Detail: job.renderErr.Error(),
			},
		}
	}

	opts := []llms.CallOption{
		llms.WithTemperature(cfg.Temperature),
		llms.WithMaxTokens(cfg.MaxTokens),
	}

	img := job.image
	messages := buildMessages(cfg, prov, img, prior)

	retries := 0
	downgraded := false
	var lastErr error
	var lastClass classified

	for {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.APITimeout)
		resp, err := prov.model.GenerateContent(callCtx, messages, opts...)
		cancel()

		if err == nil && resp != nil && len(resp.Choices) > 0 {
			choice := resp.Choices[0]
			duration := time.Since(start)
			in, out := usageFromGenerationInfo(choice.GenerationInfo)
			logger.WithFields(logrus.Fields{
				"input_tokens":  in,
				"output_tokens": out,
				"retries":       retries,
				"duration":      duration,
			}).Debug("page converted")
			return &PageResult{
				PageNum:      job.pageNum,
				Markdown:     choice.Content,
				InputTokens:  in,
				OutputTokens: out,
				Duration:     duration,
				Retries:      retries,
			}
		}
		if err == nil {
			err = &ProviderNotConfiguredError{Provider: prov.providerName, Hint: "provider returned no choices"}
		}

		lastErr = err
		lastClass = classifyCallError(err)
		logger.WithError(err).WithField("attempt", retries+1).Warn("VLM call failed")

		switch lastClass.class {
		case errContextWindow:
			if !downgraded {
				// One resolution downgrade, then one more attempt.
				smaller, derr := img.downscale(downgradeFactor)
				if derr == nil {
					downgraded = true
					img = smaller
					messages = buildMessages(cfg, prov, img, prior)
					logger.Debug("context window exceeded; retrying at reduced resolution")
					continue
				}
			}
		case errAuth, errPermanent:
			// Not retryable.
		case errTimeout, errRetryable:
			if retries < cfg.MaxRetries {
				retries++
				delay := backoffDelay(retries, cfg.RetryBackoff)
				if lastClass.retryAfter > 0 {
					delay = lastClass.retryAfter
				}
				logger.WithFields(logrus.Fields{"retry": retries, "delay": delay}).Info("retrying page")
				if sleepContext(ctx, delay) != nil {
					break
				}
				continue
			}
		}
		break
	}

	elapsed := time.Since(start)
	pageErr := &PageError{
		Kind:     LLMFailed,
		Page:     job.pageNum,
		Retries:  retries,
		Detail:   errDetail(lastErr),
		Elapsed:  elapsed,
		Provider: prov.providerName,
	}
	switch {
	case lastClass.class == errTimeout:
		pageErr.Kind = Timeout
	case isRateLimit(lastErr):
		pageErr.Kind = RateLimited
		pageErr.RetryAfter = lastClass.retryAfter
	}

	return &PageResult{
		PageNum:  job.pageNum,
		Duration: elapsed,
		Retries:  retries,
		Err:      pageErr,
	}
}

func errDetail(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// usageFromGenerationInfo extracts token counts where the provider reports
// them. Absent counts stay zero rather than guessing.
func usageFromGenerationInfo(info map[string]any) (input, output int) {
	if info == nil {
		return 0, 0
	}
	if v, ok := info["PromptTokens"].(int); ok {
		input = v
	}
	if v, ok := info["CompletionTokens"].(int); ok {
		output = v
	}
	return input, output
}
