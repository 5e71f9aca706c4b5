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
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// resolvedProvider pairs the model handle with the names the rest of the
// pipeline needs for message formatting and error reporting.
type resolvedProvider struct {
	model        llms.Model
	providerName string
	modelName    string
}

// usesImageURLs reports whether the provider family expects images as
// data-URI image_url parts rather than raw binary parts. Unknown providers
// (including pre-built handles) get data URIs, the OpenAI-compatible common
// denominator.
func (p resolvedProvider) usesImageURLs() bool {
	switch p.providerName {
	case "anthropic", "ollama":
		return false
	default:
		return true
	}
}

// defaultVisionModel returns the best default vision-capable model for a
// named provider. Only consulted when the caller supplied no model: most
// provider SDK defaults are text-only models that would error on every page.
func defaultVisionModel(providerName string) string {
	switch providerName {
	case "anthropic":
		return "claude-3-5-sonnet-latest"
	case "mistral", "mistral-ai", "mistralai":
		// The Mistral SDK default is not vision-capable.
		return "pixtral-12b-2409"
	case "ollama", "lmstudio", "lm-studio":
		return "llava"
	default:
		return "gpt-4o-mini"
	}
}

// resolveProvider picks the VLM for a conversion, from most-specific to
// least-specific:
//
//  1. a pre-built handle (Config.Provider), used as-is;
//  2. a named provider (Config.ProviderName) plus optional model;
//  3. PDF2MD_PROVIDER + PDF2MD_MODEL from the environment;
//  4. auto-detection from known API key variables.
func resolveProvider(cfg *Config) (resolvedProvider, error) {
	if cfg.Provider != nil {
		return resolvedProvider{
			model:        cfg.Provider,
			providerName: cfg.ProviderName,
			modelName:    cfg.Model,
		}, nil
	}

	if cfg.ProviderName != "" {
		return buildProvider(cfg.ProviderName, cfg.Model)
	}

	if prov, model := os.Getenv("PDF2MD_PROVIDER"), os.Getenv("PDF2MD_MODEL"); prov != "" && model != "" {
		return buildProvider(prov, model)
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		return buildProvider("openai", cfg.Model)
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return buildProvider("anthropic", cfg.Model)
	}
	if os.Getenv("MISTRAL_API_KEY") != "" {
		return buildProvider("mistral", cfg.Model)
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return buildProvider("ollama", cfg.Model)
	}

	return resolvedProvider{}, &ProviderNotConfiguredError{
		Provider: "auto",
		Hint: "No LLM provider could be auto-detected from the environment.\n" +
			"Set OPENAI_API_KEY, ANTHROPIC_API_KEY, MISTRAL_API_KEY or OLLAMA_HOST, or configure a provider explicitly.",
	}
}

// buildProvider instantiates a named langchaingo model client.
func buildProvider(providerName, modelName string) (resolvedProvider, error) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if modelName == "" {
		modelName = defaultVisionModel(name)
	}

	logger := log.WithFields(logrus.Fields{"provider": name, "model": modelName})

	var model llms.Model
	var err error

	switch name {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return resolvedProvider{}, &ProviderNotConfiguredError{Provider: name, Hint: "Set OPENAI_API_KEY."}
		}
		opts := []openai.Option{openai.WithModel(modelName)}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		model, err = openai.New(opts...)

	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return resolvedProvider{}, &ProviderNotConfiguredError{Provider: name, Hint: "Set ANTHROPIC_API_KEY."}
		}
		model, err = anthropic.New(anthropic.WithModel(modelName))

	case "mistral", "mistral-ai", "mistralai":
		if os.Getenv("MISTRAL_API_KEY") == "" {
			return resolvedProvider{}, &ProviderNotConfiguredError{Provider: name, Hint: "Set MISTRAL_API_KEY."}
		}
		name = "mistral"
		model, err = mistral.New(mistral.WithModel(modelName))

	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		model, err = ollama.New(ollama.WithModel(modelName), ollama.WithServerURL(host))

	default:
		return resolvedProvider{}, &ProviderNotConfiguredError{
			Provider: providerName,
			Hint:     "Supported providers: openai, anthropic, mistral, ollama.",
		}
	}

	if err != nil {
		return resolvedProvider{}, &ProviderNotConfiguredError{
			Provider: name,
			Hint:     fmt.Sprintf("client construction failed: %v", err),
		}
	}

	logger.Debug("VLM provider initialised")
	return resolvedProvider{model: model, providerName: name, modelName: modelName}, nil
}
