package pdf2md

import (
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ImageFormat selects the encoding used for rendered page images.
type ImageFormat string

const (
	// ImagePNG is lossless and the default. Text crispness matters more
	// than payload size for transcription accuracy.
	ImagePNG ImageFormat = "png"
	// ImageJPEG produces smaller payloads at the cost of compression
	// artefacts around glyph edges.
	ImageJPEG ImageFormat = "jpeg"
)

// Config holds every knob for one conversion. Build it with NewConfig; all
// out-of-range values are clamped there, so a Config obtained from NewConfig
// is always valid. The zero value is not usable.
type Config struct {
	DPI               int
	MaxRenderedPixels int
	Concurrency       int

	Model        string
	ProviderName string
	// Provider is a pre-built model handle. When set it takes priority
	// over ProviderName/Model.
	Provider llms.Model

	Temperature  float64
	MaxTokens    int
	MaxRetries   int
	RetryBackoff time.Duration

	MaintainFormat bool
	Fidelity       FidelityTier
	Pages          PageSelection
	Separator      PageSeparator

	IncludeMetadata bool
	Password        string
	SystemPrompt    string
	Format          ImageFormat

	DownloadTimeout time.Duration
	APITimeout      time.Duration

	Progress ProgressObserver
}

// Option configures a Config.
type Option func(*Config)

// NewConfig returns a Config with defaults applied, then the given options,
// then range clamping. Clamping rather than erroring keeps the constructor
// infallible; callers that want strict validation can compare fields after.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		DPI:               150,
		MaxRenderedPixels: 2000,
		Concurrency:       10,
		Temperature:       0.1,
		MaxTokens:         4096,
		MaxRetries:        3,
		RetryBackoff:      500 * time.Millisecond,
		Fidelity:          Tier2,
		Pages:             AllPages(),
		Separator:         NoSeparator(),
		Format:            ImagePNG,
		DownloadTimeout:   120 * time.Second,
		APITimeout:        60 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.clamp()
	return cfg
}

func (c *Config) clamp() {
	if c.DPI < 72 {
		c.DPI = 72
	}
	if c.DPI > 400 {
		c.DPI = 400
	}
	if c.MaxRenderedPixels < 100 {
		c.MaxRenderedPixels = 100
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	if c.MaxTokens < 1 {
		c.MaxTokens = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 120 * time.Second
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 60 * time.Second
	}
	if c.Format != ImageJPEG {
		c.Format = ImagePNG
	}
}

// effectiveConcurrency accounts for maintain-format mode, which forces
// strictly sequential dispatch.
func (c *Config) effectiveConcurrency() int {
	if c.MaintainFormat {
		return 1
	}
	return c.Concurrency
}

// WithDPI sets the target rendering resolution (72-400).
func WithDPI(dpi int) Option {
	return func(c *Config) { c.DPI = dpi }
}

// WithMaxRenderedPixels caps the longer side of each rendered image.
func WithMaxRenderedPixels(px int) Option {
	return func(c *Config) { c.MaxRenderedPixels = px }
}

// WithConcurrency sets the maximum number of in-flight VLM calls.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithModel selects the model identifier, e.g. "gpt-4o".
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithProviderName selects a provider by name ("openai", "anthropic",
// "ollama", "mistral").
func WithProviderName(name string) Option {
	return func(c *Config) { c.ProviderName = name }
}

// WithProvider supplies a pre-built model handle, taking priority over
// WithProviderName/WithModel. Useful for tests and custom middleware.
func WithProvider(m llms.Model) Option {
	return func(c *Config) { c.Provider = m }
}

// WithTemperature sets the sampling temperature (0.0-2.0).
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithMaxTokens sets the per-page completion token budget.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithMaxRetries sets how many additional attempts follow a failed VLM call.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithRetryBackoff sets the base delay for exponential backoff.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) { c.RetryBackoff = d }
}

// WithMaintainFormat enables sequential dispatch that feeds each page the
// previous page's markdown for stylistic continuity.
func WithMaintainFormat(v bool) Option {
	return func(c *Config) { c.MaintainFormat = v }
}

// WithFidelity selects the prompt complexity tier.
func WithFidelity(tier FidelityTier) Option {
	return func(c *Config) { c.Fidelity = tier }
}

// WithPages selects which pages to convert.
func WithPages(sel PageSelection) Option {
	return func(c *Config) { c.Pages = sel }
}

// WithSeparator sets the string inserted between page markdowns.
func WithSeparator(sep PageSeparator) Option {
	return func(c *Config) { c.Separator = sep }
}

// WithMetadata prepends a front-matter block to the assembled markdown.
func WithMetadata(v bool) Option {
	return func(c *Config) { c.IncludeMetadata = v }
}

// WithPassword supplies the user password for encrypted documents.
func WithPassword(pwd string) Option {
	return func(c *Config) { c.Password = pwd }
}

// WithSystemPrompt overrides the built-in fidelity-tier prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithImageFormat selects PNG (default) or JPEG page encoding.
func WithImageFormat(f ImageFormat) Option {
	return func(c *Config) { c.Format = f }
}

// WithDownloadTimeout bounds the total wall-clock time of a URL download.
func WithDownloadTimeout(d time.Duration) Option {
	return func(c *Config) { c.DownloadTimeout = d }
}

// WithAPITimeout bounds each individual VLM call attempt.
func WithAPITimeout(d time.Duration) Option {
	return func(c *Config) { c.APITimeout = d }
}

// WithProgress registers an observer for per-page conversion events.
func WithProgress(p ProgressObserver) Option {
	return func(c *Config) { c.Progress = p }
}
