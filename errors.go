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
	"errors"
	"fmt"
	"time"
)

// Fatal errors abort the conversion before any output is produced. Each
// carries the failing context and, where actionable, a one-line hint.
// Page-level failures use PageError instead and are stored inside the
// PageResult so the rest of the document still converts.

// FileNotFoundError indicates the input path does not exist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("PDF file not found: %q\nCheck the path exists and is readable.", e.Path)
}

// PermissionDeniedError indicates the process cannot read the input file.
type PermissionDeniedError struct {
	Path string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied reading %q\nTry: chmod +r %s", e.Path, e.Path)
}

// InvalidInputError indicates the input string is neither a readable path
// nor an HTTP/HTTPS URL.
type InvalidInputError struct {
	Input string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: not a file path or a valid HTTP/HTTPS URL", e.Input)
}

// DownloadFailedError indicates a URL input could not be fetched.
type DownloadFailedError struct {
	URL    string
	Reason string
	Err    error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("failed to download %q: %s\nCheck your internet connection.", e.URL, e.Reason)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

// DownloadTimeoutError indicates the download exceeded its wall-clock budget.
type DownloadTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download timed out after %s for %q\nIncrease the download timeout.", e.Timeout, e.URL)
}

// NotAPDFError indicates the staged file does not start with the %PDF magic.
type NotAPDFError struct {
	Path  string
	Magic [4]byte
}

func (e *NotAPDFError) Error() string {
	return fmt.Sprintf("file is not a valid PDF: %q (first bytes: %q)", e.Path, e.Magic[:])
}

// CorruptPDFError indicates the PDF structure cannot be parsed.
type CorruptPDFError struct {
	Path   string
	Detail string
}

func (e *CorruptPDFError) Error() string {
	return fmt.Sprintf("PDF %q is corrupt: %s\nTry repairing it with: qpdf --decrypt input.pdf output.pdf", e.Path, e.Detail)
}

// PasswordRequiredError indicates the PDF is encrypted and no password was
// supplied.
type PasswordRequiredError struct {
	Path string
}

func (e *PasswordRequiredError) Error() string {
	return fmt.Sprintf("PDF %q is encrypted and requires a password.\nProvide it with WithPassword (or --password).", e.Path)
}

// WrongPasswordError indicates the supplied password does not open the PDF.
type WrongPasswordError struct {
	Path string
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password for PDF %q", e.Path)
}

// PageOutOfRangeError indicates an explicitly selected page does not exist.
type PageOutOfRangeError struct {
	Page  int
	Total int
}

func (e *PageOutOfRangeError) Error() string {
	return fmt.Sprintf("page %d is out of range (document has %d pages)", e.Page, e.Total)
}

// ProviderNotConfiguredError indicates no usable VLM provider could be
// resolved from the configuration or environment.
type ProviderNotConfiguredError struct {
	Provider string
	Hint     string
}

func (e *ProviderNotConfiguredError) Error() string {
	return fmt.Sprintf("LLM provider %q is not configured.\n%s", e.Provider, e.Hint)
}

// AuthError indicates the provider rejected our credentials (HTTP 401/403).
// Never retried: a bad key stays bad.
type AuthError struct {
	Provider string
	Detail   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for provider %q: %s\nCheck the API key environment variable.", e.Provider, e.Detail)
}

// AllPagesFailedError indicates every selected page failed after retries,
// so the output would be empty.
type AllPagesFailedError struct {
	Total      int
	Retries    int
	FirstError string
}

func (e *AllPagesFailedError) Error() string {
	return fmt.Sprintf("all %d pages failed after %d retries each.\nFirst error: %s", e.Total, e.Retries, e.FirstError)
}

// PartialFailureError is returned by ConversionOutput.IntoResult when some
// pages failed. The output itself still contains the successful pages.
type PartialFailureError struct {
	Succeeded int
	Failed    int
	Total     int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("conversion partially failed: %d/%d pages succeeded, %d failed", e.Succeeded, e.Total, e.Failed)
}

// OutputWriteError indicates the assembled markdown could not be written.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("failed to write output file %q: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// InvalidConfigError indicates a configuration combination that cannot be
// clamped into validity.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// ── Page-local errors ──

// PageErrorKind classifies a single-page failure.
type PageErrorKind int

const (
	// RenderFailed means the rasteriser could not produce a bitmap.
	RenderFailed PageErrorKind = iota
	// LLMFailed means the VLM call failed, either after all retries or on
	// an error that is not retried.
	LLMFailed
	// Timeout means the last attempt exceeded the per-call budget.
	Timeout
	// RateLimited means retries exhausted while the provider kept
	// returning 429.
	RateLimited
)

// PageError is a non-fatal failure confined to one page. It is embedded in
// the PageResult; other pages continue converting.
type PageError struct {
	Kind       PageErrorKind
	Page       int
	Retries    int
	Detail     string
	Elapsed    time.Duration
	Provider   string
	RetryAfter time.Duration
}

func (e *PageError) Error() string {
	switch e.Kind {
	case RenderFailed:
		return fmt.Sprintf("page %d: rasterisation failed: %s", e.Page, e.Detail)
	case Timeout:
		return fmt.Sprintf("page %d: VLM call timed out after %s (elapsed %dms)", e.Page, e.Elapsed.Round(time.Second), e.Elapsed.Milliseconds())
	case RateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("page %d: rate limited by %s after %d retries (retry after %s)", e.Page, e.Provider, e.Retries, e.RetryAfter)
		}
		return fmt.Sprintf("page %d: rate limited by %s after %d retries", e.Page, e.Provider, e.Retries)
	default:
		return fmt.Sprintf("page %d: VLM call failed after %d retries: %s", e.Page, e.Retries, e.Detail)
	}
}

// IsFatal reports whether err is one of the fatal conversion errors, as
// opposed to a page-local *PageError.
func IsFatal(err error) bool {
	var pe *PageError
	return err != nil && !errors.As(err, &pe)
}
