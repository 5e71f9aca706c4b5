package pdf2md

// ProgressObserver receives per-page conversion events. All methods may be
// called concurrently when MaintainFormat is off; implementations must guard
// their own state. The error message is passed as an owned string so
// observers can retain it beyond the callback.
type ProgressObserver interface {
	// ConversionStarted fires once, with the number of selected pages.
	ConversionStarted(selected int)
	// PageStarted fires just before a page's VLM request is sent.
	PageStarted(pageNum, total int)
	// PageCompleted fires when a page converts, with the byte length of
	// the produced markdown.
	PageCompleted(pageNum, total, chars int)
	// PageFailed fires when a page fails: rendering failed, its retries ran
	// out, or the VLM returned an error that is not retried.
	PageFailed(pageNum, total int, errMsg string)
	// ConversionCompleted fires once after every page has been attempted.
	ConversionCompleted(total, succeeded int)
}

// NoopProgress is an observer that ignores every event. Embed it to
// implement only the callbacks you care about.
type NoopProgress struct{}

func (NoopProgress) ConversionStarted(int)        {}
func (NoopProgress) PageStarted(int, int)         {}
func (NoopProgress) PageCompleted(int, int, int)  {}
func (NoopProgress) PageFailed(int, int, string)  {}
func (NoopProgress) ConversionCompleted(int, int) {}

// observer returns the configured observer or a no-op, so call sites never
// nil-check.
func (c *Config) observer() ProgressObserver {
	if c.Progress != nil {
		return c.Progress
	}
	return NoopProgress{}
}
