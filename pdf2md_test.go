package pdf2md

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// writeTestPDF writes a minimal but valid PDF with the given number of
// empty letter-size pages, plus an info dictionary, so the full pipeline
// can run against pdfium without binary fixtures in the repo.
func writeTestPDF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	addObj := func(s string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(s)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", 3+i))
	}
	infoNum := 3 + pages
	addObj(fmt.Sprintf("%d 0 obj\n<< /Title (Test Document) /Author (Test Author) >>\nendobj\n", infoNum))

	xrefPos := buf.Len()
	n := len(offsets) + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n", n)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		n, infoNum, xrefPos)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testPDF creates a fixture and verifies pdfium can open it, skipping the
// test in environments where the WebAssembly runtime cannot start.
func testPDF(t *testing.T, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pdf")
	writeTestPDF(t, path, pages)

	doc, err := openDocument(path, "")
	if err != nil {
		t.Skipf("pdfium unavailable: %v", err)
	}
	doc.close()
	return path
}

// mockModel is an in-process llms.Model. respond receives the 1-based call
// index and the full message transcript.
type mockModel struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, messages []llms.MessageContent) (string, error)
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := m.respond(call, messages)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: content,
			GenerationInfo: map[string]any{
				"PromptTokens":     100,
				"CompletionTokens": 50,
			},
		}},
	}, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func echoModel(markdown string) *mockModel {
	return &mockModel{respond: func(int, []llms.MessageContent) (string, error) {
		return markdown, nil
	}}
}

// recordingObserver captures callback invocations for ordering assertions.
type recordingObserver struct {
	mu        sync.Mutex
	started   int
	completed []int
	failed    []int
	doneTotal int
	doneOK    int
}

func (r *recordingObserver) ConversionStarted(selected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = selected
}

func (r *recordingObserver) PageStarted(int, int) {}

func (r *recordingObserver) PageCompleted(pageNum, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, pageNum)
}

func (r *recordingObserver) PageFailed(pageNum, _ int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, pageNum)
}

func (r *recordingObserver) ConversionCompleted(total, succeeded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doneTotal = total
	r.doneOK = succeeded
}

func TestConvertEchoProvider(t *testing.T) {
	path := testPDF(t, 3)
	page := "# Page\n\nSame **text**"
	obs := &recordingObserver{}

	c := New(
		WithProvider(echoModel(page)),
		WithRetryBackoff(time.Millisecond),
		WithProgress(obs),
	)
	out, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}

	cleaned := strings.TrimRight(cleanMarkdown(page), "\n")
	want := cleaned + "\n\n" + cleaned + "\n\n" + cleaned + "\n"
	if out.Markdown != want {
		t.Errorf("Markdown = %q, want %q", out.Markdown, want)
	}

	// Re-applying the post-processor to assembled output is a no-op.
	if reclean := cleanMarkdown(out.Markdown); reclean != out.Markdown {
		t.Errorf("assembled output not post-processing stable:\n got: %q\nwant: %q", reclean, out.Markdown)
	}

	for i, p := range out.Pages {
		if p.PageNum != i+1 {
			t.Errorf("Pages[%d].PageNum = %d, want %d", i, p.PageNum, i+1)
		}
		if p.Err != nil {
			t.Errorf("Pages[%d] unexpected error: %v", i, p.Err)
		}
	}

	s := out.Stats
	if s.TotalPages != 3 || s.ProcessedPages != 3 || s.FailedPages != 0 || s.SkippedPages != 0 {
		t.Errorf("stats = %+v", s)
	}
	if s.ProcessedPages+s.FailedPages+s.SkippedPages != s.TotalPages {
		t.Errorf("count accounting broken: %+v", s)
	}
	if s.TotalInputTokens != 300 || s.TotalOutputTokens != 150 {
		t.Errorf("token totals = %d/%d, want 300/150", s.TotalInputTokens, s.TotalOutputTokens)
	}

	if obs.started != 3 || obs.doneTotal != 3 || obs.doneOK != 3 {
		t.Errorf("observer saw started=%d doneTotal=%d doneOK=%d", obs.started, obs.doneTotal, obs.doneOK)
	}
	if len(obs.completed) != 3 {
		t.Errorf("observer completions = %v", obs.completed)
	}

	if err := out.IntoResult(); err != nil {
		t.Errorf("IntoResult() = %v, want nil", err)
	}
}

func TestConvertPartialFailure(t *testing.T) {
	path := testPDF(t, 5)

	// Concurrency 1 makes the call order deterministic: calls 1,2 are
	// pages 1,2; page 3 burns calls 3-6 (initial + 3 retries); pages 4,5
	// take calls 7,8.
	model := &mockModel{respond: func(call int, _ []llms.MessageContent) (string, error) {
		if call >= 3 && call <= 6 {
			return "", errors.New("503 Service Unavailable")
		}
		return "ok page", nil
	}}

	c := New(
		WithProvider(model),
		WithConcurrency(1),
		WithMaxRetries(3),
		WithRetryBackoff(time.Millisecond),
	)
	out, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}

	s := out.Stats
	if s.ProcessedPages != 4 || s.FailedPages != 1 {
		t.Fatalf("stats = %+v, want 4 processed / 1 failed", s)
	}

	p3 := out.Pages[2]
	if p3.PageNum != 3 {
		t.Fatalf("Pages[2].PageNum = %d, want 3", p3.PageNum)
	}
	if p3.Err == nil {
		t.Fatal("page 3 should carry an error")
	}
	if p3.Err.Kind != LLMFailed || p3.Err.Retries != 3 {
		t.Errorf("page 3 error = %+v, want LLMFailed with 3 retries", p3.Err)
	}
	if p3.Markdown != "" {
		t.Errorf("failed page markdown = %q, want empty", p3.Markdown)
	}

	err = out.IntoResult()
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("IntoResult() = %v, want *PartialFailureError", err)
	}
	if pf.Succeeded != 4 || pf.Failed != 1 || pf.Total != 5 {
		t.Errorf("PartialFailureError = %+v", pf)
	}
}

func TestConvertAllPagesFailed(t *testing.T) {
	path := testPDF(t, 2)

	model := &mockModel{respond: func(int, []llms.MessageContent) (string, error) {
		return "", errors.New("500 Internal Server Error")
	}}

	c := New(
		WithProvider(model),
		WithMaxRetries(1),
		WithRetryBackoff(time.Millisecond),
	)
	_, err := c.Convert(context.Background(), path)

	var apf *AllPagesFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("Convert error = %v, want *AllPagesFailedError", err)
	}
	if apf.Total != 2 || apf.Retries != 1 {
		t.Errorf("AllPagesFailedError = %+v", apf)
	}
	if apf.FirstError == "" {
		t.Error("FirstError should carry the page failure detail")
	}
}

func TestMaxRetriesZeroIsSingleAttempt(t *testing.T) {
	path := testPDF(t, 1)

	model := &mockModel{respond: func(int, []llms.MessageContent) (string, error) {
		return "", errors.New("503 Service Unavailable")
	}}

	c := New(WithProvider(model), WithMaxRetries(0), WithRetryBackoff(time.Millisecond))
	_, err := c.Convert(context.Background(), path)
	if err == nil {
		t.Fatal("expected AllPagesFailed")
	}
	if got := model.callCount(); got != 1 {
		t.Errorf("call count = %d, want exactly 1", got)
	}
}

func TestMaintainFormatOrdering(t *testing.T) {
	path := testPDF(t, 3)
	obs := &recordingObserver{}

	var mu sync.Mutex
	transcripts := make(map[int][]llms.MessageContent)

	model := &mockModel{}
	model.respond = func(call int, messages []llms.MessageContent) (string, error) {
		mu.Lock()
		transcripts[call] = messages
		mu.Unlock()
		return fmt.Sprintf("Content of page %d", call), nil
	}

	c := New(
		WithProvider(model),
		WithMaintainFormat(true),
		WithConcurrency(10), // must be ignored in maintain-format mode
		WithRetryBackoff(time.Millisecond),
		WithProgress(obs),
	)
	out, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}

	if len(obs.completed) != 3 || obs.completed[0] != 1 || obs.completed[1] != 2 || obs.completed[2] != 3 {
		t.Errorf("completion order = %v, want [1 2 3]", obs.completed)
	}

	// The third call must carry page 2's cleaned markdown as assistant
	// context.
	third := transcripts[3]
	if len(third) != 4 {
		t.Fatalf("call 3 has %d messages, want 4 (system, prior user, prior assistant, user)", len(third))
	}
	if third[2].Role != llms.ChatMessageTypeAI {
		t.Fatalf("message 3 role = %v, want AI", third[2].Role)
	}
	text, ok := third[2].Parts[0].(llms.TextContent)
	if !ok {
		t.Fatalf("assistant part type %T, want TextContent", third[2].Parts[0])
	}
	if text.Text != "Content of page 2\n" {
		t.Errorf("assistant context = %q, want page 2's cleaned markdown", text.Text)
	}

	if out.Pages[2].Markdown != "Content of page 3\n" {
		t.Errorf("page 3 markdown = %q", out.Pages[2].Markdown)
	}
}

func TestZeroSelectedPages(t *testing.T) {
	path := testPDF(t, 3)

	c := New(
		WithProvider(echoModel("x")),
		WithPages(PageRange(5, 4)), // resolves to the empty set
	)
	out, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if out.Markdown != "" {
		t.Errorf("Markdown = %q, want empty", out.Markdown)
	}
	if out.Stats.ProcessedPages != 0 || out.Stats.SkippedPages != 3 {
		t.Errorf("stats = %+v", out.Stats)
	}
}

func TestPageSelectionSubset(t *testing.T) {
	path := testPDF(t, 5)

	c := New(
		WithProvider(echoModel("content")),
		WithPages(PageSet(2, 4)),
		WithRetryBackoff(time.Millisecond),
	)
	out, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	if len(out.Pages) != 2 || out.Pages[0].PageNum != 2 || out.Pages[1].PageNum != 4 {
		t.Fatalf("pages = %+v", out.Pages)
	}
	s := out.Stats
	if s.TotalPages != 5 || s.ProcessedPages != 2 || s.SkippedPages != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPageOutOfRangeIsFatal(t *testing.T) {
	path := testPDF(t, 3)

	c := New(WithProvider(echoModel("x")), WithPages(SinglePage(25)))
	_, err := c.Convert(context.Background(), path)
	var oor *PageOutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("Convert error = %v, want *PageOutOfRangeError", err)
	}
	if oor.Page != 25 || oor.Total != 3 {
		t.Errorf("PageOutOfRangeError = %+v", oor)
	}
}

func TestAPITimeoutBecomesPageTimeout(t *testing.T) {
	path := testPDF(t, 1)

	model := &mockModel{respond: func(int, []llms.MessageContent) (string, error) {
		time.Sleep(300 * time.Millisecond)
		return "", context.DeadlineExceeded
	}}

	c := New(
		WithProvider(model),
		WithMaxRetries(0),
		WithAPITimeout(50*time.Millisecond),
		WithRetryBackoff(time.Millisecond),
	)
	_, err := c.Convert(context.Background(), path)
	var apf *AllPagesFailedError
	if !errors.As(err, &apf) {
		t.Fatalf("Convert error = %v, want *AllPagesFailedError", err)
	}
	if !strings.Contains(apf.FirstError, "timed out") {
		t.Errorf("FirstError = %q, want timeout detail", apf.FirstError)
	}
}

func TestConvertFromBytesMatchesConvert(t *testing.T) {
	path := testPDF(t, 2)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	c := New(WithProvider(echoModel("# Same\n\nBody")), WithRetryBackoff(time.Millisecond))

	fromPath, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert error: %v", err)
	}
	fromBytes, err := c.ConvertFromBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("ConvertFromBytes error: %v", err)
	}

	if fromPath.Markdown != fromBytes.Markdown {
		t.Errorf("markdown differs:\npath:  %q\nbytes: %q", fromPath.Markdown, fromBytes.Markdown)
	}
	if fromPath.Stats.ProcessedPages != fromBytes.Stats.ProcessedPages {
		t.Errorf("stats differ: %+v vs %+v", fromPath.Stats, fromBytes.Stats)
	}
}

func TestConvertToFile(t *testing.T) {
	path := testPDF(t, 2)
	outPath := filepath.Join(t.TempDir(), "out", "doc.md")

	c := New(WithProvider(echoModel("content")), WithRetryBackoff(time.Millisecond))
	stats, err := c.ConvertToFile(context.Background(), path, outPath)
	if err != nil {
		t.Fatalf("ConvertToFile error: %v", err)
	}
	if stats.ProcessedPages != 2 {
		t.Errorf("stats = %+v", stats)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if want := "content\n\ncontent\n"; string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
	if _, err := os.Stat(outPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestInspect(t *testing.T) {
	path := testPDF(t, 3)

	// Inspect needs no provider at all.
	c := New()
	meta, err := c.Inspect(context.Background(), path)
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if meta.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", meta.PageCount)
	}
	if meta.Title != "Test Document" {
		t.Errorf("Title = %q, want Test Document", meta.Title)
	}
	if meta.Author != "Test Author" {
		t.Errorf("Author = %q, want Test Author", meta.Author)
	}
	if meta.PDFVersion != "1.4" {
		t.Errorf("PDFVersion = %q, want 1.4", meta.PDFVersion)
	}
	if meta.Encrypted {
		t.Error("fixture should not report as encrypted")
	}
}

func TestConvertStream(t *testing.T) {
	path := testPDF(t, 3)

	c := New(WithProvider(echoModel("streamed")), WithRetryBackoff(time.Millisecond))
	events, err := c.ConvertStream(context.Background(), path)
	if err != nil {
		t.Fatalf("ConvertStream error: %v", err)
	}

	pages := CollectStream(events)
	if len(pages) != 3 {
		t.Fatalf("got %d events, want 3", len(pages))
	}
	for i, p := range pages {
		if p.PageNum != i+1 {
			t.Errorf("pages[%d].PageNum = %d, want %d", i, p.PageNum, i+1)
		}
		if p.Err != nil {
			t.Errorf("pages[%d] error: %v", i, p.Err)
		}
		if p.Markdown != "streamed\n" {
			t.Errorf("pages[%d].Markdown = %q", i, p.Markdown)
		}
	}
}

func TestConvertStreamEmitsFailures(t *testing.T) {
	path := testPDF(t, 3)

	model := &mockModel{respond: func(call int, _ []llms.MessageContent) (string, error) {
		if call == 2 {
			return "", errors.New("400 bad request")
		}
		return "ok", nil
	}}

	c := New(
		WithProvider(model),
		WithConcurrency(1),
		WithMaxRetries(0),
		WithRetryBackoff(time.Millisecond),
	)
	events, err := c.ConvertStream(context.Background(), path)
	if err != nil {
		t.Fatalf("ConvertStream error: %v", err)
	}

	var failures, successes int
	for ev := range events {
		if ev.Err != nil {
			failures++
			if ev.PageNum != 2 {
				t.Errorf("failed event page = %d, want 2", ev.PageNum)
			}
		} else {
			successes++
		}
	}
	if failures != 1 || successes != 2 {
		t.Errorf("failures=%d successes=%d, want 1/2", failures, successes)
	}
}

func TestConvertCancellation(t *testing.T) {
	path := testPDF(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	model := &mockModel{respond: func(int, []llms.MessageContent) (string, error) {
		cancel()
		return "", errors.New("503 Service Unavailable")
	}}

	c := New(
		WithProvider(model),
		WithConcurrency(1),
		WithMaxRetries(5),
		WithRetryBackoff(time.Hour), // must be interrupted by cancellation
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Convert(ctx, path)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Convert did not return after cancellation")
	}
}
