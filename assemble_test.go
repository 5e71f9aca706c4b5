package pdf2md

import (
	"strings"
	"testing"
)

func threePages() []PageResult {
	return []PageResult{
		{PageNum: 1, Markdown: "A"},
		{PageNum: 2, Markdown: "B"},
		{PageNum: 3, Markdown: "C"},
	}
}

func TestAssembleSeparators(t *testing.T) {
	tests := []struct {
		name string
		sep  PageSeparator
		want string
	}{
		{"none", NoSeparator(), "A\n\nB\n\nC\n"},
		{"rule", HorizontalRule(), "A\n\n---\n\nB\n\n---\n\nC\n"},
		{"comment", CommentSeparator(), "A\n\n<!-- page 2 -->\n\nB\n\n<!-- page 3 -->\n\nC\n"},
		{"custom", CustomSeparator("* * *"), "A\n\n* * *\n\nB\n\n* * *\n\nC\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithSeparator(tt.sep))
			got := assembleDocument(threePages(), &cfg, DocumentMetadata{PageCount: 3}, "test.pdf", "")
			if got != tt.want {
				t.Errorf("assembleDocument() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssembleSkipsFailedPages(t *testing.T) {
	pages := []PageResult{
		{PageNum: 1, Markdown: "A"},
		{PageNum: 2, Err: &PageError{Kind: LLMFailed, Page: 2, Retries: 3}},
		{PageNum: 3, Markdown: "C"},
	}
	cfg := NewConfig()
	got := assembleDocument(pages, &cfg, DocumentMetadata{PageCount: 3}, "test.pdf", "")
	if got != "A\n\nC\n" {
		t.Errorf("assembleDocument() = %q, want %q", got, "A\n\nC\n")
	}
}

func TestAssembleFrontMatter(t *testing.T) {
	cfg := NewConfig(WithMetadata(true))
	meta := DocumentMetadata{
		Title:      "Sample Report",
		Author:     "Jane Doe",
		PageCount:  3,
		PDFVersion: "1.7",
	}
	got := assembleDocument(threePages(), &cfg, meta, "sample.pdf", "openai/gpt-4o-mini")

	if !strings.HasPrefix(got, "---\n") {
		t.Fatalf("front matter should start with ---, got %q", got[:20])
	}
	for _, want := range []string{
		`title: "Sample Report"`,
		`author: "Jane Doe"`,
		`source: "sample.pdf"`,
		"pages: 3",
		`pdf_version: "1.7"`,
		`model: "openai/gpt-4o-mini"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("front matter missing %q in:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "---\n\nA\n\n") {
		t.Errorf("page content should follow the closing delimiter:\n%s", got)
	}
	if !strings.HasSuffix(got, "C\n") {
		t.Errorf("output should end with last page and newline, got %q", got)
	}
}

func TestAssembleEmptyFields(t *testing.T) {
	cfg := NewConfig(WithMetadata(true))
	got := assembleDocument(threePages(), &cfg, DocumentMetadata{PageCount: 3}, "x.pdf", "")
	if strings.Contains(got, "title:") || strings.Contains(got, "author:") {
		t.Errorf("empty metadata fields should be omitted:\n%s", got)
	}
}
