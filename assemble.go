package pdf2md

import (
	"fmt"
	"strings"
	"time"
)

// assembleDocument joins the successful pages' markdown with the configured
// separator and optionally prepends the metadata front-matter block. Pages
// must already be sorted by page number.
func assembleDocument(pages []PageResult, cfg *Config, meta DocumentMetadata, source, modelID string) string {
	var b strings.Builder

	if cfg.IncludeMetadata {
		b.WriteString(frontMatter(meta, source, modelID))
	}

	first := true
	for _, page := range pages {
		if page.Err != nil {
			continue
		}
		if !first {
			b.WriteString(cfg.Separator.render(page.PageNum))
		}
		b.WriteString(strings.TrimRight(page.Markdown, "\n"))
		first = false
	}

	if b.Len() == 0 {
		return ""
	}
	return b.String() + "\n"
}

// frontMatter renders the key/value block delimited by --- lines.
func frontMatter(meta DocumentMetadata, source, modelID string) string {
	var b strings.Builder
	b.WriteString("---\n")
	writeYAMLField(&b, "title", meta.Title)
	writeYAMLField(&b, "author", meta.Author)
	writeYAMLField(&b, "subject", meta.Subject)
	writeYAMLField(&b, "creator", meta.Creator)
	writeYAMLField(&b, "producer", meta.Producer)
	writeYAMLField(&b, "source", source)
	fmt.Fprintf(&b, "pages: %d\n", meta.PageCount)
	writeYAMLField(&b, "pdf_version", meta.PDFVersion)
	writeYAMLField(&b, "generated", time.Now().UTC().Format(time.RFC3339))
	writeYAMLField(&b, "model", modelID)
	b.WriteString("---\n\n")
	return b.String()
}

func writeYAMLField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %q\n", key, value)
}
