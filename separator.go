package pdf2md

import "fmt"

type separatorKind int

const (
	sepNone separatorKind = iota
	sepHorizontalRule
	sepComment
	sepCustom
)

// PageSeparator describes the text inserted between consecutive page
// markdowns during assembly. The zero value joins pages with a blank line.
type PageSeparator struct {
	kind   separatorKind
	custom string
}

// NoSeparator joins pages with exactly one blank line.
func NoSeparator() PageSeparator {
	return PageSeparator{kind: sepNone}
}

// HorizontalRule inserts "---" between pages.
func HorizontalRule() PageSeparator {
	return PageSeparator{kind: sepHorizontalRule}
}

// CommentSeparator inserts an HTML comment naming the page that follows,
// e.g. "<!-- page 2 -->". Invisible in rendered output but lets downstream
// tooling split the document back into pages.
func CommentSeparator() PageSeparator {
	return PageSeparator{kind: sepComment}
}

// CustomSeparator inserts the given string between pages, padded with blank
// lines on both sides.
func CustomSeparator(s string) PageSeparator {
	return PageSeparator{kind: sepCustom, custom: s}
}

// render returns the separator text preceding the given 1-indexed page.
func (s PageSeparator) render(pageNum int) string {
	switch s.kind {
	case sepHorizontalRule:
		return "\n\n---\n\n"
	case sepComment:
		return fmt.Sprintf("\n\n<!-- page %d -->\n\n", pageNum)
	case sepCustom:
		return "\n\n" + s.custom + "\n\n"
	default:
		return "\n\n"
	}
}
