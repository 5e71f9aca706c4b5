package pdf2md

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/rangetable"
)

var (
	reOuterFence = regexp.MustCompile("(?s)^```(?:markdown)?\r?\n(.*)\r?\n```\\s*$")
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTrailingWS = regexp.MustCompile(`[ \t]+\n`)
	reBlankRuns  = regexp.MustCompile(`\n{4,}`)
	reHeading    = regexp.MustCompile(`^#{1,6}\s+\S`)
	reImageLink  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)

	// Zero-width and soft-hyphen runes that VLMs occasionally copy out of
	// PDF text layers.
	invisibleRunes = rangetable.New('\u200B', '\u200C', '\u200D', '\u2060', '\u00AD', '\uFEFF')
)

// cleanMarkdown applies the deterministic cleanup rules, in order, to raw
// VLM output. It is pure and idempotent: cleanMarkdown(cleanMarkdown(x)) ==
// cleanMarkdown(x) for every input.
//
// Rules:
//  1. Strip a single outer ```markdown fence (models sometimes disobey the
//     prompt)
//  2. Strip conversational preamble before the first structural token
//  3. Normalise line endings (CRLF/CR -> LF)
//  4. Trim trailing whitespace per line
//  5. Collapse runs of 3+ blank lines to two
//  6. Ensure exactly one blank line before and after each heading
//  7. Repair pipe tables (missing separator row, split cells, spurious
//     mid-table separators)
//  8. Rewrite hallucinated image links to italic captions
//  9. Strip invisible Unicode
//  10. Ensure exactly one trailing newline
func cleanMarkdown(input string) string {
	s := input
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = stripOuterFence(s)
	s = stripPreamble(s)
	s = reCRLF.ReplaceAllString(s, "\n")
	s = trimTrailingWhitespace(s)
	s = reBlankRuns.ReplaceAllString(s, "\n\n\n")
	s = normalizeHeadingSpacing(s)
	s = rejoinSplitTableRows(s)
	s = fixBrokenTables(s)
	s = removeMidTableSeparators(s)
	s = removeHallucinatedImages(s)
	s = stripInvisibleRunes(s)
	return ensureFinalNewline(s)
}

// stripOuterFence removes the outermost fence markers when the entire
// response is wrapped in a single fenced block, keeping the inner text.
func stripOuterFence(s string) string {
	if m := reOuterFence.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return m[1]
	}
	return s
}

// preamblePrefixes are conversational openers models prepend despite being
// told not to. Only stripped when they appear before any structural token.
var preamblePrefixes = []string{
	"here is the markdown",
	"here's the markdown",
	"here is the converted",
	"here's the converted",
	"sure, here is",
	"sure, here's",
	"certainly, here",
	"below is the markdown",
}

func stripPreamble(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, prefix := range preamblePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return strings.Join(lines[i+1:], "\n")
			}
		}
		// First non-blank line is real content.
		return s
	}
	return s
}

func trimTrailingWhitespace(s string) string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	s = reTrailingWS.ReplaceAllString(s, "\n")
	return strings.TrimSuffix(s, "\n")
}

// normalizeHeadingSpacing ensures exactly one blank line before and after
// every heading line (except at the very start or end of the document).
func normalizeHeadingSpacing(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		if reHeading.MatchString(line) {
			for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
				out = out[:len(out)-1]
			}
			if len(out) > 0 {
				out = append(out, "")
			}
			out = append(out, line)
			j := i + 1
			for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
				j++
			}
			if j < len(lines) {
				out = append(out, "")
			}
			i = j
			continue
		}
		out = append(out, line)
		i++
	}
	return strings.Join(out, "\n")
}

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && len(trimmed) > 2
}

func isSeparatorRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return false
	}
	for _, r := range trimmed {
		switch r {
		case '|', '-', ':', ' ':
		default:
			return false
		}
	}
	return true
}

// rejoinSplitTableRows merges a table row that lost its closing pipe to an
// accidental newline inside a cell with the continuation line below it.
func rejoinSplitTableRows(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && !strings.HasSuffix(trimmed, "|") && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && !strings.HasPrefix(next, "|") {
				out = append(out, strings.TrimRight(line, " ")+" "+next)
				i += 2
				continue
			}
		}
		out = append(out, line)
		i++
	}
	return strings.Join(out, "\n")
}

// fixBrokenTables inserts a minimal separator row after a table header row
// that lacks one, with a column count matching the header.
func fixBrokenTables(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)
	inTable := false
	for i, line := range lines {
		out = append(out, line)
		if !isTableRow(line) || isSeparatorRow(line) {
			inTable = isTableRow(line)
			continue
		}
		if inTable {
			continue
		}
		inTable = true
		// This is a header row; peek at the next line.
		var next string
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		if isTableRow(next) && !isSeparatorRow(next) {
			cols := strings.Count(line, "|") - 1
			if cols < 1 {
				cols = 1
			}
			out = append(out, "|"+strings.Repeat(" --- |", cols))
		}
	}
	return strings.Join(out, "\n")
}

// removeMidTableSeparators drops separator rows anywhere except directly
// beneath the header; GFM only allows a separator at row two and extra ones
// render as data.
func removeMidTableSeparators(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	tableRow := 0
	for _, line := range lines {
		if isTableRow(line) {
			tableRow++
			if isSeparatorRow(line) && tableRow != 2 {
				continue
			}
		} else {
			tableRow = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// placeholderDomains are hosts that indicate a fabricated image URL.
var placeholderDomains = []string{
	"example.com",
	"placeholder.com",
	"via.placeholder.com",
	"dummyimage.com",
	"lorempixel.com",
	"picsum.photos",
	"placehold.it",
}

func isPlaceholderURL(url string) bool {
	u := strings.TrimSpace(url)
	if u == "" {
		return true
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return true
	}
	for _, d := range placeholderDomains {
		if strings.Contains(u, d) {
			return true
		}
	}
	return false
}

// removeHallucinatedImages rewrites image links with unresolvable sources
// to italic captions, so the description survives but no broken reference
// does. Real http(s) links are kept as-is.
func removeHallucinatedImages(s string) string {
	return reImageLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := reImageLink.FindStringSubmatch(m)
		alt, url := strings.TrimSpace(sub[1]), sub[2]
		if !isPlaceholderURL(url) {
			return m
		}
		if alt == "" {
			return ""
		}
		return "*" + alt + "*"
	})
}

func stripInvisibleRunes(s string) string {
	out, _, err := transform.String(runes.Remove(runes.In(invisibleRunes)), s)
	if err != nil {
		return s
	}
	return out
}

func ensureFinalNewline(s string) string {
	trimmed := strings.TrimRight(s, " \t\n")
	if trimmed == "" {
		return "\n"
	}
	return trimmed + "\n"
}
