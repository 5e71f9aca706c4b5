package pdf2md

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type selectionKind int

const (
	selectAll selectionKind = iota
	selectSingle
	selectRange
	selectSet
)

// PageSelection specifies which 1-indexed pages of a document to convert.
// The zero value selects all pages.
type PageSelection struct {
	kind  selectionKind
	start int
	end   int
	pages []int
}

// AllPages selects every page of the document.
func AllPages() PageSelection {
	return PageSelection{kind: selectAll}
}

// SinglePage selects one page (1-indexed).
func SinglePage(n int) PageSelection {
	return PageSelection{kind: selectSingle, start: n}
}

// PageRange selects the inclusive range [start, end] (1-indexed).
func PageRange(start, end int) PageSelection {
	return PageSelection{kind: selectRange, start: start, end: end}
}

// PageSet selects specific pages (1-indexed). Duplicates are removed.
func PageSet(pages ...int) PageSelection {
	return PageSelection{kind: selectSet, pages: append([]int(nil), pages...)}
}

// ParsePageSelection parses the CLI page syntax: "all", "7", "3-15", or a
// comma list "1,3,5". Comma lists may mix singles and ranges.
func ParsePageSelection(s string) (PageSelection, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllPages(), nil
	}

	var pages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil || a > b {
				return PageSelection{}, fmt.Errorf("invalid page range %q", part)
			}
			// A lone range avoids materialising the page list.
			if !strings.Contains(s, ",") {
				return PageRange(a, b), nil
			}
			for p := a; p <= b; p++ {
				pages = append(pages, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return PageSelection{}, fmt.Errorf("invalid page number %q", part)
		}
		pages = append(pages, p)
	}

	if len(pages) == 1 {
		return SinglePage(pages[0]), nil
	}
	return PageSet(pages...), nil
}

// resolve expands the selection against the document page count into a
// sorted, deduplicated list of 1-indexed page numbers.
//
// Explicitly named pages (Single, Set members) outside [1, total] are an
// error: the caller asked for a page that does not exist. Ranges clip their
// upper bound instead, so "convert 1-100" works on a 40-page document.
func (s PageSelection) resolve(total int) ([]int, error) {
	switch s.kind {
	case selectAll:
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil

	case selectSingle:
		if s.start < 1 || s.start > total {
			return nil, &PageOutOfRangeError{Page: s.start, Total: total}
		}
		return []int{s.start}, nil

	case selectRange:
		start := s.start
		if start < 1 {
			return nil, &PageOutOfRangeError{Page: start, Total: total}
		}
		end := s.end
		if end > total {
			end = total
		}
		var pages []int
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		return pages, nil

	case selectSet:
		seen := make(map[int]bool, len(s.pages))
		var pages []int
		for _, p := range s.pages {
			if p < 1 || p > total {
				return nil, &PageOutOfRangeError{Page: p, Total: total}
			}
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
		sort.Ints(pages)
		return pages, nil
	}
	return nil, nil
}

func (s PageSelection) String() string {
	switch s.kind {
	case selectSingle:
		return strconv.Itoa(s.start)
	case selectRange:
		return fmt.Sprintf("%d-%d", s.start, s.end)
	case selectSet:
		parts := make([]string, len(s.pages))
		for i, p := range s.pages {
			parts[i] = strconv.Itoa(p)
		}
		return strings.Join(parts, ",")
	default:
		return "all"
	}
}
