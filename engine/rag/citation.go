package rag

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation is a (source, page) reference found in generated text.
type Citation struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
}

var (
	bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)
	pagePattern    = regexp.MustCompile(`(?i)p\.?\s*(\d+)`)
)

// ExtractCitations scans text left to right for bracketed spans. The part
// before the first comma is the source; a page is read only from the segment
// between the first and second comma. It never fails.
func ExtractCitations(text string) []Citation {
	spans := bracketPattern.FindAllStringSubmatch(text, -1)
	citations := make([]Citation, 0, len(spans))
	for _, span := range spans {
		citations = append(citations, parseCitation(span[1]))
	}
	return citations
}

func parseCitation(body string) Citation {
	parts := strings.Split(body, ",")
	citation := Citation{Source: strings.TrimSpace(parts[0])}
	if len(parts) < 2 {
		return citation
	}
	match := pagePattern.FindStringSubmatch(parts[1])
	if match == nil {
		return citation
	}
	page, err := strconv.Atoi(match[1])
	if err != nil {
		return citation
	}
	citation.Page = &page
	return citation
}
