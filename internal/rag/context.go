package rag

import (
	"fmt"
	"strings"
)

// blockSeparator joins context blocks; its length counts against the budget
// the same way the rendered blocks do.
const blockSeparator = "\n\n"

// BuildContext renders ranked sources into a character-budgeted context
// string. Sources are taken in the order supplied. Each block is a header
// carrying the score (and page when known) followed by the chunk text. The
// first block that would push the running total past maxChars is dropped
// together with every block after it; a block is never truncated mid-text.
//
// An empty result means no context fit the budget; callers must render that
// as an explicit no-context marker rather than omitting the section.
func BuildContext(sources []Source, maxChars int) string {
	var parts []string
	used := 0

	for _, s := range sources {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			// A header with no text wastes budget and tells the model nothing.
			continue
		}
		var header string
		if s.Page > 0 {
			header = fmt.Sprintf("[p.%d | score=%.4f]", s.Page, s.Score)
		} else {
			header = fmt.Sprintf("[score=%.4f]", s.Score)
		}
		block := header + "\n" + text
		if used+len(block)+len(blockSeparator) > maxChars {
			break
		}
		parts = append(parts, block)
		used += len(block) + len(blockSeparator)
	}

	return strings.Join(parts, blockSeparator)
}

// SourcesFooter renders a de-duplicated, order-preserving page list for
// user-facing citation, independent of the context budget.
func SourcesFooter(sources []Source, maxItems int) string {
	pages := DistinctPages(sources)
	if len(pages) == 0 {
		return "Sources: (no pages)"
	}
	if len(pages) > maxItems {
		pages = pages[:maxItems]
	}
	labels := make([]string, len(pages))
	for i, p := range pages {
		labels[i] = fmt.Sprintf("p.%d", p)
	}
	return "Sources: " + strings.Join(labels, ", ")
}
