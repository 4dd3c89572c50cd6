// Package chunk splits raw document text into bounded, overlapping segments
// suitable for independent embedding and retrieval.
//
// Two interchangeable strategies are provided:
//
//   - SemanticSplitter accumulates whole paragraphs up to a size budget and
//     carries a character overlap between consecutive chunks.
//   - WindowSplitter walks the text with a fixed-size sliding window.
//
// Both operate on whitespace-normalized text and return a fully materialized
// slice with no side effects.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrOverlapTooLarge indicates the configured overlap is not smaller than the
// chunk size, which would prevent the window from advancing.
var ErrOverlapTooLarge = errors.New("overlap must be smaller than chunk size")

// ErrInvalidChunkSize indicates a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// paragraphSeparator joins paragraphs inside a semantic chunk and separates
// the overlap seed from the first paragraph of the next chunk.
const paragraphSeparator = "\n\n"

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses runs of spaces and tabs to a single space, collapses
// three or more consecutive newlines to two, and strips surrounding
// whitespace. Non-breaking spaces are treated as regular spaces.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, paragraphSeparator)
	return strings.TrimSpace(text)
}

// Splitter splits normalized text into ordered chunk texts.
type Splitter interface {
	Split(text string) []string
}

// SemanticSplitter splits on blank-line paragraph boundaries and packs
// paragraphs into chunks of at most maxSize characters, seeding each new
// chunk with the trailing overlap of the previous one.
type SemanticSplitter struct {
	maxSize int
	overlap int
}

// NewSemanticSplitter creates a paragraph-aware splitter.
// overlap must be smaller than maxSize.
func NewSemanticSplitter(maxSize, overlap int) (*SemanticSplitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlap, maxSize)
	}
	return &SemanticSplitter{maxSize: maxSize, overlap: overlap}, nil
}

// Split divides text into paragraph-aligned chunks. A single paragraph that
// alone exceeds the size budget is emitted verbatim as its own chunk; such
// oversized paragraphs are not sub-split further.
func (s *SemanticSplitter) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, paragraphSeparator)
	var chunks []string
	var current string

	for _, para := range paragraphs {
		if len(current)+len(para)+len(paragraphSeparator) > s.maxSize {
			if current == "" {
				// Oversized single paragraph: emit verbatim.
				chunks = append(chunks, strings.TrimSpace(para))
				continue
			}
			chunks = append(chunks, strings.TrimSpace(current))
			current = s.tail(current) + paragraphSeparator + para
			continue
		}
		if current == "" {
			current = para
		} else {
			current += paragraphSeparator + para
		}
	}

	if current != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// tail returns the trailing overlap characters of a closed chunk.
func (s *SemanticSplitter) tail(closed string) string {
	if len(closed) <= s.overlap {
		return closed
	}
	return closed[len(closed)-s.overlap:]
}

// WindowSplitter splits text into fixed-size windows where consecutive
// windows share overlap characters.
type WindowSplitter struct {
	size    int
	overlap int
}

// NewWindowSplitter creates a fixed-window splitter.
// overlap must be smaller than size or the window cannot advance.
func NewWindowSplitter(size, overlap int) (*WindowSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlap, size)
	}
	return &WindowSplitter{size: size, overlap: overlap}, nil
}

// Split walks the normalized text with a window of size characters. The next
// window starts overlap characters before the previous end, clamped at the
// text start. Window contents are emitted untrimmed so that concatenating
// chunks with overlaps removed reconstructs the normalized text exactly.
func (s *WindowSplitter) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var chunks []string
	n := len(text)
	for i := 0; i < n; {
		j := min(i+s.size, n)
		chunks = append(chunks, text[i:j])
		if j == n {
			break
		}
		i = max(0, j-s.overlap)
	}
	return chunks
}
