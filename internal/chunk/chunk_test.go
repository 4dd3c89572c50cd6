package chunk

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapses space runs",
			in:   "hello   \t world",
			want: "hello world",
		},
		{
			name: "collapses newline runs to two",
			in:   "one\n\n\n\ntwo",
			want: "one\n\ntwo",
		},
		{
			name: "keeps double newline",
			in:   "one\n\ntwo",
			want: "one\n\ntwo",
		},
		{
			name: "strips surrounding whitespace",
			in:   "  \n text \n ",
			want: "text",
		},
		{
			name: "non-breaking space",
			in:   "a b",
			want: "a b",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWindowSplitterValidation(t *testing.T) {
	if _, err := NewWindowSplitter(100, 100); !errors.Is(err, ErrOverlapTooLarge) {
		t.Errorf("overlap == size: got %v, want ErrOverlapTooLarge", err)
	}
	if _, err := NewWindowSplitter(100, 150); !errors.Is(err, ErrOverlapTooLarge) {
		t.Errorf("overlap > size: got %v, want ErrOverlapTooLarge", err)
	}
	if _, err := NewWindowSplitter(0, 0); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("zero size: got %v, want ErrInvalidChunkSize", err)
	}
	if _, err := NewWindowSplitter(100, 20); err != nil {
		t.Errorf("valid config: unexpected error %v", err)
	}
}

func TestWindowSplitEmpty(t *testing.T) {
	s, err := NewWindowSplitter(10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Split("   \n "); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestWindowSplitCoverage(t *testing.T) {
	// Concatenating chunks with overlaps removed must reconstruct the
	// normalized input exactly.
	inputs := []string{
		"The quick brown fox jumps over the lazy dog",
		strings.Repeat("abcdefghij", 20),
		"short",
		"exactly-ten",
	}

	s, err := NewWindowSplitter(10, 3)
	if err != nil {
		t.Fatal(err)
	}

	for _, in := range inputs {
		normalized := Normalize(in)
		chunks := s.Split(in)
		if len(chunks) == 0 {
			t.Fatalf("no chunks for %q", in)
		}

		rebuilt := chunks[0]
		for _, c := range chunks[1:] {
			rebuilt += c[3:] // drop the shared overlap prefix
		}
		if rebuilt != normalized {
			t.Errorf("reconstruction mismatch\n got: %q\nwant: %q", rebuilt, normalized)
		}
	}
}

func TestWindowSplitOverlapCarryOver(t *testing.T) {
	s, err := NewWindowSplitter(8, 3)
	if err != nil {
		t.Fatal(err)
	}

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := s.Split(text)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		overlap := 3
		if len(cur) < overlap {
			overlap = len(cur)
		}
		if prev[len(prev)-overlap:] != cur[:overlap] {
			t.Errorf("chunk %d does not share %d chars with predecessor: %q / %q",
				i, overlap, prev, cur)
		}
	}
}

func TestWindowSplitBounds(t *testing.T) {
	s, err := NewWindowSplitter(8, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range s.Split(strings.Repeat("x", 50)) {
		if len(c) > 8 {
			t.Errorf("chunk %d length %d exceeds window size 8", i, len(c))
		}
	}
}

func TestSemanticSplitEmpty(t *testing.T) {
	s, err := NewSemanticSplitter(100, 20)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Split(""); got != nil {
		t.Errorf("Split(empty) = %v, want nil", got)
	}
}

func TestSemanticSplitSingleParagraph(t *testing.T) {
	s, err := NewSemanticSplitter(100, 20)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Split("just one small paragraph")
	if len(got) != 1 || got[0] != "just one small paragraph" {
		t.Errorf("Split = %v, want single chunk", got)
	}
}

func TestSemanticSplitPacksParagraphs(t *testing.T) {
	s, err := NewSemanticSplitter(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	text := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here"
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	// First chunk holds as many whole paragraphs as fit the budget.
	if !strings.HasPrefix(chunks[0], "first paragraph here") {
		t.Errorf("first chunk = %q", chunks[0])
	}
	for i, c := range chunks {
		if len(c) > 50 && !isSingleParagraph(c) {
			t.Errorf("chunk %d length %d exceeds max without being a lone paragraph: %q", i, len(c), c)
		}
	}
}

func TestSemanticSplitOversizedParagraphFallback(t *testing.T) {
	s, err := NewSemanticSplitter(30, 5)
	if err != nil {
		t.Fatal(err)
	}

	huge := strings.Repeat("word ", 20) // 100 chars, no blank lines
	chunks := s.Split(huge)

	if len(chunks) != 1 {
		t.Fatalf("oversized paragraph must be emitted verbatim as one chunk, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(Normalize(huge)) {
		t.Errorf("oversized chunk altered: %q", chunks[0])
	}
}

func TestSemanticSplitOverlapSeed(t *testing.T) {
	s, err := NewSemanticSplitter(40, 8)
	if err != nil {
		t.Fatal(err)
	}

	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n\nbbbbbbbbbb"
	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", chunks)
	}
	// Second chunk starts with the trailing 8 chars of the first.
	seed := chunks[0][len(chunks[0])-8:]
	if !strings.HasPrefix(chunks[1], seed) {
		t.Errorf("second chunk %q does not open with overlap seed %q", chunks[1], seed)
	}
	if !strings.HasSuffix(chunks[1], "bbbbbbbbbb") {
		t.Errorf("second chunk %q missing new paragraph", chunks[1])
	}
}

func isSingleParagraph(s string) bool {
	return !strings.Contains(s, "\n\n")
}
