package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Page is one unit of source text headed into the pipeline. For file-based
// ingestion each file becomes one page, numbered in sorted-name order
// starting at 1.
type Page struct {
	Number int
	Text   string
	Origin string // file name, recorded in chunk metadata
}

// LoadTextFiles reads every regular .txt and .md file directly under dir,
// in sorted name order. Unreadable files fail the whole load; a partial
// corpus would silently skew retrieval.
func LoadTextFiles(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt", ".md":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no .txt or .md files in %q", dir)
	}

	pages := make([]Page, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", name, err)
		}
		pages = append(pages, Page{Number: i + 1, Text: string(data), Origin: name})
	}
	return pages, nil
}
