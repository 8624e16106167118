// Package chapters finds a book's notebook chapters and names them.
package chapters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const NotebookExt = ".ipynb"

// Chapter is one notebook of a book as the pipeline sees it.
type Chapter struct {
	Filename    string `json:"filename"`
	SourcePath  string `json:"source_path"`
	DisplayName string `json:"display_name"`
	Ordinal     int    `json:"ordinal"`
}

func (c Chapter) SlidesFile() string { return c.DisplayName + ".slides.html" }

func (c Chapter) FlowFile() string { return c.DisplayName + ".html" }

// IsChapterFile reports whether name carries the notebook extension, ignoring case.
func IsChapterFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), NotebookExt)
}

// Discover lists the notebooks directly inside dir, sorted by filename, with
// ordinals and display names assigned in that order. Subdirectories and other
// files are skipped.
func Discover(dir string) ([]Chapter, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve book dir: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read book dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if IsChapterFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Chapter, 0, len(names))
	for i, name := range names {
		ordinal := i + 1
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		out = append(out, Chapter{
			Filename:    name,
			SourcePath:  filepath.Join(abs, name),
			DisplayName: FormatName(stem, ordinal),
			Ordinal:     ordinal,
		})
	}
	return out, nil
}
