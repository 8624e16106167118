// Package notebook reads the Jupyter nbformat v4 documents that make up a book.
package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

// RaisesExceptionTag marks a code cell that is expected to fail. Its error
// output does not fail the notebook.
const RaisesExceptionTag = "raises-exception"

type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type Cell struct {
	ID             string          `json:"id,omitempty"`
	CellType       string          `json:"cell_type"`
	Source         MultilineString `json:"source"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Metadata       CellMetadata    `json:"metadata"`
	Outputs        []Output        `json:"outputs,omitempty"`
}

type CellMetadata struct {
	Tags []string `json:"tags,omitempty"`
}

func (c Cell) HasTag(tag string) bool {
	return slices.Contains(c.Metadata.Tags, tag)
}

type Output struct {
	OutputType string   `json:"output_type"`
	EName      string   `json:"ename,omitempty"`
	EValue     string   `json:"evalue,omitempty"`
	Traceback  []string `json:"traceback,omitempty"`
}

// MultilineString accepts both encodings nbformat allows for text: a single
// string or a list of lines.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MultilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(b, &lines); err != nil {
		return fmt.Errorf("notebook text must be a string or list of strings: %w", err)
	}
	*m = MultilineString(strings.Join(lines, ""))
	return nil
}

// Read loads and validates the notebook at path.
func Read(path string) (*Notebook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	if nb.NBFormat < 4 {
		return nil, fmt.Errorf("unsupported nbformat %d (need 4 or newer)", nb.NBFormat)
	}
	return &nb, nil
}

// FirstError returns the index of the first code cell whose outputs contain an
// error, together with that error output. Cells tagged raises-exception are
// skipped.
func (nb *Notebook) FirstError() (int, Output, bool) {
	for i, c := range nb.Cells {
		if c.CellType != "code" || c.HasTag(RaisesExceptionTag) {
			continue
		}
		for _, o := range c.Outputs {
			if o.OutputType == "error" {
				return i, o, true
			}
		}
	}
	return -1, Output{}, false
}

// CodeCellIndex returns the index of the first code cell whose source matches
// src, ignoring surrounding whitespace, or -1.
func (nb *Notebook) CodeCellIndex(src string) int {
	src = strings.TrimSpace(src)
	for i, c := range nb.Cells {
		if c.CellType == "code" && strings.TrimSpace(string(c.Source)) == src {
			return i
		}
	}
	return -1
}
