// Package manifest builds the index.json descriptor stored at the root of every book.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mbook/internal/util"
)

const FileName = "index.json"

// Chapter is the projection of a converted chapter kept in the manifest. MD
// names the flow document, which is HTML despite the key.
type Chapter struct {
	Name   string `json:"name"`
	Slides string `json:"slides"`
	MD     string `json:"md"`
}

type Manifest struct {
	Author   string    `json:"author"`
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
	Cover    *string   `json:"cover"`
}

func New(author, title string, cover *string, chapters []Chapter) Manifest {
	cs := make([]Chapter, len(chapters))
	copy(cs, chapters)
	return Manifest{Author: author, Title: title, Chapters: cs, Cover: cover}
}

// Write stores m as index.json in dir and returns the file path.
func Write(dir string, m Manifest) (string, error) {
	if m.Chapters == nil {
		m.Chapters = []Chapter{}
	}
	path := filepath.Join(dir, FileName)
	if err := util.WriteJSONAtomic(path, m); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

func ReadFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
