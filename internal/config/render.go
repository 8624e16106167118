package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// RenderConfig controls how executed chapters are turned into slides and flow documents.
type RenderConfig struct {
	ExcludeInput   bool   `toml:"exclude_input"`
	Theme          string `toml:"theme"`
	RevealTheme    string `toml:"reveal_theme"`
	RevealScroll   bool   `toml:"reveal_scroll"`
	TemplateDir    string `toml:"template_dir"`
	ScrollTemplate string `toml:"scroll_template"`
}

func DefaultRenderConfig(templateDir string) RenderConfig {
	return RenderConfig{
		ExcludeInput:   true,
		Theme:          "dark",
		RevealTheme:    "night",
		RevealScroll:   true,
		TemplateDir:    templateDir,
		ScrollTemplate: "scroll.html",
	}
}

// ScrollTemplatePath is the shell the flow-document markdown gets appended to.
func (r RenderConfig) ScrollTemplatePath() string {
	if filepath.IsAbs(r.ScrollTemplate) {
		return r.ScrollTemplate
	}
	return filepath.Join(r.TemplateDir, r.ScrollTemplate)
}

// LoadRenderConfig overlays the TOML file at path onto base. A missing file
// leaves base untouched.
func LoadRenderConfig(path string, base RenderConfig) (RenderConfig, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return base, fmt.Errorf("read render config: %w", err)
	}
	out := base
	if err := toml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("parse render config %s: %w", path, err)
	}
	if out.TemplateDir == "" {
		out.TemplateDir = base.TemplateDir
	}
	if out.ScrollTemplate == "" {
		out.ScrollTemplate = base.ScrollTemplate
	}
	return out, nil
}
