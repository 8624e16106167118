// Package nbconvert drives the external jupyter nbconvert tool: it executes
// chapter notebooks and renders them to reveal.js slides and markdown.
package nbconvert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mbook/internal/config"
	"mbook/internal/notebook"
	"mbook/internal/util"
)

var commandContext = exec.CommandContext

const defaultTimeout = 30 * time.Minute

// Option configures the Engine.
type Option func(*Engine)

// WithBinary overrides the jupyter executable.
func WithBinary(binary string) Option {
	return func(e *Engine) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithTimeout bounds the execution of a single notebook.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRenderConfig sets the exporter options used for both output forms.
func WithRenderConfig(rc config.RenderConfig) Option {
	return func(e *Engine) {
		e.render = rc
	}
}

type Engine struct {
	binary  string
	timeout time.Duration
	render  config.RenderConfig
}

func New(opts ...Option) *Engine {
	e := &Engine{
		binary:  "jupyter",
		timeout: defaultTimeout,
		render:  config.DefaultRenderConfig("templates"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute copies the chapter into scratchDir and runs every cell in place.
// It returns the path of the executed copy, or a *notebook.CellError when the
// chapter's code failed.
func (e *Engine) Execute(ctx context.Context, chapter, srcPath, scratchDir string) (string, error) {
	if err := util.EnsureDir(scratchDir); err != nil {
		return "", err
	}
	dst := filepath.Join(scratchDir, filepath.Base(srcPath))
	if err := util.CopyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("stage notebook: %w", err)
	}
	staged, err := notebook.Read(dst)
	if err != nil {
		return "", &notebook.CellError{Chapter: chapter, CellIndex: -1, Message: err.Error()}
	}

	// Execution stops at the first failing cell unless it is tagged
	// raises-exception.
	runCtx, cancel := context.WithTimeout(ctx, e.timeout+time.Minute)
	defer cancel()
	args := []string{
		"nbconvert", "--to", "notebook", "--execute", "--inplace",
		"--ExecutePreprocessor.timeout=" + strconv.Itoa(int(e.timeout.Seconds())),
		dst,
	}
	if _, err := e.run(runCtx, filepath.Dir(dst), args); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", &notebook.CellError{Chapter: chapter, CellIndex: -1, Message: err.Error()}
		}
		var cmdErr *commandError
		if errors.As(err, &cmdErr) && cmdErr.exited() {
			return "", executionFailure(chapter, staged, cmdErr)
		}
		return "", err
	}

	nb, err := notebook.Read(dst)
	if err != nil {
		return "", fmt.Errorf("read executed notebook: %w", err)
	}
	if idx, out, failed := nb.FirstError(); failed {
		return "", &notebook.CellError{Chapter: chapter, CellIndex: idx, Message: out.ErrorMessage()}
	}
	return dst, nil
}

const failingCellHeader = "An error occurred while executing the following cell:"

// executionFailure turns a failed execution run into a CellError. The failing
// cell is located by matching the source block nbclient prints against the
// staged notebook.
func executionFailure(chapter string, staged *notebook.Notebook, cmdErr *commandError) *notebook.CellError {
	ce := &notebook.CellError{Chapter: chapter, CellIndex: -1, Message: cmdErr.Error()}
	if tail := lastLine(cmdErr.stderr); tail != "" {
		ce.Message = tail
	}
	if src, ok := failingCellSource(cmdErr.stderr); ok {
		ce.CellIndex = staged.CodeCellIndex(src)
	}
	return ce
}

func failingCellSource(stderr string) (string, bool) {
	_, rest, ok := strings.Cut(stderr, failingCellHeader)
	if !ok {
		return "", false
	}
	const rule = "------------------"
	_, rest, ok = strings.Cut(rest, rule+"\n")
	if !ok {
		return "", false
	}
	src, _, ok := strings.Cut(rest, "\n"+rule)
	return src, ok
}

// RenderSlides writes <displayName>.slides.html into outDir.
func (e *Engine) RenderSlides(ctx context.Context, executedPath, outDir, displayName string) (string, error) {
	args := append([]string{"nbconvert", "--to", "slides", "--template", "reveal"}, e.exporterFlags()...)
	args = append(args,
		"--SlidesExporter.theme="+e.render.Theme,
		"--SlidesExporter.reveal_theme="+e.render.RevealTheme,
		"--SlidesExporter.reveal_scroll="+pyBool(e.render.RevealScroll),
		"--output-dir", outDir,
		"--output", displayName,
		executedPath,
	)
	if _, err := e.run(ctx, outDir, args); err != nil {
		return "", fmt.Errorf("render slides for %s: %w", displayName, err)
	}
	name := displayName + ".slides.html"
	if !util.Exists(filepath.Join(outDir, name)) {
		return "", fmt.Errorf("render slides for %s: %s was not written", displayName, name)
	}
	return name, nil
}

// RenderMarkdown writes the intermediate <displayName>.md into outDir.
func (e *Engine) RenderMarkdown(ctx context.Context, executedPath, outDir, displayName string) (string, error) {
	args := append([]string{"nbconvert", "--to", "markdown"}, e.exporterFlags()...)
	args = append(args, "--output-dir", outDir, "--output", displayName, executedPath)
	if _, err := e.run(ctx, outDir, args); err != nil {
		return "", fmt.Errorf("render markdown for %s: %w", displayName, err)
	}
	name := displayName + ".md"
	if !util.Exists(filepath.Join(outDir, name)) {
		return "", fmt.Errorf("render markdown for %s: %s was not written", displayName, name)
	}
	return name, nil
}

func (e *Engine) exporterFlags() []string {
	flags := []string{"--TemplateExporter.exclude_input=" + pyBool(e.render.ExcludeInput)}
	if e.render.TemplateDir != "" {
		if abs, err := filepath.Abs(e.render.TemplateDir); err == nil {
			flags = append(flags, "--TemplateExporter.extra_template_basedirs="+abs)
		}
	}
	return flags
}

// commandError is a jupyter invocation that did not succeed, with the tool's
// stderr kept for diagnosis.
type commandError struct {
	cmd    string
	err    error
	stderr string
}

func (e *commandError) Error() string {
	if tail := lastLine(e.stderr); tail != "" {
		return fmt.Sprintf("%s: %v: %s", e.cmd, e.err, tail)
	}
	return fmt.Sprintf("%s: %v", e.cmd, e.err)
}

func (e *commandError) Unwrap() error { return e.err }

func (e *commandError) exited() bool {
	var exitErr *exec.ExitError
	return errors.As(e.err, &exitErr)
}

func (e *Engine) run(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &commandError{cmd: e.binary + " " + args[0], err: err, stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
