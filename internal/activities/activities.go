package activities

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mbook/internal/archive"
	"mbook/internal/chapters"
	"mbook/internal/config"
	"mbook/internal/manifest"
	"mbook/internal/nbconvert"
	"mbook/internal/notebook"
	"mbook/internal/storage"
	"mbook/internal/util"

	"go.temporal.io/sdk/temporal"
)

// CellExecutionErrorType tags the non-retryable application error that
// carries a notebook.CellError back to the workflow.
const CellExecutionErrorType = "CellExecutionError"

// Engine executes and renders chapter notebooks.
type Engine interface {
	Execute(ctx context.Context, chapter, srcPath, scratchDir string) (string, error)
	RenderSlides(ctx context.Context, executedPath, outDir, displayName string) (string, error)
	RenderMarkdown(ctx context.Context, executedPath, outDir, displayName string) (string, error)
}

type Activities struct {
	cfg    config.Config
	ledger storage.Ledger
	engine Engine
	logger *slog.Logger
}

func New(cfg config.Config, ledger storage.Ledger, engine Engine, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{cfg: cfg, ledger: ledger, engine: engine, logger: logger}
}

// NewEngine builds the jupyter-backed engine described by cfg.
func NewEngine(cfg config.Config) *nbconvert.Engine {
	return nbconvert.New(
		nbconvert.WithBinary(cfg.JupyterBin),
		nbconvert.WithTimeout(cfg.ExecuteTimeout),
		nbconvert.WithRenderConfig(cfg.Render),
	)
}

func (a *Activities) UpdateBookStatusActivity(ctx context.Context, in UpdateBookStatusInput) error {
	b, err := storage.UpdateStatus(ctx, a.ledger, in.Title, in.Author, in.Status)
	if err != nil {
		return fmt.Errorf("record status %q: %w", in.Status.String(), err)
	}
	a.logger.Info("book status", "book", in.Title, "author", in.Author, "status", b.Status, "version", b.Version)
	return nil
}

// PrepareWorkspaceActivity recreates the book's working directory and seeds it
// with the cover.
func (a *Activities) PrepareWorkspaceActivity(ctx context.Context, in PrepareWorkspaceInput) (PrepareWorkspaceOutput, error) {
	out := PrepareWorkspaceOutput{
		SourceDir: a.cfg.BookDir(in.Author, in.Title),
		WorkDir:   a.cfg.WorkDir(in.Title),
		ExecDir:   a.cfg.ExecDir(in.Title),
	}
	for _, dir := range []string{out.WorkDir, out.ExecDir} {
		if err := os.RemoveAll(dir); err != nil {
			return PrepareWorkspaceOutput{}, fmt.Errorf("reset %s: %w", dir, err)
		}
		if err := util.EnsureDir(dir); err != nil {
			return PrepareWorkspaceOutput{}, err
		}
	}
	if in.Cover != nil && *in.Cover != "" {
		cover := filepath.Base(*in.Cover)
		if err := util.CopyFile(filepath.Join(out.SourceDir, cover), filepath.Join(out.WorkDir, cover)); err != nil {
			return PrepareWorkspaceOutput{}, fmt.Errorf("stage cover: %w", err)
		}
	}
	return out, nil
}

func (a *Activities) ListChaptersActivity(ctx context.Context, in ListChaptersInput) (ListChaptersOutput, error) {
	cs, err := chapters.Discover(in.SourceDir)
	if err != nil {
		return ListChaptersOutput{}, err
	}
	return ListChaptersOutput{Chapters: cs}, nil
}

// ExecuteChapterActivity runs one chapter. A failure inside the chapter's code
// is returned as a non-retryable CellExecutionError whose details hold the
// notebook.CellError.
func (a *Activities) ExecuteChapterActivity(ctx context.Context, in ExecuteChapterInput) (ExecuteChapterOutput, error) {
	path, err := a.engine.Execute(ctx, in.Chapter.Filename, in.Chapter.SourcePath, in.ExecDir)
	if err != nil {
		if ce, ok := notebook.AsCellError(err); ok {
			a.logger.Error("chapter execution failed",
				"chapter", ce.Chapter, "cell", ce.CellIndex, "message", ce.Message)
			return ExecuteChapterOutput{}, temporal.NewNonRetryableApplicationError(ce.Error(), CellExecutionErrorType, nil, *ce)
		}
		return ExecuteChapterOutput{}, err
	}
	return ExecuteChapterOutput{ExecutedPath: path}, nil
}

func (a *Activities) RenderSlidesActivity(ctx context.Context, in RenderChapterInput) (RenderChapterOutput, error) {
	name, err := a.engine.RenderSlides(ctx, in.ExecutedPath, in.WorkDir, in.DisplayName)
	if err != nil {
		return RenderChapterOutput{}, err
	}
	return RenderChapterOutput{File: name}, nil
}

// RenderFlowDocActivity renders the chapter to markdown and appends it to the
// scroll template shell.
func (a *Activities) RenderFlowDocActivity(ctx context.Context, in RenderChapterInput) (RenderChapterOutput, error) {
	md, err := a.engine.RenderMarkdown(ctx, in.ExecutedPath, in.WorkDir, in.DisplayName)
	if err != nil {
		return RenderChapterOutput{}, err
	}
	name, err := nbconvert.AssembleFlowDoc(a.cfg.Render.ScrollTemplatePath(), in.WorkDir, md, in.DisplayName)
	if err != nil {
		return RenderChapterOutput{}, err
	}
	return RenderChapterOutput{File: name}, nil
}

func (a *Activities) WriteManifestActivity(ctx context.Context, in WriteManifestInput) (WriteManifestOutput, error) {
	path, err := manifest.Write(in.WorkDir, in.Manifest)
	if err != nil {
		return WriteManifestOutput{}, err
	}
	return WriteManifestOutput{Path: path}, nil
}

// PackageBookActivity archives the working directory into the book's upload
// directory and drops the executed notebooks.
func (a *Activities) PackageBookActivity(ctx context.Context, in PackageBookInput) (PackageBookOutput, error) {
	final, err := archive.Package(in.WorkDir, a.cfg.ScratchRoot, a.cfg.BookDir(in.Author, in.Title))
	if err != nil {
		return PackageBookOutput{}, err
	}
	if in.ExecDir != "" {
		if err := os.RemoveAll(in.ExecDir); err != nil {
			a.logger.Warn("remove executed notebooks", "dir", in.ExecDir, "error", err)
		}
	}
	a.logger.Info("book packaged", "book", in.Title, "author", in.Author, "archive", final)
	return PackageBookOutput{ArchivePath: final}, nil
}
