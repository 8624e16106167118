package workflows

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mbook/internal/activities"
	"mbook/internal/archive"
	"mbook/internal/chapters"
	"mbook/internal/config"
	"mbook/internal/models"
	"mbook/internal/notebook"
	"mbook/internal/status"
	"mbook/internal/storage"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func TestBookConvertWorkflowStopsAtFailingChapter(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookConvertWorkflow)

	var statuses []string
	var manifestWritten, packaged bool
	var executed []string
	registerActivityName(env, "UpdateBookStatusActivity", func(_ context.Context, in activities.UpdateBookStatusInput) error {
		statuses = append(statuses, in.Status.String())
		return nil
	})
	registerActivityName(env, "PrepareWorkspaceActivity", func(context.Context, activities.PrepareWorkspaceInput) (activities.PrepareWorkspaceOutput, error) {
		return activities.PrepareWorkspaceOutput{SourceDir: "/src", WorkDir: "/work", ExecDir: "/exec"}, nil
	})
	registerActivityName(env, "ListChaptersActivity", func(context.Context, activities.ListChaptersInput) (activities.ListChaptersOutput, error) {
		return activities.ListChaptersOutput{Chapters: []chapters.Chapter{
			{Filename: "c1.ipynb", DisplayName: "C1", Ordinal: 1},
			{Filename: "c2.ipynb", DisplayName: "C2", Ordinal: 2},
			{Filename: "c3.ipynb", DisplayName: "C3", Ordinal: 3},
		}}, nil
	})
	registerActivityName(env, "ExecuteChapterActivity", func(_ context.Context, in activities.ExecuteChapterInput) (activities.ExecuteChapterOutput, error) {
		executed = append(executed, in.Chapter.Filename)
		if in.Chapter.Filename == "c2.ipynb" {
			ce := notebook.CellError{Chapter: "c2.ipynb", CellIndex: 4, Message: "ZeroDivisionError: division by zero"}
			return activities.ExecuteChapterOutput{}, temporal.NewNonRetryableApplicationError(ce.Error(), activities.CellExecutionErrorType, nil, ce)
		}
		return activities.ExecuteChapterOutput{ExecutedPath: "/exec/" + in.Chapter.Filename}, nil
	})
	render := func(_ context.Context, in activities.RenderChapterInput) (activities.RenderChapterOutput, error) {
		return activities.RenderChapterOutput{File: in.DisplayName + ".html"}, nil
	}
	registerActivityName(env, "RenderSlidesActivity", render)
	registerActivityName(env, "RenderFlowDocActivity", render)
	registerActivityName(env, "WriteManifestActivity", func(context.Context, activities.WriteManifestInput) (activities.WriteManifestOutput, error) {
		manifestWritten = true
		return activities.WriteManifestOutput{}, nil
	})
	registerActivityName(env, "PackageBookActivity", func(context.Context, activities.PackageBookInput) (activities.PackageBookOutput, error) {
		packaged = true
		return activities.PackageBookOutput{}, nil
	})

	env.ExecuteWorkflow(BookConvertWorkflow, BookConvertInput{Title: "Calculus", Author: "ada"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BookConvertResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "Error in c2.ipynb", out.Status)
	require.Equal(t, 1, out.Chapters)
	require.NotNil(t, out.Failure)
	require.Equal(t, 4, out.Failure.CellIndex)
	require.Equal(t, "ZeroDivisionError: division by zero", out.Failure.Message)

	require.Equal(t, []string{"Converting c1.ipynb", "Converting c2.ipynb", "Error in c2.ipynb"}, statuses)
	require.Equal(t, []string{"c1.ipynb", "c2.ipynb"}, executed)
	require.False(t, manifestWritten)
	require.False(t, packaged)

	encoded, err := env.QueryWorkflow(QueryGetConversionProgress)
	require.NoError(t, err)
	var progress ConversionProgress
	require.NoError(t, encoded.Get(&progress))
	require.Equal(t, status.KindFailed, progress.Status.Kind)
	require.Equal(t, []string{chapterDone, chapterFailed, chapterPending}, []string{
		progress.Chapters[0].State, progress.Chapters[1].State, progress.Chapters[2].State,
	})
}

func TestBookConvertWorkflowRenderFailureMarksChapter(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookConvertWorkflow)

	var statuses []string
	var flowAttempted bool
	registerActivityName(env, "UpdateBookStatusActivity", func(_ context.Context, in activities.UpdateBookStatusInput) error {
		statuses = append(statuses, in.Status.String())
		return nil
	})
	registerActivityName(env, "PrepareWorkspaceActivity", func(context.Context, activities.PrepareWorkspaceInput) (activities.PrepareWorkspaceOutput, error) {
		return activities.PrepareWorkspaceOutput{}, nil
	})
	registerActivityName(env, "ListChaptersActivity", func(context.Context, activities.ListChaptersInput) (activities.ListChaptersOutput, error) {
		return activities.ListChaptersOutput{Chapters: []chapters.Chapter{{Filename: "c1.ipynb", DisplayName: "C1", Ordinal: 1}}}, nil
	})
	registerActivityName(env, "ExecuteChapterActivity", func(context.Context, activities.ExecuteChapterInput) (activities.ExecuteChapterOutput, error) {
		return activities.ExecuteChapterOutput{ExecutedPath: "/exec/c1.ipynb"}, nil
	})
	registerActivityName(env, "RenderSlidesActivity", func(context.Context, activities.RenderChapterInput) (activities.RenderChapterOutput, error) {
		return activities.RenderChapterOutput{}, temporal.NewNonRetryableApplicationError("reveal template missing", "RenderError", nil)
	})
	registerActivityName(env, "RenderFlowDocActivity", func(context.Context, activities.RenderChapterInput) (activities.RenderChapterOutput, error) {
		flowAttempted = true
		return activities.RenderChapterOutput{File: "C1.html"}, nil
	})

	env.ExecuteWorkflow(BookConvertWorkflow, BookConvertInput{Title: "Calculus", Author: "ada"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BookConvertResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "Error in c1.ipynb", out.Status)
	require.Nil(t, out.Failure)
	require.True(t, flowAttempted)
	require.Equal(t, []string{"Converting c1.ipynb", "Error in c1.ipynb"}, statuses)
}

func TestBookConvertWorkflowIOFailureFailsRun(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookConvertWorkflow)

	registerActivityName(env, "UpdateBookStatusActivity", func(context.Context, activities.UpdateBookStatusInput) error { return nil })
	registerActivityName(env, "PrepareWorkspaceActivity", func(context.Context, activities.PrepareWorkspaceInput) (activities.PrepareWorkspaceOutput, error) {
		return activities.PrepareWorkspaceOutput{}, temporal.NewNonRetryableApplicationError("stage cover: no such file", "IOError", nil)
	})

	env.ExecuteWorkflow(BookConvertWorkflow, BookConvertInput{Title: "Calculus", Author: "ada"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

type fakeEngine struct{}

func (fakeEngine) Execute(_ context.Context, chapter, srcPath, scratchDir string) (string, error) {
	b, err := os.ReadFile(srcPath)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(scratchDir, chapter)
	return dst, os.WriteFile(dst, b, 0o644)
}

func (fakeEngine) RenderSlides(_ context.Context, executedPath, outDir, displayName string) (string, error) {
	name := displayName + ".slides.html"
	return name, os.WriteFile(filepath.Join(outDir, name), []byte("<section>"+filepath.Base(executedPath)+"</section>"), 0o644)
}

func (fakeEngine) RenderMarkdown(_ context.Context, executedPath, outDir, displayName string) (string, error) {
	name := displayName + ".md"
	return name, os.WriteFile(filepath.Join(outDir, name), []byte("# "+filepath.Base(executedPath)+"\n"), 0o644)
}

type bookFixture struct {
	cfg    config.Config
	ledger storage.Ledger
	env    *testsuite.TestWorkflowEnvironment
}

func newBookFixture(t *testing.T, title, author string, notebooks ...string) bookFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		BooksRoot:   filepath.Join(root, "books"),
		ScratchRoot: filepath.Join(root, "scratch"),
		TemplateDir: filepath.Join(root, "templates"),
	}
	cfg.Render = config.DefaultRenderConfig(cfg.TemplateDir)
	require.NoError(t, os.MkdirAll(cfg.TemplateDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.Render.ScrollTemplatePath(), []byte("<html><head><title></title></head><body></body></html>\n"), 0o644))

	dir := cfg.BookDir(author, title)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), []byte("png"), 0o644))
	for _, nb := range notebooks {
		require.NoError(t, os.WriteFile(filepath.Join(dir, nb), []byte(`{"nbformat":4,"cells":[]}`), 0o644))
	}

	ledger, err := storage.OpenSQLite(context.Background(), filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	_, err = ledger.Upsert(context.Background(), models.Book{
		ID: "id", BookName: title, Author: author, Timestamp: time.Now().UTC(),
		Cover: models.StringPtr("cover.png"), Status: status.Queued().String(),
	})
	require.NoError(t, err)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BookConvertWorkflow)
	env.RegisterActivity(activities.New(cfg, ledger, fakeEngine{}, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return bookFixture{cfg: cfg, ledger: ledger, env: env}
}

func TestBookConvertWorkflowZeroChapters(t *testing.T) {
	f := newBookFixture(t, "Calculus", "ada")
	f.env.ExecuteWorkflow(BookConvertWorkflow, BookConvertInput{Title: "Calculus", Author: "ada", Cover: models.StringPtr("cover.png")})
	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var out BookConvertResult
	require.NoError(t, f.env.GetWorkflowResult(&out))
	require.Equal(t, "Completed", out.Status)

	b, err := f.ledger.FindByKey(context.Background(), "Calculus", "ada")
	require.NoError(t, err)
	require.Equal(t, "Completed", b.Status)

	names, err := archive.List(out.ArchivePath)
	require.NoError(t, err)
	require.Equal(t, []string{"Calculus/cover.png", "Calculus/index.json"}, names)
	m, err := archive.ReadManifest(out.ArchivePath)
	require.NoError(t, err)
	require.Empty(t, m.Chapters)
	require.Equal(t, "cover.png", *m.Cover)
}

func TestBookConvertWorkflowTwoChapters(t *testing.T) {
	f := newBookFixture(t, "Calculus", "ada", "ch1_limits.ipynb", "ch2_series.ipynb", "notes.txt")
	f.env.ExecuteWorkflow(BookConvertWorkflow, BookConvertInput{Title: "Calculus", Author: "ada", Cover: models.StringPtr("cover.png")})
	require.True(t, f.env.IsWorkflowCompleted())
	require.NoError(t, f.env.GetWorkflowError())

	var out BookConvertResult
	require.NoError(t, f.env.GetWorkflowResult(&out))
	require.Equal(t, 2, out.Chapters)

	m, err := archive.ReadManifest(out.ArchivePath)
	require.NoError(t, err)
	require.Len(t, m.Chapters, 2)
	require.Equal(t, "1. Limits", m.Chapters[0].Name)
	require.Equal(t, "2. Series", m.Chapters[1].Name)
	require.NotEqual(t, m.Chapters[0].Slides, m.Chapters[1].Slides)

	expanded := filepath.Join(f.cfg.BookDir("ada", "Calculus"), "Calculus")
	for _, c := range m.Chapters {
		require.FileExists(t, filepath.Join(expanded, c.Slides))
		require.FileExists(t, filepath.Join(expanded, c.MD))
	}
	require.NoFileExists(t, filepath.Join(expanded, "1. Limits.md"))
	require.NoDirExists(t, f.cfg.WorkDir("Calculus"))
	require.NoDirExists(t, f.cfg.ExecDir("Calculus"))
}

func TestWorkflowIDDistinctPerBook(t *testing.T) {
	pairs := [][2][2]string{
		{{"b-c", "a"}, {"c", "a-b"}},
		{{"Calculus", "Ada"}, {"calculus", "ada"}},
		{{"My Book", "ada"}, {"my_book", "ada"}},
		{{"c.d", "a_b"}, {"c-d", "a-b"}},
	}
	for _, p := range pairs {
		a := WorkflowID(p[0][0], p[0][1])
		b := WorkflowID(p[1][0], p[1][1])
		require.NotEqual(t, a, b, "%v vs %v", p[0], p[1])
	}
	require.Equal(t, WorkflowID("Calculus", "ada"), WorkflowID("Calculus", "ada"))
	require.Equal(t, "book-"+models.BookID("Calculus", "ada"), WorkflowID("Calculus", "ada"))
}
