package nbconvert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mbook/internal/config"
	"mbook/internal/notebook"

	"github.com/stretchr/testify/require"
)

const cleanNotebook = `{"cells":[{"cell_type":"code","source":"1+1","outputs":[]}],"metadata":{},"nbformat":4,"nbformat_minor":5}`

const failingSource = `{"cells":[
 {"cell_type":"markdown","source":"# Intro"},
 {"cell_type":"code","source":"x = 1","outputs":[]},
 {"cell_type":"code","source":["y = x\n","1/0"],"outputs":[]}
],"metadata":{},"nbformat":4,"nbformat_minor":5}`

const toleratedNotebook = `{"cells":[
 {"cell_type":"code","metadata":{"tags":["raises-exception"]},"source":"raise ValueError('expected')","outputs":[{"output_type":"error","ename":"ValueError","evalue":"expected","traceback":[]}]},
 {"cell_type":"code","source":"1+1","outputs":[]}
],"metadata":{},"nbformat":4,"nbformat_minor":5}`

const keptErrorNotebook = `{"cells":[
 {"cell_type":"markdown","source":"# Intro"},
 {"cell_type":"code","source":"1/0","outputs":[{"output_type":"error","ename":"ZeroDivisionError","evalue":"division by zero","traceback":[]}]}
],"metadata":{},"nbformat":4,"nbformat_minor":5}`

const cellFailureStderr = `[NbConvertApp] Converting notebook ch2_series.ipynb to notebook
Traceback (most recent call last):
  File "/usr/bin/jupyter-nbconvert", line 8, in <module>
nbclient.exceptions.CellExecutionError: An error occurred while executing the following cell:
------------------
y = x
1/0
------------------


---------------------------------------------------------------------------
ZeroDivisionError                         Traceback (most recent call last)
Cell In[2], line 2
      1 y = x
----> 2 1/0

ZeroDivisionError: division by zero
`

// fakeJupyter re-executes the test binary as the jupyter stand-in. The helper
// reacts to the --to flag and writes what nbconvert would.
func fakeJupyter(t *testing.T, mode string) *[][]string {
	t.Helper()
	var calls [][]string
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, args)
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = exec.CommandContext })
	return &calls
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	mode := os.Getenv("HELPER_MODE")
	switch mode {
	case "crash":
		fmt.Fprintln(os.Stderr, "Traceback...\nDeadKernelError: Kernel died")
		os.Exit(1)
	case "cellerror":
		fmt.Fprint(os.Stderr, cellFailureStderr)
		os.Exit(1)
	}
	flag := func(name string) string {
		for i, a := range args {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
		}
		return ""
	}
	input := args[len(args)-1]
	switch flag("--to") {
	case "notebook":
		body := cleanNotebook
		switch mode {
		case "tolerated":
			body = toleratedNotebook
		case "errorkept":
			body = keptErrorNotebook
		}
		_ = os.WriteFile(input, []byte(body), 0o644)
	case "slides":
		if mode != "noslides" {
			_ = os.WriteFile(filepath.Join(flag("--output-dir"), flag("--output")+".slides.html"), []byte("<html>slides</html>"), 0o644)
		}
	case "markdown":
		_ = os.WriteFile(filepath.Join(flag("--output-dir"), flag("--output")+".md"), []byte("# Limits\n"), 0o644)
	}
	os.Exit(0)
}

func writeSource(t *testing.T) string {
	t.Helper()
	return writeNotebook(t, cleanNotebook)
}

func writeNotebook(t *testing.T, body string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "ch1_limits.ipynb")
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))
	return src
}

func TestExecuteSuccess(t *testing.T) {
	calls := fakeJupyter(t, "ok")
	src := writeSource(t)
	scratch := filepath.Join(t.TempDir(), "exec")

	e := New(WithTimeout(90 * time.Second))
	out, err := e.Execute(context.Background(), "ch1_limits.ipynb", src, scratch)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(scratch, "ch1_limits.ipynb"), out)
	require.Len(t, *calls, 1)
	require.Contains(t, (*calls)[0], "--ExecutePreprocessor.timeout=90")
	require.NotContains(t, (*calls)[0], "--allow-errors")
}

func TestExecuteStopsAtFailingCell(t *testing.T) {
	fakeJupyter(t, "cellerror")
	_, err := New().Execute(context.Background(), "ch2_series.ipynb", writeNotebook(t, failingSource), t.TempDir())
	ce, ok := notebook.AsCellError(err)
	require.True(t, ok)
	require.Equal(t, "ch2_series.ipynb", ce.Chapter)
	require.Equal(t, 2, ce.CellIndex)
	require.Equal(t, "ZeroDivisionError: division by zero", ce.Message)
}

func TestExecuteFailingCellNotFound(t *testing.T) {
	fakeJupyter(t, "cellerror")
	_, err := New().Execute(context.Background(), "ch1_limits.ipynb", writeSource(t), t.TempDir())
	ce, ok := notebook.AsCellError(err)
	require.True(t, ok)
	require.Equal(t, -1, ce.CellIndex)
	require.Equal(t, "ZeroDivisionError: division by zero", ce.Message)
}

func TestExecuteToleratesRaisesExceptionCell(t *testing.T) {
	fakeJupyter(t, "tolerated")
	out, err := New().Execute(context.Background(), "ch1_limits.ipynb", writeSource(t), t.TempDir())
	require.NoError(t, err)
	require.FileExists(t, out)
}

func TestExecuteReportsErrorOutput(t *testing.T) {
	fakeJupyter(t, "errorkept")
	_, err := New().Execute(context.Background(), "ch1_limits.ipynb", writeSource(t), t.TempDir())
	ce, ok := notebook.AsCellError(err)
	require.True(t, ok)
	require.Equal(t, 1, ce.CellIndex)
	require.Equal(t, "ZeroDivisionError: division by zero", ce.Message)
}

func TestFailingCellSource(t *testing.T) {
	src, ok := failingCellSource(cellFailureStderr)
	require.True(t, ok)
	require.Equal(t, "y = x\n1/0", src)

	_, ok = failingCellSource("DeadKernelError: Kernel died")
	require.False(t, ok)
}

func TestExecuteEngineCrash(t *testing.T) {
	fakeJupyter(t, "crash")
	_, err := New().Execute(context.Background(), "ch1_limits.ipynb", writeSource(t), t.TempDir())
	ce, ok := notebook.AsCellError(err)
	require.True(t, ok)
	require.Equal(t, -1, ce.CellIndex)
	require.Contains(t, ce.Message, "Kernel died")
}

func TestExecuteMalformedNotebook(t *testing.T) {
	calls := fakeJupyter(t, "ok")
	src := filepath.Join(t.TempDir(), "bad.ipynb")
	require.NoError(t, os.WriteFile(src, []byte("not json"), 0o644))
	_, err := New().Execute(context.Background(), "bad.ipynb", src, t.TempDir())
	_, ok := notebook.AsCellError(err)
	require.True(t, ok)
	require.Empty(t, *calls)
}

func TestRenderSlidesFlags(t *testing.T) {
	calls := fakeJupyter(t, "ok")
	out := t.TempDir()
	e := New(WithRenderConfig(config.DefaultRenderConfig(t.TempDir())))
	name, err := e.RenderSlides(context.Background(), "/x/ch1.ipynb", out, "1. Limits")
	require.NoError(t, err)
	require.Equal(t, "1. Limits.slides.html", name)
	require.FileExists(t, filepath.Join(out, name))

	joined := strings.Join((*calls)[0], " ")
	require.Contains(t, joined, "--TemplateExporter.exclude_input=True")
	require.Contains(t, joined, "--SlidesExporter.theme=dark")
	require.Contains(t, joined, "--SlidesExporter.reveal_theme=night")
	require.Contains(t, joined, "--SlidesExporter.reveal_scroll=True")
}

func TestRenderSlidesMissingOutput(t *testing.T) {
	fakeJupyter(t, "noslides")
	_, err := New().RenderSlides(context.Background(), "/x/ch1.ipynb", t.TempDir(), "1. Limits")
	require.Error(t, err)
}

func TestRenderMarkdownAndAssemble(t *testing.T) {
	fakeJupyter(t, "ok")
	out := t.TempDir()
	shell := filepath.Join(t.TempDir(), "scroll.html")
	require.NoError(t, os.WriteFile(shell, []byte("<!DOCTYPE html><html><head><title>Book</title></head><body></body></html>"), 0o644))

	md, err := New().RenderMarkdown(context.Background(), "/x/ch1.ipynb", out, "1. Limits")
	require.NoError(t, err)
	require.Equal(t, "1. Limits.md", md)

	name, err := AssembleFlowDoc(shell, out, md, "1. Limits")
	require.NoError(t, err)
	require.Equal(t, "1. Limits.html", name)
	require.NoFileExists(t, filepath.Join(out, md))

	b, err := os.ReadFile(filepath.Join(out, name))
	require.NoError(t, err)
	require.Contains(t, string(b), "<title>1. Limits</title>")
	require.True(t, strings.HasSuffix(string(b), "# Limits\n"))
}

func TestAssembleFlowDocShellWithoutTitle(t *testing.T) {
	out := t.TempDir()
	shell := filepath.Join(t.TempDir(), "scroll.html")
	require.NoError(t, os.WriteFile(shell, []byte("<textarea>\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.md"), []byte("body"), 0o644))

	name, err := AssembleFlowDoc(shell, out, "a.md", "A")
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(out, name))
	require.NoError(t, err)
	require.Equal(t, "<textarea>\nbody", string(b))
}

func TestAssembleFlowDocKeepsOpenTextarea(t *testing.T) {
	out := t.TempDir()
	shell := filepath.Join(t.TempDir(), "scroll.html")
	require.NoError(t, os.WriteFile(shell, []byte("<!DOCTYPE html>\n<html><head><title>Book</title></head>\n<textarea>\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "a.md"), []byte("# A & B"), 0o644))

	name, err := AssembleFlowDoc(shell, out, "a.md", "A & B")
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(out, name))
	require.NoError(t, err)
	require.Equal(t, "<!DOCTYPE html>\n<html><head><title>A &amp; B</title></head>\n<textarea>\n# A & B", string(b))
}
