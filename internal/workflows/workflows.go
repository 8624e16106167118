package workflows

import (
	"errors"
	"time"

	"mbook/internal/activities"
	"mbook/internal/chapters"
	"mbook/internal/manifest"
	"mbook/internal/notebook"
	"mbook/internal/status"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetConversionProgress = "GetConversionProgress"

const defaultExecuteTimeout = 30 * time.Minute

// BookConvertWorkflow converts one uploaded book: every chapter is executed
// and rendered in order, then the manifest is written and the working
// directory packaged. The first chapter failure is recorded in the ledger and
// ends the run without a manifest or archive.
func BookConvertWorkflow(ctx workflow.Context, input BookConvertInput) (BookConvertResult, error) {
	logger := workflow.GetLogger(ctx)
	progress := ConversionProgress{
		Title:    input.Title,
		Author:   input.Author,
		Status:   status.Queued(),
		Display:  status.Queued().String(),
		Chapters: []ChapterProgress{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetConversionProgress, func() (ConversionProgress, error) {
		return progress, nil
	}); err != nil {
		return BookConvertResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	execTimeout := input.ExecuteTimeout
	if execTimeout <= 0 {
		execTimeout = defaultExecuteTimeout
	}
	execCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: execTimeout + 5*time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	setStatus := func(st status.Status) error {
		progress.Status = st
		progress.Display = st.String()
		return workflow.ExecuteActivity(ctx, "UpdateBookStatusActivity", activities.UpdateBookStatusInput{
			Title:  input.Title,
			Author: input.Author,
			Status: st,
		}).Get(ctx, nil)
	}

	var ws activities.PrepareWorkspaceOutput
	if err := workflow.ExecuteActivity(ctx, "PrepareWorkspaceActivity", activities.PrepareWorkspaceInput{
		Title:  input.Title,
		Author: input.Author,
		Cover:  input.Cover,
	}).Get(ctx, &ws); err != nil {
		return BookConvertResult{}, err
	}

	var listOut activities.ListChaptersOutput
	if err := workflow.ExecuteActivity(ctx, "ListChaptersActivity", activities.ListChaptersInput{SourceDir: ws.SourceDir}).Get(ctx, &listOut); err != nil {
		return BookConvertResult{}, err
	}
	progress.Total = len(listOut.Chapters)
	for _, ch := range listOut.Chapters {
		progress.Chapters = append(progress.Chapters, ChapterProgress{
			Filename:    ch.Filename,
			DisplayName: ch.DisplayName,
			State:       chapterPending,
		})
	}

	fail := func(i int, ch chapters.Chapter, reason string, ce *notebook.CellError) (BookConvertResult, error) {
		progress.Chapters[i].State = chapterFailed
		st := status.Failed(ch.Filename, reason)
		if err := setStatus(st); err != nil {
			return BookConvertResult{}, err
		}
		logger.Error("chapter failed", "book", input.Title, "chapter", ch.Filename, "reason", reason)
		return BookConvertResult{Status: st.String(), Chapters: progress.Done, Failure: ce}, nil
	}

	entries := make([]manifest.Chapter, 0, len(listOut.Chapters))
	for i, ch := range listOut.Chapters {
		progress.Chapters[i].State = chapterExecuting
		if err := setStatus(status.Executing(ch.Filename)); err != nil {
			return BookConvertResult{}, err
		}

		var execOut activities.ExecuteChapterOutput
		if err := workflow.ExecuteActivity(execCtx, "ExecuteChapterActivity", activities.ExecuteChapterInput{
			Chapter: ch,
			ExecDir: ws.ExecDir,
		}).Get(ctx, &execOut); err != nil {
			ce, ok := cellErrorFrom(err, ch.Filename)
			if !ok {
				return BookConvertResult{}, err
			}
			logger.Error("chapter execution failed", "chapter", ce.Chapter, "cell", ce.CellIndex, "message", ce.Message)
			return fail(i, ch, ce.Message, &ce)
		}

		progress.Chapters[i].State = chapterRendering
		renderIn := activities.RenderChapterInput{
			ExecutedPath: execOut.ExecutedPath,
			WorkDir:      ws.WorkDir,
			DisplayName:  ch.DisplayName,
		}
		var slidesOut, flowOut activities.RenderChapterOutput
		slidesErr := workflow.ExecuteActivity(ctx, "RenderSlidesActivity", renderIn).Get(ctx, &slidesOut)
		flowErr := workflow.ExecuteActivity(ctx, "RenderFlowDocActivity", renderIn).Get(ctx, &flowOut)
		if err := errors.Join(slidesErr, flowErr); err != nil {
			return fail(i, ch, failureMessage(err), nil)
		}

		entries = append(entries, manifest.Chapter{
			Name:   ch.DisplayName,
			Slides: slidesOut.File,
			MD:     flowOut.File,
		})
		progress.Chapters[i].State = chapterDone
		progress.Done++
	}

	m := manifest.New(input.Author, input.Title, input.Cover, entries)
	if err := workflow.ExecuteActivity(ctx, "WriteManifestActivity", activities.WriteManifestInput{
		WorkDir:  ws.WorkDir,
		Manifest: m,
	}).Get(ctx, nil); err != nil {
		return BookConvertResult{}, err
	}

	if err := setStatus(status.Packaging()); err != nil {
		return BookConvertResult{}, err
	}
	var pkgOut activities.PackageBookOutput
	if err := workflow.ExecuteActivity(ctx, "PackageBookActivity", activities.PackageBookInput{
		Title:   input.Title,
		Author:  input.Author,
		WorkDir: ws.WorkDir,
		ExecDir: ws.ExecDir,
	}).Get(ctx, &pkgOut); err != nil {
		return BookConvertResult{}, err
	}

	if err := setStatus(status.Completed()); err != nil {
		return BookConvertResult{}, err
	}
	logger.Info("book converted", "book", input.Title, "author", input.Author, "chapters", progress.Done)
	return BookConvertResult{
		Status:      status.Completed().String(),
		ArchivePath: pkgOut.ArchivePath,
		Chapters:    progress.Done,
	}, nil
}

// cellErrorFrom recovers the CellError carried by a failed execute activity.
// Other failures are not chapter failures and report false.
func cellErrorFrom(err error, chapter string) (notebook.CellError, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != activities.CellExecutionErrorType {
		return notebook.CellError{}, false
	}
	var ce notebook.CellError
	if appErr.HasDetails() && appErr.Details(&ce) == nil && ce.Chapter != "" {
		return ce, true
	}
	return notebook.CellError{Chapter: chapter, CellIndex: -1, Message: appErr.Error()}, true
}

func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
