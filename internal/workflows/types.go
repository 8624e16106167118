package workflows

import (
	"time"

	"mbook/internal/notebook"
	"mbook/internal/status"
)

type BookConvertInput struct {
	Title          string        `json:"title"`
	Author         string        `json:"author"`
	Cover          *string       `json:"cover,omitempty"`
	ExecuteTimeout time.Duration `json:"execute_timeout,omitempty"`
}

type BookConvertResult struct {
	Status      string              `json:"status"`
	ArchivePath string              `json:"archive_path,omitempty"`
	Chapters    int                 `json:"chapters"`
	Failure     *notebook.CellError `json:"failure,omitempty"`
}

// ConversionProgress is returned by the GetConversionProgress query.
type ConversionProgress struct {
	Title    string            `json:"title"`
	Author   string            `json:"author"`
	Status   status.Status     `json:"status"`
	Display  string            `json:"display"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Chapters []ChapterProgress `json:"chapters"`
}

type ChapterProgress struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
}

const (
	chapterPending   = "pending"
	chapterExecuting = "executing"
	chapterRendering = "rendering"
	chapterDone      = "done"
	chapterFailed    = "failed"
)
