package activities

import (
	"mbook/internal/chapters"
	"mbook/internal/manifest"
	"mbook/internal/status"
)

type UpdateBookStatusInput struct {
	Title  string        `json:"title"`
	Author string        `json:"author"`
	Status status.Status `json:"status"`
}

type PrepareWorkspaceInput struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Cover  *string `json:"cover,omitempty"`
}

type PrepareWorkspaceOutput struct {
	SourceDir string `json:"source_dir"`
	WorkDir   string `json:"work_dir"`
	ExecDir   string `json:"exec_dir"`
}

type ListChaptersInput struct {
	SourceDir string `json:"source_dir"`
}

type ListChaptersOutput struct {
	Chapters []chapters.Chapter `json:"chapters"`
}

type ExecuteChapterInput struct {
	Chapter chapters.Chapter `json:"chapter"`
	ExecDir string           `json:"exec_dir"`
}

type ExecuteChapterOutput struct {
	ExecutedPath string `json:"executed_path"`
}

type RenderChapterInput struct {
	ExecutedPath string `json:"executed_path"`
	WorkDir      string `json:"work_dir"`
	DisplayName  string `json:"display_name"`
}

type RenderChapterOutput struct {
	File string `json:"file"`
}

type WriteManifestInput struct {
	WorkDir  string            `json:"work_dir"`
	Manifest manifest.Manifest `json:"manifest"`
}

type WriteManifestOutput struct {
	Path string `json:"path"`
}

type PackageBookInput struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	WorkDir string `json:"work_dir"`
	ExecDir string `json:"exec_dir"`
}

type PackageBookOutput struct {
	ArchivePath string `json:"archive_path"`
}
