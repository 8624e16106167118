package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIAddr             string
	TemporalAddress     string
	TemporalTaskQueue   string
	LedgerDSN           string
	BooksRoot           string
	ScratchRoot         string
	TemplateDir         string
	RenderConfigPath    string
	JupyterBin          string
	ExecuteTimeout      time.Duration
	ViewerBaseURL       string
	MaxUploadBytes      int64
	WorkerMaxActivities int
	LogLevel            string
	LogFormat           string
	Render              RenderConfig
}

func Load() Config {
	cfg := Config{
		APIAddr:             getenv("MBOOK_API_ADDR", ":8080"),
		TemporalAddress:     getenv("MBOOK_TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:   getenv("MBOOK_TEMPORAL_TASK_QUEUE", "mbook"),
		LedgerDSN:           getenv("MBOOK_LEDGER_DSN", "sqlite://./data/ledger.db"),
		BooksRoot:           getenv("MBOOK_BOOKS_ROOT", "./books"),
		ScratchRoot:         getenv("MBOOK_SCRATCH_ROOT", "./convert/.cache"),
		TemplateDir:         getenv("MBOOK_TEMPLATE_DIR", "./templates"),
		RenderConfigPath:    getenv("MBOOK_RENDER_CONFIG", ""),
		JupyterBin:          getenv("MBOOK_JUPYTER_BIN", "jupyter"),
		ExecuteTimeout:      getenvDuration("MBOOK_EXECUTE_TIMEOUT", 30*time.Minute),
		ViewerBaseURL:       getenv("MBOOK_VIEWER_BASE_URL", "https://manimbooks.kush.in"),
		MaxUploadBytes:      int64(getenvInt("MBOOK_MAX_UPLOAD_BYTES", 16<<20)),
		WorkerMaxActivities: getenvInt("MBOOK_WORKER_MAX_ACTIVITIES", 4),
		LogLevel:            getenv("MBOOK_LOG_LEVEL", "info"),
		LogFormat:           getenv("MBOOK_LOG_FORMAT", "text"),
	}
	cfg.Render = DefaultRenderConfig(cfg.TemplateDir)
	return cfg
}

// UploadRoot is the parent of every per-author upload directory.
func (c Config) UploadRoot() string {
	return filepath.Join(c.BooksRoot, "uploads")
}

// BookDir is the permanent directory holding a book's uploads and its packaged archive.
func (c Config) BookDir(author, title string) string {
	return filepath.Join(c.UploadRoot(), author, title)
}

// WorkDir is the staging directory a conversion run renders into. Titles live
// under their own subdirectory so no title can name the worker's files.
func (c Config) WorkDir(title string) string {
	return filepath.Join(c.ScratchRoot, "work", title)
}

// ExecDir holds the executed copies of a book's notebooks for one run.
func (c Config) ExecDir(title string) string {
	return filepath.Join(c.ScratchRoot, ".exec", title)
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
