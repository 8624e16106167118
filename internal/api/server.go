package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mbook/internal/chapters"
	"mbook/internal/config"
	"mbook/internal/models"
	"mbook/internal/status"
	"mbook/internal/storage"
	"mbook/internal/util"
	"mbook/internal/workflows"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const recentBooksLimit = 100

var coverExtensions = map[string]bool{"png": true, "jpg": true, "jpeg": true, "webp": true}

type Server struct {
	cfg      config.Config
	ledger   storage.Ledger
	launcher workflows.Launcher
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewServer(cfg config.Config, ledger storage.Ledger, launcher workflows.Launcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		ledger:   ledger,
		launcher: launcher,
		validate: newValidator(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/new_book", s.handleNewBook)
	r.Get("/get_books", s.handleGetBooks)
	r.Get("/get_status", s.handleGetStatus)
	r.Handle("/books/*", http.StripPrefix("/books/", http.FileServer(http.Dir(s.cfg.BooksRoot))))
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type newBookForm struct {
	Title  string `form:"book_title" validate:"required,pathsegment"`
	Author string `form:"author" validate:"required,pathsegment"`
}

type upload struct {
	header *multipart.FileHeader
	name   string
}

func (s *Server) handleNewBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 32<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, badRequest("Upload is too large"))
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			writeErr(w, http.StatusBadRequest, badRequest("Incomplete form"))
			return
		}
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	form := newBookForm{
		Title:  strings.TrimSpace(r.FormValue("book_title")),
		Author: strings.TrimSpace(r.FormValue("author")),
	}
	if err := s.validate.Struct(form); err != nil {
		writeErr(w, http.StatusBadRequest, formError(err))
		return
	}

	bookDir := s.cfg.BookDir(form.Author, form.Title)
	if util.Exists(bookDir) {
		writeErr(w, http.StatusBadRequest, util.ErrBookExists)
		return
	}

	mf := r.MultipartForm
	if mf == nil {
		mf = &multipart.Form{}
	}
	cover, chapterFiles, err := checkUploads(mf)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := util.EnsureDir(bookDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for _, u := range append([]upload{cover}, chapterFiles...) {
		if err := saveUploadedFile(bookDir, u.name, u.header); err != nil {
			_ = os.RemoveAll(bookDir)
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}

	book := models.Book{
		ID:        models.BookID(form.Title, form.Author),
		BookName:  form.Title,
		Author:    form.Author,
		Timestamp: s.now(),
		Cover:     models.StringPtr(cover.name),
		Status:    status.Queued().String(),
	}
	if _, err := s.ledger.Upsert(r.Context(), book); err != nil {
		_ = os.RemoveAll(bookDir)
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("book added", "book", book.BookName, "author", book.Author, "id", book.ID, "chapters", len(chapterFiles))

	wfID, err := s.launcher.StartBookConversion(r.Context(), workflows.BookConvertInput{
		Title:  form.Title,
		Author: form.Author,
		Cover:  book.Cover,
	})
	if err != nil {
		s.logger.Error("start conversion", "book", book.BookName, "author", book.Author, "error", err)
		s.discardUpload(r.Context(), bookDir, form.Title, form.Author)
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("conversion started", "book", book.BookName, "author", book.Author, "workflow_id", wfID)

	http.Redirect(w, r, s.viewerURL(form.Author, form.Title), http.StatusFound)
}

// discardUpload undoes a stored upload whose conversion never started so the
// same book can be uploaded again.
func (s *Server) discardUpload(ctx context.Context, bookDir, title, author string) {
	if err := s.ledger.Delete(ctx, title, author); err != nil {
		s.logger.Error("discard book record", "book", title, "author", author, "error", err)
	}
	if err := os.RemoveAll(bookDir); err != nil {
		s.logger.Error("discard book upload", "book", title, "author", author, "error", err)
	}
}

// checkUploads validates every uploaded part before anything is written. The
// part named "cover" is the cover image, every other file part is a chapter.
// A part sent without a filename arrives as a plain value.
func checkUploads(mf *multipart.Form) (upload, []upload, error) {
	files := mf.File
	covers, ok := files["cover"]
	if !ok || len(covers) == 0 {
		if _, sent := mf.Value["cover"]; sent {
			return upload{}, nil, badRequest("No cover page selected for uploading")
		}
		return upload{}, nil, badRequest("No cover page in the request")
	}
	fh := covers[0]
	if fh.Filename == "" {
		return upload{}, nil, badRequest("No cover page selected for uploading")
	}
	ext := util.Ext(util.SecureFilename(fh.Filename))
	if !coverExtensions[ext] {
		return upload{}, nil, badRequest("Allowed file types are png, jpg, jpeg, webp")
	}
	cover := upload{header: fh, name: "cover." + ext}

	var out []upload
	for field, headers := range files {
		if field == "cover" {
			continue
		}
		for _, fh := range headers {
			name := util.SecureFilename(fh.Filename)
			if fh.Filename == "" || name == "" {
				return upload{}, nil, badRequest("No chapter selected for uploading")
			}
			if !chapters.IsChapterFile(name) {
				return upload{}, nil, badRequest("Only ipynb files are allowed")
			}
			out = append(out, upload{header: fh, name: name})
		}
	}
	if len(out) == 0 {
		return upload{}, nil, badRequest("No chapter selected for uploading")
	}
	return cover, out, nil
}

func (s *Server) viewerURL(author, title string) string {
	return strings.TrimRight(s.cfg.ViewerBaseURL, "/") + "/" + url.PathEscape(author) + "/" + url.PathEscape(title)
}

func (s *Server) handleGetBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.ledger.ListRecent(r.Context(), recentBooksLimit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("book_title"))
	author := strings.TrimSpace(r.URL.Query().Get("author"))
	if title == "" || author == "" {
		writeErr(w, http.StatusBadRequest, badRequest("Incomplete request"))
		return
	}
	book, err := s.ledger.FindByKey(r.Context(), title, author)
	if errors.Is(err, util.ErrBookNotFound) {
		writeErr(w, http.StatusBadRequest, badRequest("Book does not exist"))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, []models.Book{book})
}

func saveUploadedFile(dstDir, name string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dstDir, name)); err != nil {
		return fmt.Errorf("atomic move upload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
