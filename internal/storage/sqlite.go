package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"mbook/internal/models"
	"mbook/internal/util"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC layout so created_at sorts correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

var sqliteBooksSchema = []string{`
CREATE TABLE IF NOT EXISTS books (
  book_name  TEXT NOT NULL,
  author     TEXT NOT NULL,
  id         TEXT NOT NULL,
  cover      TEXT,
  created_at TEXT NOT NULL,
  status     TEXT NOT NULL,
  version    INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY (book_name, author)
)`,
	`CREATE INDEX IF NOT EXISTS books_created_at_idx ON books (created_at DESC)`,
}

// SQLiteBookRepo is the single-node ledger backed by an SQLite file.
type SQLiteBookRepo struct {
	db   *sql.DB
	path string
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteBookRepo, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	for _, stmt := range sqliteBooksSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure books schema: %w", err)
		}
	}
	return &SQLiteBookRepo{db: db, path: path}, nil
}

func (r *SQLiteBookRepo) FindByKey(ctx context.Context, title, author string) (models.Book, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, book_name, author, created_at, cover, status, version
FROM books
WHERE book_name=? AND author=?`, title, author)
	b, err := scanSQLiteBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, util.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("find book: %w", err)
	}
	return b, nil
}

func (r *SQLiteBookRepo) Upsert(ctx context.Context, b models.Book) (models.Book, error) {
	created := b.Timestamp.UTC().Format(sqliteTimeLayout)
	var cover sql.NullString
	if b.Cover != nil {
		cover = sql.NullString{String: *b.Cover, Valid: true}
	}
	var version int64
	var err error
	if b.Version == 0 {
		err = r.db.QueryRowContext(ctx, `
INSERT INTO books (book_name, author, id, cover, created_at, status, version)
VALUES (?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (book_name, author)
DO UPDATE SET
  id = excluded.id,
  cover = excluded.cover,
  created_at = excluded.created_at,
  status = excluded.status,
  version = books.version + 1
RETURNING version`,
			b.BookName, b.Author, b.ID, cover, created, b.Status,
		).Scan(&version)
	} else {
		err = r.db.QueryRowContext(ctx, `
UPDATE books SET id=?, cover=?, created_at=?, status=?, version=version+1
WHERE book_name=? AND author=? AND version=?
RETURNING version`,
			b.ID, cover, created, b.Status, b.BookName, b.Author, b.Version,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Book{}, util.ErrVersionConflict
		}
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("upsert book: %w", err)
	}
	b.Version = version
	return b, nil
}

func (r *SQLiteBookRepo) Delete(ctx context.Context, title, author string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE book_name=? AND author=?`, title, author); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

func (r *SQLiteBookRepo) ListRecent(ctx context.Context, limit int) ([]models.Book, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, book_name, author, created_at, cover, status, version
FROM books
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]models.Book, 0)
	for rows.Next() {
		b, err := scanSQLiteBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return out, nil
}

func (r *SQLiteBookRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBook(row rowScanner) (models.Book, error) {
	var (
		b       models.Book
		created string
		cover   sql.NullString
	)
	if err := row.Scan(&b.ID, &b.BookName, &b.Author, &created, &cover, &b.Status, &b.Version); err != nil {
		return models.Book{}, err
	}
	ts, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return models.Book{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	b.Timestamp = ts
	if cover.Valid {
		c := cover.String
		b.Cover = &c
	}
	return b, nil
}
