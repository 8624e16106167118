package storage

import (
	"context"
	"errors"
	"fmt"

	"mbook/internal/models"
	"mbook/internal/util"

	"github.com/jackc/pgx/v5"
)

const pgBooksSchema = `
CREATE TABLE IF NOT EXISTS books (
  book_name  TEXT NOT NULL,
  author     TEXT NOT NULL,
  id         TEXT NOT NULL,
  cover      TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  status     TEXT NOT NULL,
  version    BIGINT NOT NULL DEFAULT 1,
  PRIMARY KEY (book_name, author)
);
CREATE INDEX IF NOT EXISTS books_created_at_idx ON books (created_at DESC);`

// BookRepo is the Postgres ledger.
type BookRepo struct {
	db *DB
}

func NewBookRepo(db *DB) *BookRepo {
	return &BookRepo{db: db}
}

func (r *BookRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, pgBooksSchema); err != nil {
		return fmt.Errorf("ensure books schema: %w", err)
	}
	return nil
}

func (r *BookRepo) FindByKey(ctx context.Context, title, author string) (models.Book, error) {
	var b models.Book
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, book_name, author, created_at, cover, status, version
FROM books
WHERE book_name=$1 AND author=$2`, title, author).
		Scan(&b.ID, &b.BookName, &b.Author, &b.Timestamp, &b.Cover, &b.Status, &b.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Book{}, util.ErrBookNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("find book: %w", err)
	}
	b.Timestamp = b.Timestamp.UTC()
	return b, nil
}

func (r *BookRepo) Upsert(ctx context.Context, b models.Book) (models.Book, error) {
	var version int64
	var err error
	if b.Version == 0 {
		err = r.db.Pool.QueryRow(ctx, `
INSERT INTO books (book_name, author, id, cover, created_at, status, version)
VALUES ($1, $2, $3, $4, $5, $6, 1)
ON CONFLICT (book_name, author)
DO UPDATE SET
  id = EXCLUDED.id,
  cover = EXCLUDED.cover,
  created_at = EXCLUDED.created_at,
  status = EXCLUDED.status,
  version = books.version + 1
RETURNING version`,
			b.BookName, b.Author, b.ID, b.Cover, b.Timestamp.UTC(), b.Status,
		).Scan(&version)
	} else {
		err = r.db.Pool.QueryRow(ctx, `
UPDATE books SET id=$3, cover=$4, created_at=$5, status=$6, version=version+1
WHERE book_name=$1 AND author=$2 AND version=$7
RETURNING version`,
			b.BookName, b.Author, b.ID, b.Cover, b.Timestamp.UTC(), b.Status, b.Version,
		).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, util.ErrVersionConflict
		}
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("upsert book: %w", err)
	}
	b.Version = version
	return b, nil
}

func (r *BookRepo) Delete(ctx context.Context, title, author string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM books WHERE book_name=$1 AND author=$2`, title, author); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

func (r *BookRepo) ListRecent(ctx context.Context, limit int) ([]models.Book, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, book_name, author, created_at, cover, status, version
FROM books
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	out := make([]models.Book, 0)
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.BookName, &b.Author, &b.Timestamp, &b.Cover, &b.Status, &b.Version); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return out, nil
}

func (r *BookRepo) Close() error {
	r.db.Close()
	return nil
}
