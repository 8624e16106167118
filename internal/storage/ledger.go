package storage

import (
	"context"
	"errors"
	"fmt"

	"mbook/internal/models"
	"mbook/internal/status"
	"mbook/internal/util"
)

// Ledger is the book status store shared by the upload API and the converter.
//
// Upsert with Version 0 creates the record or replaces a stale one with the
// same key. A non-zero Version must match the stored one, otherwise
// util.ErrVersionConflict is returned. The stored record comes back with its
// new version. Delete removes a record and is a no-op for unknown keys.
type Ledger interface {
	FindByKey(ctx context.Context, title, author string) (models.Book, error)
	Upsert(ctx context.Context, b models.Book) (models.Book, error)
	Delete(ctx context.Context, title, author string) error
	ListRecent(ctx context.Context, limit int) ([]models.Book, error)
	Close() error
}

const statusWriteAttempts = 5

// UpdateStatus reads the book, replaces its status and writes it back,
// re-reading on version conflicts.
func UpdateStatus(ctx context.Context, l Ledger, title, author string, st status.Status) (models.Book, error) {
	var lastErr error
	for attempt := 0; attempt < statusWriteAttempts; attempt++ {
		b, err := l.FindByKey(ctx, title, author)
		if err != nil {
			return models.Book{}, err
		}
		b.Status = st.String()
		out, err := l.Upsert(ctx, b)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, util.ErrVersionConflict) {
			return models.Book{}, err
		}
		lastErr = err
	}
	return models.Book{}, fmt.Errorf("update status of %q by %q after %d attempts: %w", title, author, statusWriteAttempts, lastErr)
}

// CurrentStatus returns the parsed status of a book.
func CurrentStatus(ctx context.Context, l Ledger, title, author string) (status.Status, error) {
	b, err := l.FindByKey(ctx, title, author)
	if err != nil {
		return status.Status{}, err
	}
	return status.Parse(b.Status)
}
