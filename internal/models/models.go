package models

import (
	"time"

	"github.com/google/uuid"
)

// Book is the ledger record for one conversion job. Title and author form its key.
type Book struct {
	ID        string    `json:"id"`
	BookName  string    `json:"bookName"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Cover     *string   `json:"cover"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
}

// BookID is the stable identifier of the book keyed by title and author. Both
// parts are single path segments, so the "/" join cannot be ambiguous.
func BookID(title, author string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(author+"/"+title)).String()
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
