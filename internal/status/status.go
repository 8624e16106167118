// Package status models the conversion state machine of a book. Values are
// rendered to the free-text ledger form only by String and read back by Parse.
package status

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindQueued Kind = iota
	KindExecuting
	KindFailed
	KindPackaging
	KindCompleted
)

func (k Kind) String() string {
	switch k {
	case KindQueued:
		return "queued"
	case KindExecuting:
		return "executing"
	case KindFailed:
		return "failed"
	case KindPackaging:
		return "packaging"
	case KindCompleted:
		return "completed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	displayQueued    = "Converting"
	displayPackaging = "Creating book"
	displayCompleted = "Completed"
	prefixExecuting  = "Converting "
	prefixFailed     = "Error in "
)

// Status is one state of a book conversion. Chapter is set for Executing and
// Failed; Reason only for Failed and never reaches the ledger string.
type Status struct {
	Kind    Kind   `json:"kind"`
	Chapter string `json:"chapter,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func Queued() Status { return Status{Kind: KindQueued} }

func Executing(chapter string) Status { return Status{Kind: KindExecuting, Chapter: chapter} }

func Failed(chapter, reason string) Status {
	return Status{Kind: KindFailed, Chapter: chapter, Reason: reason}
}

func Packaging() Status { return Status{Kind: KindPackaging} }

func Completed() Status { return Status{Kind: KindCompleted} }

// String renders the ledger display form.
func (s Status) String() string {
	switch s.Kind {
	case KindQueued:
		return displayQueued
	case KindExecuting:
		return prefixExecuting + s.Chapter
	case KindFailed:
		return prefixFailed + s.Chapter
	case KindPackaging:
		return displayPackaging
	case KindCompleted:
		return displayCompleted
	default:
		return s.Kind.String()
	}
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s.Kind == KindFailed || s.Kind == KindCompleted
}

// Parse reads a ledger display string back into a Status.
func Parse(display string) (Status, error) {
	switch {
	case display == displayQueued:
		return Queued(), nil
	case display == displayPackaging:
		return Packaging(), nil
	case display == displayCompleted:
		return Completed(), nil
	case strings.HasPrefix(display, prefixExecuting) && len(display) > len(prefixExecuting):
		return Executing(strings.TrimPrefix(display, prefixExecuting)), nil
	case strings.HasPrefix(display, prefixFailed) && len(display) > len(prefixFailed):
		return Failed(strings.TrimPrefix(display, prefixFailed), ""), nil
	default:
		return Status{}, fmt.Errorf("unknown book status %q", display)
	}
}
