package util

import "errors"

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrBookExists      = errors.New("book already exists")
	ErrVersionConflict = errors.New("book record changed concurrently")
)
