package repository

import (
	"errors"

	"flat-todo/internal/codec"
)

var (
	// ErrDataDirUnavailable means the data directory is missing or cannot be
	// read. Callers treat it as fatal.
	ErrDataDirUnavailable = errors.New("data directory is not available")

	// ErrInvalidCategory is returned when a write targets a name that fails
	// the category rule.
	ErrInvalidCategory = errors.New("invalid category name")

	// ErrCategoryCollision is returned when a rename targets a category that
	// already has a file.
	ErrCategoryCollision = errors.New("target category already exists")

	// ErrUnrepresentableName is returned when a category name cannot be
	// stored under the configured file name encoding without colliding.
	ErrUnrepresentableName = codec.ErrUnrepresentable

	// ErrUserNotFound is returned by the user registry.
	ErrUserNotFound = errors.New("user not found")
)
