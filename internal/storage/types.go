package storage

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")

	// ErrUnavailable indicates the backend could not be reached.
	ErrUnavailable = errors.New("storage unavailable")
)

// Limits for list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// NormalizeLimit applies the default and maximum list limits.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// IsUniqueViolation reports whether err came from a unique constraint.
// Both the SQLite and PostgreSQL drivers put the word "unique" in the message;
// lib/pq errors are additionally matched on their SQLSTATE by the postgres package.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
