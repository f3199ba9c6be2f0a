package ledger

import (
	"errors"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

var (
	ErrUnauthorized    = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrEmptyBatch      = errors.New("batch has no entries")
	ErrBatchTooLarge   = errors.New("batch exceeds entry ceiling")
	ErrInvalidEntry    = errors.New("invalid entry")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Stable error codes surfaced to callers.
const (
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeEmptyBatch      = "empty_batch"
	CodeBatchTooLarge   = "batch_too_large"
	CodeInvalidEntry    = "invalid_entry"
	CodeInvalidArgument = "invalid_argument"
	CodeInternal        = "internal"
)

// Code maps an error returned by this package (or access) to its stable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, access.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrEmptyBatch):
		return CodeEmptyBatch
	case errors.Is(err, ErrBatchTooLarge):
		return CodeBatchTooLarge
	case errors.Is(err, ErrInvalidEntry):
		return CodeInvalidEntry
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, access.ErrInvalidRole):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// ErrorFromCode is the inverse of Code for the sentinel errors. Unknown codes
// yield nil.
func ErrorFromCode(code string) error {
	switch code {
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeNotFound:
		return ErrNotFound
	case CodeEmptyBatch:
		return ErrEmptyBatch
	case CodeBatchTooLarge:
		return ErrBatchTooLarge
	case CodeInvalidEntry:
		return ErrInvalidEntry
	case CodeInvalidArgument:
		return ErrInvalidArgument
	default:
		return nil
	}
}
