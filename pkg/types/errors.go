package types

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the root of every malformed-input error. Callers can
// test for it with errors.Is to tell bad requests from storage failures.
var ErrInvalidInput = errors.New("invalid input")

// Malformed input errors. Each wraps ErrInvalidInput.
var (
	ErrMalformedPronunciation = fmt.Errorf("%w: malformed pronunciation", ErrInvalidInput)
	ErrInvalidNoteType        = fmt.Errorf("%w: invalid note type", ErrInvalidInput)
	ErrMismatchedResults      = fmt.Errorf("%w: ids and correctness flags differ in length", ErrInvalidInput)
	ErrInvalidSelectionMode   = fmt.Errorf("%w: invalid selection mode", ErrInvalidInput)
)

// Store lifecycle and availability errors.
var (
	ErrStoreDetached       = errors.New("store is detached")
	ErrAlreadyAttached     = errors.New("store is already attached")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrDictionaryNotLoaded = errors.New("dictionary not loaded")
)

// ErrNotFound is returned by single-record reads. Deletes and updates
// against a missing id are no-ops and never return it.
var ErrNotFound = errors.New("not found")

// ErrNoBackupDirectory reports that a snapshot was requested without a
// configured backup directory. Callers treat it as a warning.
var ErrNoBackupDirectory = errors.New("no backup directory configured")
