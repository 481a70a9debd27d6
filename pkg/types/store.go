package types

import (
	"context"
	"time"
)

// Store defines the interface for the vocabulary store. Callers attach to a
// backend, use its components, and detach when done.
type Store interface {
	// Attach opens the backend described by config. Creates the DataDir if
	// it does not exist. Returns ErrAlreadyAttached if called while attached
	// and ErrStorageUnavailable if the store cannot be opened.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, component operations return ErrStoreDetached.
	Detach() error

	Notes() NoteRepository
	Dictionary() DictionaryStore
	Ledger() TestLedger
	Selector() Selector
	Snapshots() Snapshotter

	// ExportNotes writes every note to path as JSON lines and returns the
	// number written. The file is replaced atomically.
	ExportNotes(ctx context.Context, path string) (int, error)

	// ImportNotes reads JSON lines from path and inserts them as one batch.
	// A malformed line aborts the import before anything is written.
	ImportNotes(ctx context.Context, path string) ([]int64, error)
}

// NoteRepository owns the notes table. Every write recomputes the search
// fields from the raw glosses and pronunciation.
type NoteRepository interface {
	// Insert stores a note and returns its new id. A zero TimeCreated is
	// replaced with the current time.
	Insert(ctx context.Context, note Note) (int64, error)

	// InsertBatch stores all notes in one transaction. If any note fails
	// normalization nothing is written.
	InsertBatch(ctx context.Context, notes []Note) ([]int64, error)

	// Get returns the note with the given id or ErrNotFound.
	Get(ctx context.Context, id int64) (Note, error)

	// Delete removes a note and its test history. Missing ids are a no-op.
	Delete(ctx context.Context, id int64) error

	ListAll(ctx context.Context) ([]Note, error)
	ListByType(ctx context.Context, t NoteType) ([]Note, error)

	// Update replaces the editable fields of the note with note.ID. Missing
	// ids are a no-op. Creation time and test aggregates are left alone.
	Update(ctx context.Context, note Note) error

	// SearchPredictions runs independent prefix queries over the gloss and
	// pronunciation search fields.
	SearchPredictions(ctx context.Context, query string) (NoteSearchResults, error)
}

// DictionaryStore answers pronunciation lookups against the read-only
// dictionary.
type DictionaryStore interface {
	// Lookup returns up to 50 entries: exact pronunciation matches first,
	// then prefix matches, each group in storage order.
	Lookup(ctx context.Context, query string) ([]DictionaryEntry, error)
}

// TestLedger records test results and keeps note aggregates in sync.
type TestLedger interface {
	// RecordResults merges one test session into each note's history under
	// the calendar day of submittedAt. ids and correct are parallel.
	RecordResults(ctx context.Context, ids []int64, correct []bool, submittedAt time.Time) error

	// RecordCounts merges pre-tallied counts for a single note.
	RecordCounts(ctx context.Context, id int64, correct, incorrect int, submittedAt time.Time) error

	// History returns the stored history of a note, empty if none.
	History(ctx context.Context, id int64) (NoteTestData, error)
}

// Selector chooses notes for a study session.
type Selector interface {
	// SelectForTest returns up to count notes chosen by mode. When count
	// exceeds the number of notes every note is returned.
	SelectForTest(ctx context.Context, count int, mode SelectionMode) ([]Note, error)
}

// Snapshotter writes point-in-time copies of the notes database.
type Snapshotter interface {
	// Snapshot writes notes.db_<epoch-millis> into dir and prunes the
	// oldest snapshots beyond retention. Returns the new snapshot path.
	Snapshot(ctx context.Context, dir string, retention int) (string, error)
}
