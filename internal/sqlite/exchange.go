// This file implements notes export and import as JSON lines.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// ExportNotes writes every note to path, one JSON object per line.
func (b *Backend) ExportNotes(ctx context.Context, path string) (int, error) {
	notes, err := b.Notes().ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing notes: %w", err)
	}
	if err := writeJSONL(path, notes); err != nil {
		return 0, fmt.Errorf("exporting notes: %w", err)
	}
	b.logger.Info("exported notes", slog.String("path", path), slog.Int("count", len(notes)))
	return len(notes), nil
}

// ImportNotes inserts the notes in a JSONL file as one batch. Ids in the
// file are ignored and fresh ones assigned; search fields are recomputed.
// Aggregates are reset because the test history is not part of the export.
func (b *Backend) ImportNotes(ctx context.Context, path string) ([]int64, error) {
	db, err := b.notesDB()
	if err != nil {
		return nil, err
	}

	notes, err := readJSONL[types.Note](path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidInput, err)
	}
	for i := range notes {
		notes[i].ID = 0
		notes[i].TotalCorrectAnswers = 0
		notes[i].TotalIncorrectAnswers = 0
		notes[i].TimeWeightedCorrectness = 0
	}

	ids, err := b.insertBatch(ctx, db, notes)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	b.logger.Info("imported notes", slog.String("path", path), slog.Int("count", len(ids)))
	return ids, nil
}
