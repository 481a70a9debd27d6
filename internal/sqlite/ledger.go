// This file implements the test history ledger: day-bucketed result blobs
// in the test table and the aggregates they fold into on the notes table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

const testTable = "test"

// testLedger implements types.TestLedger.
type testLedger struct {
	b *Backend
}

// tally is the result of one submission for one note.
type tally struct {
	id        int64
	correct   int
	incorrect int
}

// tallyResults collapses parallel id/flag slices into per-id counts, in the
// order ids are first seen. Repeated ids accumulate.
func tallyResults(ids []int64, correct []bool) []tally {
	index := make(map[int64]int, len(ids))
	var tallies []tally
	for i, id := range ids {
		pos, ok := index[id]
		if !ok {
			pos = len(tallies)
			index[id] = pos
			tallies = append(tallies, tally{id: id})
		}
		if correct[i] {
			tallies[pos].correct++
		} else {
			tallies[pos].incorrect++
		}
	}
	return tallies
}

// RecordResults merges one test session into each affected note's history.
// Each note is an independent unit: its history and aggregates commit
// together, and a failure for one note does not undo the others. Errors for
// all failed notes are joined.
func (l *testLedger) RecordResults(ctx context.Context, ids []int64, correct []bool, submittedAt time.Time) error {
	if len(ids) != len(correct) {
		return fmt.Errorf("%w: %d ids, %d flags", types.ErrMismatchedResults, len(ids), len(correct))
	}
	return l.record(ctx, tallyResults(ids, correct), submittedAt)
}

// RecordCounts merges already-tallied counts for a single note.
func (l *testLedger) RecordCounts(ctx context.Context, id int64, correct, incorrect int, submittedAt time.Time) error {
	if correct < 0 || incorrect < 0 {
		return fmt.Errorf("%w: negative result count", types.ErrInvalidInput)
	}
	return l.record(ctx, []tally{{id: id, correct: correct, incorrect: incorrect}}, submittedAt)
}

func (l *testLedger) record(ctx context.Context, tallies []tally, submittedAt time.Time) error {
	db, err := l.b.notesDB()
	if err != nil {
		return err
	}
	if len(tallies) == 0 {
		return nil
	}

	day := l.b.dayStart(submittedAt)
	halfLife := l.b.halfLifeDays()
	logger := l.b.logger.With(slog.String("submission", uuid.NewString()))

	l.b.ledgerMu.Lock()
	defer l.b.ledgerMu.Unlock()

	var errs []error
	for _, t := range tallies {
		if err := recordTally(ctx, db, t, day, halfLife, logger); err != nil {
			logger.Error("recording results failed", slog.Int64("id", t.id), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("recording results for note %d: %w", t.id, err))
		}
	}
	logger.Debug("recorded test results",
		slog.Int("notes", len(tallies)),
		slog.Int("failed", len(errs)),
		slog.Int64("day", day))
	return errors.Join(errs...)
}

// recordTally merges one note's counts and rewrites its aggregates in a
// single transaction. Unknown notes are skipped.
func recordTally(ctx context.Context, db *sql.DB, t tally, day int64, halfLife float64, logger *slog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM notes WHERE id = ?", t.id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Warn("skipping results for unknown note", slog.Int64("id", t.id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking note: %w", err)
	}

	history, err := readHistory(ctx, tx, t.id)
	if err != nil {
		return err
	}
	history = history.Merge(day, t.correct, t.incorrect)

	if err := writeHistory(ctx, tx, t.id, history); err != nil {
		return err
	}
	if err := updateAggregates(ctx, tx, t.id, history.Aggregate(halfLife)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

// History returns the stored history of a note.
func (l *testLedger) History(ctx context.Context, id int64) (types.NoteTestData, error) {
	db, err := l.b.notesDB()
	if err != nil {
		return nil, err
	}
	return readHistory(ctx, db, id)
}

// readHistory loads the history blob of a note; a missing row is an empty
// history.
func readHistory(ctx context.Context, exec dbExecutor, id int64) (types.NoteTestData, error) {
	query, args, err := builder.Select("data").From(testTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building history select: %w", err)
	}

	var raw string
	err = exec.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NoteTestData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	history := types.NoteTestData{}
	if raw == "" {
		return history, nil
	}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decoding history of note %d: %w", id, err)
	}
	return history, nil
}

// writeHistory replaces the history blob of a note.
func writeHistory(ctx context.Context, exec dbExecutor, id int64, history types.NoteTestData) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	query, args, err := builder.Insert(testTable).
		Columns("id", "data").
		Values(id, string(data)).
		Suffix("ON CONFLICT(id) DO UPDATE SET data = excluded.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("building history upsert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("persisting history: %w", err)
	}
	return nil
}
