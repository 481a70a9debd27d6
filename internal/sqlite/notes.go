// This file implements the note repository over the notes table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/mesh-intelligence/cidian/internal/normalize"
	"github.com/mesh-intelligence/cidian/pkg/types"
)

const notesTable = "notes"

// noteColumns is the select list matched by scanNote.
var noteColumns = []string{
	"id", "type", "english", "english_searchable", "pinyin", "pinyin_searchable",
	"simplified", "notes", "time_created", "total_correct", "total_incorrect",
	"weighted_correctness",
}

// builder produces SQLite-flavored statements.
var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// dbExecutor is satisfied by both *sql.DB and *sql.Tx.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// noteRepository implements types.NoteRepository.
type noteRepository struct {
	b *Backend
}

// Insert normalizes and stores a single note.
func (r *noteRepository) Insert(ctx context.Context, note types.Note) (int64, error) {
	db, err := r.b.notesDB()
	if err != nil {
		return 0, err
	}
	id, err := r.b.insertNote(ctx, db, note)
	if err != nil {
		return 0, fmt.Errorf("inserting note: %w", err)
	}
	return id, nil
}

// InsertBatch stores all notes in one transaction.
func (r *noteRepository) InsertBatch(ctx context.Context, notes []types.Note) ([]int64, error) {
	db, err := r.b.notesDB()
	if err != nil {
		return nil, err
	}
	return r.b.insertBatch(ctx, db, notes)
}

func (b *Backend) insertBatch(ctx context.Context, db *sql.DB, notes []types.Note) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(notes))
	for i, note := range notes {
		id, err := b.insertNote(ctx, tx, note)
		if err != nil {
			return nil, fmt.Errorf("inserting note %d of %d: %w", i+1, len(notes), err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	b.logger.Debug("inserted note batch", slog.Int("count", len(ids)))
	return ids, nil
}

// insertNote derives the search fields and writes one row.
func (b *Backend) insertNote(ctx context.Context, exec dbExecutor, note types.Note) (int64, error) {
	row, err := noteRow(note)
	if err != nil {
		return 0, err
	}
	if err := validateAggregates(note); err != nil {
		return 0, err
	}
	created := note.TimeCreated
	if created == 0 {
		created = b.now().UnixMilli()
	}

	query, args, err := builder.Insert(notesTable).
		Columns(
			"type", "english", "english_searchable", "pinyin", "pinyin_searchable",
			"simplified", "notes", "time_created", "total_correct", "total_incorrect",
			"weighted_correctness",
		).
		Values(
			row.noteType, row.english, row.englishSearchable, row.pinyin, row.pinyinSearchable,
			note.Simplified, note.Notes, created, note.TotalCorrectAnswers, note.TotalIncorrectAnswers,
			note.TimeWeightedCorrectness,
		).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building insert: %w", err)
	}

	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("persisting note: %w", err)
	}
	return res.LastInsertId()
}

// Get returns a single note by id.
func (r *noteRepository) Get(ctx context.Context, id int64) (types.Note, error) {
	db, err := r.b.notesDB()
	if err != nil {
		return types.Note{}, err
	}

	notes, err := queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return types.Note{}, err
	}
	if len(notes) == 0 {
		return types.Note{}, fmt.Errorf("note %d: %w", id, types.ErrNotFound)
	}
	return notes[0], nil
}

// Delete removes the note and its test history in one transaction.
func (r *noteRepository) Delete(ctx context.Context, id int64) error {
	db, err := r.b.notesDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{testTable, notesTable} {
		query, args, err := builder.Delete(table).Where(squirrel.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("building delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// ListAll returns every note in storage order.
func (r *noteRepository) ListAll(ctx context.Context) ([]types.Note, error) {
	db, err := r.b.notesDB()
	if err != nil {
		return nil, err
	}
	return queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).OrderBy("id"))
}

// ListByType returns the notes of one type in storage order.
func (r *noteRepository) ListByType(ctx context.Context, t types.NoteType) ([]types.Note, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidNoteType, int(t))
	}
	db, err := r.b.notesDB()
	if err != nil {
		return nil, err
	}
	return queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).
		Where(squirrel.Eq{"type": int(t)}).
		OrderBy("id"))
}

// Update rewrites the editable fields and recomputes the search fields.
func (r *noteRepository) Update(ctx context.Context, note types.Note) error {
	row, err := noteRow(note)
	if err != nil {
		return fmt.Errorf("updating note %d: %w", note.ID, err)
	}
	db, err := r.b.notesDB()
	if err != nil {
		return err
	}

	query, args, err := builder.Update(notesTable).
		SetMap(map[string]any{
			"type":               row.noteType,
			"english":            row.english,
			"english_searchable": row.englishSearchable,
			"pinyin":             row.pinyin,
			"pinyin_searchable":  row.pinyinSearchable,
			"simplified":         note.Simplified,
			"notes":              note.Notes,
		}).
		Where(squirrel.Eq{"id": note.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating note %d: %w", note.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.b.logger.Debug("update skipped, note not found", slog.Int64("id", note.ID))
	}
	return nil
}

// SearchPredictions runs the gloss and pronunciation prefix queries.
// An empty query matches nothing.
func (r *noteRepository) SearchPredictions(ctx context.Context, q string) (types.NoteSearchResults, error) {
	db, err := r.b.notesDB()
	if err != nil {
		return types.NoteSearchResults{}, err
	}

	results := types.NoteSearchResults{EnglishResults: []types.Note{}, PinyinResults: []types.Note{}}
	if english := normalize.GlossQuery(q); english != "" {
		results.EnglishResults, err = queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).
			Where(prefixMatch("english_searchable", english)).
			OrderBy("id"))
		if err != nil {
			return types.NoteSearchResults{}, fmt.Errorf("searching glosses: %w", err)
		}
	}
	if pinyin := normalize.PinyinQuery(q); pinyin != "" {
		results.PinyinResults, err = queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).
			Where(prefixMatch("pinyin_searchable", pinyin)).
			OrderBy("id"))
		if err != nil {
			return types.NoteSearchResults{}, fmt.Errorf("searching pronunciation: %w", err)
		}
	}
	return results, nil
}

// updateAggregates writes the ledger-owned counters onto a note. It touches
// no other column.
func updateAggregates(ctx context.Context, exec dbExecutor, id int64, agg types.Aggregates) error {
	query, args, err := builder.Update(notesTable).
		Set("total_correct", agg.TotalCorrect).
		Set("total_incorrect", agg.TotalIncorrect).
		Set("weighted_correctness", agg.TimeWeightedCorrectness).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building aggregate update: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating aggregates: %w", err)
	}
	return nil
}

// storedNote holds the column values derived from a note on every write.
type storedNote struct {
	noteType          int
	english           string
	englishSearchable string
	pinyin            string
	pinyinSearchable  string
}

// noteRow validates a note and derives its stored column values.
func noteRow(note types.Note) (storedNote, error) {
	if !note.Type.Valid() {
		return storedNote{}, fmt.Errorf("%w: %d", types.ErrInvalidNoteType, int(note.Type))
	}
	fields, err := normalize.SearchFields(note.English, note.Pinyin)
	if err != nil {
		return storedNote{}, err
	}
	english, err := marshalStrings(note.English)
	if err != nil {
		return storedNote{}, fmt.Errorf("encoding english: %w", err)
	}
	pinyin, err := marshalStrings(note.Pinyin)
	if err != nil {
		return storedNote{}, fmt.Errorf("encoding pinyin: %w", err)
	}
	return storedNote{
		noteType:          int(note.Type),
		english:           english,
		englishSearchable: fields.EnglishSearchable,
		pinyin:            pinyin,
		pinyinSearchable:  fields.PinyinSearchable,
	}, nil
}

// validateAggregates checks the test counters a caller supplies on insert:
// counts are non-negative and the weighted correctness lies in [0, 1].
func validateAggregates(note types.Note) error {
	if note.TotalCorrectAnswers < 0 || note.TotalIncorrectAnswers < 0 {
		return fmt.Errorf("%w: negative answer count", types.ErrInvalidInput)
	}
	if w := note.TimeWeightedCorrectness; !(w >= 0 && w <= 1) {
		return fmt.Errorf("%w: weighted correctness %v outside [0, 1]", types.ErrInvalidInput, w)
	}
	return nil
}

// marshalStrings encodes a string sequence as a JSON array; nil becomes [].
func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalStrings decodes a JSON array column. Rows carried over from the
// original notes layout may hold a JSON string, possibly wrapping an encoded
// array, or plain text; a lone string becomes one element.
func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}
	var single string
	if err := json.Unmarshal([]byte(raw), &single); err == nil {
		if err := json.Unmarshal([]byte(single), &out); err == nil {
			return out, nil
		}
		return []string{single}, nil
	}
	if json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("unexpected JSON %.40q", raw)
	}
	return []string{raw}, nil
}

// queryNotes runs a select over noteColumns and scans every row.
func queryNotes(ctx context.Context, exec dbExecutor, sb squirrel.SelectBuilder) ([]types.Note, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	notes := []types.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	return notes, nil
}

// scanNote reads one row selected with noteColumns.
func scanNote(rows *sql.Rows) (types.Note, error) {
	var (
		n               types.Note
		noteType        int
		english, pinyin string
	)
	err := rows.Scan(&n.ID, &noteType, &english, &n.EnglishSearchable, &pinyin, &n.PinyinSearchable,
		&n.Simplified, &n.Notes, &n.TimeCreated, &n.TotalCorrectAnswers, &n.TotalIncorrectAnswers,
		&n.TimeWeightedCorrectness)
	if err != nil {
		return types.Note{}, fmt.Errorf("scanning note: %w", err)
	}
	n.Type = types.NoteType(noteType)
	if n.English, err = unmarshalStrings(english); err != nil {
		return types.Note{}, fmt.Errorf("decoding english of note %d: %w", n.ID, err)
	}
	if n.Pinyin, err = unmarshalStrings(pinyin); err != nil {
		return types.Note{}, fmt.Errorf("decoding pinyin of note %d: %w", n.ID, err)
	}
	return n, nil
}

// likeEscaper escapes LIKE wildcards so user text matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// prefixMatch returns "column LIKE 'prefix%'" with the prefix escaped.
func prefixMatch(column, prefix string) squirrel.Sqlizer {
	return squirrel.Expr(column+` LIKE ? ESCAPE '\'`, likeEscaper.Replace(prefix)+"%")
}
