// This file implements migration 3: it upgrades a notes.db written by the
// original desktop app (camelCase columns, no aggregates) to the current
// layout and folds its test history into the note aggregates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/mesh-intelligence/cidian/internal/normalize"
	"github.com/mesh-intelligence/cidian/pkg/types"
)

const upgradeVersion = 3

// upgradeMigration returns the Go migration that converts the original
// layout. Aggregates are folded with halfLife.
func upgradeMigration(logger *slog.Logger, halfLife float64) *goose.Migration {
	up := &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
		original, err := hasColumn(ctx, tx, notesTable, "englishSearchable")
		if err != nil {
			return err
		}
		if original {
			if err := upgradeNotes(ctx, tx, logger); err != nil {
				return err
			}
			if err := upgradeHistory(ctx, tx, logger, halfLife); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_notes_time_created ON notes(time_created)"); err != nil {
			return fmt.Errorf("creating creation time index: %w", err)
		}
		return nil
	}}
	down := &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DROP INDEX IF EXISTS idx_notes_time_created")
		return err
	}}
	return goose.NewGoMigration(upgradeVersion, up, down)
}

// hasColumn reports whether table has a column named column.
func hasColumn(ctx context.Context, exec dbExecutor, table, column string) (bool, error) {
	var n int
	err := exec.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspecting %s: %w", table, err)
	}
	return n > 0, nil
}

// originalNote is one row of the original notes table.
type originalNote struct {
	id          int64
	noteType    int64
	english     string
	pinyin      string
	simplified  string
	notes       string
	timeCreated int64
}

// upgradeNotes rebuilds the notes table in the current layout, keeping ids.
// Search fields are recomputed; pronunciations the current rules reject are
// normalized leniently instead of failing the upgrade.
func upgradeNotes(ctx context.Context, tx *sql.Tx, logger *slog.Logger) error {
	rows, err := tx.QueryContext(ctx, `SELECT id,
		COALESCE(CAST(type AS INTEGER), 0),
		COALESCE(english, ''),
		COALESCE(pinyin, ''),
		COALESCE(simplified, ''),
		COALESCE(notes, ''),
		COALESCE(CAST(timeCreated AS INTEGER), 0)
		FROM notes ORDER BY id`)
	if err != nil {
		return fmt.Errorf("reading original notes: %w", err)
	}
	var originals []originalNote
	for rows.Next() {
		var o originalNote
		if err := rows.Scan(&o.id, &o.noteType, &o.english, &o.pinyin, &o.simplified, &o.notes, &o.timeCreated); err != nil {
			rows.Close()
			return fmt.Errorf("scanning original note: %w", err)
		}
		originals = append(originals, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading original notes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE notes_upgraded (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type INTEGER NOT NULL,
		english TEXT NOT NULL,
		english_searchable TEXT NOT NULL,
		pinyin TEXT NOT NULL,
		pinyin_searchable TEXT NOT NULL,
		simplified TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		time_created INTEGER NOT NULL,
		total_correct INTEGER NOT NULL DEFAULT 0,
		total_incorrect INTEGER NOT NULL DEFAULT 0,
		weighted_correctness REAL NOT NULL DEFAULT 0
	)`); err != nil {
		return fmt.Errorf("creating upgraded notes table: %w", err)
	}

	for _, o := range originals {
		english, err := unmarshalStrings(o.english)
		if err != nil {
			return fmt.Errorf("decoding english of note %d: %w", o.id, err)
		}
		pinyin, err := unmarshalStrings(o.pinyin)
		if err != nil {
			return fmt.Errorf("decoding pinyin of note %d: %w", o.id, err)
		}

		noteType := types.NoteType(o.noteType)
		if !noteType.Valid() {
			logger.Warn("unknown note type, stored as word",
				slog.Int64("id", o.id), slog.Int64("type", o.noteType))
			noteType = types.NoteTypeWord
		}
		pinyinSearchable, err := normalize.Pinyin(pinyin)
		if err != nil {
			logger.Warn("pronunciation normalized leniently",
				slog.Int64("id", o.id), slog.Any("error", err))
			pinyinSearchable = normalize.PinyinQuery(strings.Join(pinyin, " "))
		}

		englishJSON, err := marshalStrings(english)
		if err != nil {
			return fmt.Errorf("encoding english of note %d: %w", o.id, err)
		}
		pinyinJSON, err := marshalStrings(pinyin)
		if err != nil {
			return fmt.Errorf("encoding pinyin of note %d: %w", o.id, err)
		}

		query, args, err := builder.Insert("notes_upgraded").
			Columns(
				"id", "type", "english", "english_searchable", "pinyin", "pinyin_searchable",
				"simplified", "notes", "time_created",
			).
			Values(
				o.id, int(noteType), englishJSON, normalize.Gloss(english), pinyinJSON, pinyinSearchable,
				o.simplified, o.notes, o.timeCreated,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("building upgraded insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("copying note %d: %w", o.id, err)
		}
	}

	for _, stmt := range []string{
		"DROP TABLE notes",
		"ALTER TABLE notes_upgraded RENAME TO notes",
		"CREATE INDEX idx_notes_type ON notes(type)",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("replacing notes table: %w", err)
		}
	}
	logger.Info("upgraded original notes table", slog.Int("notes", len(originals)))
	return nil
}

// upgradeHistory drops history rows whose note is gone, rewrites the rest
// in the current encoding and folds each into its note's aggregates. A blob
// that cannot be decoded is left alone.
func upgradeHistory(ctx context.Context, tx *sql.Tx, logger *slog.Logger, halfLife float64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM test WHERE id NOT IN (SELECT id FROM notes)")
	if err != nil {
		return fmt.Errorf("removing orphaned history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Info("removed history of deleted notes", slog.Int64("rows", n))
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, COALESCE(data, '') FROM test ORDER BY id")
	if err != nil {
		return fmt.Errorf("reading original history: %w", err)
	}
	histories := make(map[int64]types.NoteTestData)
	var ids []int64
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("scanning original history: %w", err)
		}
		history := types.NoteTestData{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &history); err != nil {
				logger.Warn("skipping undecodable history", slog.Int64("id", id), slog.Any("error", err))
				continue
			}
		}
		histories[id] = history
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading original history: %w", err)
	}

	for _, id := range ids {
		history := histories[id]
		if err := writeHistory(ctx, tx, id, history); err != nil {
			return fmt.Errorf("rewriting history of note %d: %w", id, err)
		}
		if err := updateAggregates(ctx, tx, id, history.Aggregate(halfLife)); err != nil {
			return fmt.Errorf("folding history of note %d: %w", id, err)
		}
	}
	return nil
}
