package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// jsonString encodes s as a JSON string literal.
func jsonString(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

// writeOriginalNotesDB creates a notes.db in dir laid out the way the
// original desktop app wrote it.
func writeOriginalNotesDB(t *testing.T, dir string, day1, day2 int64) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, NotesFileName))
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		"CREATE TABLE notes(id INTEGER PRIMARY KEY,type,english,englishSearchable,pinyin,pinyinSearchable,simplified,notes,timeCreated)",
		"CREATE TABLE test(id INTEGER PRIMARY KEY,data)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	insert := "INSERT INTO notes(id,type,english,englishSearchable,pinyin,pinyinSearchable,simplified,notes,timeCreated) VALUES (?,?,?,?,?,?,?,?,?)"
	// Single add: english arrives as an encoded array and is encoded again.
	_, err = db.Exec(insert, 1, "0", jsonString(t, `["Very","quite"]`), `["Very","quite"]`,
		jsonString(t, "hen3"), "hen", "很", "adverb", int64(1700000000000))
	require.NoError(t, err)
	// Batch add: english stored as the encoded array itself.
	_, err = db.Exec(insert, 2, "1", `["hello"]`, "hello",
		jsonString(t, "Ni3 hao3"), "ni hao", "你好", nil, int64(1700000001000))
	require.NoError(t, err)
	// Pronunciation the current rules reject, unknown type.
	_, err = db.Exec(insert, 3, "7", `["thing"]`, "thing",
		jsonString(t, "dong1xi5?"), "dong1xi?", "东西", "", nil)
	require.NoError(t, err)

	history := fmt.Sprintf(`[{"date":%d,"correct":3,"incorrect":1},{"date":%d,"correct":1,"incorrect":1}]`, day1, day2)
	_, err = db.Exec("INSERT INTO test(id,data) VALUES (?,?)", 1, history)
	require.NoError(t, err)
	// Note 4 was deleted by the original app, which left its history behind.
	_, err = db.Exec("INSERT INTO test(id,data) VALUES (?,?)", 4, fmt.Sprintf(`[{"date":%d,"correct":9,"incorrect":0}]`, day1))
	require.NoError(t, err)
}

func TestAttachUpgradesOriginalNotesDB(t *testing.T) {
	dir := t.TempDir()
	day1 := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	writeOriginalNotesDB(t, dir, day1, day2)

	b := newTestBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { b.Detach() })
	ctx := context.Background()

	all, err := b.Notes().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	t.Run("notes keep their ids and content", func(t *testing.T) {
		n := all[0]
		assert.Equal(t, int64(1), n.ID)
		assert.Equal(t, types.NoteTypeWord, n.Type)
		assert.Equal(t, []string{"Very", "quite"}, n.English)
		assert.Equal(t, "very, quite", n.EnglishSearchable)
		assert.Equal(t, []string{"hen3"}, n.Pinyin)
		assert.Equal(t, "hen", n.PinyinSearchable)
		assert.Equal(t, "很", n.Simplified)
		assert.Equal(t, "adverb", n.Notes)
		assert.Equal(t, int64(1700000000000), n.TimeCreated)

		n = all[1]
		assert.Equal(t, types.NoteTypePhrase, n.Type)
		assert.Equal(t, []string{"hello"}, n.English)
		assert.Equal(t, "ni hao", n.PinyinSearchable)
		assert.Empty(t, n.Notes)
	})

	t.Run("unreadable values are kept leniently", func(t *testing.T) {
		n := all[2]
		assert.Equal(t, types.NoteTypeWord, n.Type)
		assert.Equal(t, "dong1xi5?", n.PinyinSearchable)
		assert.Zero(t, n.TimeCreated)
	})

	t.Run("history is rewritten and folded into aggregates", func(t *testing.T) {
		history, err := b.Ledger().History(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, types.NoteTestData{
			{Day: day1, Correct: 3, Incorrect: 1},
			{Day: day2, Correct: 1, Incorrect: 1},
		}, history)

		db, err := b.notesDB()
		require.NoError(t, err)
		var raw string
		require.NoError(t, db.QueryRow("SELECT data FROM test WHERE id = 1").Scan(&raw))
		assert.Contains(t, raw, `"day":`)
		assert.NotContains(t, raw, `"date":`)

		n := all[0]
		assert.Equal(t, 4, n.TotalCorrectAnswers)
		assert.Equal(t, 2, n.TotalIncorrectAnswers)
		// Day 1 is one half-life older than day 2: (0.5*3 + 1) / (0.5*4 + 2).
		assert.InDelta(t, 0.625, n.TimeWeightedCorrectness, 1e-9)
	})

	t.Run("history of deleted notes does not reach new notes", func(t *testing.T) {
		ids := insertNotes(t, b, word("new", "xin1"))
		assert.Equal(t, int64(4), ids[0])

		history, err := b.Ledger().History(ctx, ids[0])
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("upgraded store accepts new results", func(t *testing.T) {
		require.NoError(t, b.Ledger().RecordResults(ctx, []int64{2}, []bool{true}, fixedNow))
		n, err := b.Notes().Get(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, n.TotalCorrectAnswers)
	})

	t.Run("reattach leaves the upgraded store alone", func(t *testing.T) {
		require.NoError(t, b.Detach())
		require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))

		again, err := b.Notes().ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, again, 4)
	})
}

func TestHasColumn(t *testing.T) {
	b := setupBackend(t)
	db, err := b.notesDB()
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := hasColumn(ctx, db, notesTable, "english_searchable")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasColumn(ctx, db, notesTable, "englishSearchable")
	require.NoError(t, err)
	assert.False(t, ok, "a fresh store is already in the current layout")

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_notes_time_created'").Scan(&name)
	require.NoError(t, err)
}
