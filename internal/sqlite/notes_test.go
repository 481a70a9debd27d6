package sqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

func TestNoteInsert(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	id, err := b.Notes().Insert(ctx, types.Note{
		Type:              types.NoteTypePhrase,
		English:           []string{"Hello", "How are you"},
		EnglishSearchable: "ignored",
		Pinyin:            []string{"Ni3", "hao3"},
		PinyinSearchable:  "ignored",
		Simplified:        "你好",
		Notes:             "greeting",
		TimeCreated:       1700000000000,
	})
	require.NoError(t, err)

	got, err := b.Notes().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, types.NoteTypePhrase, got.Type)
	assert.Equal(t, []string{"Hello", "How are you"}, got.English)
	assert.Equal(t, "hello, how are you", got.EnglishSearchable)
	assert.Equal(t, []string{"Ni3", "hao3"}, got.Pinyin)
	assert.Equal(t, "ni hao", got.PinyinSearchable)
	assert.Equal(t, "你好", got.Simplified)
	assert.Equal(t, "greeting", got.Notes)
	assert.Equal(t, int64(1700000000000), got.TimeCreated)
}

func TestNoteInsertDefaults(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	ids := insertNotes(t, b, word("one", "yi1"), word("two", "er4"))
	assert.Greater(t, ids[1], ids[0], "ids increase monotonically")

	got, err := b.Notes().Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli(), got.TimeCreated, "zero creation time is stamped")
	assert.Zero(t, got.TotalCorrectAnswers)
}

func TestNoteInsertRejectsMalformedInput(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	_, err := b.Notes().Insert(ctx, word("good", "hao33"))
	assert.ErrorIs(t, err, types.ErrMalformedPronunciation)

	bad := word("good", "hao3")
	bad.Type = types.NoteType(9)
	_, err = b.Notes().Insert(ctx, bad)
	assert.ErrorIs(t, err, types.ErrInvalidNoteType)

	all, err := b.Notes().ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNoteInsertKeepsPinyinSeparators(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	ids := insertNotes(t, b,
		word("Mark Twain", "Ma3", "ke4", "·", "Tu3", "wen1"),
		word("nothing ventured, nothing gained", "bu4 ru4 hu3 xue2 , yan1 de2 hu3 zi3"),
	)

	got, err := b.Notes().Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "ma ke · tu wen", got.PinyinSearchable)

	got, err = b.Notes().Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "bu ru hu xue , yan de hu zi", got.PinyinSearchable)
}

func TestNoteInsertRejectsInvalidAggregates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Note)
	}{
		{name: "negative correct", mutate: func(n *types.Note) { n.TotalCorrectAnswers = -1 }},
		{name: "negative incorrect", mutate: func(n *types.Note) { n.TotalIncorrectAnswers = -1 }},
		{name: "both negative", mutate: func(n *types.Note) {
			n.TotalCorrectAnswers = -1
			n.TotalIncorrectAnswers = -1
		}},
		{name: "correctness above one", mutate: func(n *types.Note) { n.TimeWeightedCorrectness = 1.5 }},
		{name: "correctness below zero", mutate: func(n *types.Note) { n.TimeWeightedCorrectness = -0.1 }},
		{name: "correctness NaN", mutate: func(n *types.Note) { n.TimeWeightedCorrectness = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setupBackend(t)
			ctx := context.Background()

			note := word("good", "hao3")
			tt.mutate(&note)
			_, err := b.Notes().Insert(ctx, note)
			require.ErrorIs(t, err, types.ErrInvalidInput)

			_, err = b.Notes().InsertBatch(ctx, []types.Note{word("very", "hen3"), note})
			require.ErrorIs(t, err, types.ErrInvalidInput)

			all, err := b.Notes().ListAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}

	t.Run("valid aggregates are stored", func(t *testing.T) {
		b := setupBackend(t)
		note := word("good", "hao3")
		note.TotalCorrectAnswers = 3
		note.TotalIncorrectAnswers = 1
		note.TimeWeightedCorrectness = 0.75
		ids := insertNotes(t, b, note)

		got, err := b.Notes().Get(context.Background(), ids[0])
		require.NoError(t, err)
		assert.Equal(t, 3, got.TotalCorrectAnswers)
		assert.Equal(t, 1, got.TotalIncorrectAnswers)
		assert.InDelta(t, 0.75, got.TimeWeightedCorrectness, 1e-9)
	})
}

func TestNoteInsertBatchIsAllOrNothing(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	batch := []types.Note{
		word("one", "yi1"),
		word("two", "er4"),
		word("three", "san!"),
		word("four", "si4"),
		word("five", "wu3"),
	}
	_, err := b.Notes().InsertBatch(ctx, batch)
	require.ErrorIs(t, err, types.ErrMalformedPronunciation)

	all, err := b.Notes().ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no note of a failed batch is stored")

	batch[2] = word("three", "san1")
	ids, err := b.Notes().InsertBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	all, err = b.Notes().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, n := range all {
		assert.Equal(t, ids[i], n.ID)
	}
}

func TestNoteDelete(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	ids := insertNotes(t, b, word("one", "yi1"), word("two", "er4"))

	t.Run("missing id is a no-op", func(t *testing.T) {
		require.NoError(t, b.Notes().Delete(ctx, 9999))
		all, err := b.Notes().ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("removes note and its history", func(t *testing.T) {
		require.NoError(t, b.Ledger().RecordResults(ctx, []int64{ids[0]}, []bool{true}, fixedNow))

		require.NoError(t, b.Notes().Delete(ctx, ids[0]))
		_, err := b.Notes().Get(ctx, ids[0])
		assert.ErrorIs(t, err, types.ErrNotFound)

		history, err := b.Ledger().History(ctx, ids[0])
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("deleting twice succeeds", func(t *testing.T) {
		assert.NoError(t, b.Notes().Delete(ctx, ids[0]))
	})
}

func TestNoteListByType(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	sentence := word("I am here", "wo3 zai4 zher4")
	sentence.Type = types.NoteTypeSentence
	ids := insertNotes(t, b, word("one", "yi1"), sentence, word("two", "er4"))

	words, err := b.Notes().ListByType(ctx, types.NoteTypeWord)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, ids[0], words[0].ID)
	assert.Equal(t, ids[2], words[1].ID)

	grammar, err := b.Notes().ListByType(ctx, types.NoteTypeGrammar)
	require.NoError(t, err)
	assert.Empty(t, grammar)

	_, err = b.Notes().ListByType(ctx, types.NoteType(-1))
	assert.ErrorIs(t, err, types.ErrInvalidNoteType)
}

func TestNoteUpdate(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	ids := insertNotes(t, b, word("very", "hen3"))
	require.NoError(t, b.Ledger().RecordResults(ctx, ids, []bool{true}, fixedNow))

	before, err := b.Notes().Get(ctx, ids[0])
	require.NoError(t, err)

	edited := before
	edited.English = []string{"Quite"}
	edited.Pinyin = []string{"tǐng"}
	edited.Simplified = "挺"
	edited.PinyinSearchable = "stale"
	edited.TotalCorrectAnswers = 99
	edited.TimeCreated = 1
	require.NoError(t, b.Notes().Update(ctx, edited))

	got, err := b.Notes().Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "quite", got.EnglishSearchable)
	assert.Equal(t, "ting", got.PinyinSearchable)
	assert.Equal(t, "挺", got.Simplified)
	assert.Equal(t, before.TimeCreated, got.TimeCreated, "creation time is not editable")
	assert.Equal(t, 1, got.TotalCorrectAnswers, "aggregates belong to the ledger")

	t.Run("missing id is a no-op", func(t *testing.T) {
		ghost := word("ghost", "gui3")
		ghost.ID = 4242
		require.NoError(t, b.Notes().Update(ctx, ghost))
		all, err := b.Notes().ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("malformed pronunciation leaves the note alone", func(t *testing.T) {
		bad := got
		bad.Pinyin = []string{"ting9"}
		assert.ErrorIs(t, b.Notes().Update(ctx, bad), types.ErrMalformedPronunciation)

		again, err := b.Notes().Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, "ting", again.PinyinSearchable)
	})
}

func TestNoteSearchPredictions(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	ids := insertNotes(t, b,
		word("very", "hen3"),
		word("good", "hao3"),
		word("hello", "ni3", "hao3"),
		word("100% sure", "que4 ding4"),
		word("house", "fang2 zi5"),
	)

	tests := []struct {
		name        string
		query       string
		wantEnglish []int64
		wantPinyin  []int64
	}{
		{name: "gloss prefix", query: "ho", wantEnglish: []int64{ids[4]}, wantPinyin: []int64{}},
		{name: "pinyin prefix", query: "ha", wantEnglish: []int64{}, wantPinyin: []int64{ids[1]}},
		{name: "toned query", query: "hǎo", wantEnglish: []int64{}, wantPinyin: []int64{ids[1]}},
		{name: "both fields", query: "h", wantEnglish: []int64{ids[2], ids[4]}, wantPinyin: []int64{ids[0], ids[1]}},
		{name: "multi syllable", query: "ni hao", wantEnglish: []int64{}, wantPinyin: []int64{ids[2]}},
		{name: "percent is literal", query: "100%", wantEnglish: []int64{ids[3]}, wantPinyin: []int64{}},
		{name: "wildcard does not match everything", query: "%", wantEnglish: []int64{}, wantPinyin: []int64{}},
		{name: "upper case query", query: "VERY", wantEnglish: []int64{ids[0]}, wantPinyin: []int64{}},
		{name: "empty query", query: "  ", wantEnglish: []int64{}, wantPinyin: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Notes().SearchPredictions(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnglish, noteIDs(got.EnglishResults))
			assert.Equal(t, tt.wantPinyin, noteIDs(got.PinyinResults))
		})
	}
}

func TestUnmarshalStringsLegacyFormats(t *testing.T) {
	got, err := unmarshalStrings(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = unmarshalStrings(`"ni3 hao3"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"ni3 hao3"}, got)

	got, err = unmarshalStrings(`"[\"hello\",\"hi\"]"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hi"}, got)

	got, err = unmarshalStrings(`plain text`)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain text"}, got)

	_, err = unmarshalStrings(`{"a":1}`)
	assert.Error(t, err)
}

// noteIDs returns the ids of notes in order.
func noteIDs(notes []types.Note) []int64 {
	ids := make([]int64, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids
}

func TestNoteWritesLogTypedAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := setupBackend(t, WithLogger(logger))
	ctx := context.Background()

	_, err := b.Notes().InsertBatch(ctx, []types.Note{word("one", "yi1"), word("two", "er4")})
	require.NoError(t, err)
	require.NoError(t, b.Notes().Update(ctx, types.Note{ID: 99, English: []string{"x"}, Pinyin: []string{"xi1"}}))

	records := map[string]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		records[rec["msg"].(string)] = rec
	}
	require.Contains(t, records, "inserted note batch")
	assert.Equal(t, float64(2), records["inserted note batch"]["count"])
	require.Contains(t, records, "update skipped, note not found")
	assert.Equal(t, float64(99), records["update skipped, note not found"]["id"])
}
