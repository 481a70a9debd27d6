package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoteType classifies a note. The numeric values are persisted.
type NoteType int

// Note types.
const (
	NoteTypeWord NoteType = iota
	NoteTypePhrase
	NoteTypeSentence
	NoteTypeGrammar
)

var noteTypeNames = []string{"word", "phrase", "sentence", "grammar"}

// Valid reports whether t is one of the known note types.
func (t NoteType) Valid() bool {
	return t >= NoteTypeWord && t <= NoteTypeGrammar
}

func (t NoteType) String() string {
	if !t.Valid() {
		return "NoteType(" + strconv.Itoa(int(t)) + ")"
	}
	return noteTypeNames[t]
}

// ParseNoteType accepts a type name (case-insensitive) or its numeric value.
func ParseNoteType(s string) (NoteType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range noteTypeNames {
		if s == name {
			return NoteType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && NoteType(n).Valid() {
		return NoteType(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidNoteType, s)
}

// Note is a user-authored vocabulary flashcard.
//
// EnglishSearchable and PinyinSearchable are derived from English and Pinyin
// on every write; values supplied by callers are ignored. The three test
// aggregates are owned by the test ledger.
type Note struct {
	ID                int64    `json:"id"`
	Type              NoteType `json:"type"`
	English           []string `json:"english"`
	EnglishSearchable string   `json:"englishSearchable"`
	Pinyin            []string `json:"pinyin"`
	PinyinSearchable  string   `json:"pinyinSearchable"`
	Simplified        string   `json:"simplified"`
	Notes             string   `json:"notes"`
	TimeCreated       int64    `json:"timeCreated"` // Epoch millis.

	TotalCorrectAnswers     int     `json:"totalCorrectAnswers"`
	TotalIncorrectAnswers   int     `json:"totalIncorrectAnswers"`
	TimeWeightedCorrectness float64 `json:"timeWeightedCorrectness"`
}

// SearchFields holds the normalized search strings derived from a note's
// glosses and pronunciation.
type SearchFields struct {
	EnglishSearchable string
	PinyinSearchable  string
}

// NoteSearchResults is the answer to a note prediction query: notes whose
// gloss search field matches and notes whose pronunciation search field
// matches, each in storage order.
type NoteSearchResults struct {
	EnglishResults []Note `json:"englishResults"`
	PinyinResults  []Note `json:"pinyinResults"`
}

// UnmarshalJSON accepts both a numeric type and a type name, so hand-written
// import files can say "word" instead of 0.
func (t *NoteType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = NoteType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNoteType, data)
	}
	parsed, err := ParseNoteType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
