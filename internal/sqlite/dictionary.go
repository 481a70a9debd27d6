// This file implements pronunciation lookups against the read-only
// dictionary database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/mesh-intelligence/cidian/internal/normalize"
	"github.com/mesh-intelligence/cidian/pkg/types"
)

// LookupLimit caps the number of entries a dictionary lookup returns.
const LookupLimit = 50

// The dictionary asset keeps the column names it was built with.
var dictionaryColumns = []string{"id", "simplified", "pinyin", "pinyinSearchable", "english", "englishSearchable"}

// dictionaryStore implements types.DictionaryStore.
type dictionaryStore struct {
	b *Backend
}

// Lookup returns exact pronunciation matches followed by prefix matches,
// deduplicated by id and capped at LookupLimit. The query is normalized the
// same way the stored search field was, so "hen3" and "hěn" both find "hen".
func (d *dictionaryStore) Lookup(ctx context.Context, q string) ([]types.DictionaryEntry, error) {
	db, err := d.b.dictionaryDB()
	if err != nil {
		return nil, err
	}

	entries := []types.DictionaryEntry{}
	query := normalize.PinyinQuery(q)
	if query == "" {
		return entries, nil
	}

	exact, err := queryDictionary(ctx, db, squirrel.Eq{"pinyinSearchable": query})
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	prefix, err := queryDictionary(ctx, db, squirrel.And{
		prefixMatch("pinyinSearchable", query),
		squirrel.NotEq{"pinyinSearchable": query},
	})
	if err != nil {
		return nil, fmt.Errorf("prefix lookup: %w", err)
	}

	seen := make(map[int64]bool, LookupLimit)
	for _, group := range [][]types.DictionaryEntry{exact, prefix} {
		for _, e := range group {
			if len(entries) == LookupLimit {
				return entries, nil
			}
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// queryDictionary selects at most LookupLimit entries matching pred in
// storage order.
func queryDictionary(ctx context.Context, db *sql.DB, pred squirrel.Sqlizer) ([]types.DictionaryEntry, error) {
	query, args, err := builder.Select(dictionaryColumns...).
		From("dictionary").
		Where(pred).
		OrderBy("id").
		Limit(LookupLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.DictionaryEntry
	for rows.Next() {
		var (
			e               types.DictionaryEntry
			pinyin, english string
		)
		if err := rows.Scan(&e.ID, &e.Simplified, &pinyin, &e.PinyinSearchable, &english, &e.EnglishSearchable); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if e.Pinyin, err = unmarshalStrings(pinyin); err != nil {
			return nil, fmt.Errorf("decoding pinyin of entry %d: %w", e.ID, err)
		}
		if e.English, err = unmarshalStrings(english); err != nil {
			return nil, fmt.Errorf("decoding english of entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
