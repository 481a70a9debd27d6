// This file implements the study-session selection policies.
package sqlite

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// selector implements types.Selector.
type selector struct {
	b *Backend
}

// SelectForTest returns up to count notes chosen by mode.
//
//   - most recent: newest notes by creation time.
//   - random: uniform sample without replacement.
//   - most wrong: weighted sample without replacement, weight is the
//     smoothed share of incorrect answers (incorrect+1)/(total+2), so
//     untested notes sit at 0.5.
//   - auto: weighted sample with weight 0.5*wrongness + 0.5*recency, where
//     recency falls linearly from 1 for the newest note towards 0.
//
// Weighted results are ordered by draw, so the heaviest picks come first.
func (s *selector) SelectForTest(ctx context.Context, count int, mode types.SelectionMode) ([]types.Note, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidSelectionMode, string(mode))
	}
	db, err := s.b.notesDB()
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return []types.Note{}, nil
	}

	if mode == types.SelectMostRecent {
		return queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).
			OrderBy("time_created DESC", "id DESC").
			Limit(uint64(count)))
	}

	notes, err := queryNotes(ctx, db, builder.Select(noteColumns...).From(notesTable).
		OrderBy("time_created DESC", "id DESC"))
	if err != nil {
		return nil, err
	}

	s.b.rngMu.Lock()
	defer s.b.rngMu.Unlock()

	switch mode {
	case types.SelectRandom:
		return shuffleSample(s.b.rng, notes, count), nil
	case types.SelectMostWrong:
		weights := make([]float64, len(notes))
		for i, n := range notes {
			weights[i] = wrongness(n)
		}
		return weightedSample(s.b.rng, notes, weights, count), nil
	default:
		weights := make([]float64, len(notes))
		for i, n := range notes {
			recency := 1 - float64(i)/float64(len(notes))
			weights[i] = 0.5*wrongness(n) + 0.5*recency
		}
		return weightedSample(s.b.rng, notes, weights, count), nil
	}
}

// wrongness is the Laplace-smoothed share of incorrect answers.
func wrongness(n types.Note) float64 {
	return float64(n.TotalIncorrectAnswers+1) / float64(n.TotalCorrectAnswers+n.TotalIncorrectAnswers+2)
}

// shuffleSample draws count notes uniformly without replacement using a
// partial Fisher-Yates shuffle. notes is reordered in place.
func shuffleSample(rng *rand.Rand, notes []types.Note, count int) []types.Note {
	if count > len(notes) {
		count = len(notes)
	}
	for i := 0; i < count; i++ {
		j := i + rng.IntN(len(notes)-i)
		notes[i], notes[j] = notes[j], notes[i]
	}
	return notes[:count]
}

// weightedSample draws count notes without replacement with probability
// proportional to weight (Efraimidis-Spirakis: key = ln(u)/w, keep the
// largest keys). Weights must be positive.
func weightedSample(rng *rand.Rand, notes []types.Note, weights []float64, count int) []types.Note {
	type keyed struct {
		key  float64
		note types.Note
	}
	items := make([]keyed, len(notes))
	for i, n := range notes {
		u := 1 - rng.Float64() // (0, 1]
		items[i] = keyed{key: math.Log(u) / weights[i], note: n}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key > items[j].key })

	if count > len(items) {
		count = len(items)
	}
	out := make([]types.Note, count)
	for i := range out {
		out[i] = items[i].note
	}
	return out
}
