package types

import (
	"encoding/json"
	"math"
)

const millisPerDay = 24 * 60 * 60 * 1000

// TestDataEntry is one calendar day of test results for a note. Day is the
// local midnight of that day in epoch millis.
type TestDataEntry struct {
	Day       int64 `json:"day"`
	Correct   int   `json:"correct"`
	Incorrect int   `json:"incorrect"`
}

// UnmarshalJSON also reads the older "date" key written by earlier
// versions of the store.
func (e *TestDataEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Day       *int64 `json:"day"`
		Date      *int64 `json:"date"`
		Correct   int    `json:"correct"`
		Incorrect int    `json:"incorrect"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Day != nil:
		e.Day = *raw.Day
	case raw.Date != nil:
		e.Day = *raw.Date
	default:
		e.Day = 0
	}
	e.Correct = raw.Correct
	e.Incorrect = raw.Incorrect
	return nil
}

// NoteTestData is the day-bucketed test history of a single note. It holds
// at most one entry per day.
type NoteTestData []TestDataEntry

// Merge returns a copy of d with correct and incorrect added to the entry
// for day. A new entry is appended when the day has not been seen.
func (d NoteTestData) Merge(day int64, correct, incorrect int) NoteTestData {
	out := make(NoteTestData, len(d), len(d)+1)
	copy(out, d)
	for i := range out {
		if out[i].Day == day {
			out[i].Correct += correct
			out[i].Incorrect += incorrect
			return out
		}
	}
	return append(out, TestDataEntry{Day: day, Correct: correct, Incorrect: incorrect})
}

// Aggregates are the test counters stored on a note.
type Aggregates struct {
	TotalCorrect            int
	TotalIncorrect          int
	TimeWeightedCorrectness float64
}

// Aggregate folds the full history into note aggregates.
//
// The time-weighted correctness weights each day by 0.5^(age/halfLifeDays),
// where age is the number of days between that entry and the newest entry,
// and returns the weighted share of correct answers in [0, 1]. A history
// with no answers scores 0.
func (d NoteTestData) Aggregate(halfLifeDays float64) Aggregates {
	var agg Aggregates
	if len(d) == 0 {
		return agg
	}
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}

	newest := d[0].Day
	for _, e := range d {
		agg.TotalCorrect += e.Correct
		agg.TotalIncorrect += e.Incorrect
		if e.Day > newest {
			newest = e.Day
		}
	}

	var weightedCorrect, weightedTotal float64
	for _, e := range d {
		// Rounding absorbs 23 and 25 hour days around DST changes.
		age := math.Round(float64(newest-e.Day) / millisPerDay)
		w := math.Pow(0.5, age/halfLifeDays)
		weightedCorrect += w * float64(e.Correct)
		weightedTotal += w * float64(e.Correct+e.Incorrect)
	}
	if weightedTotal > 0 {
		agg.TimeWeightedCorrectness = weightedCorrect / weightedTotal
	}
	return agg
}
