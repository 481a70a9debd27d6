// Package normalize derives the search fields stored next to every note and
// dictionary entry. All writers go through SearchFields so the stored
// strings are always a pure function of the raw glosses and pronunciation.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// GlossSeparator joins normalized glosses, matching the dictionary asset.
const GlossSeparator = ", "

// syllablePattern matches one tone-stripped, lower-cased pinyin syllable with
// an optional trailing tone number. "u:" is the CC-CEDICT spelling of ü.
var syllablePattern = regexp.MustCompile(`^[a-zêü:']+[1-5]?$`)

// isSeparator reports whether a token is punctuation only, such as the "·"
// between the parts of a transliterated name or the "," inside a proverb.
// CC-CEDICT keeps these tokens in its pronunciations and so does the
// normalized form.
func isSeparator(token string) bool {
	for _, r := range token {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return token != ""
}

// Combining tone marks: grave, acute, macron, caron. The diaeresis on ü is
// not a tone mark and survives.
var toneMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0300, Hi: 0x0301, Stride: 1},
		{Lo: 0x0304, Hi: 0x0304, Stride: 1},
		{Lo: 0x030C, Hi: 0x030C, Stride: 1},
	},
}

// newToneStripper returns a transformer removing tone marks. Transformers
// carry state, so each call site gets its own.
func newToneStripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(toneMarks)), norm.NFC)
}

func stripTones(s string) string {
	out, _, err := transform.String(newToneStripper(), s)
	if err != nil {
		return s
	}
	return out
}

// SearchFields computes the normalized gloss and pronunciation search
// strings. Each pronunciation element may hold several space-separated
// syllables. A syllable that is not pinyin (numbered or tone-marked) returns
// an error wrapping types.ErrMalformedPronunciation.
func SearchFields(english, pinyin []string) (types.SearchFields, error) {
	p, err := Pinyin(pinyin)
	if err != nil {
		return types.SearchFields{}, err
	}
	return types.SearchFields{
		EnglishSearchable: Gloss(english),
		PinyinSearchable:  p,
	}, nil
}

// Pinyin normalizes a pronunciation sequence: tone numbers and tone marks
// removed, lower-cased, syllables joined by single spaces. Punctuation
// tokens pass through unchanged.
func Pinyin(pinyin []string) (string, error) {
	var syllables []string
	for _, elem := range pinyin {
		for _, raw := range strings.Fields(elem) {
			s, err := syllable(raw)
			if err != nil {
				return "", err
			}
			syllables = append(syllables, s)
		}
	}
	return strings.Join(syllables, " "), nil
}

func syllable(raw string) (string, error) {
	if isSeparator(raw) {
		return raw, nil
	}
	s := strings.ToLower(stripTones(raw))
	if !syllablePattern.MatchString(s) {
		return "", fmt.Errorf("%w: syllable %q", types.ErrMalformedPronunciation, raw)
	}
	return strings.TrimRight(s, "12345"), nil
}

// Gloss normalizes English glosses: each trimmed and lower-cased, empty
// glosses dropped, joined with GlossSeparator.
func Gloss(english []string) string {
	glosses := make([]string, 0, len(english))
	for _, g := range english {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			glosses = append(glosses, g)
		}
	}
	return strings.Join(glosses, GlossSeparator)
}

// PinyinQuery normalizes free text typed into a pronunciation search box.
// Unlike Pinyin it never fails: tokens are stripped of tone marks and a
// trailing tone number and passed through otherwise.
func PinyinQuery(q string) string {
	fields := strings.Fields(strings.ToLower(stripTones(q)))
	for i, f := range fields {
		if trimmed := strings.TrimRight(f, "12345"); trimmed != "" {
			fields[i] = trimmed
		}
	}
	return strings.Join(fields, " ")
}

// GlossQuery normalizes free text typed into an English search box.
func GlossQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
