package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

func TestPinyin(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    string
		wantErr bool
	}{
		{name: "numbered syllables", input: []string{"ni3", "hao3"}, want: "ni hao"},
		{name: "one element with spaces", input: []string{"ni3 hao3"}, want: "ni hao"},
		{name: "upper case", input: []string{"Bei3", "Jing1"}, want: "bei jing"},
		{name: "neutral tone", input: []string{"ma5"}, want: "ma"},
		{name: "no tone number", input: []string{"de"}, want: "de"},
		{name: "tone marks", input: []string{"nǐ", "hǎo"}, want: "ni hao"},
		{name: "umlaut survives tone stripping", input: []string{"lǜ"}, want: "lü"},
		{name: "cedict u colon", input: []string{"lu:4"}, want: "lu:"},
		{name: "extra whitespace", input: []string{"  xie4   xie5 "}, want: "xie xie"},
		{name: "empty", input: nil, want: ""},
		{name: "name separator", input: []string{"Ma3", "ke4", "·", "Tu3", "wen1"}, want: "ma ke · tu wen"},
		{name: "proverb comma", input: []string{"bu4 ru4 hu3 xue2 , yan1 de2 hu3 zi3"}, want: "bu ru hu xue , yan de hu zi"},
		{name: "full width comma", input: []string{"hao3", "，", "hao3"}, want: "hao ， hao"},
		{name: "punctuation glued to syllable", input: []string{"hao3,"}, wantErr: true},
		{name: "question mark", input: []string{"?"}, want: "?"},
		{name: "double tone number", input: []string{"hao33"}, wantErr: true},
		{name: "tone number out of range", input: []string{"hao6"}, wantErr: true},
		{name: "digits only", input: []string{"3"}, wantErr: true},
		{name: "han characters", input: []string{"你好"}, wantErr: true},
		{name: "digit inside syllable", input: []string{"ha3o"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pinyin(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrMalformedPronunciation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGloss(t *testing.T) {
	assert.Equal(t, "hello, how are you", Gloss([]string{" Hello", "", "How are you "}))
	assert.Equal(t, "", Gloss(nil))
}

func TestSearchFields(t *testing.T) {
	got, err := SearchFields([]string{"Very", "Quite"}, []string{"hen3"})
	require.NoError(t, err)
	assert.Equal(t, types.SearchFields{EnglishSearchable: "very, quite", PinyinSearchable: "hen"}, got)

	_, err = SearchFields([]string{"ok"}, []string{"x9"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, "hen", PinyinQuery("hen3"))
	assert.Equal(t, "ni hao", PinyinQuery(" Nǐ  hǎo "))
	assert.Equal(t, "h", PinyinQuery("h"))
	assert.Equal(t, "3", PinyinQuery("3"))
	assert.Equal(t, "", PinyinQuery("   "))
	assert.Equal(t, "dog", GlossQuery(" Dog "))
}
