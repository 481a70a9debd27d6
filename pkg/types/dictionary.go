package types

// DictionaryEntry is one immutable record of the prebuilt dictionary.
type DictionaryEntry struct {
	ID                int64    `json:"id"`
	Simplified        string   `json:"simplified"`
	Pinyin            []string `json:"pinyin"`
	PinyinSearchable  string   `json:"pinyinSearchable"`
	English           []string `json:"english"`
	EnglishSearchable string   `json:"englishSearchable"`
}
