package types

import (
	"fmt"
	"strings"
)

// SelectionMode names a policy for choosing notes for a study session.
type SelectionMode string

// Selection modes.
const (
	SelectMostRecent SelectionMode = "most recent"
	SelectRandom     SelectionMode = "random"
	SelectMostWrong  SelectionMode = "most wrong"
	SelectAuto       SelectionMode = "auto"
)

// SelectionModes lists every supported mode.
var SelectionModes = []SelectionMode{SelectMostRecent, SelectRandom, SelectMostWrong, SelectAuto}

// Valid reports whether m is a supported mode.
func (m SelectionMode) Valid() bool {
	switch m {
	case SelectMostRecent, SelectRandom, SelectMostWrong, SelectAuto:
		return true
	}
	return false
}

// ParseSelectionMode parses a mode name. Hyphens and underscores are
// accepted in place of spaces ("most-wrong", "most_recent").
func ParseSelectionMode(s string) (SelectionMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	m := SelectionMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelectionMode, s)
	}
	return m, nil
}
