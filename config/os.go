package config

import (
	"os"
	"strings"
)

// unnamedBook replaces output name which has nothing left after cleaning.
const unnamedBook = "unnamed.epub"

// CleanFileName makes output book name usable as a single path element on
// the current platform. Leading dots are removed so result is never hidden.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.Map(func(r rune) rune {
		if r == os.PathSeparator || r == os.PathListSeparator || strings.ContainsRune(reservedNameRunes, r) || r < ' ' {
			return -1
		}
		return r
	}, in), ". ")
	if out == "" {
		return unnamedBook
	}
	return out
}
