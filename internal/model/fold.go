package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ligatures that NFD does not decompose but card names use.
var ligatureReplacer = strings.NewReplacer(
	"Æ", "ae", "æ", "ae",
	"Œ", "oe", "œ", "oe",
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldName lowercases a card name and strips diacritics and ligatures so that
// "AEther Vial" and "Æther Vial" fold to the same search key. The join key is
// never folded; this exists only for substring search.
func FoldName(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(ligatureReplacer.Replace(folded))
}
