// Package reply classifies inbound free-text replies as affirmative or
// negative. The keyword sets are data, not logic: they arrive from
// configuration (Portuguese by default) and are matched as whole words on
// diacritic-folded text, so "Sim!", "NÃO" and "nao" all classify the same.
package reply

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Verdict is the classification outcome of an inbound reply.
type Verdict string

// Possible verdicts.
const (
	Affirmative Verdict = "affirmative"
	Negative    Verdict = "negative"
)

// foldTransformer decomposes to NFD, drops combining marks, and recomposes,
// turning "não" into "nao".
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Classifier holds the affirmative and negative keyword sets in folded form.
type Classifier struct {
	affirmative map[string]struct{}
	negative    map[string]struct{}
}

// NewClassifier builds a Classifier from raw keyword lists. Keywords are
// folded once up front.
func NewClassifier(affirmative, negative []string) *Classifier {
	c := &Classifier{
		affirmative: make(map[string]struct{}, len(affirmative)),
		negative:    make(map[string]struct{}, len(negative)),
	}
	for _, w := range affirmative {
		if f := Fold(strings.TrimSpace(w)); f != "" {
			c.affirmative[f] = struct{}{}
		}
	}
	for _, w := range negative {
		if f := Fold(strings.TrimSpace(w)); f != "" {
			c.negative[f] = struct{}{}
		}
	}
	return c
}

// Classify tokenizes text into whole words and checks them against the
// keyword sets. The affirmative set is evaluated first: a reply matching
// both sets counts as affirmative. A reply matching neither returns ok=false.
func (c *Classifier) Classify(text string) (Verdict, bool) {
	words := tokenize(Fold(text))
	if len(words) == 0 {
		return "", false
	}
	for _, w := range words {
		if _, ok := c.affirmative[w]; ok {
			return Affirmative, true
		}
	}
	for _, w := range words {
		if _, ok := c.negative[w]; ok {
			return Negative, true
		}
	}
	return "", false
}

// tokenize splits folded text on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
