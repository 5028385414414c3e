package analysis

import (
	"sort"
	"strings"
)

// AddPeriod trims s and terminates it with a period.
func AddPeriod(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

const trailingMarks = ".,/*+-?"

// ReplaceWord replaces whole-word occurrences of old with new. A single
// trailing mark from ".,/*+-?" is kept. Runs of whitespace collapse to
// one space.
func ReplaceWord(sentence, old, new string) string {
	if old == "" {
		return sentence
	}
	words := strings.Fields(sentence)
	for i, w := range words {
		last := w[len(w)-1:]
		if strings.Contains(trailingMarks, last) {
			if w[:len(w)-1] == old {
				words[i] = new + last
			}
			continue
		}
		if w == old {
			words[i] = new
		}
	}
	return strings.Join(words, " ")
}

// PrepareQuery terminates the query with a period and applies the word
// replacements in key order.
func PrepareQuery(text string, replacements map[string]string) string {
	text = AddPeriod(text)
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text = ReplaceWord(text, k, replacements[k])
	}
	return text
}
