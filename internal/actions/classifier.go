package actions

import (
	"strings"
	"unicode"
)

var (
	plotStems = []string{
		"plot", "graph", "visuali", "chart", "histogram", "heatmap", "draw", "scatter",
	}
	computationStems = []string{
		"calculat", "comput", "integrat", "determin", "averag", "median",
		"maximum", "minimum", "percentil", "deviation", "total",
	}
	// Whole words or phrases only: "sum" must not match "summary".
	computationWords = []string{
		"max", "min", "mean", "std", "sum", "sums", "summed", "count", "counts", "counted",
		"how many", "how much", "how long", "what is",
	}
)

// RoleClassifier guesses the roles of a query from keywords. It backs up
// the model when its answer names no role.
type RoleClassifier struct{}

func NewRoleClassifier() *RoleClassifier {
	return &RoleClassifier{}
}

// Classify reports which roles the query asks for.
func (c *RoleClassifier) Classify(query string) (plot, computation bool) {
	lower := strings.ToLower(query)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	joined := " " + strings.Join(words, " ") + " "

	for _, w := range words {
		if hasAnyPrefix(w, plotStems) {
			plot = true
		}
		if hasAnyPrefix(w, computationStems) {
			computation = true
		}
	}
	for _, phrase := range computationWords {
		if strings.Contains(joined, " "+phrase+" ") {
			computation = true
		}
	}
	return plot, computation
}

func hasAnyPrefix(word string, stems []string) bool {
	for _, s := range stems {
		if strings.HasPrefix(word, s) {
			return true
		}
	}
	return false
}
