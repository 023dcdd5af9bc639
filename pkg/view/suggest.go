package view

import (
	"strings"

	"github.com/timoknapp/contest-dashboard/pkg/models"
)

// MaxSuggestions caps the number of names offered while typing.
const MaxSuggestions = 5

// Suggest returns up to limit contest names containing query, case-insensitive,
// in source order. A blank query has no suggestions.
func Suggest(contests []models.Contest, query string, limit int) []string {
	out := []string{}
	if strings.TrimSpace(query) == "" || limit < 1 {
		return out
	}
	needle := strings.ToLower(query)
	for _, c := range contests {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c.Name)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
