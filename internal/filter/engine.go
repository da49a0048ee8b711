// Package filter decides whether a feed entry is relevant to a user.
package filter

import (
	"strings"

	"newsbot/internal/model"
)

// Matches reports whether any of the category labels occurs, ignoring case,
// in the entry's title or summary. An empty label set never matches: picking
// categories is what opts a user into a source's articles.
func Matches(entry model.Entry, categories []string) bool {
	if len(categories) == 0 {
		return false
	}

	title := strings.ToLower(entry.Title)
	summary := strings.ToLower(entry.Summary)

	for _, c := range categories {
		label := strings.ToLower(strings.TrimSpace(c))
		if label == "" {
			continue
		}
		if strings.Contains(title, label) || strings.Contains(summary, label) {
			return true
		}
	}
	return false
}
