// Package glossary implements the translation glossary subsystem: an on-disk
// TTL cache of TMDB-derived and learned terms, and a manager that layers
// film-specific, TMDB, master and learned tiers for term resolution.
package glossary

import (
	"regexp"
	"strconv"
	"strings"
)

var nonWordRe = regexp.MustCompile(`[^a-z0-9]+`)

// FilmSlug derives the cache key for a film: the lowercased title with runs
// of non-word characters collapsed to single underscores, suffixed with the
// release year.
func FilmSlug(title string, year int) string {
	slug := nonWordRe.ReplaceAllString(strings.ToLower(title), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "film"
	}
	return slug + "_" + strconv.Itoa(year)
}
