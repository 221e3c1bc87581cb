package archive

import (
	"regexp"
	"strings"
)

var htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)

// Filter decides which comments become archive items and cleans their
// bodies.
type Filter struct {
	ignoredAuthors  map[string]bool
	ignoredPatterns []*regexp.Regexp
	hiddenMarker    string
}

// NewFilter builds a filter from the configured ignore rules.
func NewFilter(ignoredAuthors []string, ignoredPatterns []*regexp.Regexp, hiddenMarker string) *Filter {
	authors := make(map[string]bool, len(ignoredAuthors))
	for _, a := range ignoredAuthors {
		authors[a] = true
	}
	return &Filter{
		ignoredAuthors:  authors,
		ignoredPatterns: ignoredPatterns,
		hiddenMarker:    hiddenMarker,
	}
}

// IgnoredAuthor reports whether comments from the author are dropped.
func (f *Filter) IgnoredAuthor(author string) bool {
	return f.ignoredAuthors[author]
}

// Ignored reports whether the whole comment is dropped: ignored author, or
// any ignored pattern matching the body.
func (f *Filter) Ignored(author, body string) bool {
	if f.IgnoredAuthor(author) {
		return true
	}
	for _, p := range f.ignoredPatterns {
		if p.MatchString(body) {
			return true
		}
	}
	return false
}

// Clean strips HTML comment markers and truncates at the hidden marker.
// A body that cleans to nothing yields an empty string; callers drop it.
func (f *Filter) Clean(body string) string {
	if f.hiddenMarker != "" {
		if i := strings.Index(body, f.hiddenMarker); i >= 0 {
			body = body[:i]
		}
	}
	body = htmlCommentPattern.ReplaceAllString(body, "")
	return strings.TrimSpace(body)
}
