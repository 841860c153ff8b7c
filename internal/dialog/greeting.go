package dialog

import (
	"strings"
	"unicode"
)

// GreetingMatcher recognizes greeting keywords as whole words, ignoring
// case and surrounding punctuation
type GreetingMatcher struct {
	words map[string]struct{}
}

// NewGreetingMatcher creates a matcher for the given keywords
func NewGreetingMatcher(words []string) *GreetingMatcher {
	m := &GreetingMatcher{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = normalizeToken(w)
		if w != "" {
			m.words[w] = struct{}{}
		}
	}
	return m
}

// Match reports whether text contains a greeting keyword as a separate word
func (m *GreetingMatcher) Match(text string) bool {
	for _, token := range strings.Fields(text) {
		if _, ok := m.words[normalizeToken(token)]; ok {
			return true
		}
	}
	return false
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
}

// isAffirmative reports whether text is a yes answer
func isAffirmative(text string) bool {
	t := normalizeToken(strings.TrimSpace(text))
	for _, a := range affirmatives {
		if t == a {
			return true
		}
	}
	return false
}
