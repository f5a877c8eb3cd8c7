package scorer

import (
	"strings"
	"unicode"
)

// #region stopwords
// stopwords are common English words and spoken fillers that carry no topic.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "me": true,
	"i": true, "my": true, "your": true, "we": true, "they": true,
	"he": true, "she": true, "her": true, "him": true, "us": true,
	"them": true, "tell": true, "our": true, "let": true, "lets": true,
	// spoken fillers
	"um": true, "uh": true, "yeah": true, "yes": true, "ok": true,
	"okay": true, "like": true, "just": true, "really": true, "right": true,
	"well": true, "actually": true, "think": true, "know": true, "mean": true,
	"get": true, "got": true, "going": true, "gonna": true, "there": true,
	"here": true, "now": true, "some": true, "all": true, "also": true,
}

// tokenize splits text into unique lowercase non-stopword tokens.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, stem(w))
	}
	return tokens
}

// stem strips a plural "s" so "roadmaps" matches "roadmap".
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// sharedKeywords returns the count of tokens in b that are present in set.
func sharedKeywords(set map[string]bool, b []string) int {
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
