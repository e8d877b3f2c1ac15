package utils

import (
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9]+`)
	stopwords    = map[string]struct{}{
		"a": {}, "about": {}, "all": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
		"be": {}, "can": {}, "did": {}, "do": {}, "does": {}, "email": {}, "emails": {}, "find": {},
		"for": {}, "from": {}, "fw": {}, "fwd": {}, "get": {}, "have": {}, "how": {}, "i": {}, "im": {},
		"in": {}, "is": {}, "it": {}, "mail": {}, "me": {}, "message": {}, "messages": {}, "my": {},
		"of": {}, "on": {}, "or": {}, "our": {}, "please": {}, "re": {}, "regarding": {}, "show": {},
		"some": {}, "that": {}, "the": {}, "their": {}, "them": {}, "there": {}, "these": {}, "they": {},
		"this": {}, "those": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
		"where": {}, "which": {}, "who": {}, "with": {}, "you": {}, "your": {},
	}
)

// ExtractMeaningfulTokens tokenizes text, removes stopwords, and deduplicates tokens while preserving order.
func ExtractMeaningfulTokens(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	rawTokens := tokenize(text)
	filtered := filterTokens(rawTokens)
	return dedupeTokens(filtered)
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return tokenPattern.FindAllString(lower, -1)
}

func filterTokens(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) == 0 {
			continue
		}
		if len(token) == 1 && (token[0] < '0' || token[0] > '9') {
			continue
		}
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		result = append(result, token)
	}
	return result
}

func dedupeTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}

	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, exists := seen[token]; exists {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}
