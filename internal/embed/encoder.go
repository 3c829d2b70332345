package embed

import (
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// Hash-encoder weights: whole tokens carry most of the signal, character
// n-grams add robustness against morphology and typos.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// stopWords are filtered before hashing; they carry no topical signal.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "at": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"for": true, "with": true, "as": true, "by": true, "from": true,
}

// wordPattern matches alphanumeric sequences.
var wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// hashEncode builds a deterministic bag-of-features vector of the given
// width: each token and character n-gram is FNV-hashed to a slot and its
// weight accumulated there. The result is normalized to unit length.
func hashEncode(text string, dims int) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, dims)
	}

	vector := make([]float32, dims)

	for _, token := range encoderTokens(trimmed) {
		vector[hashToIndex(token, dims)] += tokenWeight
	}

	normalized := normalizeForNgrams(trimmed)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, dims)] += ngramWeight
	}

	return normalizeVector(vector)
}

// encoderTokens splits text into lowercase tokens, breaking apart
// camelCase and snake_case identifiers, and drops stop words.
func encoderTokens(text string) []string {
	var tokens []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, t := range splitIdentifier(word) {
			lower := strings.ToLower(t)
			if lower != "" && !stopWords[lower] {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitIdentifier splits snake_case and camelCase identifiers.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase runs, keeping acronyms together.
func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// normalizeForNgrams strips everything but letters and digits.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex maps a string to a vector slot via FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
