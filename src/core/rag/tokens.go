package rag

import (
	"strings"
	"unicode"
)

// EstimateTokens gives a rough word-piece token count for text. It is only
// used to log prompt sizes; generators apply their own tokenizers.
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	count := 0
	for _, word := range words {
		count += estimateWordPieces(word)
	}
	return count
}

func estimateWordPieces(word string) int {
	runes := []rune(word)
	switch {
	case len(runes) == 1 && unicode.IsPunct(runes[0]):
		return 1
	case isNumeric(runes):
		// digits tend to be split one per token
		return len(runes)
	case len(runes) <= 4:
		return 1
	default:
		return (len(runes) + 3) / 4
	}
}

func isNumeric(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}
