package domain

import (
	"strings"
	"unicode"
)

// SplitSentences splits text at sentence-terminal punctuation (. ! ? …),
// keeping the punctuation attached to the preceding sentence. Runs of
// terminators ("?!", "...") stay together. Sentences are trimmed and empty
// ones dropped, so the result length is the number of clips the text needs.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && hasLetterOrDigit(s) {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isSentenceEnd(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isSentenceEnd(runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}
		flush()
	}
	flush()
	return sentences
}

// SentenceCount returns len(SplitSentences(text)).
func SentenceCount(text string) int {
	return len(SplitSentences(text))
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
