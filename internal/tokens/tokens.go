// Package tokens estimates prompt token counts so callers can keep the
// injected memory context within budget without pulling in a tokenizer.
package tokens

import (
	"unicode"
)

// Estimate approximates the token count of a text string. Words and
// punctuation runs each count as one token, which tracks real tokenizers
// closely enough for budgeting short context strings.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	count := 0
	inToken := false
	for _, char := range text {
		isWordChar := unicode.IsLetter(char) || unicode.IsNumber(char) || char == '\''

		if isWordChar && !inToken {
			inToken = true
			count++
		} else if !isWordChar && inToken {
			inToken = false
		}
	}

	return count + countPunctuationRuns(text)
}

func countPunctuationRuns(text string) int {
	count := 0
	inRun := false
	for _, char := range text {
		isPunct := unicode.IsPunct(char) && char != '\''

		if isPunct && !inRun {
			inRun = true
			count++
		} else if !isPunct && inRun {
			inRun = false
		}
	}
	return count
}
