package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"toonlab/internal/domain"
)

// MaxPromptLength is the longest accepted prompt, counted in characters.
const MaxPromptLength = 500

// ValidatePrompt trims and NFC-normalises a prompt and enforces its length.
func ValidatePrompt(prompt string) (string, error) {
	cleaned := strings.TrimSpace(norm.NFC.String(prompt))
	if cleaned == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(cleaned); n > MaxPromptLength {
		return "", fmt.Errorf("%w: prompt is %d characters, limit is %d", domain.ErrValidation, n, MaxPromptLength)
	}
	return cleaned, nil
}
