package rule

import (
	"strings"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.2-2
func IsValidToken(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if IsAlpha(c) || IsDigit(c) {
			continue
		}

		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+',
			'-', '.', '^', '_', '`', '|', '~':
			continue
		}

		return false
	}

	return true
}

// IsValidReasonPhrase reports whether s only contains reason-phrase characters.
// Empty string is a valid reason phrase.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4-2
func IsValidReasonPhrase(s string) bool {
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if c == HTAB || c == SP || IsVChar(c) || IsObsText(c) {
			continue
		}
		return false
	}
	return true
}

// TrimHTTPWhitespace strips leading and trailing HTTP whitespace bytes.
// Reference: https://fetch.spec.whatwg.org/#concept-header-value-normalize
func TrimHTTPWhitespace(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r < 0x80 && IsHTTPWhitespace(byte(r))
	})
}
