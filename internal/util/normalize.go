package util

import (
	"fmt"
	"html"
	"strings"
	"unicode"
)

// NormalizePhone canonicalizes a phone number to E.164-like form: a leading
// plus followed by 8 to 15 digits. Separators and parentheses are stripped;
// anything else is rejected.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("phone number is required")
	}

	hasPlus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
			// separator, skip
		default:
			return "", fmt.Errorf("phone number contains invalid character %q", r)
		}
	}

	d := digits.String()
	if len(d) < 8 || len(d) > 15 {
		return "", fmt.Errorf("phone number must have 8 to 15 digits, got %d", len(d))
	}
	if !hasPlus {
		return "", fmt.Errorf("phone number must include a country code prefix")
	}
	return "+" + d, nil
}

// NormalizeIdentifier strips non-digit characters from a personnel identifier
// and validates the digit count against the allowed range.
func NormalizeIdentifier(raw string, minDigits, maxDigits int) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) < minDigits || len(d) > maxDigits {
		return "", fmt.Errorf("identifier must have %d to %d digits, got %d", minDigits, maxDigits, len(d))
	}
	return d, nil
}

// IsNumericCode reports whether s is exactly length decimal digits.
func IsNumericCode(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}
