package sanitize

import (
	"regexp"
	"unicode/utf8"
)

// Plain emails (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +xx..., (xxx) xxx-xxxx, 04xx..., etc.
// Only digits, spaces, minus, dots, parens, and plus are allowed; at least
// nine digits total so we don't mangle street numbers.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.()]{7,}\d`)

// RedactPII strips emails and phone numbers before content goes public.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary trims content for listings, breaking on a word boundary.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		// No space in range: cut at max, but never mid-rune.
		i = max
		for i > 0 && !utf8.RuneStart(s[i]) {
			i--
		}
	}
	return s[:i] + "…"
}
