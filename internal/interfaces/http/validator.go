package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxSlugLength      = 64
	MaxTitleLength     = 256
	MaxConfigKeyLength = 64
	MaxConfigValLength = 50000 // persona prompts can be long

	minPhoneDigits = 8
	maxPhoneDigits = 15
)

var (
	slugPattern      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	configKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ValidSlug checks if a tenant slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	return s != "" && len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// ValidConfigKey checks if a config key is safe
func ValidConfigKey(s string) bool {
	return s != "" && len(s) <= MaxConfigKeyLength && configKeyPattern.MatchString(s)
}

// ValidPhone accepts an already-normalized phone: digits only, E.164 length.
func ValidPhone(s string) bool {
	if len(s) < minPhoneDigits || len(s) > maxPhoneDigits {
		return false
	}
	return strings.Trim(s, "0123456789") == ""
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}

// TruncateString truncates to at most maxLen bytes without splitting a rune
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
