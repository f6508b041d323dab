// Package lang defines the closed set of conversation languages and the
// parsing of language hints taken from start commands and user locales.
package lang

import (
	"strings"
	"unicode"
)

// Language is a supported locale tag.
type Language string

const (
	// RU is Russian.
	RU Language = "ru"
	// UZ is Uzbek (Latin script).
	UZ Language = "uz"
)

// Supported lists every language in display order.
var Supported = []Language{RU, UZ}

var aliases = map[string]Language{
	"ru":       RU,
	"rus":      RU,
	"russian":  RU,
	"русский":  RU,
	"рус":      RU,
	"uz":       UZ,
	"uzb":      UZ,
	"uzbek":    UZ,
	"ozbek":    UZ,
	"ozbekcha": UZ,
	"узбек":    UZ,
	"ўзбек":    UZ,
	"ўзбекча":  UZ,
}

// Valid reports whether l belongs to the supported set.
func (l Language) Valid() bool {
	for _, s := range Supported {
		if l == s {
			return true
		}
	}
	return false
}

func (l Language) String() string { return string(l) }

// Parse resolves a single token such as "uz", "ru-RU", "uz_Latn" or a
// language name into a supported Language.
func Parse(raw string) (Language, bool) {
	token := normalize(raw)
	if token == "" {
		return "", false
	}
	if l, ok := aliases[token]; ok {
		return l, true
	}
	// Region or script suffix: "ru-RU", "uz_Latn".
	if i := strings.IndexAny(token, "-_"); i > 0 {
		if l, ok := aliases[token[:i]]; ok {
			return l, true
		}
	}
	return "", false
}

// ParseLanguageHint picks the conversation language from the start command
// argument, or from the platform locale when the argument is empty. An
// argument naming no supported language yields false even when the locale
// would match; callers fall back to their default.
func ParseLanguageHint(raw, platformLocale string) (Language, bool) {
	fields := strings.Fields(raw)
	for _, field := range fields {
		if l, ok := Parse(strings.TrimPrefix(strings.ToLower(field), "lang")); ok {
			return l, true
		}
	}
	if len(fields) > 0 {
		return "", false
	}
	if l, ok := Parse(platformLocale); ok {
		return l, true
	}
	return "", false
}

// Resolve returns l when supported and def otherwise.
func Resolve(l, def Language) Language {
	if l.Valid() {
		return l
	}
	return def
}

// normalize lowercases s and drops everything that is not a letter, a digit
// or a locale separator, so "🇺🇿 O'zbekcha" becomes "ozbekcha".
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		}
	}
	return strings.Trim(b.String(), "-_")
}
