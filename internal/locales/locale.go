// Package locales holds the reply catalog for every supported language.
package locales

import (
	"strings"

	"golang.org/x/text/language"
)

// Locale is a supported reply language.
type Locale string

const (
	RU Locale = "ru"
	EN Locale = "en"
)

var supported = []Locale{RU, EN}

// Supported lists locales in display order.
func Supported() []Locale {
	return append([]Locale(nil), supported...)
}

// Codes renders the supported codes as "ru, en".
func Codes() string {
	codes := make([]string, len(supported))
	for i, l := range supported {
		codes[i] = string(l)
	}
	return strings.Join(codes, ", ")
}

// Parse maps a BCP 47 tag such as "en", "EN" or "en-GB" onto a supported locale.
func Parse(raw string) (Locale, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	for _, l := range supported {
		if base.String() == string(l) {
			return l, true
		}
	}
	return "", false
}

// OrDefault returns the parsed locale or def when raw is not supported.
func OrDefault(raw string, def Locale) Locale {
	if l, ok := Parse(raw); ok {
		return l
	}
	return def
}

// Tag returns the x/text language tag of l.
func (l Locale) Tag() language.Tag {
	return language.Make(string(l))
}
