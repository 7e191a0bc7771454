// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Decode splits telebot's "\f<unique>|<payload>" callback encoding. Data
// from buttons built elsewhere, without the leading \f, is read the same way.
func Decode(data string) (unique, payload string) {
	unique, payload, _ = strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	return strings.TrimSpace(unique), payload
}

// Parse returns the unique and payload of cb. When telebot already routed
// the press to a unique endpoint, cb.Data holds only the payload.
func Parse(cb *tele.Callback) (unique, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	}
	return Decode(cb.Data)
}
