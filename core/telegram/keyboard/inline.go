// Package keyboard renders inline keyboards for telebot.
package keyboard

import (
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackData is Telegram's limit on callback_data, in bytes.
const MaxCallbackData = 64

// Button is one inline button. Unique routes the press; Data is its payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// callbackLen mirrors how telebot encodes callback_data: "\f<unique>|<data>".
func (b Button) callbackLen() int {
	n := 1 + len(b.Unique)
	if b.Data != "" {
		n += 1 + len(b.Data)
	}
	return n
}

// Inline renders rows into a reply markup. Empty rows are dropped and a
// keyboard with no buttons yields nil. Buttons whose callback data would not
// fit into Telegram's limit are rejected.
func Inline(rows [][]Button) (*tele.ReplyMarkup, error) {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if n := b.callbackLen(); n > MaxCallbackData {
				return nil, fmt.Errorf("keyboard: button %q carries %d bytes of callback data, limit %d", b.Unique, n, MaxCallbackData)
			}
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil, nil
	}
	return markup, nil
}
