package keyboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineKeepsRowLayout(t *testing.T) {
	m, err := Inline([][]Button{
		{{Text: "Stats", Unique: "stats"}, {Text: "Top", Unique: "top"}},
		{},
		{{Text: "EN", Unique: "lang", Data: "en"}},
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, "stats", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "lang", m.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "en", m.InlineKeyboard[1][0].Data)
}

func TestInlineEmpty(t *testing.T) {
	m, err := Inline(nil)
	assert.NoError(t, err)
	assert.Nil(t, m)

	m, err = Inline([][]Button{nil, {}})
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestInlineRejectsOversizedCallbackData(t *testing.T) {
	fits := Button{Text: "x", Unique: "lang", Data: strings.Repeat("a", MaxCallbackData-6)}
	_, err := Inline([][]Button{{fits}})
	require.NoError(t, err)

	tooLong := fits
	tooLong.Data += "a"
	_, err = Inline([][]Button{{tooLong}})
	assert.ErrorContains(t, err, "limit 64")
}
