package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/telegram/commands"
)

type mockMenu struct {
	mock.Mock
}

func (m *mockMenu) SetCommands(opts ...interface{}) error {
	return m.Called(opts...).Error(0)
}

func noop(tele.Context) error { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/stats", commands.Command{
		Handler:     noop,
		Description: "My stats",
		Localized:   map[string]string{"ru": "Моя статистика"},
		Aliases:     []string{"me"},
	}))
	require.NoError(t, reg.RegisterCommand("/fullstats", commands.Command{Handler: noop, Description: "All", AdminOnly: true}))
	require.NoError(t, reg.RegisterCommand("/top", commands.Command{Handler: noop, Description: "Top"}))
	return reg
}

func TestRegistryRejectsInvalidCommands(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.RegisterCommand("stats", commands.Command{Handler: noop, Description: "x"}), ErrInvalidRoute)
	assert.ErrorIs(t, reg.RegisterCommand("/top", commands.Command{Handler: noop}), ErrInvalidRoute)
	assert.ErrorIs(t, reg.RegisterCommand("/menu", commands.Command{Description: "x"}), ErrInvalidRoute)
	assert.Empty(t, reg.Commands())

	require.NoError(t, reg.RegisterCommand("/top", commands.Command{Handler: noop, Description: "Top"}))
	assert.ErrorIs(t, reg.RegisterCommand("/top", commands.Command{Handler: noop, Description: "Top"}), ErrDuplicateRoute)
}

func TestListCommandsLocalized(t *testing.T) {
	reg := newTestRegistry(t)

	en := reg.ListCommands(true, "")
	require.Len(t, en, 2)
	assert.Equal(t, tele.Command{Text: "stats", Description: "My stats"}, en[0])
	assert.Equal(t, "top", en[1].Text)

	ru := reg.ListCommands(true, "ru")
	assert.Equal(t, "Моя статистика", ru[0].Description)
	assert.Equal(t, "Top", ru[1].Description)

	assert.Len(t, reg.ListCommands(false, ""), 3)
}

func TestLookupCommand(t *testing.T) {
	reg := newTestRegistry(t)

	key, _, ok := reg.LookupCommand("/stats@chatstatsbot extra")
	require.True(t, ok)
	assert.Equal(t, "/stats", key)

	key, _, ok = reg.LookupCommand("/me")
	require.True(t, ok)
	assert.Equal(t, "/stats", key)

	_, _, ok = reg.LookupCommand("/nope")
	assert.False(t, ok)
}

func TestCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("stats", noop))
	require.ErrorIs(t, reg.RegisterCallback("stats", noop), ErrDuplicateRoute)
	require.ErrorIs(t, reg.RegisterCallback("", noop), ErrInvalidRoute)

	_, ok := reg.GetCallback("stats")
	assert.True(t, ok)
	assert.Equal(t, []string{"stats"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestSetupCommandsPerLanguage(t *testing.T) {
	reg := newTestRegistry(t)
	m := &mockMenu{}
	m.On("SetCommands", mock.Anything).Return(nil).Once()
	m.On("SetCommands", mock.Anything, "ru").Return(nil).Once()
	m.On("SetCommands", mock.Anything, "en").Return(nil).Once()

	require.NoError(t, SetupCommands(m, reg, []string{"ru", "en"}))
	m.AssertExpectations(t)
}

func TestSetupCommandsReportsFailures(t *testing.T) {
	reg := newTestRegistry(t)
	m := &mockMenu{}
	m.On("SetCommands", mock.Anything).Return(nil).Once()
	m.On("SetCommands", mock.Anything, "ru").Return(assert.AnError).Once()

	err := SetupCommands(m, reg, []string{"ru"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, `"ru"`)
}
