package middleware

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
)

type fakeContext struct {
	tele.Context
	mu     sync.Mutex
	update tele.Update
	store  map[string]any
}

func newFakeContext(userID, chatID int64, text string) *fakeContext {
	return &fakeContext{
		update: tele.Update{
			ID: 42,
			Message: &tele.Message{
				Sender: &tele.User{ID: userID, Username: "alice"},
				Chat:   &tele.Chat{ID: chatID, Type: tele.ChatGroup},
				Text:   text,
			},
		},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update      { return f.update }
func (f *fakeContext) Message() *tele.Message   { return f.update.Message }
func (f *fakeContext) Sender() *tele.User       { return f.update.Message.Sender }
func (f *fakeContext) Chat() *tele.Chat         { return f.update.Message.Chat }
func (f *fakeContext) Text() string             { return f.update.Message.Text }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }

func (f *fakeContext) Set(key string, val any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = val
}

func (f *fakeContext) Get(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[key]
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin("100", 100))
	assert.False(t, IsAdmin("100", 101))
	assert.False(t, IsAdmin("", 0))
	assert.False(t, IsAdmin(" 100", 100))
}

func TestAdminOnlyMiddleware(t *testing.T) {
	var passed, rejected int
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  "100",
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	h := mw(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(newFakeContext(100, -1, "/fullstats")))
	require.NoError(t, h(newFakeContext(7, -1, "/fullstats")))
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, rejected)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newFakeContext(1, 2, "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	want := errors.New("plain")
	assert.Same(t, want, RecoverMiddleware(func(tele.Context) error { return want })(newFakeContext(1, 2, "")))
}

func TestLoggerAndMetricsMiddleware(t *testing.T) {
	c := newFakeContext(7, -100, "hello")
	chain := LoggerMiddleware(MessageMetricsMiddleware(func(c tele.Context) error {
		ctx := tghelpers.Context(c)
		assert.Equal(t, "42:-100:7", logger.RIDFrom(ctx))
		assert.Equal(t, int64(7), logger.UserIDFrom(ctx))
		CountReply(ctx, false)
		CountReply(ctx, true)
		return nil
	}))
	require.NoError(t, chain(c))

	msgs, kb := GetCounters(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
	assert.Equal(t, "42:-100:7", c.Get("rid"))
}
