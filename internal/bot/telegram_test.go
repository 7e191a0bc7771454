package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/chatstats/core/telegram"
	"github.com/m3rciful/chatstats/core/telegram/router"
	tgsender "github.com/m3rciful/chatstats/core/telegram/sender"
	"github.com/m3rciful/chatstats/internal/stats"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []string
	markups []*tele.ReplyMarkup
	deleted []tele.Editable
	sendErr error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, what.(string))
	var markup *tele.ReplyMarkup
	for _, o := range opts {
		if m, ok := o.(*tele.ReplyMarkup); ok {
			markup = m
		}
	}
	f.markups = append(f.markups, markup)
	id := int64(to.(tele.ChatID))
	return &tele.Message{ID: len(f.sent), Chat: &tele.Chat{ID: id}}, nil
}

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msg)
	return nil
}

func TestTelegramSinkReplyWithKeyboard(t *testing.T) {
	api := &fakeAPI{}
	outbox := tgsender.NewOutbox(tgsender.Options{Workers: 1})
	sink := NewTelegramSink(api, outbox)

	require.NoError(t, sink.Reply(context.Background(), Reply{
		ChatID:  chatID,
		Text:    "menu",
		Buttons: [][]Button{{{Text: "Stats", ID: BtnStats}, {Text: "EN", ID: BtnLang, Payload: "en"}}},
	}))
	require.NoError(t, sink.Reply(context.Background(), Reply{ChatID: chatID, Text: "plain"}))
	outbox.Close()

	require.Equal(t, []string{"menu", "plain"}, api.sent)
	require.NotNil(t, api.markups[0])
	row := api.markups[0].InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, BtnLang, row[1].Unique)
	assert.Equal(t, "en", row[1].Data)
	assert.Nil(t, api.markups[1])
}

func TestTelegramSinkTrackedAndDelete(t *testing.T) {
	api := &fakeAPI{}
	outbox := tgsender.NewOutbox(tgsender.Options{Workers: 1})
	defer outbox.Close()
	sink := NewTelegramSink(api, outbox)

	ref, err := sink.SendTracked(context.Background(), Reply{ChatID: chatID, Text: "welcome"})
	require.NoError(t, err)
	assert.Equal(t, MessageRef{ChatID: chatID, MessageID: 1}, ref)

	require.NoError(t, sink.Delete(context.Background(), ref))
	require.Len(t, api.deleted, 1)
	msgID, chat := api.deleted[0].MessageSig()
	assert.Equal(t, "1", msgID)
	assert.Equal(t, chatID, chat)
}

func TestTelegramSinkWrapsDeliveryErrors(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("telegram: bot was blocked by the user (403)")}
	outbox := tgsender.NewOutbox(tgsender.Options{Workers: 1})
	defer outbox.Close()
	sink := NewTelegramSink(api, outbox)

	_, err := sink.SendTracked(context.Background(), Reply{ChatID: chatID, Text: "x"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, "Bob", commandArgs("/setname Bob"))
	assert.Equal(t, "Bob Smith", commandArgs("/setname@chatstats_bot   Bob Smith "))
	assert.Equal(t, "Bob", commandArgs("/setname\nBob"))
	assert.Equal(t, "", commandArgs("/setname"))
	assert.Equal(t, "", commandArgs("hello there"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", displayName(&tele.User{FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "Ann", displayName(&tele.User{FirstName: "Ann"}))
	assert.Equal(t, "@ann", displayName(&tele.User{Username: "ann"}))
	assert.Equal(t, "", displayName(&tele.User{}))
}

type fakeContext struct {
	tele.Context
	mu     sync.Mutex
	update tele.Update
	store  map[string]any
}

func newTextContext(user, chat int64, text string) *fakeContext {
	return &fakeContext{
		update: tele.Update{ID: 9, Message: &tele.Message{
			Sender: &tele.User{ID: user, FirstName: "Bob"},
			Chat:   &tele.Chat{ID: chat},
			Text:   text,
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update      { return f.update }
func (f *fakeContext) Message() *tele.Message   { return f.update.Message }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }
func (f *fakeContext) Sender() *tele.User       { return f.update.Message.Sender }
func (f *fakeContext) Chat() *tele.Chat         { return f.update.Message.Chat }
func (f *fakeContext) Text() string             { return f.update.Message.Text }

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

func TestRegisterBindsDispatcher(t *testing.T) {
	sink := &fakeSink{}
	catalog := newCatalog(t)
	d := NewDispatcher(newStatsStore(t), sink, catalog, Options{AdminID: "1"})
	t.Cleanup(d.Close)

	reg := tg.NewRegistry()
	require.NoError(t, Register(reg, d, catalog))

	assert.Len(t, reg.Commands(), len(commandSpecs))
	assert.ElementsMatch(t, buttonIDs, reg.ListCallbacks())
	assert.True(t, reg.Commands()["/fullstats"].AdminOnly)

	menu := reg.ListCommands(true, "en")
	require.NotEmpty(t, menu)
	for _, cmd := range menu {
		assert.NotEqual(t, "fullstats", cmd.Text)
	}

	_, setname, ok := reg.LookupCommand("/setname")
	require.True(t, ok)
	c := newTextContext(userID, chatID, "/setname Bob")
	require.NoError(t, setname.Handler(c))
	assert.Equal(t, "Имя обновлено на: Bob", sink.last(t).Text)

	denied := newTextContext(userID, chatID, "/fullstats")
	require.NoError(t, AdminRejectHandler(d)(denied))
	assert.Equal(t, "denied", denied.Get(router.OutcomeKey))

	hint := newTextContext(userID, chatID, "/language de")
	_, language, _ := reg.LookupCommand("/language")
	require.NoError(t, language.Handler(hint))
	assert.Equal(t, "hint", hint.Get(router.OutcomeKey))

	require.NoError(t, reg.TextFallback()(newTextContext(userID, chatID, "just chatting")))
	_, statsCmd, _ := reg.LookupCommand("/stats@chatstats_bot")
	require.NoError(t, statsCmd.Handler(newTextContext(userID, chatID, "/stats")))
	assert.Contains(t, sink.last(t).Text, "Сообщений: 1")
}

type joinHarness struct {
	bot   *tele.Bot
	store *stats.Store
	sink  *fakeSink
}

func newJoinHarness(t *testing.T, synchronous bool) *joinHarness {
	t.Helper()
	store := newStatsStore(t)
	sink := &fakeSink{}
	catalog := newCatalog(t)
	d := NewDispatcher(store, sink, catalog, Options{Clock: clockwork.NewFakeClock()})
	t.Cleanup(d.Close)

	reg := tg.NewRegistry()
	require.NoError(t, Register(reg, d, catalog))
	b, err := tele.NewBot(tele.Settings{Token: "123:offline", Offline: true, Synchronous: synchronous})
	require.NoError(t, err)
	for _, r := range router.MemberRoutes(reg) {
		b.Handle(r.Endpoint, r.Handler)
	}
	return &joinHarness{bot: b, store: store, sink: sink}
}

func (h *joinHarness) ensured(t *testing.T, chat int64, users ...int64) []int64 {
	t.Helper()
	var got []int64
	for _, u := range users {
		_, ok, err := h.store.Get(context.Background(), stats.Key{UserID: u, ChatID: chat})
		require.NoError(t, err)
		if ok {
			got = append(got, u)
		}
	}
	return got
}

func (h *joinHarness) welcomes() []string {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	out := make([]string, 0, len(h.sink.tracked))
	for _, r := range h.sink.tracked {
		out = append(out, r.Text)
	}
	return out
}

func joinUpdate(id, msgID int, chat int64, single bool, users ...tele.User) tele.Update {
	msg := &tele.Message{
		ID:          msgID,
		Sender:      &users[0],
		Chat:        &tele.Chat{ID: chat, Type: tele.ChatSuperGroup},
		UsersJoined: users,
	}
	if single {
		first := users[0]
		msg.UserJoined = &first
	}
	return tele.Update{ID: id, Message: msg}
}

func TestMultiUserJoinWelcomesEveryMember(t *testing.T) {
	h := newJoinHarness(t, true)
	mia := tele.User{ID: 77, FirstName: "Mia"}
	leo := tele.User{ID: 78, FirstName: "Leo"}

	// Telegram repeats the first user in new_chat_member next to the full list.
	h.bot.ProcessUpdate(joinUpdate(1, 10, chatID, true, mia, leo))

	assert.Equal(t, []int64{77, 78}, h.ensured(t, chatID, 77, 78))
	welcomes := h.welcomes()
	require.Len(t, welcomes, 2)
	assert.Contains(t, welcomes[0], "Mia")
	assert.Contains(t, welcomes[1], "Leo")
}

func TestListOnlyJoinIsHandledOnce(t *testing.T) {
	h := newJoinHarness(t, false)
	users := []tele.User{{ID: 77, FirstName: "Ann"}, {ID: 78, FirstName: "Bob"}, {ID: 79, FirstName: "Zoe"}}

	h.bot.ProcessUpdate(joinUpdate(2, 11, chatID, false, users...))

	assert.Eventually(t, func() bool { return len(h.welcomes()) == 3 }, 2*time.Second, 10*time.Millisecond)
	// late fan-out calls of the same message must not add welcomes
	time.Sleep(50 * time.Millisecond)
	welcomes := h.welcomes()
	require.Len(t, welcomes, 3)
	for i, name := range []string{"Ann", "Bob", "Zoe"} {
		assert.Contains(t, welcomes[i], name)
	}
	assert.Equal(t, []int64{77, 78, 79}, h.ensured(t, chatID, 77, 78, 79))
}

func TestJoinGateEvictsOldest(t *testing.T) {
	g := newJoinGate(2)
	a, b, c := MessageRef{ChatID: 1, MessageID: 1}, MessageRef{ChatID: 1, MessageID: 2}, MessageRef{ChatID: 1, MessageID: 3}
	assert.True(t, g.first(a))
	assert.False(t, g.first(a))
	assert.True(t, g.first(b))
	assert.True(t, g.first(c))
	assert.True(t, g.first(a))
	assert.False(t, g.first(c))
}
