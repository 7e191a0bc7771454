package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/chatstats/core/telegram"
	"github.com/m3rciful/chatstats/core/telegram/callbacks"
	"github.com/m3rciful/chatstats/core/telegram/commands"
	tghelpers "github.com/m3rciful/chatstats/core/telegram/helpers"
	"github.com/m3rciful/chatstats/core/telegram/keyboard"
	"github.com/m3rciful/chatstats/core/telegram/middleware"
	"github.com/m3rciful/chatstats/core/telegram/router"
	tgsender "github.com/m3rciful/chatstats/core/telegram/sender"
	"github.com/m3rciful/chatstats/internal/locales"
	"github.com/m3rciful/chatstats/internal/stats"
)

// API is the part of tele.Bot used to deliver and remove messages.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// TelegramSink delivers replies through the outbound queue.
type TelegramSink struct {
	api    API
	outbox *tgsender.Outbox
}

// NewTelegramSink returns a sink sending through api, paced by outbox.
func NewTelegramSink(api API, outbox *tgsender.Outbox) *TelegramSink {
	return &TelegramSink{api: api, outbox: outbox}
}

// Reply queues r; a full queue falls back to a direct paced send.
func (s *TelegramSink) Reply(ctx context.Context, r Reply) error {
	markup, err := markupFor(r.Buttons)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	middleware.CountReply(ctx, markup != nil)
	err = s.outbox.Submit(ctx, "reply", "sendMessage", func() error {
		_, err := s.api.Send(tele.ChatID(r.ChatID), r.Text, sendOptions(markup)...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// SendTracked sends r synchronously and returns the delivered message.
func (s *TelegramSink) SendTracked(ctx context.Context, r Reply) (MessageRef, error) {
	markup, err := markupFor(r.Buttons)
	if err != nil {
		return MessageRef{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	middleware.CountReply(ctx, markup != nil)
	var sent *tele.Message
	err = s.outbox.Do(ctx, "tracked", "sendMessage", func() error {
		msg, err := s.api.Send(tele.ChatID(r.ChatID), r.Text, sendOptions(markup)...)
		sent = msg
		return err
	})
	if err != nil {
		return MessageRef{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if sent == nil {
		return MessageRef{}, fmt.Errorf("%w: empty send result", ErrDeliveryFailed)
	}
	ref := MessageRef{ChatID: r.ChatID, MessageID: sent.ID}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}
	return ref, nil
}

// Delete removes a delivered message.
func (s *TelegramSink) Delete(ctx context.Context, ref MessageRef) error {
	err := s.outbox.Do(ctx, "delete", "deleteMessage", func() error {
		return s.api.Delete(tele.StoredMessage{
			MessageID: strconv.Itoa(ref.MessageID),
			ChatID:    ref.ChatID,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func markupFor(rows [][]Button) (*tele.ReplyMarkup, error) {
	kb := make([][]keyboard.Button, len(rows))
	for i, row := range rows {
		for _, b := range row {
			kb[i] = append(kb[i], keyboard.Button{Text: b.Text, Unique: b.ID, Data: b.Payload})
		}
	}
	return keyboard.Inline(kb)
}

func sendOptions(markup *tele.ReplyMarkup) []interface{} {
	if markup == nil {
		return nil
	}
	return []interface{}{markup}
}

type commandSpec struct {
	name      string
	desc      locales.MessageID
	adminOnly bool
}

var commandSpecs = []commandSpec{
	{name: CmdStart, desc: locales.CmdStart},
	{name: CmdHelp, desc: locales.CmdHelp},
	{name: CmdMenu, desc: locales.CmdMenu},
	{name: CmdSetName, desc: locales.CmdSetName},
	{name: CmdDelName, desc: locales.CmdDelName},
	{name: CmdSetDesc, desc: locales.CmdSetDesc},
	{name: CmdDelDesc, desc: locales.CmdDelDesc},
	{name: CmdStats, desc: locales.CmdStats},
	{name: CmdTop, desc: locales.CmdTop},
	{name: CmdFullStats, desc: locales.CmdFullStats, adminOnly: true},
	{name: CmdLanguage, desc: locales.CmdLanguage},
	{name: CmdContact, desc: locales.CmdContact},
}

var buttonIDs = []string{
	BtnMenu, BtnStats, BtnTop, BtnSetName, BtnSetDesc,
	BtnLanguage, BtnLang, BtnContact, BtnFullStats,
}

// Register binds the dispatcher to every command, button, plain text and
// member join in reg. Command menu descriptions are localized per supported locale.
func Register(reg *tg.Registry, d *Dispatcher, catalog *locales.Catalog) error {
	var errs []error
	for _, spec := range commandSpecs {
		localized := make(map[string]string, len(locales.Supported()))
		for _, loc := range locales.Supported() {
			localized[string(loc)] = catalog.Text(loc, spec.desc, nil)
		}
		err := reg.RegisterCommand("/"+spec.name, commands.Command{
			Handler:     commandHandler(d, spec.name),
			Description: catalog.Text(catalog.Fallback(), spec.desc, nil),
			Localized:   localized,
			AdminOnly:   spec.adminOnly,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range buttonIDs {
		if err := reg.RegisterCallback(id, buttonHandler(d)); err != nil {
			errs = append(errs, err)
		}
	}
	reg.SetCallbackNotFound(buttonHandler(d))
	reg.SetTextFallback(textHandler(d))
	reg.SetMemberJoined(memberHandler(d))
	return errors.Join(errs...)
}

// AdminRejectHandler answers a non-admin who invoked an admin-only command.
func AdminRejectHandler(d *Dispatcher) tele.HandlerFunc {
	return commandHandler(d, CmdFullStats)
}

func commandHandler(d *Dispatcher, name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := baseEvent(c, KindCommand)
		ev.Command = name
		ev.Args = commandArgs(c.Text())
		return dispatch(c, d, ev)
	}
}

func buttonHandler(d *Dispatcher) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := baseEvent(c, KindButton)
		ev.Button, ev.Payload = callbacks.Parse(c.Callback())
		return dispatch(c, d, ev)
	}
}

func textHandler(d *Dispatcher) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := baseEvent(c, KindText)
		ev.Text = c.Text()
		return dispatch(c, d, ev)
	}
}

func memberHandler(d *Dispatcher) tele.HandlerFunc {
	gate := newJoinGate(joinGateSize)
	return func(c tele.Context) error {
		msg := c.Message()
		if msg == nil {
			return nil
		}
		ev := baseEvent(c, KindMembersJoined)
		if msg.ID != 0 && !gate.first(MessageRef{ChatID: ev.ChatID, MessageID: msg.ID}) {
			return nil
		}
		ev.Members = joinedMembers(msg)
		return dispatch(c, d, ev)
	}
}

// joinedMembers reads the full member list of a join message. telebot
// overwrites UserJoined while fanning a multi-user join out, so the list
// is the only stable source.
func joinedMembers(msg *tele.Message) []Member {
	users := msg.UsersJoined
	if len(users) == 0 && msg.UserJoined != nil {
		users = []tele.User{*msg.UserJoined}
	}
	out := make([]Member, 0, len(users))
	for i := range users {
		u := &users[i]
		out = append(out, Member{UserID: u.ID, Name: displayName(u), IsBot: u.IsBot})
	}
	return out
}

const joinGateSize = 512

// joinGate admits one handler call per join message. telebot fires
// OnUserJoined once per member, possibly concurrently.
type joinGate struct {
	mu    sync.Mutex
	seen  map[MessageRef]struct{}
	order []MessageRef
	limit int
}

func newJoinGate(limit int) *joinGate {
	return &joinGate{seen: make(map[MessageRef]struct{}, limit), limit: limit}
}

func (g *joinGate) first(ref MessageRef) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[ref]; ok {
		return false
	}
	if len(g.order) >= g.limit {
		delete(g.seen, g.order[0])
		g.order = g.order[1:]
	}
	g.seen[ref] = struct{}{}
	g.order = append(g.order, ref)
	return true
}

func baseEvent(c tele.Context, kind Kind) Event {
	ev := Event{Kind: kind}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
		ev.SenderName = displayName(u)
	}
	return ev
}

// dispatch runs ev and maps expected outcomes onto the handler summary.
// Storage and unexpected errors are returned for the bot error hook.
func dispatch(c tele.Context, d *Dispatcher, ev Event) error {
	err := d.Handle(tghelpers.Context(c), ev)
	var storageErr *stats.StorageError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &storageErr):
		return err
	case errors.Is(err, ErrUnauthorized):
		c.Set(router.OutcomeKey, "denied")
	case errors.Is(err, ErrUnsupportedArgument), errors.Is(err, ErrMissingArgument):
		c.Set(router.OutcomeKey, "hint")
	case errors.Is(err, ErrDeliveryFailed):
		c.Set(router.OutcomeKey, "undelivered")
	default:
		return err
	}
	return nil
}

// commandArgs drops the leading "/command[@bot]" token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		name = "@" + u.Username
	}
	return name
}
