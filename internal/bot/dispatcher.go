package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m3rciful/chatstats/core/logger"
	"github.com/m3rciful/chatstats/internal/locales"
	"github.com/m3rciful/chatstats/internal/stats"
)

// Button ids carried in inline keyboards.
const (
	BtnMenu      = "menu"
	BtnStats     = "stats"
	BtnTop       = "top"
	BtnSetName   = "setname"
	BtnSetDesc   = "setdesc"
	BtnLanguage  = "language"
	BtnLang      = "lang"
	BtnContact   = "contact"
	BtnFullStats = "fullstats"
)

// Command names without the leading slash.
const (
	CmdStart     = "start"
	CmdHelp      = "help"
	CmdMenu      = "menu"
	CmdSetName   = "setname"
	CmdDelName   = "delname"
	CmdSetDesc   = "setdesc"
	CmdDelDesc   = "deldesc"
	CmdStats     = "stats"
	CmdTop       = "top"
	CmdFullStats = "fullstats"
	CmdLanguage  = "language"
	CmdContact   = "contact"
)

const (
	defaultTopLimit   = 10
	defaultWelcomeTTL = 30 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// AdminID is compared verbatim with the sender id in base 10; empty disables admin actions.
	AdminID      string
	AdminContact string
	TopLimit     int
	WelcomeTTL   time.Duration
	// DefaultLocale is used when the sender has no stored language.
	DefaultLocale locales.Locale
	// Clock drives welcome deletion; nil means wall time.
	Clock clockwork.Clock
}

// Dispatcher turns events into store operations and replies.
type Dispatcher struct {
	store   Store
	sink    Sink
	catalog *locales.Catalog
	janitor *Janitor
	opts    Options
}

// NewDispatcher builds a dispatcher. Zero options select defaults.
func NewDispatcher(store Store, sink Sink, catalog *locales.Catalog, opts Options) *Dispatcher {
	if opts.TopLimit <= 0 {
		opts.TopLimit = defaultTopLimit
	}
	if opts.WelcomeTTL <= 0 {
		opts.WelcomeTTL = defaultWelcomeTTL
	}
	if _, ok := locales.Parse(string(opts.DefaultLocale)); !ok {
		opts.DefaultLocale = catalog.Fallback()
	}
	opts.AdminContact = strings.TrimPrefix(strings.TrimSpace(opts.AdminContact), "@")
	return &Dispatcher{
		store:   store,
		sink:    sink,
		catalog: catalog,
		janitor: NewJanitor(sink, opts.Clock),
		opts:    opts,
	}
}

// Close cancels pending message deletions.
func (d *Dispatcher) Close() {
	d.janitor.Close()
}

// IsAdmin reports whether userID is the configured admin.
func (d *Dispatcher) IsAdmin(userID int64) bool {
	return d.opts.AdminID != "" && d.opts.AdminID == strconv.FormatInt(userID, 10)
}

// Handle processes one event. The returned error classifies the outcome for
// logging; the user has already been answered when a reply applies.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogEvent(ctx, logger.Bot, slog.LevelError, "dispatch.panic",
				slog.String("status", "fail"),
				slog.String("kind", ev.Kind.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("bot: panic handling %s: %v", ev.Kind, r)
		}
	}()

	switch ev.Kind {
	case KindText:
		return d.handleText(ctx, ev)
	case KindCommand:
		return d.handleCommand(ctx, ev)
	case KindButton:
		return d.handleButton(ctx, ev)
	case KindMembersJoined:
		return d.handleMembers(ctx, ev)
	}
	return nil
}

func (d *Dispatcher) handleText(ctx context.Context, ev Event) error {
	if strings.HasPrefix(strings.TrimSpace(ev.Text), "/") {
		return nil
	}
	if err := d.store.IncrementCount(ctx, ev.Key()); err != nil {
		logger.LogEvent(ctx, logger.Bot, slog.LevelWarn, "count.failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("count message: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev Event) error {
	args := strings.TrimSpace(ev.Args)
	switch strings.ToLower(ev.Command) {
	case CmdStart:
		return d.reply(ctx, ev, d.locale(ctx, ev), locales.MsgWelcome, nil, d.menuButtons)
	case CmdHelp:
		return d.reply(ctx, ev, d.locale(ctx, ev), locales.MsgHelp, nil, nil)
	case CmdMenu:
		return d.reply(ctx, ev, d.locale(ctx, ev), locales.MsgMenu, nil, d.menuButtons)
	case CmdSetName:
		return d.setField(ctx, ev, stats.FieldDisplayName, args)
	case CmdDelName:
		return d.clearField(ctx, ev, stats.FieldDisplayName)
	case CmdSetDesc:
		return d.setField(ctx, ev, stats.FieldDescription, args)
	case CmdDelDesc:
		return d.clearField(ctx, ev, stats.FieldDescription)
	case CmdStats:
		return d.showStats(ctx, ev)
	case CmdTop:
		return d.showTop(ctx, ev)
	case CmdFullStats:
		return d.showFullStats(ctx, ev)
	case CmdLanguage:
		return d.setLanguage(ctx, ev, args)
	case CmdContact:
		return d.showContact(ctx, ev)
	}
	return nil
}

// handleButton ensures the sender record exists, then runs the command logic.
// Unknown ids are ignored.
func (d *Dispatcher) handleButton(ctx context.Context, ev Event) error {
	switch ev.Button {
	case BtnMenu, BtnStats, BtnTop, BtnSetName, BtnSetDesc, BtnLanguage, BtnLang, BtnContact, BtnFullStats:
	default:
		logger.LogEvent(ctx, logger.Bot, slog.LevelDebug, "button.unknown",
			slog.String("status", "skip"),
			slog.String("button", logger.SanitizeLimit(ev.Button, 64)),
		)
		return nil
	}

	if err := d.store.Ensure(ctx, ev.Key()); err != nil {
		return d.storageFailure(ctx, ev, "ensure", err)
	}

	loc := d.locale(ctx, ev)
	switch ev.Button {
	case BtnMenu:
		return d.reply(ctx, ev, loc, locales.MsgMenu, nil, d.menuButtons)
	case BtnStats:
		return d.showStats(ctx, ev)
	case BtnTop:
		return d.showTop(ctx, ev)
	case BtnSetName:
		return d.reply(ctx, ev, loc, locales.MsgSetNameHint, nil, nil)
	case BtnSetDesc:
		return d.reply(ctx, ev, loc, locales.MsgSetDescHint, nil, nil)
	case BtnLanguage:
		return d.setLanguage(ctx, ev, "")
	case BtnLang:
		return d.setLanguage(ctx, ev, ev.Payload)
	case BtnContact:
		return d.showContact(ctx, ev)
	default:
		return d.showFullStats(ctx, ev)
	}
}

func (d *Dispatcher) handleMembers(ctx context.Context, ev Event) error {
	var errs []error
	for _, m := range ev.Members {
		if m.IsBot {
			continue
		}
		key := stats.Key{UserID: m.UserID, ChatID: ev.ChatID}
		if err := d.store.Ensure(ctx, key); err != nil {
			logger.LogEvent(ctx, logger.Bot, slog.LevelWarn, "member.ensure",
				slog.String("status", "fail"),
				slog.Int64("member_id", m.UserID),
				slog.String("err", err.Error()),
			)
			errs = append(errs, fmt.Errorf("ensure member %d: %w", m.UserID, err))
		}

		loc := d.opts.DefaultLocale
		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = d.catalog.Text(loc, locales.MsgNoName, nil)
		}
		welcome := Reply{
			ChatID: ev.ChatID,
			Text:   d.catalog.Text(loc, locales.MsgMemberWelcome, map[string]any{"Name": name}),
			Buttons: [][]Button{{
				{Text: d.catalog.Text(loc, locales.BtnGetStarted, nil), ID: BtnMenu},
			}},
		}
		ref, err := d.sink.SendTracked(ctx, welcome)
		if err != nil {
			logger.LogEvent(ctx, logger.Bot, slog.LevelWarn, "member.welcome",
				slog.String("status", "fail"),
				slog.Int64("member_id", m.UserID),
				slog.String("err", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%w: welcome: %v", ErrDeliveryFailed, err))
			continue
		}
		d.janitor.Schedule(ctx, ref, d.opts.WelcomeTTL)
		logger.LogEvent(ctx, logger.Bot, slog.LevelInfo, "member.welcome",
			slog.String("status", "ok"),
			slog.Int64("member_id", m.UserID),
			slog.Int("message_id", ref.MessageID),
			slog.Duration("delete_after", d.opts.WelcomeTTL),
		)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) setField(ctx context.Context, ev Event, field stats.Field, value string) error {
	loc := d.locale(ctx, ev)
	if value == "" {
		hint := locales.MsgSetNameHint
		if field == stats.FieldDescription {
			hint = locales.MsgSetDescHint
		}
		if err := d.reply(ctx, ev, loc, hint, nil, nil); err != nil {
			return err
		}
		return ErrMissingArgument
	}

	if err := d.store.Ensure(ctx, ev.Key()); err != nil {
		return d.storageFailure(ctx, ev, "ensure", err)
	}
	if err := d.store.SetField(ctx, ev.Key(), field, value); err != nil {
		return d.storageFailure(ctx, ev, "set_field", err)
	}

	if field == stats.FieldDescription {
		return d.reply(ctx, ev, loc, locales.MsgSetDescDone, map[string]any{"Description": value}, nil)
	}
	return d.reply(ctx, ev, loc, locales.MsgSetNameDone, map[string]any{"Name": value}, nil)
}

func (d *Dispatcher) clearField(ctx context.Context, ev Event, field stats.Field) error {
	loc := d.locale(ctx, ev)
	if err := d.store.ClearField(ctx, ev.Key(), field); err != nil {
		return d.storageFailure(ctx, ev, "clear_field", err)
	}
	if field == stats.FieldDescription {
		return d.reply(ctx, ev, loc, locales.MsgDelDescDone, nil, nil)
	}
	return d.reply(ctx, ev, loc, locales.MsgDelNameDone, nil, nil)
}

func (d *Dispatcher) showStats(ctx context.Context, ev Event) error {
	rec, ok, err := d.store.Get(ctx, ev.Key())
	if err != nil {
		return d.storageFailure(ctx, ev, "get", err)
	}
	if !ok {
		return d.reply(ctx, ev, d.opts.DefaultLocale, locales.MsgNoData, nil, nil)
	}
	loc := locales.OrDefault(rec.Language, d.opts.DefaultLocale)

	name := rec.Name()
	if name == "" {
		name = d.catalog.Text(loc, locales.MsgNameUnset, nil)
	}
	desc := rec.Description
	if desc == "" {
		desc = d.catalog.Text(loc, locales.MsgDescUnset, nil)
	}
	return d.reply(ctx, ev, loc, locales.MsgStatsCard, map[string]any{
		"Name":        name,
		"Count":       rec.MessageCount,
		"Description": desc,
	}, nil)
}

func (d *Dispatcher) showTop(ctx context.Context, ev Event) error {
	loc := d.locale(ctx, ev)
	recs, err := d.store.Top(ctx, ev.ChatID, d.opts.TopLimit)
	if err != nil {
		return d.storageFailure(ctx, ev, "top", err)
	}
	if len(recs) == 0 {
		return d.reply(ctx, ev, loc, locales.MsgTopEmpty, nil, nil)
	}

	lines := []string{d.catalog.Text(loc, locales.MsgTopHeader, nil)}
	for i, rec := range recs {
		lines = append(lines, d.catalog.Text(loc, locales.MsgTopLine, map[string]any{
			"Rank":  i + 1,
			"Name":  d.nameOrPlaceholder(loc, rec),
			"Count": rec.MessageCount,
		}))
	}
	return d.send(ctx, ev, strings.Join(lines, "\n"), nil)
}

func (d *Dispatcher) showFullStats(ctx context.Context, ev Event) error {
	loc := d.locale(ctx, ev)
	if !d.IsAdmin(ev.UserID) {
		logger.LogEvent(ctx, logger.Bot, slog.LevelInfo, "fullstats.denied",
			slog.String("status", "denied"),
		)
		if err := d.reply(ctx, ev, loc, locales.MsgAdminsOnly, nil, nil); err != nil {
			return err
		}
		return ErrUnauthorized
	}

	recs, err := d.store.All(ctx)
	if err != nil {
		return d.storageFailure(ctx, ev, "all", err)
	}
	if len(recs) == 0 {
		return d.reply(ctx, ev, loc, locales.MsgFullStatsEmpty, nil, nil)
	}

	lines := []string{d.catalog.Text(loc, locales.MsgFullStatsHeader, nil)}
	for _, rec := range recs {
		lines = append(lines, d.catalog.Text(loc, locales.MsgFullStatsLine, map[string]any{
			"Name":   d.nameOrPlaceholder(loc, rec),
			"Count":  rec.MessageCount,
			"ChatID": rec.ChatID,
		}))
	}
	return d.send(ctx, ev, strings.Join(lines, "\n"), nil)
}

func (d *Dispatcher) setLanguage(ctx context.Context, ev Event, raw string) error {
	loc := d.locale(ctx, ev)
	next, ok := locales.Parse(raw)
	if !ok {
		if err := d.reply(ctx, ev, loc, locales.MsgLanguageHint, map[string]any{"Codes": locales.Codes()}, d.languageButtons); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			return ErrMissingArgument
		}
		return fmt.Errorf("%w: language %q", ErrUnsupportedArgument, logger.SanitizeLimit(raw, 16))
	}

	if err := d.store.Ensure(ctx, ev.Key()); err != nil {
		return d.storageFailure(ctx, ev, "ensure", err)
	}
	if err := d.store.SetField(ctx, ev.Key(), stats.FieldLanguage, string(next)); err != nil {
		return d.storageFailure(ctx, ev, "set_field", err)
	}
	return d.reply(ctx, ev, next, locales.MsgLanguageSet, nil, nil)
}

func (d *Dispatcher) showContact(ctx context.Context, ev Event) error {
	loc := d.locale(ctx, ev)
	if d.opts.AdminContact == "" {
		return d.reply(ctx, ev, loc, locales.MsgContactUnavailable, nil, nil)
	}
	return d.reply(ctx, ev, loc, locales.MsgContact, map[string]any{"Contact": d.opts.AdminContact}, nil)
}

// locale returns the stored language of the sender, or the default when the
// record is absent or cannot be read.
func (d *Dispatcher) locale(ctx context.Context, ev Event) locales.Locale {
	rec, ok, err := d.store.Get(ctx, ev.Key())
	if err != nil || !ok {
		return d.opts.DefaultLocale
	}
	return locales.OrDefault(rec.Language, d.opts.DefaultLocale)
}

func (d *Dispatcher) nameOrPlaceholder(loc locales.Locale, rec stats.Record) string {
	if name := rec.Name(); name != "" {
		return name
	}
	return d.catalog.Text(loc, locales.MsgNoName, nil)
}

func (d *Dispatcher) menuButtons(loc locales.Locale) [][]Button {
	btn := func(id string, label locales.MessageID) Button {
		return Button{Text: d.catalog.Text(loc, label, nil), ID: id}
	}
	return [][]Button{
		{btn(BtnStats, locales.BtnStats), btn(BtnTop, locales.BtnTop)},
		{btn(BtnSetName, locales.BtnSetName), btn(BtnSetDesc, locales.BtnSetDesc)},
		{btn(BtnLanguage, locales.BtnLanguage), btn(BtnContact, locales.BtnContact)},
	}
}

func (d *Dispatcher) languageButtons(loc locales.Locale) [][]Button {
	return [][]Button{{
		{Text: d.catalog.Text(loc, locales.BtnLangRU, nil), ID: BtnLang, Payload: string(locales.RU)},
		{Text: d.catalog.Text(loc, locales.BtnLangEN, nil), ID: BtnLang, Payload: string(locales.EN)},
	}}
}

func (d *Dispatcher) reply(ctx context.Context, ev Event, loc locales.Locale, id locales.MessageID, data map[string]any, buttons func(locales.Locale) [][]Button) error {
	var kb [][]Button
	if buttons != nil {
		kb = buttons(loc)
	}
	return d.send(ctx, ev, d.catalog.Text(loc, id, data), kb)
}

func (d *Dispatcher) send(ctx context.Context, ev Event, text string, buttons [][]Button) error {
	err := d.sink.Reply(ctx, Reply{ChatID: ev.ChatID, Text: text, Buttons: buttons})
	if err != nil {
		logger.LogEvent(ctx, logger.Bot, slog.LevelWarn, "reply.dropped",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 200)),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// storageFailure answers with the generic failure text and returns the wrapped cause.
func (d *Dispatcher) storageFailure(ctx context.Context, ev Event, op string, err error) error {
	logger.LogEvent(ctx, logger.Bot, slog.LevelWarn, "storage.failed",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.String("err", logger.SanitizeLimit(err.Error(), 200)),
	)
	_ = d.reply(ctx, ev, d.opts.DefaultLocale, locales.MsgGenericFailure, nil, nil)
	return fmt.Errorf("%s: %w", op, err)
}
