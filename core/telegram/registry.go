package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
	"github.com/m3rciful/chatstats/core/telegram/commands"
)

var (
	// ErrInvalidRoute is returned for registrations missing a name, handler or description.
	ErrInvalidRoute = errors.New("telegram: invalid route")
	// ErrDuplicateRoute is returned when a command or callback is registered twice.
	ErrDuplicateRoute = errors.New("telegram: duplicate route")
)

// Registry is the routing table filled by feature code before the bot starts:
// slash commands, inline button uniques and the catch-all handlers.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	callbacks map[string]tele.HandlerFunc

	onUnknownCallback tele.HandlerFunc
	onText            tele.HandlerFunc
	onMemberJoined    tele.HandlerFunc
}

// NewRegistry returns an empty registry that silently acknowledges unknown callbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands:          map[string]commands.Command{},
		callbacks:         map[string]tele.HandlerFunc{},
		onUnknownCallback: func(tele.Context) error { return nil },
	}
}

// RegisterCommand binds "/name" to cmd. The handler and a description are required.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("%w: command %q", ErrInvalidRoute, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("%w: command %q", ErrDuplicateRoute, name)
	}
	r.commands[name] = cmd
	return nil
}

// RegisterCallback binds an inline button unique to h.
func (r *Registry) RegisterCallback(unique string, h tele.HandlerFunc) error {
	if unique == "" || h == nil {
		return fmt.Errorf("%w: callback %q", ErrInvalidRoute, unique)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[unique]; dup {
		return fmt.Errorf("%w: callback %q", ErrDuplicateRoute, unique)
	}
	r.callbacks[unique] = h
	return nil
}

// Commands returns a snapshot of the registered commands keyed by "/name".
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// LookupCommand resolves message text such as "/stats@bot args" to the
// canonical command key. Aliases are matched with or without the slash.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	head := strings.Fields(text)
	if len(head) == 0 {
		return "", commands.Command{}, false
	}
	name, _, _ := strings.Cut(head[0], "@")
	name = "/" + strings.TrimPrefix(name, "/")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		if slices.Contains(cmd.Aliases, name[1:]) || slices.Contains(cmd.Aliases, name) {
			return key, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// ListCommands builds the command menu for lang; "" selects default
// descriptions. With visibleOnly, hidden and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool, lang string) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	menu := make([]tele.Command, 0, len(r.commands))
	for key, cmd := range r.commands {
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		menu = append(menu, tele.Command{Text: key[1:], Description: cmd.DescriptionFor(lang)})
	}
	slices.SortFunc(menu, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return menu
}

func (r *Registry) GetCallback(unique string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[unique]
	return h, ok
}

// ListCallbacks returns the registered uniques in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound handles presses of buttons nobody registered. nil keeps the current handler.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.onUnknownCallback = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onUnknownCallback
}

// SetTextFallback handles plain text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.onText = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onText
}

// SetMemberJoined handles each user joining a chat.
func (r *Registry) SetMemberJoined(h tele.HandlerFunc) {
	r.mu.Lock()
	r.onMemberJoined = h
	r.mu.Unlock()
}

func (r *Registry) MemberJoined() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onMemberJoined
}

// CommandMenuSetter is the part of tele.Bot used by SetupCommands.
type CommandMenuSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands publishes the visible menu once with default descriptions and
// once per language code in langs.
func SetupCommands(bot CommandMenuSetter, reg *Registry, langs []string) error {
	if bot == nil || reg == nil {
		return nil
	}
	var errs []error
	for _, lang := range append([]string{""}, langs...) {
		menu := reg.ListCommands(true, lang)
		if len(menu) == 0 {
			continue
		}
		args := []interface{}{menu}
		if lang != "" {
			args = append(args, lang)
		}
		err := bot.SetCommands(args...)
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("lang", lang),
			slog.Int("count", len(menu)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 200)))
			errs = append(errs, fmt.Errorf("set commands %q: %w", lang, err))
		}
		logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "register.commands", attrs...)
	}
	return errors.Join(errs...)
}
