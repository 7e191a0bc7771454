package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type encoding uint8

const (
	encodeJSON encoding = iota
	encodeKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// lineHandler is the slog.Handler behind every component logger. It renders
// one record per line with keys in a fixed order, so both humans and log
// shippers can scan for rid and event.
type lineHandler struct {
	level slog.Leveler
	out   *lineWriter
	enc   encoding
	order []string

	prefix string
	bound  []slog.Attr
}

func newLineHandler(level slog.Leveler, out *lineWriter, enc encoding, order []string) *lineHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	if len(order) == 0 {
		order = keyOrder
	}
	return &lineHandler{level: level, out: out, enc: enc, order: order}
}

func (h *lineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.bound = slices.Clip(h.bound)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		c.bound = append(c.bound, a)
	}
	return &c
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.qualify(name)
	return &c
}

func (h *lineHandler) qualify(key string) string {
	switch {
	case h.prefix == "":
		return key
	case key == "":
		return h.prefix
	}
	return h.prefix + "." + key
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.out == nil {
		return errors.New("logger: handler has no writer")
	}

	e := entry{}
	e.put("ts", r.Time.UTC().Truncate(time.Millisecond).Format(tsLayout))
	e.put("level", levelName(r.Level))
	for _, a := range h.bound {
		e.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(h.prefix, a)
		return true
	})
	// explicit attributes win over the update metadata
	for _, a := range MetaFrom(ctx).attrs() {
		e.putDefault(a.Key, a.Value.Any())
	}

	event := r.Message
	if event == "" {
		event = "unknown"
	}
	e.putDefault("event", event)
	e.putDefault("component", "app")
	if s, ok := e.fields["status"].(string); ok {
		e.fields["status"] = canonicalStatus(s)
	}

	var line []byte
	if h.enc == encodeKV {
		line = e.kv(h.order)
	} else {
		var err error
		if line, err = e.json(h.order); err != nil {
			return err
		}
	}
	return h.out.WriteLine(append(line, '\n'))
}

// entry collects flattened fields of one record.
type entry struct {
	fields map[string]any
}

func (e *entry) put(key string, v any) {
	if e.fields == nil {
		e.fields = make(map[string]any, 16)
	}
	if s, ok := v.(string); ok && s == "" {
		delete(e.fields, key)
		return
	}
	e.fields[key] = v
}

func (e *entry) putDefault(key string, v any) {
	if _, ok := e.fields[key]; !ok {
		e.put(key, v)
	}
}

// add flattens groups into dotted keys and normalizes values.
func (e *entry) add(prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = strings.TrimSuffix(prefix+"."+key, ".")
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			e.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}

	switch v.Kind() {
	case slog.KindString:
		e.put(key, strings.TrimSpace(v.String()))
	case slog.KindDuration:
		e.put(msKey(key), RoundMS(v.Duration()).Milliseconds())
	case slog.KindTime:
		e.put(key, v.Time().UTC().Format(time.RFC3339Nano))
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
		case error:
			e.put(key, x.Error())
		case time.Duration:
			e.put(msKey(key), RoundMS(x).Milliseconds())
		case fmt.Stringer:
			e.put(key, x.String())
		default:
			e.put(key, fmt.Sprint(x))
		}
	default:
		e.put(key, v.Any())
	}
}

// msKey renames duration attributes: "duration" becomes "duration_ms".
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (e *entry) keys(order []string) []string {
	out := make([]string, 0, len(e.fields))
	for _, k := range order {
		if _, ok := e.fields[k]; ok && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	known := len(out)
	for k := range e.fields {
		if !slices.Contains(out[:known], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[known:])
	return out
}

func (e *entry) json(order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range e.keys(order) {
		v, err := json.Marshal(e.fields[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

func (e *entry) kv(order []string) []byte {
	var buf []byte
	for i, k := range e.keys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		s := fmt.Sprint(e.fields[k])
		if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	}
	return buf
}
