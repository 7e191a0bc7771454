package logger

import (
	"log/slog"
	"strings"
)

// keyOrder puts identity first, then the update, then outcome details.
// Keys missing from the list follow alphabetically.
var keyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "update_id", "chat_id", "user_id", "handler",
	"command", "button", "kind", "outcome", "duration_ms",
	"count", "limit", "members", "lang", "kb",
	"mode", "listen", "public_url", "http_code", "queue_len",
	"driver", "version", "method", "endpoint", "action",
	"attempt", "attempts", "delay_ms", "err", "err_kind",
}

// Status spellings accepted from call sites, folded to the canonical set.
var statusAliases = map[string]string{
	"error":    "fail",
	"failed":   "fail",
	"canceled": "cancelled",
	"skipped":  "skip",
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	}
	return "ERROR"
}

func canonicalStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := statusAliases[s]; ok {
		return alias
	}
	return s
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// parseKeyOrder reads a comma separated override; empty or "default" keeps keyOrder.
func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "default") {
		return keyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return keyOrder
	}
	return order
}
