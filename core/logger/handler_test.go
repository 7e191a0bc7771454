package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T, enc encoding) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, time.Hour)
	h := newLineHandler(slog.LevelDebug, w, enc, nil)
	return slog.New(h), func() string {
		require.NoError(t, w.Close())
		return strings.TrimSpace(buf.String())
	}
}

func TestLineHandlerKVKeyOrder(t *testing.T) {
	log, read := captureLogger(t, encodeKV)
	ctx := WithRID(context.Background(), "42:-100:7")
	ctx = WithUpdateMeta(ctx, 42, 7, -100)
	ctx = WithHandler(ctx, "cmd.stats")

	LogEvent(ctx, log.With("component", "bot"), slog.LevelInfo, "command.handled",
		slog.String("command", "stats"),
		slog.String("status", "error"),
	)

	tokens := strings.Fields(read())
	want := []string{
		"ts=", "level=INFO", "component=bot", "event=command.handled", "status=fail",
		"rid=42:-100:7", "update_id=42", "chat_id=-100", "user_id=7", "handler=cmd.stats", "command=stats",
	}
	require.Len(t, tokens, len(want))
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %q, want prefix %q", i, tokens[i], prefix)
	}
}

func TestLineHandlerJSON(t *testing.T) {
	log, read := captureLogger(t, encodeJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "stats"), slog.LevelError, "store.failed",
		slog.Any("err", errors.New("disk I/O error")),
		slog.Int64("user_id", 5),
	)

	line := read()
	assert.True(t, strings.HasPrefix(line, `{"ts":`), line)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "ERROR", decoded["level"])
	assert.Equal(t, "stats", decoded["component"])
	assert.Equal(t, "store.failed", decoded["event"])
	assert.Equal(t, "rid-json", decoded["rid"])
	assert.Equal(t, "disk I/O error", decoded["err"])
	assert.EqualValues(t, 5, decoded["user_id"])

	assert.Less(t, strings.Index(line, `"event"`), strings.Index(line, `"rid"`))
	assert.Less(t, strings.Index(line, `"user_id"`), strings.Index(line, `"err"`))
}

func TestLineHandlerExplicitAttrsBeatContext(t *testing.T) {
	log, read := captureLogger(t, encodeKV)
	ctx := WithUpdateMeta(context.Background(), 1, 7, 9)

	log.LogAttrs(ctx, slog.LevelInfo, "member.welcome", slog.Int64("user_id", 77))
	line := read()
	assert.Contains(t, line, "user_id=77")
	assert.NotContains(t, line, "user_id=7 ")
	assert.Contains(t, line, "event=member.welcome")
}

func TestLineHandlerDurationsAndGroups(t *testing.T) {
	log, read := captureLogger(t, encodeKV)

	log.WithGroup("db").Info("query",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.String("empty", "  "),
	)

	line := read()
	assert.Contains(t, line, "db.duration_ms=2")
	assert.NotContains(t, line, "empty")
	assert.Contains(t, line, "event=query")
	assert.Contains(t, line, "component=app")
}

func TestLineHandlerQuotesValues(t *testing.T) {
	log, read := captureLogger(t, encodeKV)
	log.Info("text", slog.String("payload", `hello "world"`))
	assert.Contains(t, read(), `payload="hello \"world\""`)
}

func TestLineHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newLineWriter([]io.Writer{buf}, time.Hour)
	log := slog.New(newLineHandler(slog.LevelWarn, w, encodeKV, nil))

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, w.Close())
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "event=kept")
}

func TestLineWriterFlushesOnInterval(t *testing.T) {
	buf := &safeBuffer{}
	w := newLineWriter([]io.Writer{buf}, 5*time.Millisecond)
	defer w.Close()

	require.NoError(t, w.WriteLine([]byte("one\n")))
	assert.Eventually(t, func() bool { return buf.String() == "one\n" }, time.Second, 5*time.Millisecond)
}

func TestLineWriterRejectsAfterClose(t *testing.T) {
	w := newLineWriter([]io.Writer{io.Discard}, time.Hour)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteLine([]byte("late\n")), io.ErrClosedPipe)
}

func TestSampler(t *testing.T) {
	s := newSampler(sampleRate{n: 1, d: 3})
	allowed := 0
	for i := 0; i < 9; i++ {
		if s.allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	s.set(sampleRate{})
	assert.True(t, s.allow())
}

func TestParseSampleRate(t *testing.T) {
	cases := []struct {
		spec string
		want sampleRate
		ok   bool
	}{
		{"1/10", sampleRate{1, 10}, true},
		{"20", sampleRate{1, 20}, true},
		{"5/2", sampleRate{2, 2}, true},
		{"off", sampleRate{}, true},
		{"0", sampleRate{}, true},
		{"x/y", sampleRate{}, false},
		{"", sampleRate{}, false},
	}
	for _, tc := range cases {
		got, ok := parseSampleRate(tc.spec)
		assert.Equal(t, tc.ok, ok, tc.spec)
		assert.Equal(t, tc.want, got, tc.spec)
	}
}

func TestContextMeta(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 3, 7, -5)
	ctx = WithRID(ctx, BuildRID(3, -5, 7))
	ctx = WithHandler(ctx, "")

	assert.Equal(t, Meta{RID: "3:-5:7", UpdateID: 3, UserID: 7, ChatID: -5}, MetaFrom(ctx))
	assert.Equal(t, "3:-5:7", RIDFrom(ctx))
	assert.Empty(t, HandlerFrom(ctx))
	assert.Equal(t, Meta{}, MetaFrom(context.Background()))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", Sanitize("a\x00b\tc\u200b"))
	assert.Equal(t, "при", SanitizeLimit("привет", 3))
	assert.Equal(t, "hi", SanitizeLimit("hi", 10))
	assert.Empty(t, SanitizeLimit("hi", 0))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
