package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestOutboxDeliversQueuedJobs(t *testing.T) {
	o := NewOutbox(Options{QueueSize: 8, Workers: 2})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, o.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
			ran.Add(1)
			return nil
		}))
	}
	o.Close()

	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, uint64(5), o.SentCount())
	assert.Zero(t, o.ErrorCount())
}

func TestOutboxCountsFailures(t *testing.T) {
	o := NewOutbox(Options{Workers: 1})
	require.NoError(t, o.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		return errors.New("telegram: chat not found (400)")
	}))
	o.Close()
	assert.Equal(t, uint64(1), o.ErrorCount())
}

func TestOutboxRetriesTransientErrors(t *testing.T) {
	o := NewOutbox(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, o.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return nil
	}))
	o.Close()
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(1), o.SentCount())
	assert.Zero(t, o.ErrorCount())
}

func TestOutboxQueueFullFallsBackToDirectCall(t *testing.T) {
	o := NewOutbox(Options{QueueSize: 1, Workers: 1})
	defer o.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, o.Enqueue(context.Background(), "block", "", func() error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, o.Enqueue(context.Background(), "fill", "", func() error { return nil }))
	assert.ErrorIs(t, o.Enqueue(context.Background(), "over", "", func() error { return nil }), ErrQueueFull)

	var direct bool
	require.NoError(t, o.Submit(context.Background(), "submit", "", func() error {
		direct = true
		return nil
	}))
	assert.True(t, direct)
	close(block)
}

func TestOutboxClosed(t *testing.T) {
	o := NewOutbox(Options{})
	o.Close()
	o.Close()
	assert.ErrorIs(t, o.Enqueue(context.Background(), "x", "", func() error { return nil }), ErrQueueClosed)

	err := o.Submit(context.Background(), "x", "", func() error { return errors.New("down") })
	assert.EqualError(t, err, "down")
	assert.Equal(t, uint64(1), o.ErrorCount())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCanceled},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, KindDial},
		{&net.DNSError{Err: "no such host", Name: "api.telegram.org"}, KindDNS},
		{errors.New("telegram: message to delete not found (400)"), KindClient},
		{errors.New("telegram: Forbidden: bot was blocked by the user (403)"), KindForbidden},
		{&tele.Error{Code: 502, Description: "bad gateway"}, KindServer},
		{errors.New("weird (x)"), KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AA-bb_cc/sendMessage": timeout`)
	assert.NotContains(t, redact(err), "AA-bb_cc")
	assert.Contains(t, redact(err), "bot<redacted>/sendMessage")
	assert.Empty(t, redact(nil))
}
