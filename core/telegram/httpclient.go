package telegram

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/chatstats/core/logger"
	"github.com/m3rciful/chatstats/core/telegram/netutil"
)

// HTTPClientOptions tunes the Bot API client.
type HTTPClientOptions struct {
	// LongPoll is the getUpdates timeout; response deadlines are stretched past it.
	LongPoll time.Duration
	// Retry applies to transport failures only, never to API error replies.
	Retry netutil.Policy
}

func (o HTTPClientOptions) withDefaults() HTTPClientOptions {
	if o.LongPoll <= 0 {
		o.LongPoll = 10 * time.Second
	}
	if o.Retry.MaxRetries == 0 && o.Retry.Backoff == 0 {
		o.Retry = netutil.Policy{MaxRetries: 3, Backoff: 500 * time.Millisecond, MaxDelay: 4 * time.Second}
	}
	return o
}

// BuildHTTPClient returns the client handed to telebot.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	opts = opts.withDefaults()

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.LongPoll + 5*time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout:   opts.LongPoll + 20*time.Second,
		Transport: &retryTransport{base: base, policy: opts.Retry},
	}
}

// retryTransport replays requests that failed before Telegram answered.
type retryTransport struct {
	base   http.RoundTripper
	policy netutil.Policy
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	// a consumed body without GetBody cannot be sent twice
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return base.RoundTrip(req)
	}

	var resp *http.Response
	first := true
	_, err := netutil.Do(req.Context(), t.policy, func(ctx context.Context) error {
		out := req
		if !first {
			out = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return err
				}
				out.Body = body
			}
		}
		first = false

		r, err := base.RoundTrip(out)
		resp = r
		return err
	}, retryLogger(req))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func retryLogger(req *http.Request) netutil.RetryFunc {
	method := path.Base(req.URL.Path)
	return func(attempt int, err error, delay time.Duration) {
		logger.LogEvent(req.Context(), logger.TWire, slog.LevelWarn, "api.retry",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("err", logger.SanitizeLimit(err.Error(), 200)),
		)
	}
}
