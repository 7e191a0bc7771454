package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
)

// ErrorKind buckets a failed Bot API call for logs.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindCanceled  ErrorKind = "canceled"
	KindDNS       ErrorKind = "dns"
	KindDial      ErrorKind = "dial"
	KindTLS       ErrorKind = "tls"
	KindFlood     ErrorKind = "flood"
	KindForbidden ErrorKind = "forbidden"
	KindClient    ErrorKind = "http_4xx"
	KindServer    ErrorKind = "http_5xx"
	KindUnknown   ErrorKind = "unknown"
)

// Classify maps err onto an ErrorKind. Transport failures are checked
// before API replies.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if k := transportKind(err); k != "" {
		return k
	}
	switch code := apiCode(err); {
	case code == http.StatusTooManyRequests:
		return KindFlood
	case code == http.StatusForbidden:
		return KindForbidden
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	}
	return KindUnknown
}

func transportKind(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	var alert tls.AlertError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &alert) || errors.As(err, &certErr) {
		return KindTLS
	}
	return ""
}

// apiCode extracts the Bot API error code, falling back to the
// "telegram: <description> (<code>)" text telebot renders for unknown errors.
func apiCode(err error) int {
	var apiErr *tele.Error
	var flood tele.FloodError
	var group tele.GroupError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	}
	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil {
		return 0
	}
	return code
}

var tokenPattern = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redact strips bot tokens that net/http embeds in request URLs.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenPattern.ReplaceAllLiteralString(err.Error(), "bot<redacted>")
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := make([]slog.Attr, 0, 2+len(extra))
	attrs = append(attrs, slog.String("action", j.action))
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

func (j job) logResult(ctx context.Context, err error, attempts int, elapsed time.Duration) {
	if err == nil {
		extra := []slog.Attr{slog.Duration("duration", logger.RoundMS(elapsed))}
		if attempts > 1 {
			extra = append(extra, slog.Int("attempts", attempts))
		}
		logger.Debug(ctx, "tg.sender", "send.success", j.attrs(extra...)...)
		return
	}
	logger.Error(ctx, "tg.sender", "send.fail", j.attrs(
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(redact(err), 256)),
		slog.String("err_kind", string(Classify(err))),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(elapsed)),
	)...)
}
