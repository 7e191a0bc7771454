package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/valyala/fastjson"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chatstats/core/logger"
)

// SecretHeader carries the webhook secret token on every Telegram delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// WebhookOptions declares the HTTP front door settings.
type WebhookOptions struct {
	Listen string
	Port   int
	// URL is the public base URL; Path is appended to it.
	URL         string
	Path        string
	SecretToken string
	QueueSize   int
	// Health is probed by GET /healthz; nil means always healthy.
	Health func(ctx context.Context) error
}

// WebhookRegistrar is the part of tele.Bot used to (de)register the webhook.
type WebhookRegistrar interface {
	SetWebhook(w *tele.Webhook) error
	RemoveWebhook(dropPending ...bool) error
}

// WebhookPoller is a tele.Poller that receives updates on an HTTP endpoint.
// Accepted updates are buffered in a bounded queue; a full queue answers 503
// so Telegram redelivers later.
type WebhookPoller struct {
	opts   WebhookOptions
	secret string
	queue  chan tele.Update
	router *mux.Router

	mu  sync.Mutex
	srv *http.Server
}

// NewWebhookPoller builds the front door. A random secret is generated when none is configured.
func NewWebhookPoller(opts WebhookOptions) *WebhookPoller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Path == "" {
		opts.Path = "/telegram/webhook"
	}
	secret := opts.SecretToken
	if secret == "" {
		secret = uuid.NewString()
	}
	p := &WebhookPoller{
		opts:   opts,
		secret: secret,
		queue:  make(chan tele.Update, opts.QueueSize),
	}

	r := mux.NewRouter()
	r.HandleFunc(opts.Path, p.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/healthz", p.handleHealth).Methods(http.MethodGet)
	p.router = r
	return p
}

// Handler exposes the HTTP routes.
func (p *WebhookPoller) Handler() http.Handler {
	return p.router
}

// Secret returns the token Telegram must echo in SecretHeader.
func (p *WebhookPoller) Secret() string {
	return p.secret
}

// PublicURL is the full URL registered with Telegram.
func (p *WebhookPoller) PublicURL() string {
	return p.opts.URL + p.opts.Path
}

// Addr is the listen address.
func (p *WebhookPoller) Addr() string {
	return net.JoinHostPort(p.opts.Listen, strconv.Itoa(p.opts.Port))
}

func (p *WebhookPoller) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := p.accept(r)
	w.WriteHeader(code)

	level := slog.LevelDebug
	if code != http.StatusOK {
		level = slog.LevelWarn
	}
	logger.LogEvent(r.Context(), logger.HTTP, level, "webhook.update",
		slog.String("status", statusForCode(code)),
		slog.Int("http_code", code),
		slog.Int("queue_len", len(p.queue)),
		slog.Duration("duration", logger.Took(start)),
	)
}

func (p *WebhookPoller) accept(r *http.Request) int {
	got := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(p.secret)) != 1 {
		return http.StatusUnauthorized
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		return http.StatusBadRequest
	}
	var parser fastjson.Parser
	v, err := parser.ParseBytes(body)
	if err != nil || v.Get("update_id") == nil {
		return http.StatusBadRequest
	}
	var upd tele.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return http.StatusBadRequest
	}

	select {
	case p.queue <- upd:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}

func (p *WebhookPoller) handleHealth(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	body := map[string]string{"status": "ok"}
	if p.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.opts.Health(ctx); err != nil {
			code = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			logger.HTTP.Warn("health check failed",
				slog.String("event", "healthz"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Poll implements tele.Poller: it pumps queued updates into dest until stop
// is closed, then deregisters. The front door is opened here unless Open
// already did it.
func (p *WebhookPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	p.run(b, dest, stop)
}

// Open binds the listener, starts serving and registers the webhook with
// api. A rejected registration closes the listener again. Opening an open
// poller is a no-op.
func (p *WebhookPoller) Open(api WebhookRegistrar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", p.Addr())
	if err != nil {
		logger.HTTP.Error("listen failed",
			slog.String("event", "listen"),
			slog.String("status", "fail"),
			slog.String("listen", p.Addr()),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("webhook: listen %s: %w", p.Addr(), err)
	}
	srv := &http.Server{
		Handler:           p.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.HTTP.Error("serve failed",
				slog.String("event", "serve"),
				slog.String("err", err.Error()),
			)
		}
	}()
	logger.HTTP.Info("webhook listener started",
		slog.String("event", "listen"),
		slog.String("listen", ln.Addr().String()),
		slog.String("public_url", p.PublicURL()),
	)

	if api != nil {
		hook := &tele.Webhook{
			SecretToken:    p.secret,
			AllowedUpdates: AllowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: p.PublicURL()},
		}
		if err := api.SetWebhook(hook); err != nil {
			logger.TG.Error("set webhook failed",
				slog.String("event", "set_webhook"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			_ = srv.Close()
			return fmt.Errorf("webhook: register %s: %w", p.PublicURL(), err)
		}
		logger.TG.Info("webhook registered",
			slog.String("event", "set_webhook"),
			slog.String("status", "ok"),
			slog.String("public_url", p.PublicURL()),
		)
	}
	p.srv = srv
	return nil
}

func (p *WebhookPoller) run(api WebhookRegistrar, dest chan tele.Update, stop chan struct{}) {
	if err := p.Open(api); err != nil {
		<-stop
		return
	}
	for {
		select {
		case <-stop:
			p.Shutdown(api)
			return
		case upd := <-p.queue:
			select {
			case dest <- upd:
			case <-stop:
				p.Shutdown(api)
				return
			}
		}
	}
}

// Shutdown stops the listener and deregisters the webhook from api.
func (p *WebhookPoller) Shutdown(api WebhookRegistrar) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.mu.Lock()
	srv := p.srv
	p.srv = nil
	p.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.HTTP.Warn("listener shutdown failed",
			slog.String("event", "shutdown"),
			slog.String("err", err.Error()),
		)
	}

	if api == nil {
		return
	}
	status, attrs := "ok", []slog.Attr{}
	if err := api.RemoveWebhook(false); err != nil {
		status = "fail"
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	attrs = append(attrs, slog.String("status", status))
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "delete_webhook", attrs...)
}

func statusForCode(code int) string {
	switch {
	case code == http.StatusOK:
		return "ok"
	case code == http.StatusUnauthorized:
		return "denied"
	case code >= 500:
		return "fail"
	default:
		return "skip"
	}
}
