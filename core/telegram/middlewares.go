package telegram

import (
	"github.com/m3rciful/chatstats/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain: panic recovery first,
// then the receipt logger that seeds the per-update context, then reply counters.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
}
