package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/m3rciful/chatstats/core/logger"
)

// Deleter removes a delivered message.
type Deleter interface {
	Delete(ctx context.Context, ref MessageRef) error
}

// Janitor deletes messages after a delay. Each deletion runs on its own
// timer; the scheduling call never blocks.
type Janitor struct {
	del   Deleter
	clock clockwork.Clock

	mu     sync.Mutex
	nextID uint64
	timers map[uint64]clockwork.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewJanitor returns a janitor deleting through del. A nil clock means wall time.
func NewJanitor(del Deleter, clock clockwork.Clock) *Janitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Janitor{del: del, clock: clock, timers: make(map[uint64]clockwork.Timer)}
}

// Schedule deletes ref after delay. It is a no-op after Close.
func (j *Janitor) Schedule(ctx context.Context, ref MessageRef, delay time.Duration) {
	ctx = context.WithoutCancel(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.nextID++
	id := j.nextID
	j.wg.Add(1)
	j.timers[id] = j.clock.AfterFunc(delay, func() {
		defer j.wg.Done()
		if !j.claim(id) {
			return
		}
		// the message may already be gone; nothing depends on the outcome
		_ = j.delete(ctx, ref)
	})
}

// claim removes id from the pending set; false means Close got there first.
func (j *Janitor) claim(id uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.timers[id]; !ok {
		return false
	}
	delete(j.timers, id)
	return true
}

// delete removes ref and logs the result at debug.
func (j *Janitor) delete(ctx context.Context, ref MessageRef) error {
	start := j.clock.Now()
	err := j.del.Delete(ctx, ref)

	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("target_chat_id", ref.ChatID),
		slog.Int("message_id", ref.MessageID),
		slog.Duration("duration", logger.RoundMS(j.clock.Since(start))),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 200)))
	}
	logger.LogEvent(ctx, logger.Bot, slog.LevelDebug, "welcome.delete", attrs...)
	return err
}

// Pending reports how many deletions are still scheduled.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.timers)
}

// Close cancels pending deletions and waits for running ones.
func (j *Janitor) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	for id, t := range j.timers {
		if t.Stop() {
			j.wg.Done()
		}
		delete(j.timers, id)
	}
	j.mu.Unlock()
	j.wg.Wait()
}
